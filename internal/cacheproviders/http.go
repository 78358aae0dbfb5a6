package cacheproviders

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/tsukumogami/cport/internal/cacheconfig"
	"github.com/tsukumogami/cport/internal/httputil"
	"github.com/tsukumogami/cport/internal/progress"
)

// HTTPProvider is the http/x-azblob binary-cache backend: a URL template
// with {sha} substituted per object, GET to download, PUT to upload, HEAD to
// check availability (spec.md §4.7). Only the object's SHA is known here, so
// {name}, {version} and {triplet} in a template are replaced with empty
// strings.
type HTTPProvider struct {
	urlTemplate string
	header      string // a single "Key: Value" line, or ""
	access      cacheconfig.Access
	client      *http.Client

	// authorize, when set, adds auth to an outgoing request (e.g. a bearer
	// token from OAuthHTTPProvider); nil for unauthenticated templates.
	authorize func(ctx context.Context, req *http.Request) error
}

// TemplateVars are the per-object substitutions available in a URL template.
type TemplateVars struct {
	SHA     string
	Name    string
	Version string
	Triplet string
}

func NewHTTPProvider(urlTemplate, header string, access cacheconfig.Access) *HTTPProvider {
	return &HTTPProvider{
		urlTemplate: urlTemplate,
		header:      header,
		access:      access,
		client:      httputil.NewSecureClient(httputil.DefaultOptions()),
	}
}

func (p *HTTPProvider) Access() cacheconfig.Access { return p.access }

func expandTemplate(tmpl string, vars TemplateVars) string {
	r := strings.NewReplacer(
		"{sha}", vars.SHA,
		"{name}", vars.Name,
		"{version}", vars.Version,
		"{triplet}", vars.Triplet,
	)
	return r.Replace(tmpl)
}

func (p *HTTPProvider) url(objectID string) string {
	sha := strings.TrimSuffix(objectID, ".zip")
	return expandTemplate(p.urlTemplate, TemplateVars{SHA: sha})
}

func (p *HTTPProvider) applyHeader(req *http.Request) {
	if p.header == "" {
		return
	}
	k, v, ok := strings.Cut(p.header, ":")
	if !ok {
		return
	}
	req.Header.Set(strings.TrimSpace(k), strings.TrimSpace(v))
}

func (p *HTTPProvider) Download(ctx context.Context, objects []string, targetDir string) error {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("creating target directory %s: %w", targetDir, err)
	}
	for _, obj := range objects {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(obj), nil)
		if err != nil {
			return fmt.Errorf("building request for %s: %w", obj, err)
		}
		p.applyHeader(req)
		if p.authorize != nil {
			if err := p.authorize(ctx, req); err != nil {
				return &CacheError{Type: ErrTypeAuth, Backend: "http", Message: fmt.Sprintf("authorizing download of %s", obj), Err: err}
			}
		}

		resp, err := p.client.Do(req)
		if err != nil {
			return &CacheError{Type: ErrTypeNetwork, Backend: "http", Message: fmt.Sprintf("downloading %s", obj), Err: err}
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return &CacheError{Type: ErrTypeNotFound, Backend: "http", Message: fmt.Sprintf("downloading %s: HTTP %d", obj, resp.StatusCode)}
		}

		dst := filepath.Join(targetDir, obj)
		if err := writeResponse(dst, resp.Body, resp.ContentLength); err != nil {
			resp.Body.Close()
			return fmt.Errorf("writing %s: %w", dst, err)
		}
		resp.Body.Close()
	}
	return nil
}

func (p *HTTPProvider) Upload(ctx context.Context, objectID string, file string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("opening %s for upload: %w", file, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, p.url(objectID), f)
	if err != nil {
		return fmt.Errorf("building upload request for %s: %w", objectID, err)
	}
	req.ContentLength = info.Size()
	p.applyHeader(req)
	if p.authorize != nil {
		if err := p.authorize(ctx, req); err != nil {
			return &CacheError{Type: ErrTypeAuth, Backend: "http", Message: fmt.Sprintf("authorizing upload of %s", objectID), Err: err}
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return &CacheError{Type: ErrTypeNetwork, Backend: "http", Message: fmt.Sprintf("uploading %s", objectID), Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &CacheError{Type: ErrTypeNetwork, Backend: "http", Message: fmt.Sprintf("uploading %s: HTTP %d", objectID, resp.StatusCode)}
	}
	return nil
}

func (p *HTTPProvider) CheckAvailability(ctx context.Context, objects []string) ([]bool, error) {
	out := make([]bool, len(objects))
	for i, obj := range objects {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.url(obj), nil)
		if err != nil {
			return nil, err
		}
		p.applyHeader(req)
		if p.authorize != nil {
			if err := p.authorize(ctx, req); err != nil {
				return nil, &CacheError{Type: ErrTypeAuth, Backend: "http", Message: "authorizing HEAD request", Err: err}
			}
		}
		resp, err := p.client.Do(req)
		if err != nil {
			out[i] = false
			continue
		}
		resp.Body.Close()
		out[i] = resp.StatusCode == http.StatusOK
	}
	return out, nil
}

// writeResponse streams body to dst via a temp file + rename, reporting
// download progress to stderr when attached to a terminal (contentLength
// <= 0, e.g. a chunked response, disables the percentage/ETA display but
// still shows a byte counter).
func writeResponse(dst string, body io.Reader, contentLength int64) error {
	out, err := os.CreateTemp(filepath.Dir(dst), ".cport-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := out.Name()
	defer os.Remove(tmpPath)

	var dest io.Writer = out
	if progress.ShouldShowProgress() {
		pw := progress.NewWriter(out, contentLength, os.Stderr)
		defer pw.Finish()
		dest = pw
	}

	if _, err := io.Copy(dest, body); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, dst)
}
