package cacheproviders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/tsukumogami/cport/internal/cacheconfig"
	"github.com/tsukumogami/cport/internal/httputil"
)

// GHAProvider is the x-gha binary-cache backend: two endpoints under
// <ACTIONS_CACHE_URL>_apis/artifactcache/{cache,caches}, authorized with
// ACTIONS_RUNTIME_TOKEN (spec.md §4.7). The original vcpkg shells out to
// curl for these calls; net/http is the idiomatic Go equivalent and is used
// directly rather than spawning a curl subprocess.
type GHAProvider struct {
	baseURL string
	token   string
	access  cacheconfig.Access
	client  *http.Client
}

// NewGHAProviderFromEnv builds a GHAProvider from the environment variables
// the GitHub Actions runner sets. Returns an error if either is missing,
// matching the backend's hard requirement (§4.7).
func NewGHAProviderFromEnv(access cacheconfig.Access) (*GHAProvider, error) {
	url := os.Getenv("ACTIONS_CACHE_URL")
	token := os.Getenv("ACTIONS_RUNTIME_TOKEN")
	if url == "" || token == "" {
		return nil, fmt.Errorf("x-gha cache source requires ACTIONS_CACHE_URL and ACTIONS_RUNTIME_TOKEN")
	}
	return &GHAProvider{
		baseURL: url,
		token:   token,
		access:  access,
		client:  httputil.NewSecureClient(httputil.DefaultOptions()),
	}, nil
}

func (p *GHAProvider) Access() cacheconfig.Access { return p.access }

func (p *GHAProvider) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+"_apis/artifactcache/"+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Accept", "application/json;api-version=6.0-preview.1")
	return req, nil
}

type ghaCacheEntry struct {
	ArchiveLocation string `json:"archiveLocation"`
}

type ghaReserveRequest struct {
	Key     string `json:"key"`
	Version string `json:"version"`
}

type ghaReserveResponse struct {
	CacheID int64 `json:"cacheId"`
}

func (p *GHAProvider) lookup(ctx context.Context, objectID string) (*ghaCacheEntry, error) {
	req, err := p.newRequest(ctx, http.MethodGet, "cache?keys="+objectID+"&version="+objectID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gha cache lookup: HTTP %d", resp.StatusCode)
	}
	var entry ghaCacheEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		return nil, fmt.Errorf("decoding gha cache entry: %w", err)
	}
	return &entry, nil
}

func (p *GHAProvider) Download(ctx context.Context, objects []string, targetDir string) error {
	for _, obj := range objects {
		entry, err := p.lookup(ctx, obj)
		if err != nil {
			return &CacheError{Type: ErrTypeNetwork, Backend: "x-gha", Message: fmt.Sprintf("looking up %s", obj), Err: err}
		}
		if entry == nil {
			return &CacheError{Type: ErrTypeNotFound, Backend: "x-gha", Message: fmt.Sprintf("%s not present in gha cache", obj)}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.ArchiveLocation, nil)
		if err != nil {
			return err
		}
		resp, err := p.client.Do(req)
		if err != nil {
			return &CacheError{Type: ErrTypeNetwork, Backend: "x-gha", Message: fmt.Sprintf("downloading %s", obj), Err: err}
		}
		writeErr := writeResponse(targetDir+"/"+obj, resp.Body, resp.ContentLength)
		resp.Body.Close()
		if writeErr != nil {
			return writeErr
		}
	}
	return nil
}

func (p *GHAProvider) Upload(ctx context.Context, objectID string, file string) error {
	reserveBody, err := json.Marshal(ghaReserveRequest{Key: objectID, Version: objectID})
	if err != nil {
		return err
	}
	req, err := p.newRequest(ctx, http.MethodPost, "caches", reserveBody)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return &CacheError{Type: ErrTypeNetwork, Backend: "x-gha", Message: fmt.Sprintf("reserving cache entry for %s", objectID), Err: err}
	}
	var reserved ghaReserveResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&reserved)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return &CacheError{Type: ErrTypeNetwork, Backend: "x-gha", Message: fmt.Sprintf("reserving cache entry: HTTP %d", resp.StatusCode)}
	}
	if decodeErr != nil {
		return fmt.Errorf("decoding gha reserve response: %w", decodeErr)
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return err
	}
	patchReq, err := p.newRequest(ctx, http.MethodPatch, fmt.Sprintf("caches/%d", reserved.CacheID), data)
	if err != nil {
		return err
	}
	patchReq.Header.Set("Content-Type", "application/octet-stream")
	patchReq.Header.Set("Content-Range", fmt.Sprintf("bytes 0-%d/*", len(data)))
	patchResp, err := p.client.Do(patchReq)
	if err != nil {
		return &CacheError{Type: ErrTypeNetwork, Backend: "x-gha", Message: fmt.Sprintf("uploading %s", objectID), Err: err}
	}
	patchResp.Body.Close()
	if patchResp.StatusCode >= 300 {
		return &CacheError{Type: ErrTypeNetwork, Backend: "x-gha", Message: fmt.Sprintf("uploading %s: HTTP %d", objectID, patchResp.StatusCode)}
	}

	commitBody, err := json.Marshal(map[string]int{"size": len(data)})
	if err != nil {
		return err
	}
	commitReq, err := p.newRequest(ctx, http.MethodPost, fmt.Sprintf("caches/%d", reserved.CacheID), commitBody)
	if err != nil {
		return err
	}
	commitReq.Header.Set("Content-Type", "application/json")
	commitResp, err := p.client.Do(commitReq)
	if err != nil {
		return &CacheError{Type: ErrTypeNetwork, Backend: "x-gha", Message: fmt.Sprintf("committing %s", objectID), Err: err}
	}
	defer commitResp.Body.Close()
	if commitResp.StatusCode >= 300 {
		return &CacheError{Type: ErrTypeNetwork, Backend: "x-gha", Message: fmt.Sprintf("committing %s: HTTP %d", objectID, commitResp.StatusCode)}
	}
	return nil
}

func (p *GHAProvider) CheckAvailability(ctx context.Context, objects []string) ([]bool, error) {
	out := make([]bool, len(objects))
	for i, obj := range objects {
		entry, err := p.lookup(ctx, obj)
		out[i] = err == nil && entry != nil
	}
	return out, nil
}
