package cacheproviders

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/tsukumogami/cport/internal/cacheconfig"
)

// CLIProvider shells out to a bucket-backed CLI tool (gsutil, aws s3, cos)
// using that tool's own cp/ls semantics (spec.md §4.7). One CLIProvider
// instance is configured per backend via a cliFlavor.
type CLIProvider struct {
	flavor cliFlavor
	prefix string // e.g. "gs://bucket/prefix", "s3://bucket/prefix"
	access cacheconfig.Access
}

type cliFlavor struct {
	binary        string
	copyArgs      func(src, dst string) []string
	existsArgs    func(uri string) []string
	extraGlobal   []string // e.g. ["--endpoint-url", "..."] or no-sign-request flags
}

func gsutilFlavor() cliFlavor {
	return cliFlavor{
		binary:     "gsutil",
		copyArgs:   func(src, dst string) []string { return []string{"cp", src, dst} },
		existsArgs: func(uri string) []string { return []string{"stat", uri} },
	}
}

func awsFlavor(noSignRequest bool) cliFlavor {
	var extra []string
	if noSignRequest {
		extra = []string{"--no-sign-request"}
	}
	return cliFlavor{
		binary: "aws",
		copyArgs: func(src, dst string) []string {
			return append([]string{"s3", "cp", src, dst}, extra...)
		},
		existsArgs: func(uri string) []string {
			return append([]string{"s3", "ls", uri}, extra...)
		},
		extraGlobal: extra,
	}
}

func cosFlavor() cliFlavor {
	return cliFlavor{
		binary:     "cos",
		copyArgs:   func(src, dst string) []string { return []string{"cp", src, dst} },
		existsArgs: func(uri string) []string { return []string{"ls", uri} },
	}
}

func NewGSUtilProvider(prefix string, access cacheconfig.Access) *CLIProvider {
	return &CLIProvider{flavor: gsutilFlavor(), prefix: prefix, access: access}
}

func NewAWSProvider(prefix string, noSignRequest bool, access cacheconfig.Access) *CLIProvider {
	return &CLIProvider{flavor: awsFlavor(noSignRequest), prefix: prefix, access: access}
}

func NewCOSProvider(prefix string, access cacheconfig.Access) *CLIProvider {
	return &CLIProvider{flavor: cosFlavor(), prefix: prefix, access: access}
}

func (p *CLIProvider) Access() cacheconfig.Access { return p.access }

func (p *CLIProvider) objectURI(objectID string) string {
	return strings.TrimRight(p.prefix, "/") + "/" + objectID
}

func (p *CLIProvider) run(ctx context.Context, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, p.flavor.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return string(output), fmt.Errorf("%s %s: %w: %s", p.flavor.binary, strings.Join(args, " "), err, strings.TrimSpace(string(output)))
	}
	return string(output), nil
}

func (p *CLIProvider) Download(ctx context.Context, objects []string, targetDir string) error {
	for _, obj := range objects {
		dst := targetDir + "/" + obj
		if _, err := p.run(ctx, p.flavor.copyArgs(p.objectURI(obj), dst)); err != nil {
			return &CacheError{Type: ErrTypeNotFound, Backend: p.flavor.binary, Message: fmt.Sprintf("downloading %s", obj), Err: err}
		}
	}
	return nil
}

func (p *CLIProvider) Upload(ctx context.Context, objectID string, file string) error {
	if _, err := p.run(ctx, p.flavor.copyArgs(file, p.objectURI(objectID))); err != nil {
		return &CacheError{Type: ErrTypeNetwork, Backend: p.flavor.binary, Message: fmt.Sprintf("uploading %s", objectID), Err: err}
	}
	return nil
}

func (p *CLIProvider) CheckAvailability(ctx context.Context, objects []string) ([]bool, error) {
	out := make([]bool, len(objects))
	for i, obj := range objects {
		_, err := p.run(ctx, p.flavor.existsArgs(p.objectURI(obj)))
		out[i] = err == nil
	}
	return out, nil
}
