package cacheproviders

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tsukumogami/cport/internal/cacheconfig"
)

// FileProvider is the default/files binary-cache backend: objects live at
// <root>/<abi[0..2]>/<abi> (spec.md §4.7).
type FileProvider struct {
	root   string
	access cacheconfig.Access
}

func NewFileProvider(root string, access cacheconfig.Access) *FileProvider {
	return &FileProvider{root: root, access: access}
}

func (p *FileProvider) Access() cacheconfig.Access { return p.access }

func (p *FileProvider) objectPath(objectID string) string {
	prefix := objectID
	if len(prefix) > 2 {
		prefix = objectID[:2]
	}
	return filepath.Join(p.root, prefix, objectID)
}

func (p *FileProvider) Download(ctx context.Context, objects []string, targetDir string) error {
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return fmt.Errorf("creating target directory %s: %w", targetDir, err)
	}
	for _, obj := range objects {
		src := p.objectPath(obj)
		dst := filepath.Join(targetDir, obj)
		if err := copyFile(src, dst); err != nil {
			return &CacheError{Type: ErrTypeNotFound, Backend: "file", Message: fmt.Sprintf("downloading %s", obj), Err: err}
		}
	}
	return nil
}

func (p *FileProvider) Upload(ctx context.Context, objectID string, file string) error {
	dst := p.objectPath(objectID)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating object directory for %s: %w", objectID, err)
	}
	if err := copyFile(file, dst); err != nil {
		return &CacheError{Type: ErrTypeNetwork, Backend: "file", Message: fmt.Sprintf("uploading %s", objectID), Err: err}
	}
	return nil
}

func (p *FileProvider) CheckAvailability(ctx context.Context, objects []string) ([]bool, error) {
	out := make([]bool, len(objects))
	for i, obj := range objects {
		_, err := os.Stat(p.objectPath(obj))
		out[i] = err == nil
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.CreateTemp(filepath.Dir(dst), ".cport-tmp-*")
	if err != nil {
		return err
	}
	tmpPath := out.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, dst)
}
