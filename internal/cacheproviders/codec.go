package cacheproviders

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/sorairolake/lzip-go"
	"github.com/ulikunitz/xz"
)

// CodecName identifies a binary-cache archive format. The default/file
// backends use zip (matching vcpkg's literal "<abi>.zip" object naming).
// Decompress also reads gzip, zstd, xz and lzip tarballs, picked by object-ID
// suffix; no binary source selects a codec, and ObjectBinaryAdapter always
// compresses uploads as zip.
type CodecName string

const (
	CodecZip  CodecName = "zip"
	CodecGzip CodecName = "gzip"
	CodecZstd CodecName = "zstd"
	CodecXz   CodecName = "xz"
	CodecLzip CodecName = "lzip"
)

// CodecForObjectID picks a codec from an object's filename suffix, defaulting
// to CodecZip for the "<abi>.zip" naming every backend but NuGet uses.
func CodecForObjectID(objectID string) CodecName {
	switch {
	case strings.HasSuffix(objectID, ".tar.gz") || strings.HasSuffix(objectID, ".tgz"):
		return CodecGzip
	case strings.HasSuffix(objectID, ".tar.zst"):
		return CodecZstd
	case strings.HasSuffix(objectID, ".tar.xz"):
		return CodecXz
	case strings.HasSuffix(objectID, ".tar.lz"):
		return CodecLzip
	default:
		return CodecZip
	}
}

// Decompress extracts archivePath (in the given codec) into destDir.
func Decompress(codec CodecName, archivePath, destDir string) error {
	switch codec {
	case CodecZip:
		return unzip(archivePath, destDir)
	case CodecGzip:
		return untarStream(archivePath, destDir, func(r io.Reader) (io.Reader, error) { return gzip.NewReader(r) })
	case CodecZstd:
		return untarStream(archivePath, destDir, func(r io.Reader) (io.Reader, error) {
			dec, err := zstd.NewReader(r)
			if err != nil {
				return nil, err
			}
			return dec.IOReadCloser(), nil
		})
	case CodecXz:
		return untarStream(archivePath, destDir, func(r io.Reader) (io.Reader, error) { return xz.NewReader(r) })
	case CodecLzip:
		return untarStream(archivePath, destDir, func(r io.Reader) (io.Reader, error) { return lzip.NewReader(r) })
	default:
		return fmt.Errorf("unsupported codec %q", codec)
	}
}

// Compress archives every file under srcDir into archivePath using codec.
func Compress(codec CodecName, srcDir, archivePath string) error {
	if codec != CodecZip {
		return fmt.Errorf("compressing with codec %q is not supported; only zip archives are produced by cport", codec)
	}
	return zipDir(srcDir, archivePath)
}

func unzip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("opening zip %s: %w", archivePath, err)
	}
	defer r.Close()

	for _, f := range r.File {
		dest := filepath.Join(destDir, f.Name)
		if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("zip entry %q escapes destination directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := extractZipEntry(f, dest); err != nil {
			return err
		}
	}
	return nil
}

func extractZipEntry(f *zip.File, dest string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, rc)
	return err
}

func zipDir(srcDir, archivePath string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer out.Close()

	w := zip.NewWriter(out)
	defer w.Close()

	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		fw, err := w.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(fw, in)
		return err
	})
}

// untarStream decompresses archivePath with decompressor and unpacks the
// resulting tar stream into destDir. Archive member extraction shares the
// same path-traversal guard as unzip.
func untarStream(archivePath, destDir string, decompressor func(io.Reader) (io.Reader, error)) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive %s: %w", archivePath, err)
	}
	defer f.Close()

	r, err := decompressor(f)
	if err != nil {
		return fmt.Errorf("initializing decompressor for %s: %w", archivePath, err)
	}
	return untar(r, destDir)
}
