package cacheorchestrator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/tsukumogami/cport/internal/cacheconfig"
	"github.com/tsukumogami/cport/internal/cacheproviders"
)

// defaultCacheDir resolves the platform default binary-cache root used by
// the bare "default" source, following the teacher's XDG-style precedence
// (CPORT_HOME, then the user cache directory) rather than vcpkg's own
// %LOCALAPPDATA%/.cache layout, since this is cport's own default tree.
func defaultCacheDir() (string, error) {
	if home := os.Getenv("CPORT_HOME"); home != "" {
		return filepath.Join(home, "archives"), nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("resolving default cache directory: %w", err)
	}
	return filepath.Join(dir, "cport", "archives"), nil
}

// BuildProviders turns a parsed cacheconfig.BinaryConfig into concrete
// cacheproviders.IBinaryProvider instances in source order, adapting the
// batch-oriented backends (files/http/x-azblob/x-gcs/x-aws/x-cos/x-gha)
// through ObjectBinaryAdapter and leaving the NuGet shape as-is.
// stagingDir is shared scratch space for archive staging across providers.
func BuildProviders(cfg *cacheconfig.BinaryConfig, stagingDir, buildtreesDir string) ([]cacheproviders.IBinaryProvider, error) {
	var out []cacheproviders.IBinaryProvider

	for _, pc := range cfg.Providers {
		switch pc.Kind {
		case cacheconfig.SourceFiles:
			root := pc.Path
			if root == "" {
				d, err := defaultCacheDir()
				if err != nil {
					return nil, err
				}
				root = d
			}
			fp := cacheproviders.NewFileProvider(root, pc.Access)
			out = append(out, cacheproviders.NewObjectBinaryAdapter("files", fp, stagingDir))

		case cacheconfig.SourceHTTP:
			hp := cacheproviders.NewHTTPProvider(pc.URLTemplate, pc.Header, pc.Access)
			out = append(out, cacheproviders.NewObjectBinaryAdapter("http", hp, stagingDir))

		case cacheconfig.SourceAzBlob:
			ap := cacheproviders.NewAzBlobProvider(pc.URLTemplate, pc.SAS, pc.Access)
			out = append(out, cacheproviders.NewObjectBinaryAdapter("x-azblob", ap, stagingDir))

		case cacheconfig.SourceGCS:
			gp := cacheproviders.NewGSUtilProvider(pc.Prefix, pc.Access)
			out = append(out, cacheproviders.NewObjectBinaryAdapter("x-gcs", gp, stagingDir))

		case cacheconfig.SourceAWS:
			awsP := cacheproviders.NewAWSProvider(pc.Prefix, pc.AWSNoSignRequest, pc.Access)
			out = append(out, cacheproviders.NewObjectBinaryAdapter("x-aws", awsP, stagingDir))

		case cacheconfig.SourceCOS:
			cp := cacheproviders.NewCOSProvider(pc.Prefix, pc.Access)
			out = append(out, cacheproviders.NewObjectBinaryAdapter("x-cos", cp, stagingDir))

		case cacheconfig.SourceGHA:
			gha, err := cacheproviders.NewGHAProviderFromEnv(pc.Access)
			if err != nil {
				return nil, err
			}
			out = append(out, cacheproviders.NewObjectBinaryAdapter("x-gha", gha, stagingDir))

		case cacheconfig.SourceNuGet:
			out = append(out, cacheproviders.NewNuGetProvider(
				pc.NuGetURI, pc.NuGetConfigPath, pc.NuGetTimeout, pc.Interactive, pc.Access, buildtreesDir))
		}
	}
	return out, nil
}
