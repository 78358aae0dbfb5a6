package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsukumogami/cport/internal/cacheconfig"
	"github.com/tsukumogami/cport/internal/cacheorchestrator"
	"github.com/tsukumogami/cport/internal/cacheproviders"
	"github.com/tsukumogami/cport/internal/config"
	"github.com/tsukumogami/cport/internal/log"
	"github.com/tsukumogami/cport/internal/progress"
)

var (
	cachePrefetchTriplet    string
	cachePrefetchPackageDir string
	cachePrefetchBinarySrc  []string
)

var cachePrefetchCmd = &cobra.Command{
	Use:   "cache-prefetch <abi>",
	Short: "Try to restore a package from the configured binary cache",
	Long: `Cache-prefetch builds the configured binary-cache providers from
VCPKG_BINARY_SOURCES (and any --binarysource arguments) and asks each, in
order, whether it has the named package ABI, stopping at the first
provider that actually restores it.

Example:
  VCPKG_BINARY_SOURCES="clear;files,/tmp/cport-cache,readwrite" \
    cport cache-prefetch 7f3a9c... --package-dir /tmp/out`,
	Args: cobra.ExactArgs(1),
	Run:  runCachePrefetch,
}

func init() {
	cachePrefetchCmd.Flags().StringVar(&cachePrefetchTriplet, "triplet", "x64-linux", "Target triplet name")
	cachePrefetchCmd.Flags().StringVar(&cachePrefetchPackageDir, "package-dir", "", "Directory to restore the package into (defaults to a temp dir)")
	cachePrefetchCmd.Flags().StringArrayVar(&cachePrefetchBinarySrc, "binarysource", nil, "Additional VCPKG_BINARY_SOURCES-style argument, may repeat")
}

func runCachePrefetch(cmd *cobra.Command, args []string) {
	abiTag := args[0]
	logger := log.Default()

	cfg, err := config.DefaultConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolving default config: %v\n", err)
		exitWithCode(ExitGeneral)
		return
	}
	if err := cfg.EnsureDirectories(); err != nil {
		fmt.Fprintf(os.Stderr, "creating cport directories: %v\n", err)
		exitWithCode(ExitGeneral)
		return
	}

	bc, diags := cacheconfig.ParseDefaultBinaryConfig(os.Getenv(config.EnvBinarySources), cachePrefetchBinarySrc)
	for _, d := range diags {
		logger.Warn("binary source config diagnostic", "message", d.Error())
	}

	packageDir := cachePrefetchPackageDir
	if packageDir == "" {
		dir, err := os.MkdirTemp("", "cport-prefetch-")
		if err != nil {
			fmt.Fprintf(os.Stderr, "creating staging directory: %v\n", err)
			exitWithCode(ExitGeneral)
			return
		}
		packageDir = dir
	}

	providerList, err := cacheorchestrator.BuildProviders(bc, cfg.DownloadsDir, cfg.BuildTreesDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building cache providers: %v\n", err)
		exitWithCode(ExitGeneral)
		return
	}
	if len(providerList) == 0 {
		fmt.Fprintln(os.Stderr, "no binary-cache providers configured (set VCPKG_BINARY_SOURCES)")
		exitWithCode(ExitUsage)
		return
	}

	o := cacheorchestrator.New(providerList, cacheorchestrator.Options{Logger: logger})
	defer o.Close()

	spinner := progress.NewSpinner(os.Stderr)
	spinner.Start(fmt.Sprintf("checking binary cache for %s", abiTag))

	act := cacheproviders.Action{ABI: abiTag, Triplet: cachePrefetchTriplet, PackageDir: packageDir}
	outcome := o.TryRestore(globalCtx, act)
	spinner.Stop()

	switch outcome {
	case cacheproviders.Restored:
		fmt.Printf("restored %s into %s\n", abiTag, packageDir)
	default:
		fmt.Printf("not found in any configured cache: %s\n", abiTag)
		exitWithCode(ExitGeneral)
	}
}
