package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tsukumogami/cport/internal/config"
	"github.com/tsukumogami/cport/internal/pkgspec"
	"github.com/tsukumogami/cport/internal/providers"
	"github.com/tsukumogami/cport/internal/resolver"
)

var resolveRegistryDir string
var resolveJSON bool

var resolveCmd = &cobra.Command{
	Use:   "resolve <port>[:<triplet>]",
	Short: "Resolve a top-level dependency into an install plan",
	Long: `Resolve builds a topologically ordered install plan for one top-level
port against a TOML fixture registry: minimum-version selection, feature
expansion, and platform-constraint checking, with no builds actually run.

Examples:
  cport resolve zlib:x64-linux
  cport resolve "curl[ssl]:x64-linux" --registry ./testdata/registry`,
	Args: cobra.ExactArgs(1),
	Run:  runResolve,
}

func init() {
	resolveCmd.Flags().StringVar(&resolveRegistryDir, "registry", "", "Fixture registry directory (defaults to $CPORT_HOME/registry)")
	resolveCmd.Flags().BoolVar(&resolveJSON, "json", true, "Output the plan as JSON (the only output format; always on)")
}

func runResolve(cmd *cobra.Command, args []string) {
	spec, err := pkgspec.ParseQualifiedSpecifier(args[0], pkgspec.SpecifierFlags{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid port specifier: %v\n", err)
		exitWithCode(ExitUsage)
		return
	}
	triplet := spec.Triplet
	if !spec.HasTriplet {
		triplet = pkgspec.Triplet(defaultHostTriplet())
	}

	registryDir := resolveRegistryDir
	if registryDir == "" {
		cfg, err := config.DefaultConfig()
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolving default config: %v\n", err)
			exitWithCode(ExitGeneral)
			return
		}
		registryDir = cfg.RegistryDir
	}
	reg := providers.NewFixtureRegistry(registryDir)

	dep := providers.Dependency{Name: spec.Name}
	for _, f := range spec.Features {
		dep.RequestedFeatures = append(dep.RequestedFeatures, providers.DependencyRequestedFeature{Feature: f})
	}

	in := resolver.Input{
		Dependencies: []providers.Dependency{dep},
		Toplevel:     pkgspec.PackageSpec{Name: spec.Name, Triplet: triplet},
		HostTriplet:  triplet,
		Registry:     reg,
		Variables:    func(pkgspec.Triplet) (map[string]bool, error) { return map[string]bool{}, nil },
	}

	plan, err := resolver.Resolve(globalCtx, in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolution failed: %v\n", err)
		exitWithCode(ExitResolutionFailed)
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(plan); err != nil {
		fmt.Fprintf(os.Stderr, "encoding plan: %v\n", err)
		exitWithCode(ExitGeneral)
	}
}

func defaultHostTriplet() string {
	// A real driver would derive this from GOOS/GOARCH; the demo CLI
	// requires it explicit via the specifier's ":<triplet>" suffix or
	// falls back to a common default so a bare port name still resolves.
	return "x64-linux"
}
