package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tsukumogami/cport/internal/abi"
	"github.com/tsukumogami/cport/internal/log"
)

var (
	hashTriplet       string
	hashTripletFile   string
	hashToolchainFile string
	hashFeatures      string
	hashUseHead       bool
	hashEditable      bool
)

var hashCmd = &cobra.Command{
	Use:   "hash <port-dir>",
	Short: "Compute the package ABI (binary-cache key) for a port directory",
	Long: `Hash computes the package ABI cport would use as a binary-cache key for
one planned build: a sorted set of key/value entries over the triplet
identity, toolchain fingerprint, per-port-file content hashes, and helper
script versions, reduced with SHA256.

A use_head_version or editable build always yields an empty ABI, since
neither is reproducible from tracked inputs.

Example:
  cport hash ./ports/zlib --triplet x64-linux`,
	Args: cobra.ExactArgs(1),
	Run:  runHash,
}

func init() {
	hashCmd.Flags().StringVar(&hashTriplet, "triplet", "x64-linux", "Target triplet name")
	hashCmd.Flags().StringVar(&hashTripletFile, "triplet-file", "", "Path to the triplet's .cmake file, if tracked")
	hashCmd.Flags().StringVar(&hashToolchainFile, "toolchain-file", "", "Path to a custom toolchain file, if tracked")
	hashCmd.Flags().StringVar(&hashFeatures, "features", "", "Comma-separated effective feature list (core is implied)")
	hashCmd.Flags().BoolVar(&hashUseHead, "use-head-version", false, "Treat the build as use_head_version (yields an empty ABI)")
	hashCmd.Flags().BoolVar(&hashEditable, "editable", false, "Treat the build as editable (yields an empty ABI)")
}

func runHash(cmd *cobra.Command, args []string) {
	var features []string
	if hashFeatures != "" {
		features = strings.Split(hashFeatures, ",")
	}

	in := abi.Input{
		Triplet:        hashTriplet,
		TripletFile:    hashTripletFile,
		ToolchainFile:  hashToolchainFile,
		PortDir:        args[0],
		Features:       features,
		UseHeadVersion: hashUseHead,
		Editable:       hashEditable,
	}

	result, err := abi.Hash(in, log.Default())
	if err != nil {
		fmt.Fprintf(os.Stderr, "computing ABI: %v\n", err)
		exitWithCode(ExitGeneral)
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stderr, "encoding result: %v\n", err)
		exitWithCode(ExitGeneral)
	}
}
