package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tsukumogami/cport/internal/buildinfo"
	"github.com/tsukumogami/cport/internal/log"
)

var (
	quietFlag   bool
	verboseFlag bool
	debugFlag   bool
)

// globalCtx is cancelled on SIGINT/SIGTERM; long-running commands should
// thread it through instead of context.Background().
var globalCtx context.Context
var globalCancel context.CancelFunc

var rootCmd = &cobra.Command{
	Use:   "cport",
	Short: "A C/C++ package manager core: resolve, hash, and cache",
	Long: `cport resolves version-floored dependency graphs into install plans,
computes the binary-cache key (package ABI) for a planned build, and
prefetches or pushes build artifacts through a pluggable binary cache.

This is a demonstration CLI over the three core components; it is not
a full port build driver.`,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&quietFlag, "quiet", "q", false, "Show errors only")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Show verbose output (INFO level)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "Show debug output (includes source locations)")

	rootCmd.PersistentPreRun = initLogger
	rootCmd.Version = buildinfo.Version()

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(hashCmd)
	rootCmd.AddCommand(cachePrefetchCmd)
}

func main() {
	globalCtx, globalCancel = context.WithCancel(context.Background())
	defer globalCancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived %s, cancelling...\n", sig)
		globalCancel()

		<-sigChan
		fmt.Fprintln(os.Stderr, "Forced exit")
		exitWithCode(ExitCancelled)
	}()

	if err := rootCmd.Execute(); err != nil {
		if globalCtx.Err() == context.Canceled {
			exitWithCode(ExitCancelled)
		}
		fmt.Fprintln(os.Stderr, err)
		exitWithCode(ExitGeneral)
	}
}

func initLogger(cmd *cobra.Command, args []string) {
	level := determineLogLevel()
	opts := &slog.HandlerOptions{Level: level, AddSource: level == slog.LevelDebug}
	logger := log.New(slog.NewTextHandler(os.Stderr, opts))
	log.SetDefault(logger)
}

// determineLogLevel priorities flags over environment variables, default WARN.
func determineLogLevel() slog.Level {
	if debugFlag {
		return slog.LevelDebug
	}
	if verboseFlag {
		return slog.LevelInfo
	}
	if quietFlag {
		return slog.LevelError
	}

	if isTruthy(os.Getenv("CPORT_DEBUG")) {
		return slog.LevelDebug
	}
	if isTruthy(os.Getenv("CPORT_VERBOSE")) {
		return slog.LevelInfo
	}
	if isTruthy(os.Getenv("CPORT_QUIET")) {
		return slog.LevelError
	}
	return slog.LevelWarn
}

func isTruthy(s string) bool {
	s = strings.ToLower(s)
	return s == "1" || s == "true" || s == "yes" || s == "on"
}
