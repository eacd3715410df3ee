// Package main is bastion's command-line entry point: a cobra root command
// with subcommands run, reparse, and report. Adapted from the teacher's
// cmd/warren/main.go skeleton (persistent flags, cobra.OnInitialize wiring
// structured logging before any subcommand runs).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgelabs/bastion/pkg/log"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "bastion",
	Short: "bastion - batch orchestrator for containerized smart-contract analysis tools",
	Long: `bastion runs static and dynamic analysis tools against a set of
Solidity or EVM bytecode contracts inside containers, parses their output,
and routes follow-up tools based on what each tool finds.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("bastion version %s\ncommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "output logs in JSON format")
	rootCmd.PersistentFlags().String("containerd-socket", "", "containerd socket path (auto-detected if not specified)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(reparseCmd)
	rootCmd.AddCommand(reportCmd)
}

func initLogging() {
	level, _ := rootCmd.PersistentFlags().GetString("log-level")
	jsonOutput, _ := rootCmd.PersistentFlags().GetBool("log-json")
	log.Init(log.Config{
		Level:      log.Level(level),
		JSONOutput: jsonOutput,
	})
}
