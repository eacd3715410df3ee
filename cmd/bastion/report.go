package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgelabs/bastion/pkg/report"
)

var reportCmd = &cobra.Command{
	Use:   "report [dir...]",
	Short: "write key information from runs to stdout, in csv format",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReport,
}

func init() {
	flags := reportCmd.Flags()
	flags.BoolP("postgres", "p", false, "encode lists (findings, classified, infos, errors, fails) as Postgres arrays")
	flags.BoolP("verbose", "v", false, "show progress")
	flags.StringSliceP("fields", "f", nil, "fields to include (default: all)")
	flags.StringSliceP("exclude", "x", nil, "fields to exclude")
}

func runReport(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	postgres, _ := flags.GetBool("postgres")
	verbose, _ := flags.GetBool("verbose")
	included, _ := flags.GetStringSlice("fields")
	excluded, _ := flags.GetStringSlice("exclude")

	fields := append([]report.Field{}, report.AllFields...)
	if len(included) > 0 {
		fields = fields[:0]
		for _, name := range included {
			fields = append(fields, report.Field(name))
		}
	}
	if len(excluded) > 0 {
		excludeSet := make(map[report.Field]bool, len(excluded))
		for _, name := range excluded {
			excludeSet[report.Field(name)] = true
		}
		filtered := make([]report.Field, 0, len(fields))
		for _, f := range fields {
			if !excludeSet[f] {
				filtered = append(filtered, f)
			}
		}
		fields = filtered
	}

	format := report.ListExcel
	if postgres {
		format = report.ListPostgres
	}

	dirs, err := report.DiscoverResultDirs(args)
	if err != nil {
		return err
	}
	if verbose {
		for _, dir := range dirs {
			fmt.Fprintln(os.Stderr, dir)
		}
	}

	return report.Write(os.Stdout, dirs, fields, format, os.Stderr)
}
