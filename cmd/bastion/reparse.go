package main

import (
	"fmt"
	"sync"

	"github.com/spf13/cobra"

	"github.com/forgelabs/bastion/pkg/log"
	"github.com/forgelabs/bastion/pkg/reparse"
)

var reparseCmd = &cobra.Command{
	Use:   "reparse [dir...]",
	Short: "regenerate result.json (and optionally result.sarif) for existing results",
	Long: `reparse walks each given directory for completed task results
(directories containing smartbugs.json) and re-derives their parsed output
from the raw result.log/result.tar artifacts, without rerunning the tool.
Useful after a parser bug fix.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runReparse,
}

func init() {
	flags := reparseCmd.Flags()
	flags.Bool("sarif", false, "also generate result.sarif")
	flags.IntP("processes", "j", 1, "number of worker goroutines")
	flags.BoolP("verbose", "v", false, "show progress")
}

func runReparse(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	withSarif, _ := flags.GetBool("sarif")
	processes, _ := flags.GetInt("processes")
	verbose, _ := flags.GetBool("verbose")
	if processes < 1 {
		processes = 1
	}

	dirs, err := reparse.DiscoverResultDirs(args)
	if err != nil {
		return err
	}

	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < processes; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for dir := range work {
				if verbose {
					fmt.Println(dir)
				}
				if _, err := reparse.Reparse(dir, withSarif); err != nil {
					log.Warn(fmt.Sprintf("%s: %v", dir, err))
				}
			}
		}()
	}
	for _, dir := range dirs {
		work <- dir
	}
	close(work)
	wg.Wait()

	return nil
}
