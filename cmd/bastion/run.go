package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgelabs/bastion/pkg/budget"
	"github.com/forgelabs/bastion/pkg/config"
	"github.com/forgelabs/bastion/pkg/discovery"
	"github.com/forgelabs/bastion/pkg/errs"
	"github.com/forgelabs/bastion/pkg/executor"
	"github.com/forgelabs/bastion/pkg/log"
	"github.com/forgelabs/bastion/pkg/metrics"
	"github.com/forgelabs/bastion/pkg/planner"
	"github.com/forgelabs/bastion/pkg/reparse"
	"github.com/forgelabs/bastion/pkg/runtime"
	"github.com/forgelabs/bastion/pkg/scheduler"
	"github.com/forgelabs/bastion/pkg/solc"
	"github.com/forgelabs/bastion/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run [root] [pattern...]",
	Short: "analyze a set of contract files",
	Long: `run discovers contract files under root matching the given patterns,
schedules the requested (or core) tool roster against them, and — in
dynamic mode — routes follow-up tools based on what each tool finds.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	flags := runCmd.Flags()
	flags.StringSlice("tools", nil, "base tool ids to run (default: the core tool roster)")
	flags.IntP("processes", "j", 1, "number of worker goroutines")
	flags.Int("timeout", 0, "default per-task timeout in seconds (0 = tool default)")
	flags.Bool("dynamic", true, "route follow-up tools based on findings")
	flags.Bool("skip-after-no-args", true, "once a tool has been scheduled without arguments on a file, skip its argument variants there")
	flags.Bool("quiet", false, "suppress per-task progress logging")
	flags.Bool("overwrite", false, "rerun tasks whose result directory already exists")
	flags.Bool("json", false, "write parsed result.json alongside raw artifacts")
	flags.Bool("sarif", false, "write result.sarif alongside raw artifacts")
	flags.Bool("main", false, "require a contract named after its file")
	flags.Bool("runtime", false, "treat .hex files as runtime bytecode")
	flags.Int("time-budget", 0, "seconds; when set, a second orchestration phase saturates remaining time after the core sweep")
	flags.String("fuzz-mode", "", "fuzz-tool time allocation mode for the budget phase")
	flags.String("results-root", "results", "directory results are written under")
	flags.String("result-dir-pattern", config.DefaultResultDirPattern, "result directory template")
	flags.String("tools-home", "tools", "directory tool configurations are loaded from")
	flags.String("run-id", "", "run identifier (default: a generated uuid)")
	flags.Int64("cpu-quota", 0, "per-container CPU quota in microseconds per 100ms period (0 = tool default)")
	flags.String("mem-limit", "", "per-container memory limit (0 = tool default)")
	flags.String("metrics-addr", "", "if set, serve Prometheus metrics on this address for the duration of the run")
}

func runRun(cmd *cobra.Command, args []string) error {
	root := args[0]
	patterns := args[1:]
	if len(patterns) == 0 {
		patterns = []string{"**/*.sol", "**/*.hex"}
	}

	flags := cmd.Flags()
	settings := config.NewSettings()

	if v, _ := flags.GetString("tools-home"); v != "" {
		config.ToolsHome = v
	}
	site, err := config.LoadSiteConfig(config.SiteConfigFile)
	if err != nil {
		return err
	}
	if v, _ := flags.GetInt("processes"); v > 0 {
		settings.Processes = v
	}
	if v, _ := flags.GetInt("timeout"); v > 0 {
		settings.Timeout = v
	}
	settings.Dynamic, _ = flags.GetBool("dynamic")
	settings.SkipAfterNoArgs, _ = flags.GetBool("skip-after-no-args")
	settings.Quiet, _ = flags.GetBool("quiet")
	settings.Overwrite, _ = flags.GetBool("overwrite")
	settings.JSON, _ = flags.GetBool("json")
	settings.SARIF, _ = flags.GetBool("sarif")
	settings.Main, _ = flags.GetBool("main")
	settings.Runtime, _ = flags.GetBool("runtime")
	if v, _ := flags.GetInt("time-budget"); v > 0 {
		settings.TimeBudget = v
	}
	settings.FuzzMode, _ = flags.GetString("fuzz-mode")
	if v, _ := flags.GetString("results-root"); v != "" {
		settings.ResultsRoot = v
	}
	if v, _ := flags.GetString("result-dir-pattern"); v != "" {
		settings.ResultDirPattern = v
	}
	if v, _ := flags.GetString("run-id"); v != "" {
		settings.RunID = v
	}
	settings.CPUQuota, _ = flags.GetInt64("cpu-quota")
	settings.MemLimit, _ = flags.GetString("mem-limit")
	applySiteDefaults(settings, site)
	settings.Freeze()

	files, err := discovery.Collect(root, patterns)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		log.Warn("no contract files matched")
		return nil
	}

	toolNames, _ := flags.GetStringSlice("tools")
	if len(toolNames) == 0 {
		for _, ct := range config.CoreTools {
			toolNames = append(toolNames, ct.BaseTool)
		}
	}
	tools, err := loadTools(toolNames)
	if err != nil {
		return err
	}

	resolver := solc.NewResolver(config.ToolsHome)
	state := config.NewSharedState()
	p := planner.New(resolver, state)

	tasks, err := p.CollectTasks(files, tools, settings)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		log.Warn("no tasks to run")
		return nil
	}

	socketPath, _ := cmd.Flags().GetString("containerd-socket")
	runner, err := runtime.NewContainerRunner(socketPath)
	if err != nil {
		metrics.RegisterComponent("containerd", false, err.Error())
		return fmt.Errorf("%w: starting container runner: %v", errs.ErrConfiguration, err)
	}
	metrics.RegisterComponent("containerd", true, "")
	metrics.RegisterComponent("scheduler", true, "")
	exec := executor.New(runner)
	sched := scheduler.New(exec, p, state, reparse.Reparse)

	if addr, _ := flags.GetString("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", metrics.HealthHandler())
		mux.HandleFunc("/readyz", metrics.ReadyHandler())
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warn(fmt.Sprintf("metrics server stopped: %v", err))
			}
		}()
		defer srv.Close()
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s, ok := <-sigCh
		if !ok {
			return
		}
		caughtSignal.Store(int32(s.(syscall.Signal)))
		log.Warn(fmt.Sprintf("received %v, stopping after in-flight tasks finish", s))
		cancel()
	}()
	defer func() {
		signal.Stop(sigCh)
		close(sigCh)
	}()

	start := time.Now()
	runErr := sched.Run(ctx, tasks, settings.Processes)
	if runErr != nil {
		return runErr
	}

	if settings.TimeBudget > 0 {
		elapsed := time.Since(start)
		remaining := time.Duration(settings.TimeBudget)*time.Second - elapsed
		if remaining > 0 {
			phase := budget.NewPhase(p, settings, files, func(batch []*types.Task) (time.Duration, error) {
				batchStart := time.Now()
				err := sched.Run(ctx, batch, settings.Processes)
				return time.Since(batchStart), err
			})
			if _, err := phase.Run(remaining); err != nil {
				return err
			}
		}
	}

	return nil
}

func applySiteDefaults(settings *types.Settings, site *config.SiteConfig) {
	if site == nil {
		return
	}
	if settings.Processes == 1 && site.Processes > 0 {
		settings.Processes = site.Processes
	}
	if settings.ResultsRoot == "results" && site.ResultsRoot != "" {
		settings.ResultsRoot = site.ResultsRoot
	}
	if config.ToolsHome == "tools" && site.ToolsHome != "" {
		config.ToolsHome = site.ToolsHome
	}
	if settings.Timeout == 0 && site.Timeout > 0 {
		settings.Timeout = site.Timeout
	}
}

func loadTools(names []string) ([]*types.Tool, error) {
	var tools []*types.Tool
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		for _, mode := range []types.Mode{types.ModeSolidity, types.ModeBytecode, types.ModeRuntime} {
			tool, err := config.LoadToolConfig(name, mode)
			if err != nil {
				continue
			}
			tools = append(tools, tool)
		}
	}
	if len(tools) == 0 {
		return nil, fmt.Errorf("%w: none of the requested tools could be loaded", errs.ErrConfiguration)
	}
	return tools, nil
}
