package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/yetii/yetii/core/application/registry"
	"github.com/yetii/yetii/core/application/report"
	"github.com/yetii/yetii/core/cli/internal"
	"github.com/yetii/yetii/core/logger"
	"github.com/yetii/yetii/core/observability"
)

const pushTimeout = 10 * time.Second

var (
	runQuery  string
	runForce  bool
	runParams []string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the configured queries",
	Long: `Validate the configuration and run every enabled query, or only the one named
with --query. Exit code 0 means success (or a failed forced query), 1 an invalid
configuration or selection, 2 a failed run.`,
	Args:          cobra.NoArgs,
	RunE:          runQueries,
	SilenceUsage:  true,
	SilenceErrors: true, // Errors are already logged, suppress Cobra's error output
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runQuery, "query", "q", "", "Run only the named query")
	runCmd.Flags().BoolVar(&runForce, "force", false, "Run the query named with --query even if it is disabled")
	runCmd.Flags().StringArrayVar(&runParams, "param", nil, "Override a parameter value as name=value (repeatable)")
}

func runQueries(cmd *cobra.Command, args []string) error {
	log := logger.New("run")
	console := logger.NewConsole(cmd.OutOrStdout())

	params, err := parseParams(runParams)
	if err != nil {
		return withExitCode(report.ExitInvalid, log.Errorf("%w", err))
	}
	if runForce && runQuery == "" {
		log.Warn("--force only applies to a query named with --query; disabled queries stay disabled")
	}

	c := newContainer()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Close(shutdownCtx); err != nil {
			log.Warnf("Failed to flush telemetry: %v", err)
		}
	}()

	cfg, result, err := internal.LoadConfig(configFile, c.Drivers)
	if err != nil {
		return withExitCode(report.ExitInvalid, logger.WithTag("run", err))
	}
	if !result.Valid() {
		console.Problems(fmt.Sprintf("%s is invalid", configFile), result.Located())
		return withExitCode(report.ExitInvalid, log.Errorf("refusing to run an invalid configuration"))
	}
	internal.ApplyLogSettings(verbose, logLevel, cfg)

	sel, err := registry.Resolve(cfg, runQuery, runForce)
	if err != nil {
		return withExitCode(report.ExitInvalid, logger.WithTag("run", err))
	}
	if err := checkParams(sel, params); err != nil {
		return withExitCode(report.ExitInvalid, log.Errorf("%w", err))
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := c.StartObservability(ctx, cfg, GetVersion()); err != nil {
		log.Warnf("Observability disabled: %v", err)
	}

	stopWatching := watchConfig(configFile)
	defer stopWatching()

	rep := c.Dispatcher.Run(ctx, cfg, sel, params)
	rep.Print(console)

	if url := cfg.Settings.Monitoring.PushgatewayURL; url != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), pushTimeout)
		if err := observability.PushRunSummary(pushCtx, url, cfg.Settings.Monitoring.Job, cfg.Name, rep); err != nil {
			log.Warnf("%v", err)
		} else {
			log.Debugf("Pushed run summary to %s", url)
		}
		cancel()
	}

	if code := rep.ExitCode(); code != report.ExitOK {
		return withExitCode(code, nil)
	}
	return nil
}

// parseParams turns repeated name=value flags into overrides. A later flag for the
// same name wins.
func parseParams(raw []string) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(raw))
	for _, kv := range raw {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --param '%s': expected name=value", kv)
		}
		params[name] = value
	}
	return params, nil
}

// checkParams rejects overrides that no selected query declares.
func checkParams(sel *registry.Selection, params map[string]string) error {
	declared := make(map[string]bool)
	for _, q := range sel.Queries {
		for _, name := range q.ParameterNames() {
			declared[name] = true
		}
	}

	var unknown []string
	for name := range params {
		if !declared[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) == 0 {
		return nil
	}
	sort.Strings(unknown)
	return fmt.Errorf("unknown parameter(s) %s: no selected query declares them", strings.Join(unknown, ", "))
}

// watchConfig reports edits to the configuration file while a run is in progress.
// The running configuration is never reloaded. The returned function stops the
// watcher and waits for it to exit.
func watchConfig(path string) func() {
	log := logger.New("watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Debugf("Config watching disabled: %v", err)
		return func() {}
	}

	// Watch the directory so editors that replace the file are still seen.
	abs, err := filepath.Abs(path)
	if err == nil {
		err = watcher.Add(filepath.Dir(abs))
	}
	if err != nil {
		_ = watcher.Close()
		log.Debugf("Config watching disabled: %v", err)
		return func() {}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var debounce *time.Timer
		defer func() {
			if debounce != nil {
				debounce.Stop()
			}
		}()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) && !event.Has(fsnotify.Remove) {
					continue
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, func() {
					log.Warnf("Configuration file %s changed during the run; changes apply to the next run", path)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Debugf("Config watcher error: %v", err)
			}
		}
	}()

	return func() {
		_ = watcher.Close()
		wg.Wait()
	}
}
