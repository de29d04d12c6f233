package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/queueio/pkg/config"
	"github.com/cuemby/queueio/pkg/event"
	"github.com/cuemby/queueio/pkg/log"
	"github.com/cuemby/queueio/pkg/metrics"
	"github.com/cuemby/queueio/pkg/receiver"
	"github.com/cuemby/queueio/pkg/registry"
	"github.com/cuemby/queueio/pkg/result"
	"github.com/cuemby/queueio/pkg/runtime"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "queueio",
	Short: "queueio - distributed task-execution runtime",
	Long: `queueio moves named routine invocations through broker queues to
worker pools, publishing lifecycle events on a journal so suspended
invocations anywhere in the fleet can resume when their children
complete.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"queueio version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	// Initialize logging before command execution
	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(routineCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(monitorCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      logLevel,
		JSONOutput: logJSON,
	})
}

// newRuntime builds a Runtime from the resolved project configuration.
func newRuntime() (*runtime.Runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	b, err := cfg.NewBroker()
	if err != nil {
		return nil, err
	}
	return runtime.New(runtime.Config{Broker: b}), nil
}

// Routine commands
var routineCmd = &cobra.Command{
	Use:   "routine",
	Short: "A function to coordinate background execution",
}

var routineListCmd = &cobra.Command{
	Use:   "list",
	Short: "Show all registered routines",
	RunE: func(cmd *cobra.Command, args []string) error {
		routines := registry.All()
		if len(routines) == 0 {
			fmt.Println("No routines registered.")
			return nil
		}
		sort.Slice(routines, func(i, j int) bool { return routines[i].Name < routines[j].Name })

		nameWidth, queueWidth := len("Name"), len("Queue")
		for _, routine := range routines {
			if len(routine.Name) > nameWidth {
				nameWidth = len(routine.Name)
			}
			if len(routine.Queue) > queueWidth {
				queueWidth = len(routine.Queue)
			}
		}

		fmt.Printf("%-*s | %-*s\n", nameWidth, "Name", queueWidth, "Queue")
		fmt.Printf("%s-+-%s\n", dashes(nameWidth), dashes(queueWidth))
		for _, routine := range routines {
			fmt.Printf("%-*s | %-*s\n", nameWidth, routine.Name, queueWidth, routine.Queue)
		}
		return nil
	},
}

func dashes(n int) string {
	out := make([]byte, n)
	for i := range out {
		out[i] = '-'
	}
	return string(out)
}

// Monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Monitor queueio events",
	Long: `Show a live view of queueio activity. Use --raw for detailed
event output.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, _ := cmd.Flags().GetBool("raw")

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Shutdown()

		events := rt.Subscribe()
		defer rt.Unsubscribe(events)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case e, ok := <-events.C():
				if !ok {
					return nil
				}
				printEvent(e, raw)
			case <-sigCh:
				fmt.Println("Shutting down gracefully.")
				return nil
			}
		}
	},
}

func printEvent(e event.Event, raw bool) {
	if raw {
		fmt.Printf("%-14s %s %+v\n", e.Type(), e.InvocationID(), e)
		return
	}
	switch ev := e.(type) {
	case *event.Submitted:
		fmt.Printf("%-14s %s routine=%s priority=%d\n", ev.Type(), ev.InvocationID(), ev.Routine, ev.Priority)
	case *event.Completed:
		if ev.Result.IsOk() {
			fmt.Printf("%-14s %s status=ok\n", ev.Type(), ev.InvocationID())
			return
		}
		cause := ev.Result.Error()
		if kind := result.KindOf(cause); kind != "" {
			fmt.Printf("%-14s %s status=error kind=%s\n", ev.Type(), ev.InvocationID(), kind)
			return
		}
		fmt.Printf("%-14s %s status=error\n", ev.Type(), ev.InvocationID())
	default:
		fmt.Printf("%-14s %s\n", e.Type(), e.InvocationID())
	}
}

// Run command
var runCmd = &cobra.Command{
	Use:   "run QUEUE[,QUEUE2,...]=CONCURRENCY",
	Short: "Run a worker to process from a queue",
	Long: `Run a worker to process invocations from the specified queues, as
many at a time as specified by the concurrency. A queue name listed
more than once receives a proportionally larger share of the worker's
attention.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := receiver.ParseQueueSpec(args[0])
		if err != nil {
			return err
		}
		metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Shutdown()

		// Ensure every queue this worker will consume exists before the
		// receiver is spawned; Create is idempotent.
		for _, queue := range spec.Queues {
			if err := rt.Create(queue); err != nil {
				return err
			}
		}

		collector := metrics.NewCollector(rt.Stream())
		collector.Start()
		defer collector.Stop()

		metrics.SetVersion(Version)
		metrics.MarkBroker(true, "")
		metrics.MarkJournal(true, "")

		if metricsAddr != "" {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			mux.HandleFunc("/health", metrics.HealthHandler())
			mux.HandleFunc("/ready", metrics.ReadyHandler())
			mux.HandleFunc("/live", metrics.LivenessHandler())
			go func() {
				if err := http.ListenAndServe(metricsAddr, mux); err != nil {
					metricsLogger := log.WithComponent("metrics")
					metricsLogger.Error().Err(err).Msg("metrics server stopped")
				}
			}()
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		metrics.Heartbeat(args[0], spec.Concurrency, 0)
		defer metrics.ForgetPool(args[0])
		go func() {
			ticker := time.NewTicker(10 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					metrics.Heartbeat(args[0], spec.Concurrency, collector.InFlight())
				case <-ctx.Done():
					return
				}
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sigCh
			shutdownLogger := log.WithComponent("worker")
			shutdownLogger.Info().Msg("signal received, shutting down")
			cancel()
		}()

		workerLogger := log.WithComponent("worker")
		workerLogger.Info().
			Strs("queues", spec.Queues).
			Int("concurrency", spec.Concurrency).
			Msg("worker starting")
		return rt.Run(ctx, spec)
	},
}

// Sync command
var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Sync known queues to the broker",
	RunE: func(cmd *cobra.Command, args []string) error {
		recreate, _ := cmd.Flags().GetBool("recreate")

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Shutdown()

		routines := registry.All()
		if len(routines) == 0 {
			fmt.Println("No routines registered.")
			return nil
		}

		seen := make(map[string]struct{})
		var queues []string
		for _, routine := range routines {
			if _, ok := seen[routine.Queue]; !ok {
				seen[routine.Queue] = struct{}{}
				queues = append(queues, routine.Queue)
			}
		}
		sort.Strings(queues)

		fmt.Printf("Syncing queues for %d routine(s):\n", len(routines))
		if recreate {
			for _, queue := range queues {
				fmt.Printf("  Recreating queue: %s\n", queue)
				_ = rt.Delete(queue)
			}
		}

		var failed []string
		for _, queue := range queues {
			fmt.Printf("  Ensuring queue exists: %s\n", queue)
			if err := rt.Create(queue); err != nil {
				failed = append(failed, queue)
			}
		}

		if len(failed) > 0 {
			fmt.Printf("\nError: %d queue(s) have incompatible arguments: %v\n"+
				"Re-run with --recreate to delete and recreate them.\n"+
				"WARNING: This will lose any pending messages in those queues.\n",
				len(failed), failed)
			os.Exit(1)
		}

		fmt.Printf("Successfully synced %d queue(s)\n", len(queues))
		return nil
	},
}

// Queue commands
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "An ordered collection of work items to process",
}

var queuePurgeCmd = &cobra.Command{
	Use:   "purge QUEUE[,QUEUE2,...]",
	Short: "Purge all messages from some queues",
	Long: `Remove all pending messages from the given queues. Use with caution
as this operation cannot be undone.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var queues []string
		for _, q := range strings.Split(args[0], ",") {
			if q = strings.TrimSpace(q); q != "" {
				queues = append(queues, q)
			}
		}
		if len(queues) == 0 {
			return fmt.Errorf("no valid queue names in %q", args[0])
		}

		rt, err := newRuntime()
		if err != nil {
			return err
		}
		defer rt.Shutdown()

		for _, queue := range queues {
			fmt.Printf("Purging queue: %s\n", queue)
			if err := rt.Purge(queue); err != nil {
				return err
			}
		}
		fmt.Printf("Successfully purged %d queue(s)\n", len(queues))
		return nil
	},
}

func init() {
	monitorCmd.Flags().Bool("raw", false, "Show detailed event output")
	runCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics and health endpoints on this address (e.g. :9090)")
	syncCmd.Flags().Bool("recreate", false, "Delete and recreate queues that have incompatible arguments. WARNING: This will lose any pending messages in those queues.")

	routineCmd.AddCommand(routineListCmd)
	queueCmd.AddCommand(queuePurgeCmd)
}
