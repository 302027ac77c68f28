package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	internalApp "github.com/haierkeys/schedule-note-sync/internal/app"
	"github.com/haierkeys/schedule-note-sync/internal/content"
	"github.com/haierkeys/schedule-note-sync/internal/syncer"
	"github.com/haierkeys/schedule-note-sync/internal/task"
	"github.com/haierkeys/schedule-note-sync/pkg/safe_close"
	"github.com/haierkeys/schedule-note-sync/pkg/util"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type deviceFlags struct {
	config string
}

// deviceEnv 设备端命令共享的运行环境
type deviceEnv struct {
	device *internalApp.Device
	closer io.Closer
}

func (e *deviceEnv) close() {
	ctx, cancel := context.WithTimeout(context.Background(), internalApp.DefaultShutdownTimeout)
	defer cancel()
	if err := e.device.Shutdown(ctx); err != nil {
		e.device.Logger().Warn("device shutdown", zap.Error(err))
	}
	_ = e.closer.Close()
}

func openDevice(flags *deviceFlags) (*deviceEnv, error) {
	path, err := resolveConfigFile(flags.config)
	if err != nil {
		return nil, err
	}
	cfg, _, err := internalApp.LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	lg, err := initLoggerWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	tr, closer, err := initTracerWithConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("initTracer: %w", err)
	}
	d, err := internalApp.NewDevice(cfg, lg, tr)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	return &deviceEnv{device: d, closer: closer}, nil
}

// withDevice opens the device engine, runs fn and shuts the engine down
// withDevice 打开设备端引擎执行 fn 后关闭
func withDevice(flags *deviceFlags, fn func(ctx context.Context, d *internalApp.Device) error) error {
	env, err := openDevice(flags)
	if err != nil {
		return err
	}
	defer env.close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return fn(ctx, env.device)
}

func printReport(w io.Writer, r syncer.Report) {
	fmt.Fprintf(w, "%s\ttotal=%d\tclean=%d\tconflicts=%d\trejected=%d\tfailed=%d\tnetwork=%d\t%s\n",
		r.Kind, r.Total, r.Clean, r.Conflicts, r.Rejected, r.Failed, r.NetworkFailures, r.Duration.Round(time.Millisecond))
	for _, it := range r.Items {
		errText := ""
		if it.Err != nil {
			errText = it.Err.Error()
		}
		fmt.Fprintf(w, "  %s\t%s\tv%d\t%s\n", it.Key, it.State, it.Version, errText)
	}
}

func printPreload(w io.Writer, kind string, r content.PreloadReport) {
	fmt.Fprintf(w, "%s\trequested=%d\tskipped=%d\tloaded=%d\tmissing=%d\tfailed=%d\n",
		kind, r.Requested, r.Skipped, r.Loaded, r.Missing, r.Failed)
}

func init() {
	flags := new(deviceFlags)

	deviceCmd := &cobra.Command{
		Use:   "device",
		Short: "Device side cache and sync commands",
	}
	deviceCmd.PersistentFlags().StringVarP(&flags.config, "config", "c", "", "config file")

	var book string
	var detail bool
	syncCmd := &cobra.Command{
		Use:   "sync [--book uuid]",
		Short: "Push every dirty note and drawing to the server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(flags, func(ctx context.Context, d *internalApp.Device) error {
				var opts []syncer.Option
				if detail {
					opts = append(opts, syncer.WithDetail())
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				defer w.Flush()

				if book != "" {
					r, err := d.Syncer.SyncDirtyNotesForBook(ctx, book, opts...)
					if err != nil {
						return err
					}
					printReport(w, r)
					return nil
				}
				s, err := d.Syncer.SyncAll(ctx, opts...)
				if err != nil {
					return err
				}
				printReport(w, s.Notes)
				printReport(w, s.Drawings)
				return nil
			})
		},
	}
	syncCmd.Flags().StringVar(&book, "book", "", "only sync notes of events in this book")
	syncCmd.Flags().BoolVar(&detail, "detail", false, "print the result of every entry")

	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Print cache statistics, policy and pending outbox",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(flags, func(ctx context.Context, d *internalApp.Device) error {
				stats, err := d.Store.Stats(ctx)
				if err != nil {
					return err
				}
				policy, err := d.Store.Policy(ctx)
				if err != nil {
					return err
				}
				outbox, err := d.Store.Outbox(ctx)
				if err != nil {
					return err
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				defer w.Flush()
				fmt.Fprintf(w, "notes\t%d\t(dirty %d)\n", stats.NotesCount, stats.DirtyNotes)
				fmt.Fprintf(w, "drawings\t%d\t(dirty %d)\n", stats.DrawingsCount, stats.DirtyDrawings)
				fmt.Fprintf(w, "size\t%.2f MB\n", stats.TotalSizeMb())
				fmt.Fprintf(w, "hits\t%d\n", stats.TotalHits)
				fmt.Fprintf(w, "policy\tmax=%d MB\tduration=%d days\tauto=%t\n",
					policy.MaxCacheSizeMb, policy.CacheDurationDays, policy.AutoCleanup)
				if policy.LastCleanupAt != nil {
					fmt.Fprintf(w, "last cleanup\t%s\n", policy.LastCleanupAt.Format(time.RFC3339))
				}
				fmt.Fprintf(w, "outbox\t%d\n", len(outbox))
				for _, e := range outbox {
					fmt.Fprintf(w, "  %s\t%s\trev=%d\tattempts=%d\t%s\n", e.Kind, e.Key, e.Revision, e.Attempts, e.LastError)
				}
				return nil
			})
		},
	}

	var maxMb, days int
	var auto bool
	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Evict expired entries, then trim the cache to its size limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(flags, func(ctx context.Context, d *internalApp.Device) error {
				policy, err := d.Store.Policy(ctx)
				if err != nil {
					return err
				}
				changed := false
				if cmd.Flags().Changed("max-size") {
					policy.MaxCacheSizeMb, changed = maxMb, true
				}
				if cmd.Flags().Changed("days") {
					policy.CacheDurationDays, changed = days, true
				}
				if cmd.Flags().Changed("auto") {
					policy.AutoCleanup, changed = auto, true
				}
				if changed {
					if err := d.Store.SavePolicy(ctx, policy); err != nil {
						return err
					}
				}

				expired, err := d.Store.EvictExpired(ctx)
				if err != nil {
					return err
				}
				var evicted int64
				// 0 表示不限容量，与自动清理一致
				if policy.MaxCacheSizeMb > 0 {
					if evicted, err = d.Store.EvictLRU(ctx, policy.MaxCacheSizeMb); err != nil {
						return err
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "expired=%d evicted=%d\n", expired, evicted)
				return nil
			})
		},
	}
	cleanupCmd.Flags().IntVar(&maxMb, "max-size", 0, "cache size limit in MB, 0 means unlimited")
	cleanupCmd.Flags().IntVar(&days, "days", 0, "cache duration in days, 0 disables expiry")
	cleanupCmd.Flags().BoolVar(&auto, "auto", false, "enable automatic cleanup")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Probe the server and print the sync indicator",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withDevice(flags, func(ctx context.Context, d *internalApp.Device) error {
				probeErr := d.Probe(ctx)
				pending, err := d.Syncer.HasPendingChanges(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "device: %s\n", d.ID)
				fmt.Fprintf(out, "indicator: %s\n", d.Syncer.Indicator())
				fmt.Fprintf(out, "pending: %t\n", pending)
				if probeErr != nil {
					fmt.Fprintf(out, "server: %v\n", probeErr)
				}
				return nil
			})
		},
	}

	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the background sync, probe and cleanup tasks until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openDevice(flags)
			if err != nil {
				return err
			}
			d := env.device
			lg := d.Logger()

			ctx, cancel := context.WithTimeout(context.Background(), internalApp.DefaultShutdownTimeout)
			if r, err := d.Store.PerformStartupCleanup(ctx); err != nil {
				lg.Warn("startup cleanup", zap.Error(err))
			} else if !r.Skipped {
				lg.Info("startup cleanup", zap.Int64("expired", r.Expired), zap.Int64("evicted", r.Evicted))
			}
			cancel()

			sc := safe_close.NewSafeClose()
			manager := task.NewManager(lg, sc)
			if err := manager.RegisterTasks(d); err != nil {
				env.close()
				return err
			}
			manager.Start()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			lg.Info("Received shutdown signal, stopping device tasks...")
			sc.SendCloseSignal(nil)
			if err := sc.WaitClosed(); err != nil {
				lg.Error("tasks stopped with error", zap.Error(err))
			}
			env.close()
			return nil
		},
	}

	var from, to string
	preloadCmd := &cobra.Command{
		Use:   "preload --book uuid --from 2006-01-02 --to 2006-01-02",
		Short: "Warm the cache with notes and drawings of a book for a day range",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := util.ParseDay(from)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			end, err := util.ParseDay(to)
			if err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
			r := content.PreloadRange{BookUUID: book, From: start, To: end}

			return withDevice(flags, func(ctx context.Context, d *internalApp.Device) error {
				notes, err := d.Notes.Preload(ctx, r)
				if err != nil {
					return err
				}
				drawings, err := d.Drawings.Preload(ctx, r)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				defer w.Flush()
				printPreload(w, "notes", notes)
				printPreload(w, "drawings", drawings)
				return nil
			})
		},
	}
	preloadCmd.Flags().StringVar(&book, "book", "", "book uuid")
	preloadCmd.Flags().StringVar(&from, "from", "", "first day (inclusive)")
	preloadCmd.Flags().StringVar(&to, "to", "", "last day (exclusive)")
	_ = preloadCmd.MarkFlagRequired("book")
	_ = preloadCmd.MarkFlagRequired("from")
	_ = preloadCmd.MarkFlagRequired("to")

	deviceCmd.AddCommand(syncCmd, statsCmd, cleanupCmd, statusCmd, watchCmd, preloadCmd)
	rootCmd.AddCommand(deviceCmd)
}
