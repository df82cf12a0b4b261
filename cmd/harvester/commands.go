package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"text/tabwriter"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/qepting91/wb-harvester/internal/bot"
	"github.com/qepting91/wb-harvester/internal/ingest"
	"github.com/qepting91/wb-harvester/internal/scheduler"
	"github.com/spf13/cobra"
)

func newBotCommand(g *globals) *cobra.Command {
	var noDashboard bool
	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot with scheduled full-catalog reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, cleanup, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			logger := a.Log

			if err := a.Config.ValidateBot(); err != nil {
				return err
			}

			subs, err := a.Subscribers(ctx)
			if err != nil {
				return fmt.Errorf("init subscribers: %w", err)
			}

			api, err := tgbotapi.NewBotAPI(a.Config.BotToken)
			if err != nil {
				return fmt.Errorf("connect to telegram: %w", err)
			}
			_ = tgbotapi.SetLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))
			logger.Info("Authorized on Telegram", "account", api.Self.UserName)

			b := bot.New(bot.Deps{
				Sender:       api,
				Runner:       a.Controller,
				Batch:        a.Batch,
				Reports:      a.Reports,
				Subscribers:  subs,
				ValidURL:     ingest.ValidCategoryURL,
				AdminIDs:     a.Config.AdminIDs,
				CleanupDelay: a.Config.FileDeleteDelay,
				Log:          logger,
			})

			sched, err := scheduler.New(a.Config.BatchSchedule, a.Config.BatchTimezone, func(ctx context.Context) {
				if err := b.RunScheduled(ctx); err != nil {
					logger.Error("Scheduled batch run failed", "error", err)
				}
			}, logger)
			if err != nil {
				return err
			}
			sched.Start()

			if !noDashboard {
				go func() {
					if err := a.Dashboard().ListenAndServe(ctx, a.Config.DashboardAddr); err != nil {
						logger.Error("Dashboard failed", "error", err)
					}
				}()
			}

			u := tgbotapi.NewUpdate(0)
			u.Timeout = 60
			b.Serve(ctx, api.GetUpdatesChan(u))

			logger.Info("Shutdown signal received")
			api.StopReceivingUpdates()
			sched.Stop(context.WithoutCancel(ctx))
			b.Wait()
			return nil
		},
	}
	cmd.Flags().BoolVar(&noDashboard, "no-dashboard", false, "do not serve the dashboard")
	return cmd
}

func newHarvestCommand(g *globals) *cobra.Command {
	var targetsFile string
	var workers int
	cmd := &cobra.Command{
		Use:   "harvest [category-url...]",
		Short: "Harvest one or more categories and write xlsx reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			targets := append([]string(nil), args...)
			if targetsFile != "" {
				fromFile, err := ingest.LoadTargets(targetsFile)
				if err != nil {
					return fmt.Errorf("load targets: %w", err)
				}
				targets = append(targets, fromFile...)
			}
			if len(targets) == 0 {
				return errors.New("no targets: pass category URLs or --targets")
			}

			ctx, a, cleanup, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if workers <= 0 {
				workers = a.Config.Workers
			}
			results := a.HarvestAll(ctx, targets, workers)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "URL\tREASON\tROWS\tREPORT")
			failed := 0
			for _, r := range results {
				report := "-"
				if r.Outcome.Artifact != nil {
					report = r.Outcome.Artifact.Path
				}
				reason := string(r.Outcome.Reason)
				if r.Err != nil {
					reason = r.Err.Error()
				}
				if r.Err != nil || !r.Outcome.Success {
					failed++
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", r.URL, reason, len(r.Outcome.Rows), report)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d targets failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&targetsFile, "targets", "", "CSV file with category URLs in the first column")
	cmd.Flags().IntVar(&workers, "workers", 0, "parallel runs (default WORKERS)")
	return cmd
}

func newBatchCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "batch",
		Short: "Run the full-catalog keyword analysis once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, cleanup, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			out, err := a.Batch.Run(ctx)
			if err != nil {
				return err
			}
			if out.Artifact == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "No usable keywords among %d\n", out.Keywords)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d rows from %d keywords in %s\n",
				out.Artifact.Path, out.Rows, out.Keywords, out.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
}

func newResolveCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <category-url>",
		Short: "Print the catalog entry a category URL maps to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, cleanup, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			desc, err := a.Index.Resolve(ctx, args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(desc)
		},
	}
}

func newDashboardCommand(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Serve run history charts and metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, a, cleanup, err := g.setup(cmd)
			if err != nil {
				return err
			}
			defer cleanup()
			return a.Dashboard().ListenAndServe(ctx, a.Config.DashboardAddr)
		},
	}
}
