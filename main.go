package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/example/examprep/internal/billing"
	"github.com/example/examprep/internal/bot"
	"github.com/example/examprep/internal/excel"
	"github.com/example/examprep/internal/scheduler"
	"github.com/example/examprep/internal/server"
	"github.com/example/examprep/pkg/models"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "examprep",
		Short:         "Exam preparation progress service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml if present)")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, the scheduler and the Telegram bot",
			RunE: func(cmd *cobra.Command, args []string) error {
				return runServe(configPath)
			},
		},
		newExportCmd(&configPath),
		newImportCmd(&configPath),
		newResetCmd(&configPath),
	)
	return root
}

// runServe runs until SIGINT or SIGTERM, then flushes pending progress.
func runServe(configPath string) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		a.close(shutdownCtx)
		a.logger.Info("stopped")
	}()

	billingService := billing.New(a.manager, a.sync, billing.Config{
		CheckoutURLs:  a.cfg.Billing.CheckoutURLs,
		WebhookSecret: a.cfg.Billing.WebhookSecret,
	}, a.logger)

	deps := server.Deps{
		Manager:        a.manager,
		Billing:        billingService,
		Clock:          a.clock,
		Logger:         a.logger,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		RequestTimeout: a.cfg.Server.RequestTimeout,
	}
	if a.chatGPT != nil {
		deps.Planner = a.chatGPT
		deps.Coach = a.chatGPT
	}
	srv := server.New(deps)

	var notifier scheduler.Notifier
	var telegram *bot.Bot
	if a.cfg.Telegram.Enabled {
		botCfg := bot.DefaultConfig()
		botCfg.Token = a.cfg.Telegram.Token
		telegram, err = bot.New(botCfg, a.manager, a.logger)
		if err != nil {
			return err
		}
		notifier = telegram
	}

	sched := scheduler.New(a.manager, notifier, scheduler.Config{
		StartHour:    a.cfg.Reminders.StartHour,
		EndHour:      a.cfg.Reminders.EndHour,
		CadenceEvery: a.cfg.Cadence.CheckInterval,
	}, a.logger)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := srv.Run(ctx, a.cfg.Server.Addr); err != nil {
			errCh <- err
		}
	}()
	if telegram != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := telegram.Run(ctx); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case sig := <-sigChan:
		a.logger.Info("received signal", "signal", sig.String())
	case err = <-errCh:
		a.logger.Error("component failed", "error", err)
	}
	cancel()
	wg.Wait()
	return err
}

func newExportCmd(configPath *string) *cobra.Command {
	var userID, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a user's progress report to an Excel file",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			session, err := a.manager.Session(ctx, userID)
			if err != nil {
				return err
			}
			if out == "" {
				out = fmt.Sprintf("voortgang-%s.xlsx", userID)
			}
			if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
				return errors.Wrap(err, "failed to create output directory")
			}
			f, err := os.Create(out)
			if err != nil {
				return errors.Wrap(err, "failed to create report file")
			}
			defer f.Close()

			err = excel.ExportProgress(f, excel.Report{
				UserID:      userID,
				GeneratedAt: a.clock.Now(),
				Progress:    session.Snapshot(),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "report written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user identity")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newImportCmd(configPath *string) *cobra.Command {
	var userID, subject, sheet string
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import flashcard decks from an Excel or CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			f, err := os.Open(args[0])
			if err != nil {
				return errors.Wrap(err, "failed to open import file")
			}
			defer f.Close()

			importCfg := excel.DefaultImportConfig()
			importCfg.SheetName = sheet
			result, err := excel.ImportFlashcards(filepath.Base(args[0]), f, importCfg)
			if err != nil {
				return err
			}

			session, err := a.manager.Session(ctx, userID)
			if err != nil {
				return err
			}
			for _, deck := range result.Decks {
				if _, err := session.AddFlashcardDeck(models.Subject(subject), deck.Title, deck.Cards); err != nil {
					return err
				}
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "imported %d cards in %d decks, skipped %d\n", result.Imported, len(result.Decks), result.Skipped)
			for _, msg := range result.Errors {
				fmt.Fprintln(w, "  "+msg)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user identity")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "subject the decks belong to")
	cmd.Flags().StringVar(&sheet, "sheet", "", "sheet name (default first sheet)")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newResetCmd(configPath *string) *cobra.Command {
	var userID string
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe a user's progress locally and remotely",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return errors.New("refusing to reset without --yes")
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			session, err := a.manager.Session(ctx, userID)
			if err != nil {
				return err
			}
			if err := session.Reset(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "progress of %s reset\n", userID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user identity")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
