package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"dev/bravebird/guest-registration-walkthrough/pkg/config"
	"dev/bravebird/guest-registration-walkthrough/pkg/database"
	"dev/bravebird/guest-registration-walkthrough/pkg/logging"
	"dev/bravebird/guest-registration-walkthrough/pkg/models"
	"dev/bravebird/guest-registration-walkthrough/pkg/walkthrough"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	v := config.New()

	cmd := &cobra.Command{
		Use:          "walkthrough",
		Short:        "Register a guest through the registration form and verify the confirmation",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ReadFile(v, cfgFile); err != nil {
				return err
			}
			cfg, err := config.FromViper(v)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")
	flags.Bool("headless", true, "run the browser without a window")
	flags.String("driver", "rod", "browser driver: rod or chromedp")
	flags.String("url", "", "registration page URL")
	flags.String("screenshot-dir", "", "directory for the confirmation screenshot")
	flags.Duration("timeout", 0, "bound on every element wait")

	bind(v, cmd, map[string]string{
		"browser.headless": "headless",
		"browser.driver":   "driver",
		"target.url":       "url",
		"screenshot.dir":   "screenshot-dir",
		"wait.timeout":     "timeout",
	})
	return cmd
}

// bind lets explicitly set flags override file and environment values
func bind(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for key, flag := range keys {
		_ = v.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}

func run(ctx context.Context, cfg *config.Config, out io.Writer) error {
	zl := logging.New(cfg.Logger)
	defer zl.Sync()

	runner := &walkthrough.Runner{
		Open:  walkthrough.BrowserOpener(cfg.BrowserOptions()),
		Steps: walkthrough.Plan(cfg.WalkthroughOptions()),
		Wait:  cfg.WaitPolicy(),
		Log:   logging.Temporal(zl),
	}

	result, runErr := runner.Run(ctx)
	report(out, result)

	if cfg.Database.DSN != "" {
		if err := record(ctx, cfg.Database.DSN, result); err != nil {
			zl.Warn("Failed to record run", zap.String("runID", result.RunID), zap.Error(err))
		}
	}

	if runErr != nil {
		return runErr
	}
	if result.Status != models.StatusSuccess {
		return fmt.Errorf("walkthrough finished with status %s", result.Status)
	}
	return nil
}

func record(ctx context.Context, dsn string, result models.RunResult) error {
	db, err := database.New(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	return db.SaveResult(ctx, result)
}

func report(out io.Writer, result models.RunResult) {
	for _, cp := range result.Checkpoints {
		fmt.Fprintf(out, "%-10s %s\n", cp.Name, cp.Status)
	}
	for _, step := range result.Steps {
		if step.Status == models.StatusFailed {
			fmt.Fprintf(out, "failed at %s (%s): %s\n", step.Name, step.ErrorKind, step.ErrorMessage)
		}
	}
	if result.ScreenshotPath != "" {
		fmt.Fprintf(out, "screenshot %s\n", result.ScreenshotPath)
	}
	fmt.Fprintf(out, "run %s %s in %dms\n", result.RunID, result.Status, result.TotalDuration)
}
