package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/noah-isme/rutas-academicas/internal/app"
	"github.com/noah-isme/rutas-academicas/pkg/config"
	"github.com/noah-isme/rutas-academicas/pkg/logger"
)

var version = "1.0.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		color.Red("error: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rutasctl",
		Short:         "Manage schedule imports, study plans and elective progress",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newMigrateCmd(),
		newImportScheduleCmd(),
		newImportStudentsCmd(),
		newComplianceCmd(),
		newRiskCmd(),
		newRosterCmd(),
		newTokenCmd(),
	)
	return root
}

// withApp loads configuration, builds the application and hands it to fn.
// Workers are not started; every command runs to completion synchronously.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logr.Sync() //nolint:errcheck

	a, err := app.New(ctx, cfg, logr)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
