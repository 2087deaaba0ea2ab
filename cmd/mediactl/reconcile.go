package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"parish-media/internal/config"
	"parish-media/internal/database"
	"parish-media/internal/features/media"
	"parish-media/internal/logger"
	"parish-media/internal/storage"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func newReconcileCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Run one orphan sweep over the storage tree and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			var runErr error
			app := fx.New(
				fx.Provide(
					config.LoadConfig,
					logger.NewLogger,
					database.NewDatabase,
					database.NewSQLDatabase,
					func(cfg *config.Config) (*storage.Layout, error) {
						return storage.NewLayout(cfg.UploadDir)
					},
					storage.NewCleaner,
					media.NewMediaRepository,
					media.NewReconciler,
				),
				fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
					return &fxevent.ZapLogger{Logger: log}
				}),
				fx.Invoke(func(lc fx.Lifecycle, shutdowner fx.Shutdowner, reconciler *media.Reconciler, log *zap.Logger) {
					lc.Append(fx.Hook{
						OnStart: func(context.Context) error {
							go func() {
								ctx, cancel := context.WithTimeout(context.Background(), timeout)
								defer cancel()

								report, err := reconciler.Run(ctx)
								if err != nil {
									log.Error("reconciliation failed", zap.Error(err))
									runErr = err
								}
								if report != nil {
									enc := json.NewEncoder(os.Stdout)
									enc.SetIndent("", "  ")
									_ = enc.Encode(report)
								}
								_ = shutdowner.Shutdown()
							}()
							return nil
						},
					})
				}),
			)
			if err := app.Err(); err != nil {
				return err
			}
			app.Run()
			return runErr
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Minute, "upper bound for the sweep")
	return cmd
}
