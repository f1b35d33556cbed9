package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"StockPulse/internal/di"
	"StockPulse/internal/services/analytics"
	"StockPulse/internal/usecase"
	"StockPulse/pkg/config"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the stockpulse command tree.
func NewRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "stockpulse",
		Short: "StockPulse - stock signal prediction service",
		Long: `StockPulse ingests market data on a market-hours aware schedule, scores it
into short-horizon predictions and serves them through a stability cache.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "config/config.yaml", "configuration file path")

	rootCmd.AddCommand(newServeCmd(&configPath))
	rootCmd.AddCommand(newEvaluateCmd(&configPath))
	return rootCmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, API server and live ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			app, cleanup, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.Run(ctx)
		},
	}
}

func newEvaluateCmd(configPath *string) *cobra.Command {
	var (
		days    int
		warmup  int
		horizon int
	)
	cmd := &cobra.Command{
		Use:   "evaluate [SYMBOL...]",
		Short: "Replay history through the lightweight model and report accuracy",
		Long: `Replays the configured provider's price history bar by bar, runs the
directional scorer and range predictor at each step and reports the
directional hit rate and range containment. Defaults to the configured symbols.
Example: stockpulse evaluate AAPL MSFT --days=30`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			symbols := args
			if len(symbols) == 0 {
				symbols = cfg.Jobs.Symbols
			}

			ev := usecase.NewEvaluator(
				di.ProvideMarketDataProvider(cfg),
				analytics.NewDirectionalScorer(),
				analytics.NewRangePredictor(),
				usecase.WithWarmup(warmup),
				usecase.WithHorizon(horizon),
			)
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			reports := make([]usecase.EvaluationReport, 0, len(symbols))
			var failures []string
			for _, s := range symbols {
				r, err := ev.Evaluate(ctx, s, time.Duration(days)*24*time.Hour)
				if err != nil {
					failures = append(failures, err.Error())
					continue
				}
				reports = append(reports, r)
			}
			fmt.Fprintln(cmd.OutOrStdout(), RenderEvaluation(reports, failures))
			if len(reports) == 0 {
				return fmt.Errorf("no symbol could be evaluated")
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "days of history to replay")
	cmd.Flags().IntVar(&warmup, "warmup", 50, "bars consumed before the first scored step")
	cmd.Flags().IntVar(&horizon, "horizon", 1, "bars ahead each prediction is checked against")
	return cmd
}
