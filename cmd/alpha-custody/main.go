// Package main provides the custody entry point.
// Executes: load config → open wallets → dial chain → run workflow → summary
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"alpha-custody/internal/chain"
	"alpha-custody/internal/config"
	"alpha-custody/internal/keystore"
	"alpha-custody/internal/logging"
	"alpha-custody/internal/observability"
	"alpha-custody/internal/orchestrator"
	"alpha-custody/internal/reporting"
	"alpha-custody/internal/subtensor"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	var netuid int

	cmd := &cobra.Command{
		Use:   "alpha-custody",
		Short: "Secure miner alpha stake in the holding wallet and delegate it to the target validator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, out, netuid)
		},
		SilenceUsage: true,
	}
	cmd.Flags().IntVar(&netuid, "netuid", 0, "subnet to secure and delegate stake on")
	_ = cmd.MarkFlagRequired("netuid")

	return cmd
}

// run executes one custody run. Errors returned here are startup errors;
// per-wallet failures are only reported.
func run(ctx context.Context, out io.Writer, netuid int) error {
	if netuid < 0 {
		return fmt.Errorf("netuid must be non-negative, got %d", netuid)
	}

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics("", registry)

	holding, miners, err := openWallets(cfg, logger)
	if err != nil {
		logger.Error("open wallets", zap.Error(err))
		return err
	}

	endpoint, err := cfg.ChainEndpoint()
	if err != nil {
		return err
	}
	client, err := subtensor.Dial(ctx, endpoint, cfg.Transport(),
		subtensor.WithLogger(logger),
		subtensor.WithMetrics(metrics),
	)
	if err != nil {
		logger.Error("connect to chain", zap.String("endpoint", endpoint), zap.Error(err))
		return err
	}
	defer client.Close()

	j, err := openJournal(ctx, cfg.Journal, logger)
	if err != nil {
		logger.Error("open journal", zap.Error(err))
		return err
	}
	defer j.Close()

	orch := orchestrator.New(orchestrator.Options{
		Query:             client,
		Actions:           client,
		MinerWallets:      miners,
		HoldingWallet:     holding,
		Netuid:            netuid,
		TargetHotkey:      cfg.TargetHotkey,
		OriginPolicy:      cfg.Policy(),
		SkipZeroTransfers: cfg.SkipZeroTransfers,
		Logger:            logger,
		RunStore:          j.runs,
		SnapshotStore:     j.snapshots,
		Metrics:           metrics,
	})

	result, runErr := orch.Run(ctx)
	if result != nil {
		if err := reporting.WriteSummary(out, result); err != nil {
			logger.Warn("write summary", zap.Error(err))
		}
		if cfg.Report.Dir != "" {
			paths, err := reporting.WriteFiles(cfg.Report.Dir, result, time.Now())
			if err != nil {
				logger.Warn("write report files", zap.Error(err))
			}
			for _, p := range paths {
				logger.Info("report written", zap.String("path", p))
			}
		}
	}

	if cfg.Metrics.PushgatewayURL != "" {
		pushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := observability.Push(pushCtx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job, registry); err != nil {
			logger.Warn("push metrics", zap.Error(err))
		}
		cancel()
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("run interrupted")
		}
		return runErr
	}
	return nil
}

// openWallets opens the holding wallet and every configured miner wallet.
func openWallets(cfg *config.Config, logger *zap.Logger) (chain.Wallet, []chain.Wallet, error) {
	opts := []keystore.Option{keystore.WithLogger(logger)}

	holding, err := keystore.Open(cfg.WalletPath, cfg.HoldingWallet.Name, cfg.HoldingWallet.Hotkey, opts...)
	if err != nil {
		return nil, nil, err
	}

	miners := make([]chain.Wallet, 0, len(cfg.MinerWallets))
	for _, ref := range cfg.MinerWallets {
		w, err := keystore.Open(cfg.WalletPath, ref.Name, ref.Hotkey, opts...)
		if err != nil {
			return nil, nil, err
		}
		miners = append(miners, w)
	}

	return holding, miners, nil
}
