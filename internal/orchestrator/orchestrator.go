// Package orchestrator secures miner alpha stake in a holding wallet and
// delegates it to the target validator hotkey.
// Per wallet: transfer → delegate → report
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alpha-custody/internal/chain"
	"alpha-custody/internal/domain"
	"alpha-custody/internal/idhash"
	"alpha-custody/internal/observability"
	"alpha-custody/internal/storage"
)

// OriginPolicy selects the origin hotkey passed to MoveStake.
type OriginPolicy string

const (
	// OriginFromPosition moves each non-conforming position from its own hotkey.
	OriginFromPosition OriginPolicy = "position"
	// OriginFromMiner moves every position from the hotkey of the miner wallet
	// being processed. Kept for compatibility with the first version of the tool.
	OriginFromMiner OriginPolicy = "miner"
)

// ParseOriginPolicy parses a policy name. Empty means OriginFromPosition.
func ParseOriginPolicy(s string) (OriginPolicy, error) {
	switch OriginPolicy(s) {
	case "", OriginFromPosition:
		return OriginFromPosition, nil
	case OriginFromMiner:
		return OriginFromMiner, nil
	default:
		return "", fmt.Errorf("unknown origin hotkey policy %q", s)
	}
}

// Orchestrator runs the secure-and-delegate workflow over a batch of miner
// wallets. All remote calls are issued one at a time.
type Orchestrator struct {
	query   chain.QueryPort
	actions chain.ActionPort

	miners  []chain.Wallet
	holding chain.Wallet

	netuid            int
	targetHotkey      string
	originPolicy      OriginPolicy
	skipZeroTransfers bool

	logger    *zap.Logger
	runStore  storage.RunStore
	snapStore storage.SnapshotStore
	metrics   *observability.Metrics
	now       func() time.Time

	runID string
	seq   int
}

// Options for creating Orchestrator.
type Options struct {
	// Required ports
	Query   chain.QueryPort
	Actions chain.ActionPort

	// Wallets
	MinerWallets  []chain.Wallet
	HoldingWallet chain.Wallet

	// Workflow
	Netuid            int
	TargetHotkey      string
	OriginPolicy      OriginPolicy // empty means OriginFromPosition
	SkipZeroTransfers bool

	// Optional collaborators
	Logger        *zap.Logger
	RunStore      storage.RunStore
	SnapshotStore storage.SnapshotStore
	Metrics       *observability.Metrics
	Clock         func() time.Time
}

// New creates a new Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		query:             opts.Query,
		actions:           opts.Actions,
		miners:            opts.MinerWallets,
		holding:           opts.HoldingWallet,
		netuid:            opts.Netuid,
		targetHotkey:      opts.TargetHotkey,
		originPolicy:      opts.OriginPolicy,
		skipZeroTransfers: opts.SkipZeroTransfers,
		logger:            opts.Logger,
		runStore:          opts.RunStore,
		snapStore:         opts.SnapshotStore,
		metrics:           opts.Metrics,
		now:               opts.Clock,
	}
	if o.originPolicy == "" {
		o.originPolicy = OriginFromPosition
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.now == nil {
		o.now = time.Now
	}
	o.logger = o.logger.With(zap.Int("netuid", o.netuid))
	return o
}

// WalletState is the progress of one miner wallet through a run.
type WalletState string

// Wallet states. Transitions never revert.
const (
	StatePending             WalletState = "PENDING"
	StateTransferred         WalletState = "TRANSFERRED"
	StateDelegationAttempted WalletState = "DELEGATION_ATTEMPTED"
	StateReported            WalletState = "REPORTED"
)

// WalletOutcome is the result of processing one miner wallet.
type WalletOutcome struct {
	Wallet      string
	State       WalletState
	Transferred domain.Balance
	TransferErr error
	Delegated   bool
	DelegateErr error
	// HoldingUnderTarget is the holding stake under the target hotkey after this wallet.
	HoldingUnderTarget domain.Balance
	ReportErr          error
}

// Failed reports whether any step of the wallet failed.
func (w WalletOutcome) Failed() bool {
	return w.TransferErr != nil || !w.Delegated || w.ReportErr != nil
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	RunID              string
	Netuid             int
	TargetHotkey       string
	Outcomes           []WalletOutcome
	HoldingUnderTarget domain.Balance
	Errors             []string
}

// Run executes the workflow for every miner wallet, strictly in order.
// Per-wallet failures are collected in the result and never stop the batch.
// Only context cancellation ends a run early.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	started := o.now()
	o.runID = uuid.NewString()
	o.seq = 0

	result := &RunResult{
		RunID:              o.runID,
		Netuid:             o.netuid,
		TargetHotkey:       o.targetHotkey,
		HoldingUnderTarget: domain.ZeroBalance(o.netuid),
	}

	o.logger.Info("moving stake from miner wallets to holding wallet",
		zap.String("run_id", o.runID),
		zap.String("holding_wallet", o.holding.Name()),
		zap.String("target_hotkey", o.targetHotkey),
		zap.Int("miners", len(o.miners)),
	)
	o.startRun(ctx, started)

	for _, miner := range o.miners {
		if err := ctx.Err(); err != nil {
			o.finishRun(ctx)
			return result, err
		}

		outcome := o.processWallet(ctx, miner)
		result.Outcomes = append(result.Outcomes, outcome)
		result.Errors = append(result.Errors, outcomeErrors(outcome)...)
		if outcome.ReportErr == nil {
			result.HoldingUnderTarget = outcome.HoldingUnderTarget
		}
	}

	finished := o.finishRun(ctx)
	o.metrics.RecordRun(finished.Sub(started), finished)

	o.logger.Info("run completed",
		zap.String("run_id", o.runID),
		zap.Int("wallets", len(result.Outcomes)),
		zap.Int("errors", len(result.Errors)),
		zap.Stringer("holding_under_target", result.HoldingUnderTarget),
	)
	return result, nil
}

// processWallet runs transfer → delegate → report for one miner wallet.
func (o *Orchestrator) processWallet(ctx context.Context, miner chain.Wallet) WalletOutcome {
	log := o.logger.With(zap.String("wallet", miner.Name()))
	log.Info("processing wallet")

	outcome := WalletOutcome{Wallet: miner.Name(), State: StatePending}

	// A failed transfer still advances: the delegation step may legitimately
	// find nothing to move, or stake left over from an earlier run.
	outcome.Transferred, outcome.TransferErr = o.SecureTransfer(ctx, miner)
	outcome.State = StateTransferred

	outcome.Delegated, outcome.DelegateErr = o.DelegateToTarget(ctx, miner)
	outcome.State = StateDelegationAttempted

	outcome.HoldingUnderTarget, outcome.ReportErr = o.reportHolding(ctx, miner.Name())
	outcome.State = StateReported

	if outcome.Failed() {
		o.metrics.RecordWallet("failed")
	} else {
		o.metrics.RecordWallet("ok")
	}
	return outcome
}

// MinerStake returns the stake of the miner on the configured subnet.
// A missing position is zero stake, not an error.
func (o *Orchestrator) MinerStake(ctx context.Context, miner chain.Wallet) (domain.Balance, error) {
	pos, err := o.minerPosition(ctx, miner)
	if err != nil {
		return domain.ZeroBalance(o.netuid), err
	}
	return pos.Stake, nil
}

func (o *Orchestrator) minerPosition(ctx context.Context, miner chain.Wallet) (domain.StakePosition, error) {
	if miner.Hotkey() == "" {
		return domain.StakePosition{}, fmt.Errorf("wallet %s: %w", miner.Name(), chain.ErrNoHotkey)
	}

	pos, err := o.query.StakeOf(ctx, miner.Coldkey(), miner.Hotkey(), o.netuid)
	if err != nil {
		o.metrics.RecordQueryError("stake_of")
		return domain.StakePosition{}, err
	}

	o.logger.Debug("miner stake",
		zap.String("wallet", miner.Name()),
		zap.String("coldkey", miner.Coldkey()),
		zap.String("hotkey", miner.Hotkey()),
		zap.Uint64("amount", pos.Stake.Rao),
		zap.Stringer("stake", pos.Stake),
	)
	return pos, nil
}

// HoldingStakeUnderTarget returns the holding wallet stake delegated to the
// target hotkey on the configured subnet, or zero if there is none.
func (o *Orchestrator) HoldingStakeUnderTarget(ctx context.Context) (domain.Balance, error) {
	positions, err := o.holdingPositions(ctx)
	if err != nil {
		return domain.ZeroBalance(o.netuid), err
	}
	return o.sumUnderTarget(positions)
}

func (o *Orchestrator) holdingPositions(ctx context.Context) ([]domain.StakePosition, error) {
	positions, err := o.query.AllStakesOf(ctx, o.holding.Coldkey())
	if err != nil {
		o.metrics.RecordQueryError("all_stakes_of")
		return nil, err
	}
	return positions, nil
}

// sumUnderTarget folds the positions in the subnet under the target hotkey.
// At most one is expected since (coldkey, hotkey, netuid) is unique.
func (o *Orchestrator) sumUnderTarget(positions []domain.StakePosition) (domain.Balance, error) {
	total := domain.ZeroBalance(o.netuid)
	for _, p := range positions {
		if p.Netuid != o.netuid || p.Hotkey != o.targetHotkey {
			continue
		}
		var err error
		if total, err = total.Add(p.Stake); err != nil {
			return domain.ZeroBalance(o.netuid), err
		}
	}
	return total, nil
}

// SecureTransfer moves the whole miner stake to the holding coldkey, keeping
// hotkey and subnet. It returns the amount submitted.
func (o *Orchestrator) SecureTransfer(ctx context.Context, miner chain.Wallet) (domain.Balance, error) {
	zero := domain.ZeroBalance(o.netuid)

	pos, err := o.minerPosition(ctx, miner)
	if err != nil {
		o.logger.Error("read miner stake failed", zap.String("wallet", miner.Name()), zap.Error(err))
		return zero, fmt.Errorf("read miner stake: %w", err)
	}
	o.snapshot(ctx, miner.Name(), domain.SnapshotBefore, []domain.StakePosition{pos})

	amount := pos.Stake
	log := o.logger.With(
		zap.String("wallet", miner.Name()),
		zap.String("coldkey", miner.Coldkey()),
		zap.String("hotkey", miner.Hotkey()),
		zap.Uint64("amount", amount.Rao),
	)

	rec := &domain.ActionRecord{
		Wallet:       miner.Name(),
		Kind:         domain.ActionTransfer,
		Signer:       miner.Coldkey(),
		OriginHotkey: miner.Hotkey(),
		DestHotkey:   miner.Hotkey(),
		DestColdkey:  o.holding.Coldkey(),
		Netuid:       o.netuid,
		AmountRao:    amount.Rao,
	}

	if amount.IsZero() && o.skipZeroTransfers {
		log.Info("transfer skipped: no stake")
		o.metrics.RecordTransferSkipped()
		o.recordAction(ctx, rec, domain.ActionResultSkipped, nil)
		return zero, nil
	}

	log.Info("transferring stake to holding wallet", zap.String("destination_coldkey", o.holding.Coldkey()))
	err = o.actions.TransferStake(ctx, miner, miner.Hotkey(), o.holding.Coldkey(), o.netuid, amount)
	o.metrics.RecordTransfer(err == nil, amount.Rao)
	if err != nil {
		log.Error("transfer failed", zap.Error(err))
		o.recordAction(ctx, rec, domain.ActionResultFailed, err)
		return zero, err
	}

	o.recordAction(ctx, rec, domain.ActionResultOK, nil)
	return amount, nil
}

// DelegateToTarget moves every non-conforming holding position on the subnet
// to the target hotkey. It returns true only if every move succeeded, and
// true when there was nothing to move. An unlock failure returns false
// without attempting any move.
func (o *Orchestrator) DelegateToTarget(ctx context.Context, miner chain.Wallet) (bool, error) {
	positions, err := o.holdingPositions(ctx)
	if err != nil {
		o.logger.Error("read holding stakes failed", zap.String("wallet", miner.Name()), zap.Error(err))
		return false, fmt.Errorf("read holding stakes: %w", err)
	}

	pending := o.nonConforming(positions)
	if len(pending) == 0 {
		o.logger.Debug("nothing to delegate", zap.String("holding_wallet", o.holding.Name()))
		return true, nil
	}

	if err := o.unlockHolding(ctx, miner.Name()); err != nil {
		return false, err
	}

	results := make([]bool, 0, len(pending))
	var errs []error
	for _, p := range pending {
		ok, err := o.delegate(ctx, miner, p)
		results = append(results, ok)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return allSucceeded(results), errors.Join(errs...)
}

// nonConforming returns the non-empty subnet positions not under the target hotkey.
func (o *Orchestrator) nonConforming(positions []domain.StakePosition) []domain.StakePosition {
	var out []domain.StakePosition
	for _, p := range positions {
		if p.Netuid == o.netuid && p.Hotkey != o.targetHotkey && !p.Stake.IsZero() {
			out = append(out, p)
		}
	}
	return out
}

// unlockHolding unlocks the holding coldkey the first time it is needed.
// The wallet is never re-locked during a run.
func (o *Orchestrator) unlockHolding(ctx context.Context, wallet string) error {
	if o.holding.IsUnlocked() {
		return nil
	}

	o.logger.Info("unlocking holding wallet", zap.String("holding_wallet", o.holding.Name()))
	err := o.holding.UnlockColdkey()

	rec := &domain.ActionRecord{
		Wallet: wallet,
		Kind:   domain.ActionUnlock,
		Signer: o.holding.Coldkey(),
		Netuid: o.netuid,
	}
	if err != nil {
		o.logger.Error("unlock failed", zap.String("holding_wallet", o.holding.Name()), zap.Error(err))
		o.metrics.RecordUnlockFailure()
		o.recordAction(ctx, rec, domain.ActionResultFailed, err)
		return err
	}
	o.recordAction(ctx, rec, domain.ActionResultOK, nil)
	return nil
}

// delegate moves one position to the target hotkey.
func (o *Orchestrator) delegate(ctx context.Context, miner chain.Wallet, p domain.StakePosition) (bool, error) {
	origin := p.Hotkey
	if o.originPolicy == OriginFromMiner {
		origin = miner.Hotkey()
	}

	log := o.logger.With(
		zap.String("wallet", miner.Name()),
		zap.String("coldkey", o.holding.Coldkey()),
		zap.String("hotkey", origin),
		zap.Uint64("amount", p.Stake.Rao),
	)
	log.Debug("stake to delegate", zap.Stringer("position", p))

	rec := &domain.ActionRecord{
		Wallet:       miner.Name(),
		Kind:         domain.ActionMove,
		Signer:       o.holding.Coldkey(),
		OriginHotkey: origin,
		DestHotkey:   o.targetHotkey,
		Netuid:       o.netuid,
		AmountRao:    p.Stake.Rao,
	}

	if origin == "" {
		err := fmt.Errorf("move origin for wallet %s: %w", miner.Name(), chain.ErrNoHotkey)
		log.Warn("move failed", zap.Error(err))
		o.metrics.RecordMove(false, p.Stake.Rao)
		o.recordAction(ctx, rec, domain.ActionResultFailed, err)
		return false, err
	}

	ok, err := o.actions.MoveStake(ctx, o.holding, origin, o.netuid, o.targetHotkey, o.netuid, p.Stake)
	if err != nil {
		ok = false
	}
	o.metrics.RecordMove(ok, p.Stake.Rao)

	if !ok {
		log.Warn("move failed", zap.Error(err))
		o.recordAction(ctx, rec, domain.ActionResultFailed, err)
		return false, err
	}
	o.recordAction(ctx, rec, domain.ActionResultOK, nil)
	return true, nil
}

// reportHolding re-queries the holding wallet and reports stake under the target.
func (o *Orchestrator) reportHolding(ctx context.Context, wallet string) (domain.Balance, error) {
	zero := domain.ZeroBalance(o.netuid)

	positions, err := o.holdingPositions(ctx)
	if err != nil {
		o.logger.Error("read holding stakes failed", zap.String("wallet", wallet), zap.Error(err))
		return zero, fmt.Errorf("report holding stake: %w", err)
	}

	var inSubnet []domain.StakePosition
	for _, p := range positions {
		if p.Netuid == o.netuid {
			inSubnet = append(inSubnet, p)
		}
	}
	o.snapshot(ctx, wallet, domain.SnapshotAfter, inSubnet)

	stake, err := o.sumUnderTarget(positions)
	if err != nil {
		return zero, fmt.Errorf("report holding stake: %w", err)
	}

	o.metrics.RecordHoldingStake(o.netuid, stake.Rao)
	o.logger.Info("holding stake under target",
		zap.String("wallet", wallet),
		zap.String("coldkey", o.holding.Coldkey()),
		zap.String("hotkey", o.targetHotkey),
		zap.Uint64("amount", stake.Rao),
		zap.Stringer("stake", stake),
	)
	return stake, nil
}

// allSucceeded is the all-or-nothing fold over per-move results.
// An empty slice is vacuously successful.
func allSucceeded(results []bool) bool {
	return !slices.Contains(results, false)
}

func outcomeErrors(w WalletOutcome) []string {
	var errs []string
	if w.TransferErr != nil {
		errs = append(errs, fmt.Sprintf("transfer %s: %v", w.Wallet, w.TransferErr))
	}
	if !w.Delegated {
		if w.DelegateErr != nil {
			errs = append(errs, fmt.Sprintf("delegate %s: %v", w.Wallet, w.DelegateErr))
		} else {
			errs = append(errs, fmt.Sprintf("delegate %s: one or more moves were rejected", w.Wallet))
		}
	}
	if w.ReportErr != nil {
		errs = append(errs, fmt.Sprintf("report %s: %v", w.Wallet, w.ReportErr))
	}
	return errs
}

// Journal writes are best effort: a failing journal never fails a chain action.

func (o *Orchestrator) startRun(ctx context.Context, started time.Time) {
	if o.runStore == nil {
		return
	}
	err := o.runStore.StartRun(ctx, &domain.Run{
		RunID:        o.runID,
		Netuid:       o.netuid,
		TargetHotkey: o.targetHotkey,
		Holding:      o.holding.Coldkey(),
		MinerCount:   len(o.miners),
		StartedAt:    started,
	})
	if err != nil {
		o.logger.Warn("journal: start run", zap.Error(err))
	}
}

func (o *Orchestrator) finishRun(ctx context.Context) time.Time {
	finished := o.now()
	if o.runStore == nil {
		return finished
	}
	// Still close the run when the batch was interrupted.
	if err := o.runStore.FinishRun(context.WithoutCancel(ctx), o.runID, finished); err != nil {
		o.logger.Warn("journal: finish run", zap.Error(err))
	}
	return finished
}

func (o *Orchestrator) recordAction(ctx context.Context, rec *domain.ActionRecord, result string, actionErr error) {
	o.seq++
	if o.runStore == nil {
		return
	}

	rec.RunID = o.runID
	rec.Seq = o.seq
	rec.ActionID = idhash.ComputeActionID(o.runID, rec.Wallet, rec.Kind, o.seq)
	rec.Result = result
	rec.RecordedAt = o.now()
	if actionErr != nil {
		rec.Error = actionErr.Error()
	}

	if err := o.runStore.RecordAction(ctx, rec); err != nil {
		o.logger.Warn("journal: record action", zap.String("kind", rec.Kind), zap.Error(err))
	}
}

func (o *Orchestrator) snapshot(ctx context.Context, wallet, phase string, positions []domain.StakePosition) {
	if o.snapStore == nil || len(positions) == 0 {
		return
	}

	observed := o.now()
	snaps := make([]*domain.StakeSnapshot, 0, len(positions))
	for _, p := range positions {
		snaps = append(snaps, &domain.StakeSnapshot{
			RunID:      o.runID,
			Wallet:     wallet,
			Phase:      phase,
			Coldkey:    p.Coldkey,
			Hotkey:     p.Hotkey,
			Netuid:     p.Netuid,
			StakeRao:   p.Stake.Rao,
			ObservedAt: observed,
		})
	}
	if err := o.snapStore.InsertBulk(ctx, snaps); err != nil {
		o.logger.Warn("journal: insert snapshots", zap.Error(err))
	}
}
