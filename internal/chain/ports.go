// Package chain defines the read and write ports the stake orchestrator uses
// to talk to the network, and the wallet identity those ports sign with.
package chain

import (
	"context"

	"alpha-custody/internal/domain"
)

// QueryPort is the read-only view of on-chain stake.
type QueryPort interface {
	// StakeOf returns the position for the exact (coldkey, hotkey, netuid) triple.
	// An absent position is returned as a zero-stake position, not an error.
	// Network, timeout and decoding failures are returned as *QueryError.
	StakeOf(ctx context.Context, coldkey, hotkey string, netuid int) (domain.StakePosition, error)

	// AllStakesOf returns every position owned by coldkey across hotkeys and subnets.
	AllStakesOf(ctx context.Context, coldkey string) ([]domain.StakePosition, error)
}

// ActionPort submits stake-moving extrinsics. Calls are single, non-retrying
// submissions; the effect is only observable through a later query.
type ActionPort interface {
	// TransferStake moves amount from (signer coldkey, fromHotkey, netuid) to
	// toColdkey under the same hotkey and subnet. Failures are *ActionFailure.
	TransferStake(ctx context.Context, signer Wallet, fromHotkey, toColdkey string, netuid int, amount domain.Balance) error

	// MoveStake re-delegates amount under the signer coldkey from
	// (originHotkey, originNetuid) to (destHotkey, destNetuid). It reports
	// false when the chain rejected the move; err is set when the outcome is
	// unknown or the call could not be submitted.
	MoveStake(ctx context.Context, signer Wallet, originHotkey string, originNetuid int, destHotkey string, destNetuid int, amount domain.Balance) (bool, error)
}

// Wallet bundles a coldkey address, an optional hotkey address and the
// capability to unlock the coldkey for signing.
type Wallet interface {
	// Name is the local wallet name.
	Name() string

	// Coldkey is the SS58 address of the owning coldkey.
	Coldkey() string

	// Hotkey is the SS58 address of the hotkey, or "" if the wallet has none.
	Hotkey() string

	// UnlockColdkey loads and decrypts the coldkey. Failures are *KeyUnlockError.
	UnlockColdkey() error

	// IsUnlocked reports whether the coldkey is available for signing.
	IsUnlocked() bool

	// Sign signs payload with the coldkey. Returns ErrLocked before unlock.
	Sign(payload []byte) ([]byte, error)
}
