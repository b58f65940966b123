// Package stub provides an in-memory chain implementing chain.QueryPort and
// chain.ActionPort for tests.
package stub

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"alpha-custody/internal/chain"
	"alpha-custody/internal/domain"
)

// TransferCall records one TransferStake invocation.
type TransferCall struct {
	Signer     string
	FromHotkey string
	ToColdkey  string
	Netuid     int
	Amount     domain.Balance
}

// MoveCall records one MoveStake invocation.
type MoveCall struct {
	Signer       string
	OriginHotkey string
	OriginNetuid int
	DestHotkey   string
	DestNetuid   int
	Amount       domain.Balance
}

// Chain is an in-memory stake table with failure injection.
type Chain struct {
	mu     sync.Mutex
	stakes map[domain.PositionKey]uint64

	// QueryErr, when set, fails every query.
	QueryErr error
	// TransferErr fails transfers signed by the keyed coldkey.
	TransferErr map[string]error
	// RejectMove, when set and returning true, makes MoveStake report false.
	RejectMove func(MoveCall) bool
	// MoveErr, when set, is returned by every MoveStake call.
	MoveErr error

	Transfers  []TransferCall
	Moves      []MoveCall
	QueryCount int
}

// Compile-time interface checks.
var (
	_ chain.QueryPort  = (*Chain)(nil)
	_ chain.ActionPort = (*Chain)(nil)
)

// NewChain creates an empty stub chain.
func NewChain() *Chain {
	return &Chain{
		stakes:      make(map[domain.PositionKey]uint64),
		TransferErr: make(map[string]error),
	}
}

// SetStake sets the stake of a position, removing it when rao is zero.
func (c *Chain) SetStake(coldkey, hotkey string, netuid int, rao uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(domain.PositionKey{Coldkey: coldkey, Hotkey: hotkey, Netuid: netuid}, rao)
}

// Stake returns the current stake of a position.
func (c *Chain) Stake(coldkey, hotkey string, netuid int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stakes[domain.PositionKey{Coldkey: coldkey, Hotkey: hotkey, Netuid: netuid}]
}

// StakeOf returns the position for the triple, or a zero position.
func (c *Chain) StakeOf(_ context.Context, coldkey, hotkey string, netuid int) (domain.StakePosition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.QueryCount++
	if c.QueryErr != nil {
		return domain.StakePosition{}, &chain.QueryError{Op: "stake_of", Coldkey: coldkey, Hotkey: hotkey, Netuid: netuid, Err: c.QueryErr}
	}

	pos := domain.EmptyPosition(coldkey, hotkey, netuid)
	pos.Stake.Rao = c.stakes[pos.Key()]
	return pos, nil
}

// AllStakesOf returns every non-empty position of coldkey ordered by netuid, hotkey.
func (c *Chain) AllStakesOf(_ context.Context, coldkey string) ([]domain.StakePosition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.QueryCount++
	if c.QueryErr != nil {
		return nil, &chain.QueryError{Op: "all_stakes_of", Coldkey: coldkey, Err: c.QueryErr}
	}

	var positions []domain.StakePosition
	for key, rao := range c.stakes {
		if key.Coldkey != coldkey {
			continue
		}
		positions = append(positions, domain.StakePosition{
			Coldkey: key.Coldkey,
			Hotkey:  key.Hotkey,
			Netuid:  key.Netuid,
			Stake:   domain.NewBalance(rao, key.Netuid),
		})
	}

	sort.Slice(positions, func(i, j int) bool {
		if positions[i].Netuid != positions[j].Netuid {
			return positions[i].Netuid < positions[j].Netuid
		}
		return positions[i].Hotkey < positions[j].Hotkey
	})
	return positions, nil
}

// TransferStake moves stake between coldkeys under the same hotkey.
func (c *Chain) TransferStake(_ context.Context, signer chain.Wallet, fromHotkey, toColdkey string, netuid int, amount domain.Balance) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Transfers = append(c.Transfers, TransferCall{
		Signer:     signer.Coldkey(),
		FromHotkey: fromHotkey,
		ToColdkey:  toColdkey,
		Netuid:     netuid,
		Amount:     amount,
	})

	if err := c.TransferErr[signer.Coldkey()]; err != nil {
		return &chain.ActionFailure{Op: "transfer_stake", Signer: signer.Coldkey(), Err: err}
	}
	if err := c.sign(signer, "transfer_stake"); err != nil {
		return &chain.ActionFailure{Op: "transfer_stake", Signer: signer.Coldkey(), Err: err}
	}
	if amount.Netuid != netuid {
		return &chain.ActionFailure{Op: "transfer_stake", Signer: signer.Coldkey(), Err: domain.ErrSubnetMismatch}
	}

	from := domain.PositionKey{Coldkey: signer.Coldkey(), Hotkey: fromHotkey, Netuid: netuid}
	to := domain.PositionKey{Coldkey: toColdkey, Hotkey: fromHotkey, Netuid: netuid}
	if c.stakes[from] < amount.Rao {
		return &chain.ActionFailure{Op: "transfer_stake", Signer: signer.Coldkey(), Reason: "NotEnoughStakeToWithdraw"}
	}

	c.set(from, c.stakes[from]-amount.Rao)
	c.set(to, c.stakes[to]+amount.Rao)
	return nil
}

// MoveStake re-delegates stake under the signer coldkey.
func (c *Chain) MoveStake(_ context.Context, signer chain.Wallet, originHotkey string, originNetuid int, destHotkey string, destNetuid int, amount domain.Balance) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	call := MoveCall{
		Signer:       signer.Coldkey(),
		OriginHotkey: originHotkey,
		OriginNetuid: originNetuid,
		DestHotkey:   destHotkey,
		DestNetuid:   destNetuid,
		Amount:       amount,
	}
	c.Moves = append(c.Moves, call)

	if c.MoveErr != nil {
		return false, &chain.ActionFailure{Op: "move_stake", Signer: signer.Coldkey(), Err: c.MoveErr}
	}
	if c.RejectMove != nil && c.RejectMove(call) {
		return false, nil
	}
	if err := c.sign(signer, "move_stake"); err != nil {
		return false, &chain.ActionFailure{Op: "move_stake", Signer: signer.Coldkey(), Err: err}
	}

	from := domain.PositionKey{Coldkey: signer.Coldkey(), Hotkey: originHotkey, Netuid: originNetuid}
	to := domain.PositionKey{Coldkey: signer.Coldkey(), Hotkey: destHotkey, Netuid: destNetuid}
	if c.stakes[from] < amount.Rao {
		return false, nil
	}

	c.set(from, c.stakes[from]-amount.Rao)
	c.set(to, c.stakes[to]+amount.Rao)
	return true, nil
}

// sign unlocks the signer if needed, the way the chain SDK does before submitting.
func (c *Chain) sign(signer chain.Wallet, call string) error {
	if err := chain.EnsureUnlocked(signer); err != nil {
		return err
	}
	if _, err := signer.Sign([]byte(call)); err != nil {
		return fmt.Errorf("sign %s: %w", call, err)
	}
	return nil
}

func (c *Chain) set(key domain.PositionKey, rao uint64) {
	if rao == 0 {
		delete(c.stakes, key)
		return
	}
	c.stakes[key] = rao
}
