package domain

import "fmt"

// StakePosition is a point-in-time snapshot of the stake held by
// (Coldkey, Hotkey) on a subnet. Positions are never mutated; a fresh
// query supersedes them.
type StakePosition struct {
	Coldkey string
	Hotkey  string
	Netuid  int
	Stake   Balance
}

// EmptyPosition returns the explicit "no stake" result for a triple.
func EmptyPosition(coldkey, hotkey string, netuid int) StakePosition {
	return StakePosition{
		Coldkey: coldkey,
		Hotkey:  hotkey,
		Netuid:  netuid,
		Stake:   ZeroBalance(netuid),
	}
}

// PositionKey uniquely identifies a stake position.
type PositionKey struct {
	Coldkey string
	Hotkey  string
	Netuid  int
}

// Key returns the (coldkey, hotkey, netuid) identity of the position.
func (p StakePosition) Key() PositionKey {
	return PositionKey{Coldkey: p.Coldkey, Hotkey: p.Hotkey, Netuid: p.Netuid}
}

func (p StakePosition) String() string {
	return fmt.Sprintf("StakePosition(coldkey=%s, hotkey=%s, netuid=%d, stake=%s)",
		p.Coldkey, p.Hotkey, p.Netuid, p.Stake)
}
