package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// RaoPerUnit is the number of rao in one whole alpha/tao unit.
const RaoPerUnit = 1_000_000_000

// balanceDecimals is the fixed-point precision of Balance.
const balanceDecimals = 9

// ErrSubnetMismatch is returned when balances from different subnets are combined.
var ErrSubnetMismatch = errors.New("balances belong to different subnets")

// Balance is a subnet-scoped stake amount denominated in rao.
// Balances from different subnets are never comparable or summable.
type Balance struct {
	Rao    uint64
	Netuid int
}

// NewBalance creates a balance of rao on netuid.
func NewBalance(rao uint64, netuid int) Balance {
	return Balance{Rao: rao, Netuid: netuid}
}

// ZeroBalance returns the empty balance for netuid.
func ZeroBalance(netuid int) Balance {
	return Balance{Netuid: netuid}
}

// IsZero reports whether the balance holds no stake.
func (b Balance) IsZero() bool {
	return b.Rao == 0
}

// Add sums two balances of the same subnet.
func (b Balance) Add(other Balance) (Balance, error) {
	if b.Netuid != other.Netuid {
		return Balance{}, fmt.Errorf("add netuid %d to %d: %w", other.Netuid, b.Netuid, ErrSubnetMismatch)
	}
	sum := b.Rao + other.Rao
	if sum < b.Rao {
		return Balance{}, fmt.Errorf("balance overflow on netuid %d", b.Netuid)
	}
	return Balance{Rao: sum, Netuid: b.Netuid}, nil
}

// Decimal returns the balance in whole units.
func (b Balance) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(b.Rao), -balanceDecimals)
}

// String formats the balance as "<units> α<netuid>".
func (b Balance) String() string {
	return fmt.Sprintf("%s α%d", b.Decimal().StringFixed(balanceDecimals), b.Netuid)
}

// ParseBalance parses a whole-unit decimal string ("1.5") into a balance on netuid.
func ParseBalance(s string, netuid int) (Balance, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Balance{}, fmt.Errorf("parse balance %q: %w", s, err)
	}
	if d.IsNegative() {
		return Balance{}, fmt.Errorf("parse balance %q: negative amount", s)
	}
	rao := d.Shift(balanceDecimals)
	if !rao.Equal(rao.Truncate(0)) {
		return Balance{}, fmt.Errorf("parse balance %q: more than %d decimals", s, balanceDecimals)
	}
	bi := rao.BigInt()
	if !bi.IsUint64() {
		return Balance{}, fmt.Errorf("parse balance %q: out of range", s)
	}
	return Balance{Rao: bi.Uint64(), Netuid: netuid}, nil
}
