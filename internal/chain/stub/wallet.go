package stub

import (
	"alpha-custody/internal/chain"
)

// Wallet implements chain.Wallet without key material.
type Wallet struct {
	WalletName  string
	ColdkeyAddr string
	HotkeyAddr  string

	// UnlockErr, when set, makes UnlockColdkey fail.
	UnlockErr   error
	UnlockCalls int

	unlocked bool
}

var _ chain.Wallet = (*Wallet)(nil)

// NewWallet creates a locked stub wallet.
func NewWallet(name, coldkey, hotkey string) *Wallet {
	return &Wallet{WalletName: name, ColdkeyAddr: coldkey, HotkeyAddr: hotkey}
}

func (w *Wallet) Name() string    { return w.WalletName }
func (w *Wallet) Coldkey() string { return w.ColdkeyAddr }
func (w *Wallet) Hotkey() string  { return w.HotkeyAddr }

// UnlockColdkey marks the wallet unlocked unless UnlockErr is set.
func (w *Wallet) UnlockColdkey() error {
	w.UnlockCalls++
	if w.UnlockErr != nil {
		return &chain.KeyUnlockError{Wallet: w.WalletName, Err: w.UnlockErr}
	}
	w.unlocked = true
	return nil
}

// IsUnlocked reports whether UnlockColdkey succeeded.
func (w *Wallet) IsUnlocked() bool { return w.unlocked }

// Sign returns payload prefixed with the coldkey address.
func (w *Wallet) Sign(payload []byte) ([]byte, error) {
	if !w.unlocked {
		return nil, chain.ErrLocked
	}
	return append([]byte(w.ColdkeyAddr+":"), payload...), nil
}
