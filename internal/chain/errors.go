package chain

import (
	"errors"
	"fmt"
)

// Sentinel errors.
var (
	// ErrLocked is returned when signing with a wallet whose coldkey is locked.
	ErrLocked = errors.New("coldkey is locked")

	// ErrNoHotkey is returned when an operation needs a hotkey the wallet does not have.
	ErrNoHotkey = errors.New("wallet has no hotkey")
)

// QueryError is a failed remote read (network, timeout or decoding).
type QueryError struct {
	Op      string
	Coldkey string
	Hotkey  string
	Netuid  int
	Err     error
}

func (e *QueryError) Error() string {
	if e.Hotkey != "" {
		return fmt.Sprintf("query %s(coldkey=%s, hotkey=%s, netuid=%d): %v", e.Op, e.Coldkey, e.Hotkey, e.Netuid, e.Err)
	}
	return fmt.Sprintf("query %s(coldkey=%s): %v", e.Op, e.Coldkey, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// ActionFailure is a transfer or move that did not succeed.
type ActionFailure struct {
	Op     string
	Signer string
	Reason string // chain-reported reason, if any
	Err    error  // underlying transport or unlock error, if any
}

func (e *ActionFailure) Error() string {
	switch {
	case e.Err != nil && e.Reason != "":
		return fmt.Sprintf("%s by %s failed: %s: %v", e.Op, e.Signer, e.Reason, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s by %s failed: %v", e.Op, e.Signer, e.Err)
	default:
		return fmt.Sprintf("%s by %s failed: %s", e.Op, e.Signer, e.Reason)
	}
}

func (e *ActionFailure) Unwrap() error { return e.Err }

// KeyUnlockError means the wallet key material could not be loaded or decrypted.
type KeyUnlockError struct {
	Wallet string
	Err    error
}

func (e *KeyUnlockError) Error() string {
	return fmt.Sprintf("unlock coldkey of wallet %s: %v", e.Wallet, e.Err)
}

func (e *KeyUnlockError) Unwrap() error { return e.Err }

// EnsureUnlocked unlocks w if it is still locked.
func EnsureUnlocked(w Wallet) error {
	if w.IsUnlocked() {
		return nil
	}
	return w.UnlockColdkey()
}
