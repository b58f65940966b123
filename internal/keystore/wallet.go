// Package keystore opens bittensor-layout wallets:
//
//	<root>/<name>/coldkeypub.txt
//	<root>/<name>/coldkey
//	<root>/<name>/hotkeys/<hotkey>
//
// Opening reads public addresses only. The coldkey secret is loaded by
// UnlockColdkey.
package keystore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"alpha-custody/internal/chain"
	"alpha-custody/internal/ss58"
)

// Wallet is a keyfile-backed chain.Wallet.
type Wallet struct {
	name       string
	dir        string
	hotkeyName string

	coldkey string
	hotkey  string
	coldPub []byte

	passwords PasswordSource
	kdf       KDFParams
	logger    *zap.Logger

	mu  sync.Mutex
	key *sr25519Key
}

var _ chain.Wallet = (*Wallet)(nil)

// Option configures Wallet.
type Option func(*Wallet)

// WithPasswordSource sets where passwords for encrypted coldkeys come from.
func WithPasswordSource(s PasswordSource) Option {
	return func(w *Wallet) {
		w.passwords = s
	}
}

// WithKDFParams overrides the argon2i parameters.
func WithKDFParams(p KDFParams) Option {
	return func(w *Wallet) {
		w.kdf = p
	}
}

// WithLogger sets the wallet logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Wallet) {
		w.logger = l
	}
}

// Open loads the public addresses of wallet name under root. hotkey may be
// empty for wallets used only as a destination or signer.
func Open(root, name, hotkey string, opts ...Option) (*Wallet, error) {
	w := &Wallet{
		name:       name,
		dir:        filepath.Join(root, name),
		hotkeyName: hotkey,
		passwords:  EnvOrPrompt{},
		kdf:        DefaultKDFParams,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}

	addr, pub, err := readPublic(filepath.Join(w.dir, "coldkeypub.txt"))
	if err != nil {
		return nil, fmt.Errorf("open wallet %s: coldkeypub: %w", name, err)
	}
	w.coldkey, w.coldPub = addr, pub

	if hotkey != "" {
		addr, _, err := readPublic(filepath.Join(w.dir, "hotkeys", hotkey))
		if err != nil {
			return nil, fmt.Errorf("open wallet %s: hotkey %s: %w", name, hotkey, err)
		}
		w.hotkey = addr
	}

	return w, nil
}

// readPublic reads the SS58 address of an unencrypted keyfile and checks it
// against the publicKey field when present.
func readPublic(path string) (string, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	if isEncrypted(data) {
		return "", nil, fmt.Errorf("%s is encrypted", filepath.Base(path))
	}

	kp, err := parseKeypair(data)
	if err != nil {
		return "", nil, err
	}
	pub, err := ss58.PublicKey(kp.SS58Address)
	if err != nil {
		return "", nil, fmt.Errorf("address %q: %w", kp.SS58Address, err)
	}
	if err := checkPublicKey(pub); err != nil {
		return "", nil, fmt.Errorf("address %s: %w", kp.SS58Address, err)
	}

	if kp.PublicKey != "" {
		declared, err := decodeHex(kp.PublicKey)
		if err != nil {
			return "", nil, fmt.Errorf("decode publicKey: %w", err)
		}
		if !bytes.Equal(declared, pub) {
			return "", nil, fmt.Errorf("publicKey does not match address %s", kp.SS58Address)
		}
	}
	return kp.SS58Address, pub, nil
}

func (w *Wallet) Name() string    { return w.name }
func (w *Wallet) Coldkey() string { return w.coldkey }
func (w *Wallet) Hotkey() string  { return w.hotkey }

// IsUnlocked reports whether the coldkey secret is loaded.
func (w *Wallet) IsUnlocked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.key != nil
}

// UnlockColdkey loads and, if needed, decrypts the coldkey. Every failure is a
// *chain.KeyUnlockError.
func (w *Wallet) UnlockColdkey() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.key != nil {
		return nil
	}

	key, err := w.loadColdkey()
	if err != nil {
		return &chain.KeyUnlockError{Wallet: w.name, Err: err}
	}
	w.key = key

	w.logger.Debug("coldkey unlocked", zap.String("wallet", w.name), zap.String("coldkey", w.coldkey))
	return nil
}

func (w *Wallet) loadColdkey() (*sr25519Key, error) {
	data, err := os.ReadFile(filepath.Join(w.dir, "coldkey"))
	if err != nil {
		return nil, err
	}

	if isEncrypted(data) {
		password, err := w.passwords.Password(w.name)
		if err != nil {
			return nil, err
		}
		if data, err = decryptKeyfile(data, password, w.kdf); err != nil {
			return nil, err
		}
	}

	kp, err := parseKeypair(data)
	if err != nil {
		return nil, err
	}
	if kp.SecretSeed == nil {
		return nil, fmt.Errorf("coldkey has no secretSeed")
	}

	key, err := keyFromSeed(*kp.SecretSeed)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(key.public[:], w.coldPub) {
		return nil, fmt.Errorf("coldkey does not match coldkeypub %s", w.coldkey)
	}
	return key, nil
}

// Sign returns an sr25519 signature of payload under the substrate signing
// context. The wallet must be unlocked.
func (w *Wallet) Sign(payload []byte) ([]byte, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.key == nil {
		return nil, chain.ErrLocked
	}
	return w.key.sign(payload)
}
