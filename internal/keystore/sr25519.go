package keystore

import (
	"fmt"

	"github.com/ChainSafe/go-schnorrkel"
)

// signingContext is the schnorrkel context substrate signs extrinsics under.
var signingContext = []byte("substrate")

const (
	seedSize      = 32
	publicKeySize = 32
)

// sr25519Key is an expanded sr25519 secret with its encoded public key.
type sr25519Key struct {
	secret *schnorrkel.SecretKey
	public [publicKeySize]byte
}

// keyFromSeed expands a 32-byte mini secret the way substrate does
// (Ed25519 expansion mode).
func keyFromSeed(seedHex string) (*sr25519Key, error) {
	seed, err := decodeHex(seedHex)
	if err != nil {
		return nil, fmt.Errorf("decode secret seed: %w", err)
	}
	if len(seed) != seedSize {
		return nil, fmt.Errorf("secret seed: expected %d bytes, got %d", seedSize, len(seed))
	}

	var raw [seedSize]byte
	copy(raw[:], seed)
	mini, err := schnorrkel.NewMiniSecretKeyFromRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("secret seed: %w", err)
	}

	secret := mini.ExpandEd25519()
	pub, err := secret.Public()
	if err != nil {
		return nil, fmt.Errorf("derive public key: %w", err)
	}
	return &sr25519Key{secret: secret, public: pub.Encode()}, nil
}

// sign produces a 64-byte sr25519 signature over msg.
func (k *sr25519Key) sign(msg []byte) ([]byte, error) {
	sig, err := k.secret.Sign(schnorrkel.NewSigningContext(signingContext, msg))
	if err != nil {
		return nil, fmt.Errorf("sr25519 sign: %w", err)
	}
	enc := sig.Encode()
	return enc[:], nil
}

// checkPublicKey rejects bytes that are not a ristretto255 point encoding.
func checkPublicKey(pub []byte) error {
	if len(pub) != publicKeySize {
		return fmt.Errorf("public key: expected %d bytes, got %d", publicKeySize, len(pub))
	}
	var enc [publicKeySize]byte
	copy(enc[:], pub)
	if err := new(schnorrkel.PublicKey).Decode(enc); err != nil {
		return fmt.Errorf("public key is not a valid sr25519 point: %w", err)
	}
	return nil
}

// Verify checks an sr25519 signature made by Wallet.Sign against a public key.
func Verify(pub, msg, sig []byte) (bool, error) {
	if err := checkPublicKey(pub); err != nil {
		return false, err
	}
	if len(sig) != 64 {
		return false, fmt.Errorf("signature: expected 64 bytes, got %d", len(sig))
	}

	var (
		pubEnc [publicKeySize]byte
		sigEnc [64]byte
	)
	copy(pubEnc[:], pub)
	copy(sigEnc[:], sig)

	pk := new(schnorrkel.PublicKey)
	if err := pk.Decode(pubEnc); err != nil {
		return false, err
	}
	s := new(schnorrkel.Signature)
	if err := s.Decode(sigEnc); err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	return pk.Verify(s, schnorrkel.NewSigningContext(signingContext, msg))
}
