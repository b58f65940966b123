// Package ss58 encodes and validates Substrate SS58 account addresses.
//
// Layout: base58(prefix | pubkey(32) | checksum(2)), where checksum is the
// first two bytes of blake2b-512("SS58PRE" | prefix | pubkey).
package ss58

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// BittensorPrefix is the network identifier used by bittensor addresses.
const BittensorPrefix uint16 = 42

// PublicKeySize is the account public key length supported by this package.
const PublicKeySize = 32

const checksumSize = 2

var checksumPrefix = []byte("SS58PRE")

// Address decoding errors.
var (
	ErrInvalidEncoding = errors.New("ss58: invalid base58 encoding")
	ErrInvalidLength   = errors.New("ss58: invalid address length")
	ErrInvalidPrefix   = errors.New("ss58: invalid network prefix")
	ErrChecksum        = errors.New("ss58: checksum mismatch")
)

// Decode returns the network prefix and public key encoded in addr.
func Decode(addr string) (uint16, []byte, error) {
	raw, err := base58.Decode(addr)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if len(raw) == 0 {
		return 0, nil, ErrInvalidLength
	}

	prefix, prefixLen, err := decodePrefix(raw)
	if err != nil {
		return 0, nil, err
	}
	if len(raw) != prefixLen+PublicKeySize+checksumSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrInvalidLength, len(raw))
	}

	body := raw[:len(raw)-checksumSize]
	sum := checksum(body)
	if !bytes.Equal(sum, raw[len(raw)-checksumSize:]) {
		return 0, nil, ErrChecksum
	}

	pubkey := make([]byte, PublicKeySize)
	copy(pubkey, raw[prefixLen:prefixLen+PublicKeySize])
	return prefix, pubkey, nil
}

// Encode returns the SS58 address of pubkey under prefix.
func Encode(pubkey []byte, prefix uint16) (string, error) {
	if len(pubkey) != PublicKeySize {
		return "", fmt.Errorf("%w: public key is %d bytes", ErrInvalidLength, len(pubkey))
	}
	head, err := encodePrefix(prefix)
	if err != nil {
		return "", err
	}

	body := make([]byte, 0, len(head)+PublicKeySize+checksumSize)
	body = append(body, head...)
	body = append(body, pubkey...)
	body = append(body, checksum(body)...)
	return base58.Encode(body), nil
}

// Validate checks that addr is a well-formed bittensor address.
func Validate(addr string) error {
	prefix, _, err := Decode(addr)
	if err != nil {
		return err
	}
	if prefix != BittensorPrefix {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidPrefix, prefix, BittensorPrefix)
	}
	return nil
}

// PublicKey decodes addr and returns only the public key.
func PublicKey(addr string) ([]byte, error) {
	_, pubkey, err := Decode(addr)
	return pubkey, err
}

func checksum(body []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write(checksumPrefix)
	h.Write(body)
	return h.Sum(nil)[:checksumSize]
}

// decodePrefix reads the one or two byte network identifier.
func decodePrefix(raw []byte) (uint16, int, error) {
	switch {
	case raw[0] < 64:
		return uint16(raw[0]), 1, nil
	case raw[0] < 128:
		if len(raw) < 2 {
			return 0, 0, ErrInvalidLength
		}
		lower := (raw[0] << 2) | (raw[1] >> 6)
		upper := raw[1] & 0b0011_1111
		return uint16(lower) | uint16(upper)<<8, 2, nil
	default:
		return 0, 0, fmt.Errorf("%w: first byte %d", ErrInvalidPrefix, raw[0])
	}
}

func encodePrefix(prefix uint16) ([]byte, error) {
	switch {
	case prefix < 64:
		return []byte{byte(prefix)}, nil
	case prefix < 16384:
		first := byte((prefix&0b0000_0000_1111_1100)>>2) | 0b0100_0000
		second := byte(prefix>>8) | byte(prefix&0b0000_0000_0000_0011)<<6
		return []byte{first, second}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidPrefix, prefix)
	}
}
