package keystore

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// naclPrefix marks a keyfile encrypted with NaCl secretbox.
var naclPrefix = []byte("$NACL")

// keyfileSalt is the fixed argon2i salt bittensor uses for NaCl keyfiles.
var keyfileSalt = []byte("\x13q\x83\xdf\xf1Z\t\xbc\x9c\x90\xb5Q\x879\xe9\xb1")

const nonceSize = 24

// ErrWrongPassword is returned when a keyfile cannot be decrypted.
var ErrWrongPassword = errors.New("keyfile decryption failed, wrong password?")

// KDFParams are the argon2i parameters used to derive the secretbox key.
type KDFParams struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
}

// DefaultKDFParams matches libsodium's OPSLIMIT_SENSITIVE / MEMLIMIT_SENSITIVE for argon2i.
var DefaultKDFParams = KDFParams{Time: 8, Memory: 512 * 1024, Threads: 1}

func (p KDFParams) key(password []byte) *[32]byte {
	var k [32]byte
	copy(k[:], argon2.Key(password, keyfileSalt, p.Time, p.Memory, p.Threads, 32))
	return &k
}

// keypairData is the JSON body of a keyfile.
type keypairData struct {
	AccountID    string  `json:"accountId"`
	PublicKey    string  `json:"publicKey"`
	SecretPhrase *string `json:"secretPhrase"`
	SecretSeed   *string `json:"secretSeed"`
	SS58Address  string  `json:"ss58Address"`
}

func parseKeypair(data []byte) (*keypairData, error) {
	var kp keypairData
	if err := json.Unmarshal(data, &kp); err != nil {
		return nil, fmt.Errorf("parse keyfile: %w", err)
	}
	return &kp, nil
}

func isEncrypted(data []byte) bool {
	return bytes.HasPrefix(data, naclPrefix)
}

// decryptKeyfile opens a $NACL keyfile: prefix | nonce(24) | secretbox.
func decryptKeyfile(data, password []byte, params KDFParams) ([]byte, error) {
	body := data[len(naclPrefix):]
	if len(body) < nonceSize+secretbox.Overhead {
		return nil, fmt.Errorf("keyfile too short")
	}

	var nonce [nonceSize]byte
	copy(nonce[:], body[:nonceSize])

	plain, ok := secretbox.Open(nil, body[nonceSize:], &nonce, params.key(password))
	if !ok {
		return nil, ErrWrongPassword
	}
	return plain, nil
}

// decodeHex decodes an optionally 0x-prefixed hex string.
func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
