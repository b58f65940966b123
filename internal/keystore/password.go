package keystore

import (
	"fmt"
	"os"
	"strings"
	"unicode"

	"golang.org/x/term"
)

// PasswordSource supplies the coldkey password of a wallet.
type PasswordSource interface {
	Password(wallet string) ([]byte, error)
}

// PasswordFunc adapts a function to PasswordSource.
type PasswordFunc func(wallet string) ([]byte, error)

func (f PasswordFunc) Password(wallet string) ([]byte, error) { return f(wallet) }

// EnvVar returns the environment variable holding the password of wallet,
// e.g. BT_COLD_PW_MY_HODL for "my-hodl".
func EnvVar(wallet string) string {
	name := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, wallet)
	return "BT_COLD_PW_" + name
}

// EnvOrPrompt reads the password from EnvVar(wallet), falling back to an
// interactive prompt on the terminal.
type EnvOrPrompt struct{}

func (EnvOrPrompt) Password(wallet string) ([]byte, error) {
	if pw, ok := os.LookupEnv(EnvVar(wallet)); ok {
		return []byte(pw), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("no password for wallet %s: set %s or run interactively", wallet, EnvVar(wallet))
	}

	fmt.Fprintf(os.Stderr, "Enter password to unlock coldkey of wallet %s: ", wallet)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return pw, nil
}
