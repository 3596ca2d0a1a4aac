package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrMismatch is returned when the confirmation prompt does not match.
var ErrMismatch = errors.New("passphrases do not match")

// Source resolves a keystore passphrase once, from an environment variable
// or an interactive prompt, and caches the result.
type Source struct {
	envVar  string
	confirm bool

	// terminal hooks, replaced in tests
	isTerminal func() bool
	read       func(prompt string) (string, error)

	once  sync.Once
	value string
	err   error
}

// NewSource returns a Source that checks envVar before prompting on stderr.
func NewSource(envVar string) *Source {
	return &Source{
		envVar:     strings.TrimSpace(envVar),
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		read:       readTerminal,
	}
}

// WithConfirm makes interactive resolution ask twice. Used when a new
// keystore is created.
func (s *Source) WithConfirm() *Source {
	s.confirm = true
	return s
}

// Get returns the passphrase, resolving it on the first call. Blank
// passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	if !s.isTerminal() {
		if s.envVar != "" {
			return "", fmt.Errorf("keystore passphrase required; set %s or run interactively", s.envVar)
		}
		return "", errors.New("keystore passphrase required and no terminal available")
	}

	value, err := s.read("Enter keystore passphrase: ")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(value) == "" {
		return "", errors.New("keystore passphrase cannot be empty")
	}
	if s.confirm {
		again, err := s.read("Repeat keystore passphrase: ")
		if err != nil {
			return "", err
		}
		if again != value {
			return "", ErrMismatch
		}
	}
	return value, nil
}

func readTerminal(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(raw), nil
}
