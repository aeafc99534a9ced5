package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

var errEmpty = errors.New("keystore passphrase cannot be empty")

// Source resolves a keystore passphrase from an environment variable or an
// interactive prompt. The first result is cached.
type Source struct {
	envVar  string
	confirm bool
	prompt  io.Writer

	lookupEnv  func(string) (string, bool)
	isTerminal func() bool
	readSecret func() ([]byte, error)

	once  sync.Once
	value string
	err   error
}

// NewSource checks envVar before prompting on stderr.
func NewSource(envVar string) *Source {
	fd := int(os.Stdin.Fd())
	return &Source{
		envVar:     strings.TrimSpace(envVar),
		prompt:     os.Stderr,
		lookupEnv:  os.LookupEnv,
		isTerminal: func() bool { return term.IsTerminal(fd) },
		readSecret: func() ([]byte, error) { return term.ReadPassword(fd) },
	}
}

// WithConfirmation makes interactive prompts ask twice, for new keystores.
func (s *Source) WithConfirmation() *Source {
	s.confirm = true
	return s
}

// Get returns the passphrase. Whitespace-only values are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := s.lookupEnv(s.envVar); ok {
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
	first, err := s.ask("Enter keystore passphrase: ")
	if err != nil {
		return "", err
	}
	if s.confirm {
		second, err := s.ask("Repeat keystore passphrase: ")
		if err != nil {
			return "", err
		}
		if first != second {
			return "", errors.New("keystore passphrases do not match")
		}
	}
	return first, nil
}

func (s *Source) ask(label string) (string, error) {
	fmt.Fprint(s.prompt, label)
	raw, err := s.readSecret()
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	value := string(raw)
	if strings.TrimSpace(value) == "" {
		return "", errEmpty
	}
	return value, nil
}
