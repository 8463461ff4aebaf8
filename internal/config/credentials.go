package config

import (
	"fmt"
	"sync"
)

// PassphraseEnv names the environment variable holding the sealing passphrase.
const PassphraseEnv = "NIGHTFALL_PASSPHRASE"

// Password returns the plain password, opening it if sealed.
func (c CredentialsConfig) Password(passphrase string) (string, error) {
	if IsSealed(c.Pass) && passphrase == "" {
		return "", fmt.Errorf("password is sealed but %s is not set", PassphraseEnv)
	}
	return Open(c.Pass, passphrase)
}

// FileCredentialStore writes credentials through to the config file.
// With a passphrase the password is stored sealed.
type FileCredentialStore struct {
	mu         sync.Mutex
	path       string
	passphrase string
}

func NewFileCredentialStore(path, passphrase string) *FileCredentialStore {
	return &FileCredentialStore{path: path, passphrase: passphrase}
}

// SaveCredentials re-reads the file so edits made while the client runs
// are kept, then replaces the [credentials] section.
func (s *FileCredentialStore) SaveCredentials(user, pass string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	stored := pass
	if s.passphrase != "" {
		if stored, err = Seal(pass, s.passphrase); err != nil {
			return fmt.Errorf("seal password: %w", err)
		}
	}
	cfg.Credentials = CredentialsConfig{User: user, Pass: stored}
	return Save(s.path, cfg)
}
