//go:build !darwin

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// secretsFile stands in for the macOS Keychain. It holds
// {"<service>": {"<account>": "<value>"}} with mode 0600.
type secretsFile struct {
	path string
}

func defaultSecretsFile() secretsFile {
	return secretsFile{path: filepath.Join(defaultDataDir(), "secrets.json")}
}

func (f secretsFile) load() (map[string]map[string]string, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets file %s: %w", f.path, err)
	}
	secrets := map[string]map[string]string{}
	if err := json.Unmarshal(data, &secrets); err != nil {
		return nil, fmt.Errorf("parsing secrets file %s: %w", f.path, err)
	}
	return secrets, nil
}

func (f secretsFile) get(service, account string) (string, error) {
	secrets, err := f.load()
	if err != nil {
		return "", err
	}
	val, ok := secrets[service][account]
	if !ok || val == "" {
		spec := secretSpec(account)
		return "", fmt.Errorf("no %s in %s; store one with `feedbackdesk config set-secret %s`",
			spec.label, f.path, spec.key)
	}
	return val, nil
}

func (f secretsFile) set(service, account, value string) error {
	secrets, err := f.load()
	if err != nil {
		return err
	}
	if secrets[service] == nil {
		secrets[service] = map[string]string{}
	}
	secrets[service][account] = value

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("creating secrets dir: %w", err)
	}
	out, err := json.MarshalIndent(secrets, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, out, 0o600)
}

func keychainExec(service, account string) ([]byte, error) {
	val, err := defaultSecretsFile().get(service, account)
	if err != nil {
		return nil, err
	}
	return []byte(val), nil
}

func keychainSet(service, account, value string) error {
	return defaultSecretsFile().set(service, account, value)
}
