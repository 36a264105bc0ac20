//go:build darwin

package config

import (
	"errors"
	"fmt"
	"os/exec"
)

// exit status of `security` when no matching item exists
const errSecItemNotFound = 44

func keychainExec(service, account string) ([]byte, error) {
	out, err := exec.Command("security", "find-generic-password", "-s", service, "-a", account, "-w").Output()
	if err == nil {
		return out, nil
	}
	spec := secretSpec(account)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == errSecItemNotFound {
		return nil, fmt.Errorf("no %s in Keychain (service %s, account %s); store one with `feedbackdesk config set-secret %s`",
			spec.label, service, account, spec.key)
	}
	return nil, fmt.Errorf("reading %s from Keychain: %w", spec.label, err)
}

func keychainSet(service, account, value string) error {
	// -U updates an existing item in place.
	cmd := exec.Command("security", "add-generic-password", "-U", "-s", service, "-a", account, "-w", value)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("storing %s in Keychain: %w: %s", secretSpec(account).label, err, out)
	}
	return nil
}
