//go:build !darwin

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSecretsFileRoundTrip(t *testing.T) {
	f := secretsFile{path: filepath.Join(t.TempDir(), "nested", "secrets.json")}

	_, err := f.get(keychainService, adminPasswordAccount)
	if err == nil {
		t.Fatal("expected error for missing secrets file")
	}
	for _, want := range []string{"admin password", "config set-secret server.admin_password", f.path} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}

	if err := f.set(keychainService, adminPasswordAccount, "s3cret"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := f.get(keychainService, adminPasswordAccount)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "s3cret" {
		t.Errorf("got %q, want s3cret", got)
	}

	info, err := os.Stat(f.path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestSecretsFileMalformed(t *testing.T) {
	f := secretsFile{path: filepath.Join(t.TempDir(), "secrets.json")}
	if err := os.WriteFile(f.path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := f.get(keychainService, adminPasswordAccount); err == nil || !strings.Contains(err.Error(), "parsing secrets file") {
		t.Errorf("expected parse error, got %v", err)
	}
	if err := f.set(keychainService, adminPasswordAccount, "x"); err == nil {
		t.Error("set should not overwrite a malformed secrets file")
	}
}
