package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	API     APIConfig
	Server  ServerConfig
	Storage StorageConfig
	Log     LogConfig
	UI      UIConfig
}

// APIConfig points the client at the feedback API.
type APIConfig struct {
	BaseURL string
	Timeout string
}

// ServerConfig configures `feedbackdesk serve`.
type ServerConfig struct {
	Port          int
	AdminUsername string
	AdminPassword string
}

type StorageConfig struct {
	DataDir string
}

type LogConfig struct {
	Level string
}

type UIConfig struct {
	Color bool
}

const (
	keychainService      = "feedbackdesk"
	adminPasswordAccount = "admin_password"
)

func defaults() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080/api",
			Timeout: "30s",
		},
		Server: ServerConfig{
			Port:          8080,
			AdminUsername: "admin",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Log: LogConfig{
			Level: "info",
		},
		UI: UIConfig{
			Color: true,
		},
	}
}

// Load reads configuration from the platform-native backend, a .env file in
// the working directory, environment variables, and the platform secret store.
//
// On macOS the backend is UserDefaults (domain: com.feedbackdesk.app) and
// secrets fall back to macOS Keychain.
// On Linux the backend is a JSON file at $XDG_CONFIG_HOME/feedbackdesk/config.json
// and secrets fall back to $XDG_DATA_HOME/feedbackdesk/secrets.json.
//
// Environment variables (FEEDBACKDESK_*) override backend values on all platforms.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "[WARN] could not read .env file: %v\n", err)
	}
	return loadWith(newPlatformBackend(), keychainReader{})
}

// keychain abstracts Keychain access for testing.
type keychain interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, kc keychain) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	applySecrets(&cfg, kc)

	if _, err := time.ParseDuration(cfg.API.Timeout); err != nil {
		return Config{}, fmt.Errorf("invalid api.timeout %q: %w", cfg.API.Timeout, err)
	}

	return cfg, nil
}

// RequireAdminPassword returns an error explaining where to put the admin
// password when none was configured.
func (c Config) RequireAdminPassword() error {
	if c.Server.AdminPassword != "" {
		return nil
	}
	msg := "missing required config: admin password. " +
		"Set it via environment variable FEEDBACKDESK_ADMIN_PASSWORD" +
		secretHint()
	return fmt.Errorf("%s", msg)
}

// APITimeout returns the parsed client timeout.
func (c Config) APITimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// keychainReader reads from the platform secret store.
type keychainReader struct{}

func (keychainReader) Get(service, account string) (string, error) {
	out, err := keychainExec(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
