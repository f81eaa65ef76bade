// Package config loads motifchat settings from defaults, an optional TOML
// file, a .env file and environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Provider names.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config is the complete runtime configuration.
type Config struct {
	Provider      string  `toml:"provider"`
	Model         string  `toml:"model"`
	Temperature   float64 `toml:"temperature"`
	MaxTokens     int     `toml:"max_tokens"`
	HistoryLimit  int     `toml:"history_limit"`
	BaseURL       string  `toml:"base_url"`
	CancelOnClear bool    `toml:"cancel_on_clear"`
	MaxReplyBytes int     `toml:"max_reply_bytes"`

	// Markdown renders finished replies in the terminal UI.
	Markdown bool `toml:"markdown"`
	// DesktopNotifications mirrors error alerts to the desktop.
	DesktopNotifications bool `toml:"desktop_notifications"`
	// Listen is the address for the serve command.
	Listen string `toml:"listen"`

	// APIKey is only read from the environment.
	APIKey string `toml:"-"`

	Names  NamesConfig  `toml:"names"`
	Bridge BridgeConfig `toml:"bridge"`
	Log    LogConfig    `toml:"log"`
}

// NamesConfig holds the transcript prefixes.
type NamesConfig struct {
	User      string `toml:"user"`
	Assistant string `toml:"assistant"`
}

// BridgeConfig sizes the worker to UI channel.
type BridgeConfig struct {
	Capacity    int      `toml:"capacity"`
	SendTimeout Duration `toml:"send_timeout"`
}

// LogConfig controls the log file.
type LogConfig struct {
	File  string `toml:"file"`
	Level string `toml:"level"`
}

// Duration decodes TOML strings like "50ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Provider:      ProviderGemini,
		Model:         "gemini-2.0-flash",
		Temperature:   0.7,
		MaxTokens:     1024,
		HistoryLimit:  50,
		MaxReplyBytes: 4 << 20,
		Markdown:      true,
		Listen:        "127.0.0.1:8080",
		Names:         NamesConfig{User: "User", Assistant: "Assistant"},
		Bridge:        BridgeConfig{Capacity: 256, SendTimeout: Duration{50 * time.Millisecond}},
		Log:           LogConfig{File: "motifchat.log", Level: "INFO"},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/motifchat/config.toml, falling back
// to the user config dir.
func DefaultPath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		var err error
		if dir, err = os.UserConfigDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(dir, "motifchat", "config.toml")
}

// Load builds the configuration. An explicit path must exist; the default
// path is optional. A missing .env file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("loading .env: %w", err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return cfg, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes TOML over the defaults, without touching the environment.
func Parse(data string) (Config, error) {
	cfg := Default()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("MOTIFCHAT_PROVIDER"); ok && v != "" {
		c.Provider = strings.ToLower(v)
	}
	if v, ok := lookup("MOTIFCHAT_MODEL"); ok && v != "" {
		c.Model = v
	}
	if v, ok := lookup("MOTIFCHAT_BASE_URL"); ok && v != "" {
		c.BaseURL = v
	}
	if v, ok := lookup("MOTIFCHAT_HISTORY_LIMIT"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MOTIFCHAT_HISTORY_LIMIT: %w", err)
		}
		c.HistoryLimit = n
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}

	keyVar := "GEMINI_API_KEY"
	if c.Provider == ProviderOpenAI {
		keyVar = "OPENAI_API_KEY"
	}
	if v, ok := lookup(keyVar); ok {
		c.APIKey = v
	}
	return nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	switch c.Provider {
	case ProviderGemini:
		if c.APIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is not set"))
		}
	case ProviderOpenAI:
		if c.APIKey == "" && c.BaseURL == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is not set"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown provider %q", c.Provider))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("model is empty"))
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature %v out of range [0, 2]", c.Temperature))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max_tokens %d is negative", c.MaxTokens))
	}
	if c.Bridge.Capacity < 0 {
		errs = append(errs, fmt.Errorf("bridge.capacity %d is negative", c.Bridge.Capacity))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
