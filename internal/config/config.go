// Package config provides configuration loading and defaults for the bot daemon.
//
// Configuration is loaded from a TOML file in the data directory. The package
// covers the Telegram connection, the supervisor's watch set and retry policy,
// the local control socket, and logging, with defaults taken from the
// original bot deployment.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/backoff"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/paths"
)

// TokenEnv overrides the token from the key file when set.
const TokenEnv = "TGBOT_TOKEN"

// DefaultBotName is the key-file entry read when telegram.bot_name is unset.
const DefaultBotName = "SendingTradeSignal_Bot"

// DefaultAllowedUpdates lists every update kind the bot subscribes to.
var DefaultAllowedUpdates = []string{
	"message", "edited_message", "channel_post", "edited_channel_post",
	"inline_query", "chosen_inline_result", "callback_query",
	"shipping_query", "pre_checkout_query", "poll", "poll_answer",
	"my_chat_member", "chat_member", "chat_join_request",
}

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Telegram holds Bot API connection settings.
	Telegram TelegramConfig `toml:"telegram"`
	// Supervisor holds the watch set and retry policy.
	Supervisor SupervisorConfig `toml:"supervisor"`
	// Control holds the local control socket settings.
	Control ControlConfig `toml:"control"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// TelegramConfig holds Bot API connection settings.
type TelegramConfig struct {
	// TokenFile is the JSON key file holding bot tokens, relative to the data directory.
	TokenFile string `toml:"token_file"`
	// BotName selects the entry under tgm_bots in the key file.
	BotName string `toml:"bot_name"`
	// APIURL is the Bot API base URL.
	APIURL string `toml:"api_url"`
	// PollTimeoutSeconds is the client-side allowance added on top of the long-poll hold.
	PollTimeoutSeconds int `toml:"poll_timeout_seconds"`
	// LongPollTimeoutSeconds is how long the server holds a getUpdates request.
	LongPollTimeoutSeconds int `toml:"long_poll_timeout_seconds"`
	// AllowedUpdates lists the update kinds requested from the server.
	AllowedUpdates []string `toml:"allowed_updates"`
	// SkipPending drops updates queued before the first poll of a generation.
	SkipPending bool `toml:"skip_pending"`
}

// SupervisorConfig holds the watch set and retry policy.
type SupervisorConfig struct {
	// WatchDir is the directory observed for changes. Empty means the data directory.
	WatchDir string `toml:"watch_dir"`
	// WatchFiles lists base names or glob patterns whose modification restarts the bot.
	WatchFiles []string `toml:"watch_files"`
	// WatchMode is "fsnotify" or "poll".
	WatchMode string `toml:"watch_mode"`
	// MaxAttempts is the number of failed polls before a generation gives up.
	MaxAttempts int `toml:"max_attempts"`
	// BaseDelaySeconds is the first retry delay.
	BaseDelaySeconds int `toml:"base_delay_seconds"`
	// MaxDelaySeconds caps the retry delay.
	MaxDelaySeconds int `toml:"max_delay_seconds"`
	// JoinTimeoutSeconds bounds how long a generation waits for its goroutines.
	JoinTimeoutSeconds int `toml:"join_timeout_seconds"`
}

// ControlConfig holds the local control socket settings.
type ControlConfig struct {
	// Enabled starts the control listener.
	Enabled bool `toml:"enabled"`
	// Socket overrides the socket path (unix) or pipe name (windows).
	Socket string `toml:"socket,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
	// MaxBackups is the number of rotated log files kept.
	MaxBackups int `toml:"max_backups"`
	// Console mirrors log output to stderr.
	Console bool `toml:"console"`
}

// ///////////////////////////////////////////////
// Defaults
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with the deployment defaults.
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			TokenFile:              paths.KeyFileRel,
			BotName:                DefaultBotName,
			APIURL:                 "https://api.telegram.org",
			PollTimeoutSeconds:     5,
			LongPollTimeoutSeconds: 5,
			AllowedUpdates:         slices.Clone(DefaultAllowedUpdates),
			SkipPending:            false,
		},
		Supervisor: SupervisorConfig{
			WatchFiles:         []string{paths.ConfigFile},
			WatchMode:          "fsnotify",
			MaxAttempts:        5,
			BaseDelaySeconds:   5,
			MaxDelaySeconds:    60,
			JoinTimeoutSeconds: 30,
		},
		Control: ControlConfig{
			Enabled: true,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  50,
			MaxBackups: 5,
			Console:    true,
		},
	}
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file at path. A missing file yields
// DefaultConfig. Keys the schema does not know are logged and ignored.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown config key ignored", "key", key.String(), "file", path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to disk as annotated TOML, replacing path atomically.
func (c *Config) Save(path string) error {
	data, err := c.Annotated()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return writeFileAtomic(path, data, 0o644)
}

// Annotated encodes c as TOML with the [Docs] comment above each documented key.
func (c *Config) Annotated() ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}

	var out bytes.Buffer
	section := ""
	for _, line := range strings.SplitAfter(buf.String(), "\n") {
		trimmed := strings.TrimSpace(line)
		var key string
		switch {
		case strings.HasPrefix(trimmed, "["):
			section = strings.Trim(trimmed, "[]")
			key = section
		case strings.Contains(trimmed, " = "):
			key = section + "." + strings.TrimSpace(strings.SplitN(trimmed, "=", 2)[0])
		}
		if doc, ok := Docs[key]; ok && doc != "" {
			indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
			for _, dl := range strings.Split(doc, "\n") {
				out.WriteString(indent + "# " + dl + "\n")
			}
		}
		out.WriteString(line)
	}
	return out.Bytes(), nil
}

// writeFileAtomic writes data to a temp file beside path and renames it into
// place, so readers never observe a partial config.
func writeFileAtomic(path string, data []byte, perm os.FileMode) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			os.Remove(tmp)
		}
	}()

	if _, err = f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmp, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log.level values.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.Telegram.BotName) == "" {
		errs = append(errs, errors.New("telegram.bot_name must not be empty"))
	}
	if !strings.HasPrefix(c.Telegram.APIURL, "http://") && !strings.HasPrefix(c.Telegram.APIURL, "https://") {
		errs = append(errs, fmt.Errorf("invalid telegram.api_url %q: must be an http(s) URL", c.Telegram.APIURL))
	}
	if c.Telegram.PollTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("telegram.poll_timeout_seconds must be > 0, got %d", c.Telegram.PollTimeoutSeconds))
	}
	if c.Telegram.LongPollTimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("telegram.long_poll_timeout_seconds must be >= 0, got %d", c.Telegram.LongPollTimeoutSeconds))
	}

	if len(c.Supervisor.WatchFiles) == 0 {
		errs = append(errs, errors.New("supervisor.watch_files must not be empty"))
	}
	for _, f := range c.Supervisor.WatchFiles {
		if strings.TrimSpace(f) == "" {
			errs = append(errs, errors.New("supervisor.watch_files contains an empty entry"))
			continue
		}
		if !doublestar.ValidatePattern(filepath.Base(f)) {
			errs = append(errs, fmt.Errorf("invalid supervisor.watch_files pattern %q", f))
		}
	}
	switch c.Supervisor.WatchMode {
	case "fsnotify", "poll":
	default:
		errs = append(errs, fmt.Errorf("invalid supervisor.watch_mode %q: must be fsnotify or poll", c.Supervisor.WatchMode))
	}
	if err := c.Policy().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("supervisor retry policy: %w", err))
	}
	if c.Supervisor.JoinTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("supervisor.join_timeout_seconds must be > 0, got %d", c.Supervisor.JoinTimeoutSeconds))
	}

	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level))
	}
	if c.Log.MaxSizeMB <= 0 {
		errs = append(errs, fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB))
	}
	if c.Log.MaxBackups < 0 {
		errs = append(errs, fmt.Errorf("log.max_backups must be >= 0, got %d", c.Log.MaxBackups))
	}

	return errors.Join(errs...)
}

// ///////////////////////////////////////////////
// Derived Values
// ///////////////////////////////////////////////

// Policy returns the retry policy described by the supervisor section.
func (c *Config) Policy() backoff.Policy {
	return backoff.Policy{
		Base:        time.Duration(c.Supervisor.BaseDelaySeconds) * time.Second,
		Max:         time.Duration(c.Supervisor.MaxDelaySeconds) * time.Second,
		MaxAttempts: c.Supervisor.MaxAttempts,
	}
}

// LongPollTimeout returns the server-side getUpdates hold.
func (c *Config) LongPollTimeout() time.Duration {
	return time.Duration(c.Telegram.LongPollTimeoutSeconds) * time.Second
}

// RequestTimeout returns the client-side allowance for one getUpdates call
// beyond the long-poll hold.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Telegram.PollTimeoutSeconds) * time.Second
}

// JoinTimeout returns the bound on joining a generation's goroutines.
func (c *Config) JoinTimeout() time.Duration {
	return time.Duration(c.Supervisor.JoinTimeoutSeconds) * time.Second
}

// ///////////////////////////////////////////////
// Token
// ///////////////////////////////////////////////

// keyFile mirrors the layout of the bot key file:
//
//	{"tgm_bots": {"<bot name>": {"tgm_bot_token": "123:ABC"}}}
type keyFile struct {
	Bots map[string]struct {
		Token string `json:"tgm_bot_token"`
	} `json:"tgm_bots"`
}

// LoadToken returns the bot token. The TGBOT_TOKEN environment variable takes
// precedence; otherwise the token for botName is read from the key file at path.
func LoadToken(path, botName string) (string, error) {
	if tok := strings.TrimSpace(os.Getenv(TokenEnv)); tok != "" {
		return tok, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("parse key file %s: %w", path, err)
	}
	bot, ok := kf.Bots[botName]
	if !ok {
		return "", fmt.Errorf("key file %s has no entry for bot %q", path, botName)
	}
	tok := strings.TrimSpace(bot.Token)
	if tok == "" {
		return "", fmt.Errorf("key file %s: empty token for bot %q", path, botName)
	}
	return tok, nil
}
