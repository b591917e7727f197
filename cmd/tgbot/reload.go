package main

import (
	"log/slog"
	"sync"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/config"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/supervisor"
)

// liveConfig re-reads the config file at the start of every generation. A
// file that fails to load or validate is logged and the last good config
// stays in effect.
//
// Only the telegram section and the retry policy take effect this way. Watch
// settings, the join timeout, control and logging are fixed at startup.
type liveConfig struct {
	path string
	log  *slog.Logger

	mu  sync.Mutex
	cur *config.Config
}

func newLiveConfig(path string, initial *config.Config, log *slog.Logger) *liveConfig {
	return &liveConfig{path: path, log: log, cur: initial}
}

// reload loads the config file for gen and returns the worker tuning it
// describes.
func (c *liveConfig) reload(gen supervisor.Generation) (supervisor.Tuning, error) {
	cfg, err := config.Load(c.path)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.log.Warn("config reload failed, keeping previous settings",
			"generation", gen.Number, "config", c.path, "error", err)
	} else {
		c.cur = cfg
	}
	return tuningOf(c.cur), nil
}

// current returns the config loaded by the latest reload.
func (c *liveConfig) current() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func tuningOf(cfg *config.Config) supervisor.Tuning {
	return supervisor.Tuning{
		Policy:         cfg.Policy(),
		PollTimeout:    cfg.LongPollTimeout(),
		AllowedUpdates: cfg.Telegram.AllowedUpdates,
	}
}
