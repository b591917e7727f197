// Package main implements the tgbot daemon: a Telegram long-poll bot that
// restarts itself in place when one of its watched files changes.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/pflag"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/bot"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/config"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/control"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/logger"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/paths"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/poller"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/supervisor"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/telegram"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/watcher"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags: -X main.version=$(VERSION).
//
// When ldflags are not set (bare go build), resolveVersion reads the VCS info
// that Go embeds automatically.
var version = "dev"

// resolveVersion returns the build version string. If [version] was set via
// ldflags it is returned as-is; otherwise the embedded VCS revision and dirty
// state are used to construct a "dev+<hash>" tag.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// Flags
// ///////////////////////////////////////////////

// httpRetries is the transport-level retry count for each Bot API request.
const httpRetries = 2

type options struct {
	dataDir     string
	configPath  string
	showVersion bool
}

// parseFlags parses the daemon's command line. pflag.ErrHelp is returned
// after usage has been printed for -h.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	flags := pflag.NewFlagSet(paths.BinaryName, pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&opts.dataDir, "data-dir", paths.Default().Root, "data directory for config, key file, PID file and logs")
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (default <data-dir>/config.toml)")
	flags.BoolVar(&opts.showVersion, "version", false, "print the version and exit")
	flags.Usage = func() {
		fmt.Fprintf(stderr, "Usage: %s [flags]\n\nRuns the Telegram bot, restarting it when a watched file changes.\n\nFlags:\n%s", paths.BinaryName, flags.FlagUsages())
	}

	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	if flags.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}
	if opts.configPath == "" {
		opts.configPath = paths.DataDir{Root: opts.dataDir}.Config()
	}
	return opts, nil
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", paths.BinaryName, err)
		os.Exit(1)
	}
}

func run(args []string) (err error) {
	opts, err := parseFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Println(paths.BinaryName, resolveVersion())
		return nil
	}

	dd := paths.DataDir{Root: opts.dataDir}
	if err := os.MkdirAll(dd.Root, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if alive, pid := checkStalePID(dd); alive {
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}

	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}

	var console io.Writer
	if cfg.Log.Console {
		console = os.Stderr
	}
	log, logCloser, err := logger.New(logger.Options{
		Path:       dd.Log(),
		Level:      logger.ParseLevel(cfg.Log.Level),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		Console:    console,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logCloser.Close()
	slog.SetDefault(log)
	defer func() {
		if err != nil {
			logger.Fail(log, "tgbot stopped with error", "error", err)
		}
	}()

	log.Info("tgbot starting", "version", resolveVersion(), "data_dir", dd.Root, "config", opts.configPath, "pid", os.Getpid())

	token := pidToken()
	pidFile, err := writePID(dd, token)
	if err != nil {
		return err
	}
	defer removePID(dd, token, pidFile)

	sup, err := newSupervisor(newLiveConfig(opts.configPath, cfg, log), dd, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Control.Enabled {
		addr := control.Address(cfg.Control.Socket, dd)
		srv, err := control.Listen(addr, sup, log.With("component", "control"))
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Serve(); err != nil {
				log.Error("control server stopped", "error", err)
			}
		}()
		defer srv.Close()
	}

	go handleSignals(ctx, signalChannel(), sup, cancel, log)

	if err := sup.Run(ctx); err != nil {
		return err
	}
	log.Info("tgbot stopped")
	return nil
}

// loadConfig loads the config at path, writing an annotated default file when
// none exists yet.
func loadConfig(path string) (*config.Config, error) {
	_, statErr := os.Stat(path)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if errors.Is(statErr, fs.ErrNotExist) {
		if err := cfg.Save(path); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to write default config: %v\n", err)
		}
	}
	return cfg, nil
}

// ///////////////////////////////////////////////
// Wiring
// ///////////////////////////////////////////////

// newSupervisor builds the supervisor described by the current config. Every
// generation reloads the config file before it starts.
func newSupervisor(live *liveConfig, dd paths.DataDir, log *slog.Logger) (*supervisor.Supervisor, error) {
	cfg := live.current()
	watchDir := dd.Resolve(cfg.Supervisor.WatchDir)
	if watchDir == "" {
		watchDir = dd.Root
	}
	set, err := watcher.NewSet(cfg.Supervisor.WatchFiles)
	if err != nil {
		return nil, err
	}

	return supervisor.New(supervisor.Config{
		WatchDir:       watchDir,
		WatchSet:       set,
		Watch:          watcher.Options{Mode: watcher.Mode(cfg.Supervisor.WatchMode)},
		Policy:         cfg.Policy(),
		PollTimeout:    cfg.LongPollTimeout(),
		AllowedUpdates: cfg.Telegram.AllowedUpdates,
		NewPoller:      pollerFactory(live, dd, log),
		Reload:         live.reload,
	},
		supervisor.WithLogger(log.With("component", "supervisor")),
		supervisor.WithJoinTimeout(cfg.JoinTimeout()),
		supervisor.WithEventHandler(func(e supervisor.Event) {
			logger.Trace(log, "supervisor event",
				"type", e.Type.String(),
				"generation", e.Generation.Number,
				"attempts", e.Attempts,
				"error", e.Err,
			)
		}),
	)
}

// pollerFactory returns a factory building one Bot API client per generation
// from the config live holds at that point. The token is read again each time
// so a rotated key file takes effect on the next restart.
func pollerFactory(live *liveConfig, dd paths.DataDir, log *slog.Logger) supervisor.PollerFactory {
	return func(gen supervisor.Generation) (poller.LongPoller, error) {
		cfg := live.current()
		token, err := config.LoadToken(dd.Resolve(cfg.Telegram.TokenFile), cfg.Telegram.BotName)
		if err != nil {
			return nil, err
		}
		glog := log.With("generation", gen.Number)
		client, err := telegram.New(telegram.Options{
			Token:          token,
			APIURL:         cfg.Telegram.APIURL,
			RequestTimeout: cfg.RequestTimeout(),
			SkipPending:    cfg.Telegram.SkipPending,
			RetryMax:       httpRetries,
			Logger:         glog.With("component", "telegram"),
		})
		if err != nil {
			return nil, err
		}
		client.Handle(bot.New(client, glog.With("component", "bot")))
		return client, nil
	}
}

// ///////////////////////////////////////////////
// Signals
// ///////////////////////////////////////////////

// restarter is the part of the supervisor signal handling drives.
type restarter interface {
	RequestRestart() bool
}

// handleSignals turns a reload signal into a restart of the current generation
// and any other signal into an operator interrupt.
func handleSignals(ctx context.Context, ch <-chan os.Signal, sup restarter, cancel context.CancelFunc, log *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			if isReload(sig) {
				log.Info("reload signal received", "signal", sig.String())
				if !sup.RequestRestart() {
					log.Warn("no active generation to restart")
				}
				continue
			}
			log.Info("shutdown signal received", "signal", sig.String())
			cancel()
			return
		}
	}
}
