// Package main implements tgbotctl, the operator client for a running tgbot
// daemon.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/config"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/control"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/logger"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/paths"
	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/supervisor"
)

const usage = `Usage: tgbotctl [flags] <command>

Commands:
  status     show the running generation and its retry state
  restart    stop the current generation and start a new one
  stop       shut the daemon down
  logs       print the last lines of the daemon log

Flags:
`

type options struct {
	dataDir    string
	configPath string
	socket     string
	lines      int
	jsonOut    bool
	timeout    time.Duration
	command    string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	flags := pflag.NewFlagSet("tgbotctl", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVar(&opts.dataDir, "data-dir", paths.Default().Root, "daemon data directory")
	flags.StringVarP(&opts.configPath, "config", "c", "", "daemon config file (default <data-dir>/config.toml)")
	flags.StringVar(&opts.socket, "socket", "", "control socket or pipe (default from config)")
	flags.IntVarP(&opts.lines, "lines", "n", 50, "number of log lines for logs")
	flags.BoolVar(&opts.jsonOut, "json", false, "print status as JSON")
	flags.DurationVar(&opts.timeout, "timeout", control.DefaultDialTimeout, "connect and request timeout")
	flags.Usage = func() {
		fmt.Fprint(stderr, usage, flags.FlagUsages())
	}

	if err := flags.Parse(args); err != nil {
		return options{}, err
	}
	switch flags.NArg() {
	case 0:
		flags.Usage()
		return options{}, errors.New("missing command")
	case 1:
		opts.command = flags.Arg(0)
	default:
		return options{}, fmt.Errorf("unexpected argument: %s", flags.Arg(1))
	}
	if opts.lines <= 0 {
		return options{}, fmt.Errorf("--lines must be positive, got %d", opts.lines)
	}
	if opts.configPath == "" {
		opts.configPath = paths.DataDir{Root: opts.dataDir}.Config()
	}
	return opts, nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "tgbotctl: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	dd := paths.DataDir{Root: opts.dataDir}

	switch opts.command {
	case "logs":
		out, err := logger.Tail(dd.Log(), opts.lines)
		if err != nil {
			return err
		}
		if out != "" {
			fmt.Fprintln(stdout, out)
		}
		return nil
	case string(control.CmdStatus), string(control.CmdRestart), string(control.CmdStop):
	default:
		return fmt.Errorf("unknown command %q", opts.command)
	}

	addr, err := controlAddress(opts, dd)
	if err != nil {
		return err
	}
	c, err := control.Dial(addr, opts.timeout)
	if err != nil {
		return err
	}
	defer c.Close()

	switch control.Command(opts.command) {
	case control.CmdStatus:
		st, pid, err := c.Status()
		if err != nil {
			return err
		}
		if opts.jsonOut {
			return printJSON(stdout, pid, st)
		}
		printStatus(stdout, pid, st, time.Now())
	case control.CmdRestart:
		if err := c.Restart(); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "restart requested")
	case control.CmdStop:
		if err := c.Stop(); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "stop requested")
	}
	return nil
}

// controlAddress returns --socket when given, otherwise the address the
// daemon's config selects.
func controlAddress(opts options, dd paths.DataDir) (string, error) {
	if opts.socket != "" {
		return opts.socket, nil
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return "", err
	}
	if !cfg.Control.Enabled {
		return "", errors.New("control socket is disabled in the daemon config")
	}
	return control.Address(cfg.Control.Socket, dd), nil
}

// ///////////////////////////////////////////////
// Output
// ///////////////////////////////////////////////

func printJSON(w io.Writer, pid int, st supervisor.Status) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		PID int `json:"pid"`
		supervisor.Status
	}{pid, st})
}

func printStatus(w io.Writer, pid int, st supervisor.Status, now time.Time) {
	fmt.Fprintf(w, "tgbot pid %d\n", pid)
	if !st.Running {
		fmt.Fprintf(w, "  state:           between generations\n")
		fmt.Fprintf(w, "  restarts:        %d\n", st.Restarts)
		return
	}
	fmt.Fprintf(w, "  generation:      %d (%s)\n", st.Generation.Number, st.Generation.ID)
	fmt.Fprintf(w, "  started:         %s (up %s)\n", st.StartedAt.Format(time.RFC3339), now.Sub(st.StartedAt).Truncate(time.Second))
	fmt.Fprintf(w, "  signals:         %s\n", st.Signals)
	fmt.Fprintf(w, "  worker:          %s\n", st.WorkerState)
	fmt.Fprintf(w, "  failed attempts: %d\n", st.FailedAttempts)
	fmt.Fprintf(w, "  restarts:        %d\n", st.Restarts)
}
