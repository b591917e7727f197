// Package main implements genconfig, which prints the annotated default
// config.toml that tgbot writes on first run. Use it to review the defaults or
// to seed a config for a data directory the daemon has not started in yet.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/JaxTesla/Telegram-bot-TEMPLATE/internal/config"
)

// header is written above the encoded defaults.
const header = `# ///////////////////////////////////////////////
# tgbot Configuration
# ///////////////////////////////////////////////

`

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "genconfig: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var outPath string
	var force bool
	flags := pflag.NewFlagSet("genconfig", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.StringVarP(&outPath, "output", "o", "", "write to this file instead of stdout")
	flags.BoolVarP(&force, "force", "f", false, "overwrite an existing output file")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", flags.Arg(0))
	}

	body, err := config.DefaultConfig().Annotated()
	if err != nil {
		return err
	}
	data := append([]byte(header), body...)

	if outPath == "" {
		_, err := stdout.Write(data)
		return err
	}
	if !force {
		if _, err := os.Stat(outPath); err == nil {
			return fmt.Errorf("%s exists (use --force to overwrite)", outPath)
		}
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}
	fmt.Fprintf(stdout, "wrote %s\n", outPath)
	return nil
}
