package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dgnsrekt/storyreel/internal/config"
	"github.com/dgnsrekt/storyreel/internal/logging"
)

const usage = `usage: storyreel <command> [flags]

commands:
  render   render a narrated video locally in real time
  remote   render a narrated video on the encoder service
  wav      convert narration to a WAV file
  srt      write SRT captions timed to the narration
  play     preview narration with pause and resume

run "storyreel <command> -h" for command flags
`

// app carries the dependencies shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

func main() {
	if len(os.Args) < 2 {
		os.Stderr.WriteString(usage)
		os.Exit(2)
	}

	// Load configuration from .env and the environment
	cfg, err := config.Load(".env")
	if err != nil {
		// Use stderr before logger is initialized
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	// Cancel the running command on SIGINT/SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	}()

	a := &app{
		cfg:    cfg,
		logger: logger,
		stdin:  os.Stdin,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}

	if err := a.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		logger.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func (a *app) run(ctx context.Context, command string, args []string) error {
	switch command {
	case "render":
		return a.runRender(ctx, args)
	case "remote":
		return a.runRemote(ctx, args)
	case "wav":
		return a.runWAV(ctx, args)
	case "srt":
		return a.runSRT(ctx, args)
	case "play":
		return a.runPlay(ctx, args)
	case "help", "-h", "--help":
		io.WriteString(a.stdout, usage)
		return nil
	default:
		io.WriteString(a.stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *app) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}
