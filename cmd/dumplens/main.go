package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/PatchLens/go-dump-lens/lens"
	"github.com/PatchLens/go-dump-lens/lens/cmd"
)

func main() {
	log.SetFlags(log.LstdFlags)

	config, err := cmd.ParseFlags(nil) // No custom flags for standard dumplens
	if err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := lens.RunCollector(ctx, config, os.Stdout, newLogger()); err != nil {
		log.Fatalf("%s%v", lens.ErrorLogPrefix, err)
	}
}

// newLogger writes collector diagnostics to stderr, keeping stdout for the received dumps.
func newLogger() zerolog.Logger {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}
		return zerolog.New(out).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
