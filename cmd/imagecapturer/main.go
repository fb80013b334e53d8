package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jivesoftware/ImageCapturer/internal/app"
	"github.com/jivesoftware/ImageCapturer/internal/common"
)

// printError prints an error message to stderr, falling back to stdout if stderr fails
func printError(format string, args ...interface{}) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		fmt.Printf(format, args...)
	}
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, rt *app.Runtime, args []string) error
}

var commands = []command{
	{"capture", "begin a capture, run the chooser and wait for the image", runCapture},
	{"resume", "deliver the chooser result for a persisted request", runResume},
	{"cancel", "abandon the pending request and remove its scratch file", runCancel},
	{"status", "print the persisted session", runStatus},
	{"state", "print or import the persisted session as JSON", runState},
	{"sweep", "remove scratch files no request refers to", runSweep},
	{"export", "write the outcome journal to an XLSX file", runExport},
}

func usage() {
	printError("usage: imagecapturer <command> [flags]\n\ncommands:\n")
	for _, c := range commands {
		printError("  %-8s %s\n", c.name, c.usage)
	}
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var cmd *command
	for i := range commands {
		if commands[i].name == os.Args[1] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		usage()
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	logger, err := common.NewLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.Start(ctx, cfg, logger)
	if err != nil {
		printError("Error: %v\n", err)
		os.Exit(1)
	}

	err = cmd.run(ctx, rt, os.Args[2:])
	rt.Stop(context.Background())
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		printError("Error: %v\n", err)
		os.Exit(1)
	}
}
