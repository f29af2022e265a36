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
	"sort"
	"syscall"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const usageHeader = `Pronostico estimates next-day weather probabilities from a daily log.

Usage:
  pronostico [-config path] <command> [flags]

Commands:
`

// app carries what every subcommand needs.
type app struct {
	config *Config
	logger *slog.Logger
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	summary string
	run     func(a *app, ctx context.Context, args []string) error
}

var commands = map[string]command{
	"generate": {"write a synthetic daily log", (*app).cmdGenerate},
	"estimate": {"print the transition matrix of a log", (*app).cmdEstimate},
	"query":    {"print the matrix and answer next-day queries interactively", (*app).cmdQuery},
	"train":    {"store a log in the database under a model name", (*app).cmdTrain},
	"stats":    {"print database statistics", (*app).cmdStats},
	"simulate": {"walk the chain from a starting state", (*app).cmdSimulate},
	"serve":    {"run the HTTP API", (*app).cmdServe},
	"version":  {"print build information", (*app).cmdVersion},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run parses the global flags, loads the configuration and dispatches to a
// subcommand. It returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("pronostico", flag.ContinueOnError)
	global.SetOutput(stderr)
	configPath := global.String("config", "./config.json", "path to the JSON configuration file")
	global.Usage = func() { printUsage(stderr, global) }
	if err := global.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return 2
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", rest[0])
		global.Usage()
		return 2
	}

	config, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "❌  Error: failed to load configuration: %v\n", err)
		return 1
	}

	a := &app{
		config: config,
		logger: newLogger(stderr, config.Server.LogLevel),
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
	}
	if err = cmd.run(a, ctx, rest[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		if errors.Is(err, errUsage) {
			return 2
		}
		a.logger.Debug("Command failed", "command", rest[0], "error", err)
		fmt.Fprintf(stderr, "❌  Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer, global *flag.FlagSet) {
	fmt.Fprint(w, usageHeader)
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-9s %s\n", name, commands[name].summary)
	}
	fmt.Fprintln(w, "\nGlobal flags:")
	global.PrintDefaults()
}
