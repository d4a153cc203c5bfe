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

	"github.com/alejandrodnm/stakebook/config"
	"github.com/alejandrodnm/stakebook/internal/adapters/notify"
	"github.com/alejandrodnm/stakebook/internal/adapters/storage"
	"github.com/alejandrodnm/stakebook/internal/application/engine"
	"github.com/alejandrodnm/stakebook/internal/domain"
	"github.com/alejandrodnm/stakebook/internal/ports"
	"gopkg.in/natefinch/lumberjack.v2"
)

// app agrupa lo que necesita cada subcomando.
type app struct {
	engine           *engine.Engine
	console          ports.Notifier
	reconcileWorkers int
}

type command struct {
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"create":     {"create -name NAME -bankroll AMOUNT [-kelly F] [-currency CUR] [-desc TEXT]", runCreate},
	"list":       {"list", runList},
	"deposit":    {"deposit -strategy ID -amount AMOUNT [-desc TEXT]", runOperation(domain.OpDeposit)},
	"withdraw":   {"withdraw -strategy ID -amount AMOUNT [-desc TEXT]", runOperation(domain.OpWithdrawal)},
	"adjust":     {"adjust -strategy ID -amount SIGNED_AMOUNT [-desc TEXT]", runOperation(domain.OpAdjustment)},
	"add":        {"add -strategy ID -fixture ID -odd-id ID -market ID -bookmaker ID -label L -odd 2.5 [-prob 60]", runAddSelection},
	"selections": {"selections -strategy ID", runListSelections},
	"settle":     {"settle -selection ID -result TEXT -won=true|false", runSettle},
	"stats":      {"stats -strategy ID", runStats},
	"reconcile":  {"reconcile -strategy ID | -all", runReconcile},
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	dsn := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", flag.Arg(0))
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}
	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *dsn != "" {
		cfg.Storage.DSN = *dsn
	}
	closeLog := setupLogger(cfg.Log)
	defer closeLog()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(exitCode(err))
	}
	defer store.Close()

	a := &app{
		engine: engine.New(store, engine.Config{
			DefaultCurrency:        cfg.Engine.DefaultCurrency,
			DefaultFractionalKelly: cfg.Engine.DefaultFractionalKelly,
		}),
		console:          notify.NewConsole(),
		reconcileWorkers: cfg.Engine.ReconcileWorkers,
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Debug("running command", "command", flag.Arg(0), "dsn", cfg.Storage.DSN)
	if err := cmd.run(ctx, a, flag.Args()[1:]); err != nil {
		slog.Error("command failed", "command", flag.Arg(0), "kind", domain.ErrorKind(err), "err", err)
		store.Close()
		closeLog()
		os.Exit(exitCode(err))
	}
}

// exitCode mapea el tipo de error a un código de salida estable.
func exitCode(err error) int {
	var usageErr *usageError
	if errors.As(err, &usageErr) {
		return 2
	}
	switch domain.ErrorKind(err) {
	case "validation":
		return 3
	case "not_found":
		return 4
	case "insufficient_bankroll":
		return 5
	case "already_settled":
		return 6
	case "concurrency_conflict":
		return 7
	case "storage":
		return 8
	default:
		return 1
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: bankroll [-config path] [-db path] [-verbose] [-format text|json] <command> [flags]\n\ncommands:\n")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
}

// setupLogger configura slog sobre stderr y, si hay log.file, sobre un archivo rotado.
// Devuelve la función que cierra el archivo.
func setupLogger(cfg config.LogConfig) func() {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stderr
	closeFn := func() {}
	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stderr, rotator)
		closeFn = func() { _ = rotator.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	slog.SetDefault(slog.New(handler))
	return closeFn
}
