// Command imapconform runs the UIDPLUS and $MDNSent conformance scenarios
// against an IMAP server and prints a report.
//
// Usage:
//
//	imapconform -config conform.toml [-run append-uid,copy-uid] [-parallel 4] [-v] [-dump]
//
// The exit status is 0 when every scenario passed, 1 when any failed and 2
// when the configuration could not be used.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mattn/go-isatty"

	imap "github.com/BrianLeishman/go-imap-conform"
	"github.com/BrianLeishman/go-imap-conform/conformance"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "conform.toml", "Path to TOML configuration file")
	runList := flag.String("run", "", "Comma separated scenario names (default: all)")
	verbose := flag.Bool("v", false, "Log IMAP wire traffic")
	parallel := flag.Int("parallel", 0, "Scenarios run at once (overrides config)")
	dump := flag.Bool("dump", false, "Dump expected and observed values of violations in full")
	noColor := flag.Bool("no-color", false, "Disable coloured output")
	list := flag.Bool("list", false, "List scenarios and exit")
	flag.Parse()

	if *list {
		for _, s := range conformance.Scenarios() {
			fmt.Printf("%-24s %s\n", s.Name, s.Description)
		}
		return 0
	}

	cfg, err := conformance.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "imapconform: %v\n", err)
		return 2
	}
	if *runList != "" {
		cfg.Run = strings.Split(*runList, ",")
	}
	if *parallel > 0 {
		cfg.Parallel = *parallel
	}
	if *verbose {
		cfg.Logging.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if err = cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "imapconform: invalid configuration: %v\n", err)
		return 2
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "imapconform: %v\n", err)
		return 2
	}

	scenarios, err := conformance.Select(cfg.Run)
	if err != nil {
		fmt.Fprintf(os.Stderr, "imapconform: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalChan
		logger.Info("received signal, aborting scenarios", "signal", sig.String())
		cancel()
	}()

	logger.Info("running scenarios", "server", cfg.Server.Host, "port", cfg.Server.GetPort(),
		"count", len(scenarios), "parallel", cfg.Parallel)
	results := conformance.NewRunner(&cfg, logger).Run(ctx, scenarios)

	err = conformance.WriteReport(os.Stdout, results, conformance.ReportOptions{
		Colors: !*noColor && isTerminal(os.Stdout.Fd()),
		Dump:   *dump,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "imapconform: writing report: %v\n", err)
	}
	if !conformance.Summarize(results).OK() {
		return 1
	}
	return 0
}

func newLogger(cfg conformance.LoggingConfig) (imap.Logger, error) {
	var level slog.Level
	if cfg.Level != "" {
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("logging.format: unknown format %q", cfg.Format)
	}
	return imap.SlogLogger(slog.New(handler)), nil
}

func isTerminal(fd uintptr) bool {
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
