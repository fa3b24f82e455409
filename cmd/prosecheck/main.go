// Package main is the entry point for the prosecheck prose checker.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/sjson"

	"github.com/dshills/prosecheck/internal/analyze"
	"github.com/dshills/prosecheck/internal/app"
	"github.com/dshills/prosecheck/internal/config"
	"github.com/dshills/prosecheck/internal/coordinate"
	"github.com/dshills/prosecheck/internal/segment"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Exit codes: 0 clean, 1 findings reported, 2 failure.
const (
	exitClean    = 0
	exitFindings = 1
	exitError    = 2
)

const stopTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg := config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
			return exitError
		}
		cfg = loaded
	}
	applyOverrides(&cfg, opts)

	appOpts := []app.Option{}
	if opts.visible != "" {
		span, err := parseVisible(opts.visible)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid -visible range: %v\n", err)
			return exitError
		}
		appOpts = append(appOpts, app.WithVisibleRange(span))
	}

	application, err := app.New(cfg, appOpts...)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return exitError
	}
	defer application.Close()

	if opts.watch {
		return runWatch(application, opts)
	}
	return runOnce(application, opts)
}

// runOnce checks a file (or stdin) in a single pass.
func runOnce(application *app.App, opts options) int {
	text, err := readInput(opts.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		<-signals
		cancel()
	}()

	findings, err := application.CheckOnce(ctx, text)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}

	name := opts.path
	if name == "" {
		name = "<stdin>"
	}
	for _, f := range findings {
		printFinding(os.Stdout, name, text, f, opts.jsonOut)
	}

	if opts.showStats {
		printStats(os.Stderr, application)
	}
	if len(findings) > 0 {
		return exitFindings
	}
	return exitClean
}

// runWatch rechecks the file on every save until interrupted.
func runWatch(application *app.App, opts options) int {
	if opts.path == "" {
		fmt.Fprintf(os.Stderr, "Error: -watch requires a file argument\n")
		return exitError
	}
	target, err := filepath.Abs(opts.path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}

	logger := application.Logger()

	application.OnPass(func(p app.Pass) {
		reportPass(application, opts, p)
	})
	if err := application.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to start: %v\n", err)
		return exitError
	}

	// Watch the parent directory: editors replace files via rename, which
	// drops a watch placed on the file itself.
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create watcher: %v\n", err)
		return exitError
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(target)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to watch %s: %v\n", filepath.Dir(target), err)
		return exitError
	}

	cfgWatcher, err := watchConfig(application, opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to watch config: %v\n", err)
		return exitError
	}
	if cfgWatcher != nil {
		defer cfgWatcher.Stop()
	}

	if err := submitFile(application, target); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)

	logger.Info("watching %s (analyzer: %s)", opts.path, application.AnalyzerName())

	for {
		select {
		case ev, ok := <-fw.Events:
			if !ok {
				return finishWatch(application, opts)
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if err := submitFile(application, target); err != nil {
				logger.Warn("rereading %s: %v", opts.path, err)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return finishWatch(application, opts)
			}
			logger.Error("watch error: %v", err)

		case <-signals:
			return finishWatch(application, opts)
		}
	}
}

// submitFile reads the target and hands its content to the coordinator.
// Reads can fail transiently while an editor replaces the file; the
// caller logs and waits for the next event.
func submitFile(application *app.App, target string) error {
	data, err := os.ReadFile(target)
	if err != nil {
		return err
	}
	return application.Submit(coordinate.Request{
		Kind:    coordinate.KindReplaceDocument,
		Content: string(data),
		Source:  target,
	})
}

// watchConfig starts a live reload watcher when a config path was given.
// Only the log level can retune without a restart; the reload is still
// counted and reported.
func watchConfig(application *app.App, path string) (*config.Watcher, error) {
	if path == "" {
		return nil, nil
	}
	w, err := config.NewWatcher(path)
	if err != nil {
		return nil, err
	}
	logger := application.Logger()
	w.OnChange(func(cfg config.Config) {
		application.Logger().SetLevel(app.ParseLogLevel(cfg.Log.Level))
		application.Metrics().RecordConfigReload()
		logger.Info("configuration reloaded (restart to apply pipeline changes)")
	})
	w.OnError(func(err error) {
		logger.Warn("config reload failed: %v", err)
	})
	if err := w.Start(); err != nil {
		return nil, err
	}
	return w, nil
}

func finishWatch(application *app.App, opts options) int {
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := application.Stop(ctx); err != nil && !errors.Is(err, app.ErrNotRunning) {
		fmt.Fprintf(os.Stderr, "Error: shutdown: %v\n", err)
	}
	if opts.showStats {
		printStats(os.Stderr, application)
	}
	return exitClean
}

// reportPass prints one completed pass. Runs on the pass goroutine, so
// it stays cheap: resolve the revision's text and write the findings.
func reportPass(application *app.App, opts options, p app.Pass) {
	text := application.Buffer().Content()
	if snap, err := application.History().Restore(p.Revision); err == nil {
		text = snap.Text()
	}

	fmt.Fprintf(os.Stderr, "-- revision %d: %d findings in %d chunks (%.1fms)\n",
		p.Revision, len(p.Findings), p.Chunks, float64(p.Duration.Nanoseconds())/1e6)
	for _, f := range p.Findings {
		printFinding(os.Stdout, opts.path, text, f, opts.jsonOut)
	}
}

// printFinding writes one finding as a diagnostic line or a JSON line.
func printFinding(w io.Writer, name, text string, f analyze.AbsoluteFinding, jsonOut bool) {
	line, col := lineCol(text, f.Start)

	if jsonOut {
		out, _ := sjson.Set("", "id", f.ID)
		out, _ = sjson.Set(out, "category", f.Category)
		out, _ = sjson.Set(out, "severity", f.Severity.String())
		out, _ = sjson.Set(out, "message", f.Message)
		if f.Suggestion != "" {
			out, _ = sjson.Set(out, "suggestion", f.Suggestion)
		}
		if f.Matched != "" {
			out, _ = sjson.Set(out, "matched", f.Matched)
		}
		out, _ = sjson.Set(out, "start", f.Start)
		out, _ = sjson.Set(out, "end", f.End)
		out, _ = sjson.Set(out, "line", line)
		out, _ = sjson.Set(out, "col", col)
		out, _ = sjson.Set(out, "chunk", f.ChunkIndex)
		fmt.Fprintln(w, out)
		return
	}

	fmt.Fprintf(w, "%s:%d:%d: %s [%s] %s", name, line, col, f.Severity, f.Category, f.Message)
	if f.Suggestion != "" {
		fmt.Fprintf(w, " (suggest: %s)", f.Suggestion)
	}
	fmt.Fprintln(w)
}

// lineCol converts a byte offset to a 1-based line and rune column.
func lineCol(text string, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if offset > len(text) {
		offset = len(text)
	}
	line := 1
	lineStart := 0
	for i := 0; i < offset; i++ {
		if text[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	return line, utf8.RuneCountInString(text[lineStart:offset]) + 1
}

func printStats(w io.Writer, application *app.App) {
	snap := application.Metrics().Snapshot()
	coord := application.Coordinator().Stats()

	fmt.Fprintf(w, "passes:   %d (avg %.1fms, min %.1fms, max %.1fms, stale %d)\n",
		snap.PassCount, snap.AvgPassMs(),
		float64(snap.MinPassTimeNs)/1e6, float64(snap.MaxPassTimeNs)/1e6,
		snap.StalePasses)
	fmt.Fprintf(w, "chunks:   %d analyzed, %d failed (%.1f%%)\n",
		snap.ChunkCount, snap.ChunkFailures, snap.FailureRate())
	fmt.Fprintf(w, "findings: %d (%.2f per chunk)\n",
		snap.FindingCount, snap.FindingsPerChunk())
	fmt.Fprintf(w, "updates:  %d applied, %d skipped, %d preempted, %d evicted\n",
		coord.Applied, coord.Skipped, coord.Preempted, coord.Evicted)
	if snap.ConfigReloads > 0 {
		fmt.Fprintf(w, "reloads:  %d\n", snap.ConfigReloads)
	}
}

// readInput loads the named file, or stdin when path is empty.
func readInput(path string) (string, error) {
	if path == "" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// parseVisible parses a "start:end" byte range.
func parseVisible(s string) (segment.Span, error) {
	left, right, ok := strings.Cut(s, ":")
	if !ok {
		return segment.Span{}, fmt.Errorf("expected start:end, got %q", s)
	}
	start, err := strconv.Atoi(left)
	if err != nil {
		return segment.Span{}, fmt.Errorf("bad start offset %q", left)
	}
	end, err := strconv.Atoi(right)
	if err != nil {
		return segment.Span{}, fmt.Errorf("bad end offset %q", right)
	}
	if start < 0 || end <= start {
		return segment.Span{}, fmt.Errorf("range %d:%d is empty", start, end)
	}
	return segment.Span{Start: start, End: end}, nil
}

// applyOverrides folds command line flags into the loaded configuration.
func applyOverrides(cfg *config.Config, opts options) {
	if opts.engine != "" {
		cfg.Analyze.Engine = opts.engine
	}
	if opts.rulesDir != "" {
		cfg.Analyze.RulesDir = opts.rulesDir
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
}

type options struct {
	configPath string
	path       string
	watch      bool
	jsonOut    bool
	showStats  bool
	visible    string
	engine     string
	rulesDir   string
	logLevel   string
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.BoolVar(&opts.watch, "watch", false, "Recheck the file on every save")
	flag.BoolVar(&opts.watch, "w", false, "Recheck the file on every save (shorthand)")
	flag.BoolVar(&opts.jsonOut, "json", false, "Emit findings as JSON lines")
	flag.BoolVar(&opts.showStats, "stats", false, "Print pipeline statistics on exit")
	flag.StringVar(&opts.visible, "visible", "", "Byte range start:end to analyze first (e.g. 0:4096)")
	flag.StringVar(&opts.engine, "engine", "", "Analyzer engine override (style or lua)")
	flag.StringVar(&opts.rulesDir, "rules", "", "Lua rules directory override")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Prosecheck - chunked prose checker\n\n")
		fmt.Fprintf(os.Stderr, "Usage: prosecheck [options] [file]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  prosecheck draft.txt                   Check a file once\n")
		fmt.Fprintf(os.Stderr, "  prosecheck -json draft.txt             Findings as JSON lines\n")
		fmt.Fprintf(os.Stderr, "  prosecheck -watch draft.txt            Recheck on every save\n")
		fmt.Fprintf(os.Stderr, "  prosecheck -engine lua -rules ./rules draft.txt\n")
		fmt.Fprintf(os.Stderr, "  cat draft.txt | prosecheck             Check stdin\n")
		fmt.Fprintf(os.Stderr, "\nExit status: 0 clean, 1 findings reported, 2 failure\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(exitClean)
	}

	if showVersion {
		fmt.Printf("Prosecheck %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(exitClean)
	}

	if opts.logLevel != "" {
		switch opts.logLevel {
		case "debug", "info", "warn", "error":
			// Valid
		default:
			fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.logLevel)
			os.Exit(exitError)
		}
	}

	if opts.engine != "" {
		switch opts.engine {
		case config.EngineStyle, config.EngineLua:
			// Valid
		default:
			fmt.Fprintf(os.Stderr, "Error: invalid engine %q (must be style or lua)\n", opts.engine)
			os.Exit(exitError)
		}
	}

	args := flag.Args()
	if len(args) > 1 {
		fmt.Fprintf(os.Stderr, "Error: expected at most one file argument\n")
		flag.Usage()
		os.Exit(exitError)
	}
	if len(args) == 1 {
		opts.path = args[0]
	}

	return opts
}
