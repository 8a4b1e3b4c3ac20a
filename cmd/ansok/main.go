package main

import (
	"context"
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

	tea "charm.land/bubbletea/v2"
	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hylla/ansok/internal/adapters/api"
	"github.com/hylla/ansok/internal/adapters/mcpapi"
	"github.com/hylla/ansok/internal/config"
	"github.com/hylla/ansok/internal/domain"
	"github.com/hylla/ansok/internal/platform"
	"github.com/hylla/ansok/internal/store"
	appsync "github.com/hylla/ansok/internal/sync"
	"github.com/hylla/ansok/internal/tui"
)

// version stores a package-level helper value.
var version = "dev"

// program represents program data used by this package.
type program interface {
	Run() (tea.Model, error)
}

// programFactory stores a package-level helper value.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// main handles main.
func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run runs the requested command flow.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("ansok", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath string
		baseURL    string
		csrfToken  string
		roundID    int
		appName    string
		devMode    bool
		showVer    bool
	)
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("ANSOK_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("ANSOK_APP_NAME")); envApp != "" {
		appName = envApp
	} else {
		appName = "ansok"
	}
	fs.StringVar(&configPath, "config", "", "path to config TOML")
	fs.StringVar(&baseURL, "base-url", "", "review API base URL (overrides config)")
	fs.StringVar(&csrfToken, "csrf", "", "CSRF token for mutating requests (overrides config)")
	fs.IntVar(&roundID, "round", 0, "sync one review round instead of the configured statuses")
	fs.StringVar(&appName, "app", appName, "application name for config path resolution")
	fs.BoolVar(&devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	fs.BoolVar(&showVer, "version", false, "show version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showVer {
		_, _ = fmt.Fprintf(stdout, "ansok %s\n", version)
		return nil
	}

	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: appName,
		DevMode: devMode,
	})
	if err != nil {
		return err
	}

	command := firstArg(fs.Args())
	switch command {
	case "paths":
		_, _ = fmt.Fprintf(stdout, "app: %s\n", appName)
		_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", devMode)
		_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
		_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
		return nil
	case "", "serve":
		// Continue.
	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("ANSOK_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	cfg, err := config.Load(configPath, config.Default())
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	if strings.TrimSpace(baseURL) != "" {
		cfg.API.BaseURL = baseURL
	}
	if strings.TrimSpace(csrfToken) != "" {
		cfg.API.CSRFToken = csrfToken
	}
	if cfg.API.CSRFToken == "" {
		// Double-submit verification only needs cookie and header to agree,
		// so a fresh random token per run works against Django-style APIs.
		cfg.API.CSRFToken = uuid.NewString()
	}

	logger, err := newRuntimeLogger(stderr, appName, devMode, cfg.Logging, time.Now)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	if command == "" {
		// Keep TUI rendering clean: runtime logs stay in the dev-file sink
		// while the console is active.
		logger.SetConsoleEnabled(false)
	}
	defer func() {
		if closeErr := logger.Close(); closeErr != nil && logger.consoleEnabled {
			_, _ = fmt.Fprintf(stderr, "warning: close runtime log sink: %v\n", closeErr)
		}
	}()

	logger.Info("startup configuration resolved", "app", appName, "dev_mode", devMode, "command", command)
	logger.Info("configuration loaded", "config_path", configPath, "base_url", cfg.API.BaseURL, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	client, err := api.New(api.Config{
		BaseURL:   cfg.API.BaseURL,
		CSRFToken: cfg.API.CSRFToken,
		PageSize:  cfg.API.PageSize,
		Timeout:   time.Duration(cfg.API.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		logger.Error("api client configuration failed", "base_url", cfg.API.BaseURL, "err", err)
		return fmt.Errorf("configure api client: %w", err)
	}

	cache := store.New()
	svc := appsync.NewService(cache, client, logger.ServiceSink())
	logger.Debug("sync service initialized", "base_url", cfg.API.BaseURL)

	groupBy, specs := toGroupLayout(cfg.Board)
	statuses := domain.NormalizeStatuses(toStatuses(cfg.Board.Statuses))
	pollInterval := time.Duration(cfg.Sync.PollIntervalSeconds) * time.Second

	switch command {
	case "serve":
		logger.Info("command flow start", "command", "serve")
		if err := runServe(ctx, svc, cache, cfg, groupBy, specs, statuses, roundID, pollInterval, logger); err != nil {
			logger.Error("command flow failed", "command", "serve", "err", err)
			return fmt.Errorf("run serve command: %w", err)
		}
		logger.Info("command flow complete", "command", "serve")
		return nil
	default:
		logger.Info("command flow start", "command", "tui")
	}

	opts := []tui.Option{
		tui.WithStatuses(statuses),
		tui.WithGroupLayout(groupBy, specs),
		tui.WithPollInterval(pollInterval),
		tui.WithAutoSelect(cfg.Sync.AutoSelect),
	}
	if roundID != 0 {
		opts = append(opts, tui.WithRound(roundID))
	}
	m := tui.NewModel(svc, opts...)
	logger.Info("starting tui program loop")
	if _, err := programFactory(m).Run(); err != nil {
		logger.Error("tui program terminated with error", "err", err)
		return fmt.Errorf("run tui program: %w", err)
	}
	logger.Info("command flow complete", "command", "tui")
	return nil
}

// runServe keeps the cache polling and exposes it read-only over MCP until
// interrupted.
func runServe(
	ctx context.Context,
	svc *appsync.Service,
	cache *store.Store,
	cfg config.Config,
	groupBy store.GroupBy,
	specs []store.GroupSpec,
	statuses []domain.Status,
	roundID int,
	pollInterval time.Duration,
	logger *runtimeLogger,
) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var stopPoll appsync.StopFunc
	if roundID != 0 {
		logger.Info("polling round listing", "round", roundID, "interval", pollInterval)
		stopPoll = svc.PollRound(roundID, pollInterval)
	} else {
		logger.Info("polling status listing", "statuses", len(statuses), "interval", pollInterval)
		stopPoll = svc.PollStatuses(statuses, pollInterval)
	}
	defer stopPoll()

	reader := mcpapi.NewCacheReader(cache, groupBy, specs, nil)
	logger.Info("serving mcp surface", "bind", cfg.Serve.Bind, "endpoint", cfg.Serve.MCPEndpoint)
	return mcpapi.Run(ctx,
		mcpapi.ServeConfig{Bind: cfg.Serve.Bind},
		mcpapi.Config{
			ServerName:    "ansok",
			ServerVersion: version,
			EndpointPath:  cfg.Serve.MCPEndpoint,
		},
		reader,
	)
}

// toGroupLayout maps board configuration into the grouping engine's terms.
func toGroupLayout(board config.BoardConfig) (store.GroupBy, []store.GroupSpec) {
	groupBy := store.GroupByStatus
	if strings.EqualFold(strings.TrimSpace(board.GroupBy), "round") {
		groupBy = store.GroupByRound
	}
	specs := make([]store.GroupSpec, 0, len(board.Groups))
	for _, group := range board.Groups {
		specs = append(specs, store.GroupSpec{
			Key:     group.Key,
			Display: group.Display,
			Values:  append([]string(nil), group.Values...),
		})
	}
	return groupBy, specs
}

// toStatuses converts configured status strings. An empty list leaves the
// listing unfiltered.
func toStatuses(raw []string) []domain.Status {
	out := make([]domain.Status, 0, len(raw))
	for _, status := range raw {
		out = append(out, domain.Status(status))
	}
	return out
}

// firstArg handles first arg.
func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// parseBoolEnv parses input into a normalized form.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// runtimeLogger fans log events to a styled console sink and an optional
// dev-file sink.
type runtimeLogger struct {
	sinks          []*charmLog.Logger
	consoleSink    *charmLog.Logger
	fileSink       *charmLog.Logger
	consoleEnabled bool
	closeFile      func() error
	devLog         string
}

// newRuntimeLogger configures runtime log sinks from CLI/config state.
func newRuntimeLogger(stderr io.Writer, appName string, devMode bool, cfg config.LoggingConfig, now func() time.Time) (*runtimeLogger, error) {
	level, err := charmLog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parse logging level %q: %w", cfg.Level, err)
	}

	if now == nil {
		now = time.Now
	}
	if stderr == nil {
		stderr = io.Discard
	}

	consoleLogger := charmLog.NewWithOptions(stderr, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.TextFormatter,
	})

	logger := &runtimeLogger{
		sinks:          []*charmLog.Logger{consoleLogger},
		consoleSink:    consoleLogger,
		consoleEnabled: true,
	}
	if !devMode || !cfg.DevFile.Enabled {
		return logger, nil
	}

	devLogPath, err := devLogFilePath(cfg.DevFile.Dir, appName, now().UTC())
	if err != nil {
		return nil, fmt.Errorf("resolve dev log file path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(devLogPath), 0o755); err != nil {
		return nil, fmt.Errorf("create dev log dir: %w", err)
	}
	logFile, err := os.OpenFile(devLogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open dev log file: %w", err)
	}

	// Keep file output parseable and unstyled while preserving styled
	// console logs.
	fileLogger := charmLog.NewWithOptions(logFile, charmLog.Options{
		Level:           level,
		Prefix:          appName,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Formatter:       charmLog.LogfmtFormatter,
	})
	logger.sinks = append(logger.sinks, fileLogger)
	logger.fileSink = fileLogger
	logger.closeFile = logFile.Close
	logger.devLog = devLogPath
	return logger, nil
}

// ServiceSink returns the sink the sync service should log through: the
// dev-file sink when present, otherwise the console sink.
func (l *runtimeLogger) ServiceSink() *charmLog.Logger {
	if l == nil {
		return charmLog.New(io.Discard)
	}
	if l.fileSink != nil {
		return l.fileSink
	}
	return l.consoleSink
}

// DevLogPath returns the active dev log file path.
func (l *runtimeLogger) DevLogPath() string {
	if l == nil {
		return ""
	}
	return l.devLog
}

// Close closes the optional dev-file sink.
func (l *runtimeLogger) Close() error {
	if l == nil || l.closeFile == nil {
		return nil
	}
	return l.closeFile()
}

// SetConsoleEnabled toggles whether the console sink receives runtime events.
func (l *runtimeLogger) SetConsoleEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.consoleEnabled = enabled
}

// shouldLogToSink reports whether one sink should receive runtime output.
func (l *runtimeLogger) shouldLogToSink(sink *charmLog.Logger) bool {
	if l == nil || sink == nil {
		return false
	}
	if sink == l.consoleSink && !l.consoleEnabled {
		return false
	}
	return true
}

// Debug logs a debug event to all configured sinks.
func (l *runtimeLogger) Debug(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Debug(msg, keyvals...)
	}
}

// Info logs an informational event to all configured sinks.
func (l *runtimeLogger) Info(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Info(msg, keyvals...)
	}
}

// Warn logs a warning event to all configured sinks.
func (l *runtimeLogger) Warn(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Warn(msg, keyvals...)
	}
}

// Error logs an error event to all configured sinks.
func (l *runtimeLogger) Error(msg string, keyvals ...any) {
	if l == nil {
		return
	}
	for _, sink := range l.sinks {
		if !l.shouldLogToSink(sink) {
			continue
		}
		sink.Error(msg, keyvals...)
	}
}

// devLogFilePath resolves a workspace-local dev log file path for the current
// run day.
func devLogFilePath(configDir, appName string, now time.Time) (string, error) {
	baseDir := strings.TrimSpace(configDir)
	if baseDir == "" {
		baseDir = ".ansok/log"
	}
	if !filepath.IsAbs(baseDir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working dir: %w", err)
		}
		baseDir = filepath.Join(workspaceRootFrom(cwd), baseDir)
	}
	fileStem := sanitizeLogFileStem(appName)
	fileName := fmt.Sprintf("%s-%s.log", fileStem, now.Format("20060102"))
	return filepath.Join(filepath.Clean(baseDir), fileName), nil
}

// workspaceRootFrom resolves the nearest ancestor workspace marker for stable
// local log placement.
func workspaceRootFrom(start string) string {
	start = filepath.Clean(strings.TrimSpace(start))
	if start == "" {
		return "."
	}
	dir := start
	for {
		if hasWorkspaceMarker(dir) {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}

// hasWorkspaceMarker reports whether a directory looks like a project
// workspace root.
func hasWorkspaceMarker(dir string) bool {
	if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
		return true
	}
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return true
	}
	return false
}

// sanitizeLogFileStem normalizes app names into safe file-name segments.
func sanitizeLogFileStem(appName string) string {
	stem := strings.TrimSpace(appName)
	if stem == "" {
		return "ansok"
	}
	replacer := strings.NewReplacer("/", "-", "\\", "-", ":", "-", " ", "-")
	stem = strings.Trim(replacer.Replace(stem), "-")
	if stem == "" {
		return "ansok"
	}
	return stem
}
