// Command storyvoice attributes every sentence of a narrative text to the
// character who speaks it.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/storyvoice/internal/config"
	"github.com/MrWong99/storyvoice/internal/health"
	"github.com/MrWong99/storyvoice/internal/llmcall"
	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/internal/pipeline"
	"github.com/MrWong99/storyvoice/internal/store"
	"github.com/MrWong99/storyvoice/pkg/types"
	"github.com/MrWong99/storyvoice/pkg/voice"
)

const version = "0.1.0"

// CLI defines the command-line interface.
type CLI struct {
	Config  string `short:"c" default:"storyvoice.yaml" type:"path" help:"Path to the YAML configuration file"`
	LogJSON bool   `name:"log-json" help:"Write logs as JSON"`

	Extract ExtractCmd `cmd:"" help:"Discover and merge the speaking characters of a text"`
	Assign  AssignCmd  `cmd:"" help:"Label every sentence with its speaker"`
	Run     RunCmd     `cmd:"" help:"Extract characters and assign speakers in one go"`
	Runs    RunsCmd    `cmd:"" help:"List or delete stored runs"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// env is what every command needs once configuration has been loaded.
type env struct {
	pipe   *pipeline.Pipeline
	voices *voice.Table
}

// IOFlags holds the flags shared by commands that read a text and write JSON.
type IOFlags struct {
	Input  string `short:"i" required:"" type:"existingfile" help:"Plain-text input file"`
	Output string `short:"o" type:"path" help:"Write JSON here instead of stdout"`
	Voices string `type:"path" help:"YAML voice table overriding the configured voices"`
}

// ExtractCmd runs character discovery and merging.
type ExtractCmd struct {
	IOFlags `embed:""`
	RunID string `name:"run" help:"Run ID to store the characters under (default: new UUID)"`
}

// Run implements the extract command.
func (c *ExtractCmd) Run(ctx context.Context, e *env) error {
	text, err := os.ReadFile(c.Input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	run := &store.Run{ID: c.RunID, Source: c.Input}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	ctx = observe.WithRunID(ctx, run.ID)
	if run.Characters, err = e.pipe.ExtractCharacters(ctx, string(text)); err != nil {
		return err
	}
	if err := e.pipe.Store().Save(ctx, run); err != nil {
		return err
	}
	observe.Logger(ctx).Info("characters stored", "characters", len(run.Characters))
	return writeJSON(c.Output, run)
}

// AssignCmd runs speaker assignment with characters from a stored run or a
// JSON file.
type AssignCmd struct {
	IOFlags `embed:""`
	RunID      string `name:"run" xor:"source" help:"Use the characters of this stored run"`
	Characters string `type:"path" xor:"source" help:"JSON file holding a character array"`
}

// Validate implements kong.Validatable.
func (c *AssignCmd) Validate() error {
	if c.RunID == "" && c.Characters == "" {
		return errors.New("one of --run or --characters is required")
	}
	return nil
}

// Run implements the assign command.
func (c *AssignCmd) Run(ctx context.Context, e *env) error {
	text, err := os.ReadFile(c.Input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	voices, err := e.voiceTable(c.Voices)
	if err != nil {
		return err
	}

	if c.RunID != "" {
		run, err := e.pipe.AssignStored(ctx, c.RunID, string(text), voices)
		if err != nil {
			return err
		}
		return writeJSON(c.Output, run)
	}

	chars, err := readCharacters(c.Characters)
	if err != nil {
		return err
	}
	assignments, err := e.pipe.AssignSpeakers(ctx, string(text), chars, voices)
	if err != nil {
		return err
	}
	return writeJSON(c.Output, assignments)
}

// RunCmd runs the whole pipeline.
type RunCmd struct {
	IOFlags `embed:""`
	RunID string `name:"run" help:"Run ID (default: new UUID)"`
}

// Run implements the run command.
func (c *RunCmd) Run(ctx context.Context, e *env) error {
	text, err := os.ReadFile(c.Input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	voices, err := e.voiceTable(c.Voices)
	if err != nil {
		return err
	}
	run, err := e.pipe.Run(ctx, pipeline.Request{
		ID:     c.RunID,
		Source: c.Input,
		Text:   string(text),
		Voices: voices,
	})
	if err != nil {
		return err
	}
	return writeJSON(c.Output, run)
}

// RunsCmd manages stored runs.
type RunsCmd struct {
	List   RunsListCmd   `cmd:"" default:"withargs" help:"List stored runs, newest first"`
	Delete RunsDeleteCmd `cmd:"" help:"Delete stored runs"`
}

// RunsListCmd lists stored runs without their assignments.
type RunsListCmd struct {
	Output string `short:"o" type:"path" help:"Write JSON here instead of stdout"`
}

// Run implements the runs list command.
func (c *RunsListCmd) Run(ctx context.Context, e *env) error {
	runs, err := e.pipe.Store().List(ctx)
	if err != nil {
		return err
	}
	return writeJSON(c.Output, runs)
}

// RunsDeleteCmd removes runs by ID.
type RunsDeleteCmd struct {
	IDs []string `arg:"" name:"id" help:"IDs of the runs to delete"`
}

// Run implements the runs delete command. Unknown IDs are reported and
// skipped.
func (c *RunsDeleteCmd) Run(ctx context.Context, e *env) error {
	st := e.pipe.Store()
	for _, id := range c.IDs {
		log := observe.Logger(observe.WithRunID(ctx, id))
		if _, err := st.Get(ctx, id); errors.Is(err, store.ErrNotFound) {
			log.Warn("run not found")
			continue
		}
		if err := st.Delete(ctx, id); err != nil {
			return fmt.Errorf("delete run %q: %w", id, err)
		}
		log.Info("run deleted")
	}
	return nil
}

// VersionCmd prints the version.
type VersionCmd struct{}

// Run implements the version command.
func (VersionCmd) Run() error {
	fmt.Println("storyvoice", version)
	return nil
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("storyvoice"),
		kong.Description("Speaker attribution for multi-voice audiobook narration"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	os.Exit(run(kctx, &cli))
}

func run(kctx *kong.Context, cli *CLI) int {
	if kctx.Command() == "version" {
		kctx.FatalIfErrorf(kctx.Run())
		return 0
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(cli.Config)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "storyvoice: config file %q not found\n", cli.Config)
		} else {
			fmt.Fprintf(os.Stderr, "storyvoice: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(os.Stderr, cfg.LogLevel, cli.LogJSON))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Observe.ServiceName,
		ServiceVersion: version,
		LLMProviders:   providerChain(cfg),
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Provider ──────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	provider, err := buildProvider(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build llm provider", "err", err)
		return 1
	}

	// ── Store ─────────────────────────────────────────────────────────────────
	st, storeCheck, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		slog.Error("failed to open run store", "err", err)
		return 1
	}
	defer closeStore()

	// ── Status server ─────────────────────────────────────────────────────────
	status := health.New(storeCheck)
	if addr := cfg.Observe.MetricsAddr; addr != "" {
		srv := serveStatus(addr, metrics, status)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	pipe := pipeline.New(provider, pipelineOptions(cfg, st, metrics, status)...)
	e := &env{pipe: pipe, voices: &cfg.Voices}

	kctx.BindTo(ctx, (*context.Context)(nil))
	kctx.Bind(e)
	if err := kctx.Run(); err != nil {
		if errors.Is(err, llmcall.ErrCancelled) {
			slog.Warn("cancelled", "err", err)
			return 130
		}
		slog.Error("command failed", "command", kctx.Command(), "err", err)
		return 1
	}
	return 0
}

// openStore selects the run store: PostgreSQL when a DSN is configured,
// otherwise one JSON file per run under the configured directory.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, health.Checker, func(), error) {
	if dsn := cfg.PostgresDSN; dsn != "" {
		pg, err := store.OpenPostgres(ctx, dsn)
		if err != nil {
			return nil, health.Checker{}, nil, err
		}
		return pg, health.Checker{Name: "store", Check: pg.Ping}, pg.Close, nil
	}
	fs, err := store.OpenFileStore(cfg.RunDir())
	if err != nil {
		return nil, health.Checker{}, nil, err
	}
	slog.Debug("storing runs as files", "dir", fs.Dir())
	return fs, health.Checker{Name: "store", Check: fs.Ping}, func() {}, nil
}

// pipelineOptions translates the configuration into pipeline options.
func pipelineOptions(cfg *config.Config, st store.Store, m *observe.Metrics, status *health.Handler) []pipeline.Option {
	p := cfg.Pipeline
	opts := []pipeline.Option{
		pipeline.WithStore(st),
		pipeline.WithMetrics(m),
		pipeline.WithBlockBudgets(p.ExtractionBlockTokens, p.AssignmentBlockChars),
		pipeline.WithConcurrency(p.Concurrency),
		pipeline.WithLLMMerge(p.UseLLMMerge()),
		pipeline.WithProgress(func(pr pipeline.Progress) {
			status.SetProgress(string(pr.Stage), pr.Done, pr.Total)
			slog.Info("progress", "stage", pr.Stage, "done", pr.Done, "total", pr.Total)
		}),
	}
	if len(p.RetryDelays) > 0 {
		opts = append(opts, pipeline.WithRetryDelays(p.RetryDelays))
	}
	if p.Temperature != nil {
		opts = append(opts, pipeline.WithTemperature(*p.Temperature))
	}
	return opts
}

// serveStatus exposes the Prometheus registry and the status endpoints on
// addr in the background.
func serveStatus(addr string, m *observe.Metrics, status *health.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	status.Register(mux)
	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(m)(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("status server error", "addr", addr, "err", err)
		}
	}()
	slog.Info("serving metrics and status", "addr", addr)
	return srv
}

// voiceTable returns the voice table loaded from path, or the configured
// table when path is empty.
func (e *env) voiceTable(path string) (types.VoiceLookup, error) {
	if path == "" {
		return e.voices, nil
	}
	t, err := voice.Load(path)
	if err != nil {
		return nil, err
	}
	return t, nil
}

// readCharacters loads a JSON character array and normalises every entry.
func readCharacters(path string) ([]types.Character, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read characters: %w", err)
	}
	var chars []types.Character
	if err := json.Unmarshal(data, &chars); err != nil {
		return nil, fmt.Errorf("parse characters %q: %w", path, err)
	}
	for i := range chars {
		chars[i].Normalize()
	}
	return chars, nil
}

// writeJSON writes v as indented JSON to path, or stdout when path is empty.
func writeJSON(path string, v any) error {
	var w io.Writer = os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(w io.Writer, level config.LogLevel, asJSON bool) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if asJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
