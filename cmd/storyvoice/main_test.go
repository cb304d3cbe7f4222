package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/storyvoice/internal/config"
	"github.com/MrWong99/storyvoice/internal/health"
	"github.com/MrWong99/storyvoice/internal/observe"
	"github.com/MrWong99/storyvoice/internal/pipeline"
	"github.com/MrWong99/storyvoice/internal/resilience"
	"github.com/MrWong99/storyvoice/internal/store"
	"github.com/MrWong99/storyvoice/pkg/provider/llm"
	llmmock "github.com/MrWong99/storyvoice/pkg/provider/llm/mock"
	"github.com/MrWong99/storyvoice/pkg/types"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func mockRegistry(providers map[string]*llmmock.Provider) *config.Registry {
	reg := config.NewRegistry()
	for name, p := range providers {
		reg.RegisterLLM(name, func(config.ProviderEntry) (llm.Provider, error) { return p, nil })
	}
	reg.RegisterLLM("broken", func(config.ProviderEntry) (llm.Provider, error) {
		return nil, errors.New("no credentials")
	})
	return reg
}

func TestBuildProvider_PrimaryOnly(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{}
	cfg := &config.Config{Providers: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "a"}}}

	got, err := buildProvider(cfg, mockRegistry(map[string]*llmmock.Provider{"a": primary}), testMetrics(t))
	if err != nil {
		t.Fatalf("buildProvider: %v", err)
	}
	if got != llm.Provider(primary) {
		t.Errorf("expected the primary provider itself, got %T", got)
	}
}

func TestBuildProvider_FailoverChain(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{Responses: []llmmock.Response{{Err: errors.New("503")}}}
	backup := &llmmock.Provider{Responses: []llmmock.Response{{Content: "ok"}}}
	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM:       config.ProviderEntry{Name: "a", Model: "m1"},
		Fallbacks: []config.ProviderEntry{{Name: "b"}},
	}}

	got, err := buildProvider(cfg, mockRegistry(map[string]*llmmock.Provider{"a": primary, "b": backup}), testMetrics(t))
	if err != nil {
		t.Fatalf("buildProvider: %v", err)
	}
	fb, ok := got.(*resilience.LLMFallback)
	if !ok {
		t.Fatalf("expected *resilience.LLMFallback, got %T", got)
	}
	if names := fb.Names(); !slices.Equal(names, []string{"a/m1", "b"}) {
		t.Errorf("Names() = %v", names)
	}
	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("Content = %q, want answer from fallback", resp.Content)
	}
}

func TestProviderChain(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Providers: config.ProvidersConfig{
		LLM:       config.ProviderEntry{Name: "openai", Model: "gpt-4o-mini"},
		Fallbacks: []config.ProviderEntry{{Name: "ollama", Model: "llama3.1:8b"}, {Name: "custom"}},
	}}
	want := []string{"openai/gpt-4o-mini", "ollama/llama3.1:8b", "custom"}
	if got := providerChain(cfg); !slices.Equal(got, want) {
		t.Errorf("providerChain = %v, want %v", got, want)
	}
}

func TestBuildProvider_Errors(t *testing.T) {
	t.Parallel()
	reg := mockRegistry(map[string]*llmmock.Provider{"a": {}})
	tests := []struct {
		name string
		cfg  config.ProvidersConfig
		want string
	}{
		{name: "unknown primary", cfg: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "nope"}}, want: "not registered"},
		{name: "factory error", cfg: config.ProvidersConfig{LLM: config.ProviderEntry{Name: "broken"}}, want: "no credentials"},
		{
			name: "bad fallback",
			cfg: config.ProvidersConfig{
				LLM:       config.ProviderEntry{Name: "a"},
				Fallbacks: []config.ProviderEntry{{Name: "broken"}},
			},
			want: "providers.fallbacks[0]",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := buildProvider(&config.Config{Providers: tc.cfg}, reg, testMetrics(t))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	want := slices.Sorted(slices.Values(config.ValidProviderNames))
	if got := reg.LLMNames(); !slices.Equal(got, want) {
		t.Errorf("LLMNames() = %v, want %v", got, want)
	}
}

func TestOpenAIFactory_BadTimeout(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	_, err := reg.CreateLLM(config.ProviderEntry{
		Name:    "openai",
		APIKey:  "sk-test",
		Model:   "gpt-4o-mini",
		Options: map[string]any{"timeout": "soon"},
	})
	if err == nil || !strings.Contains(err.Error(), "options.timeout") {
		t.Errorf("err = %v, want options.timeout error", err)
	}
}

func TestOptString(t *testing.T) {
	t.Parallel()
	opts := map[string]any{"org": "acme", "n": 3}
	if got := optString(opts, "org"); got != "acme" {
		t.Errorf("optString(org) = %q", got)
	}
	if got := optString(opts, "n"); got != "" {
		t.Errorf("optString(n) = %q, want empty", got)
	}
	if got := optString(nil, "org"); got != "" {
		t.Errorf("optString(nil) = %q, want empty", got)
	}
}

func TestOptInt(t *testing.T) {
	t.Parallel()
	opts := map[string]any{"a": 131072, "b": int64(8), "c": 2.9, "d": "12"}
	for key, want := range map[string]int{"a": 131072, "b": 8, "c": 2, "d": 0, "missing": 0} {
		if got := optInt(opts, key); got != want {
			t.Errorf("optInt(%q) = %d, want %d", key, got, want)
		}
	}
}

func TestBuiltinFactory_ContextWindowOption(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)
	p, err := reg.CreateLLM(config.ProviderEntry{
		Name:    "ollama",
		Model:   "qwen2.5:14b",
		BaseURL: "http://localhost:11434",
		Options: map[string]any{"context_window": 65536},
	})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if got := p.Capabilities().ContextWindow; got != 65536 {
		t.Errorf("ContextWindow = %d, want 65536", got)
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := newLogger(&buf, config.LogWarn, true)
	log.Info("hidden")
	log.Warn("shown", "k", "v")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line logged at warn level: %s", out)
	}
	var line map[string]any
	if err := json.Unmarshal([]byte(out), &line); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", out, err)
	}
	if line["msg"] != "shown" || line["level"] != slog.LevelWarn.String() {
		t.Errorf("unexpected log line: %v", line)
	}
}

func TestReadCharactersAndWriteJSON(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	in := filepath.Join(dir, "chars.json")
	raw := `[{"canonicalName":" John ","variations":["Johnny"],"gender":"robot"}]`
	if err := os.WriteFile(in, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}

	chars, err := readCharacters(in)
	if err != nil {
		t.Fatalf("readCharacters: %v", err)
	}
	want := types.NewCharacter("John", types.GenderUnknown, "Johnny")
	if len(chars) != 1 || chars[0].CanonicalName != want.CanonicalName ||
		!slices.Equal(chars[0].Variations, want.Variations) || chars[0].Gender != want.Gender {
		t.Fatalf("chars = %+v, want %+v", chars, want)
	}

	out := filepath.Join(dir, "out.json")
	if err := writeJSON(out, chars); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  {\n    \"canonicalName\": \"John\"") {
		t.Errorf("output not indented as expected:\n%s", data)
	}

	if _, err := readCharacters(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestAssignCmdValidate(t *testing.T) {
	t.Parallel()
	if err := (&AssignCmd{}).Validate(); err == nil {
		t.Error("expected error without --run or --characters")
	}
	if err := (&AssignCmd{RunID: "r1"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPipelineOptions(t *testing.T) {
	t.Parallel()
	temp := 0.3
	noLLM := false
	cfg := &config.Config{Pipeline: config.PipelineConfig{
		Concurrency:  2,
		Temperature:  &temp,
		MergeWithLLM: &noLLM,
	}}
	// store, metrics, budgets, concurrency, merge, progress, temperature.
	if got := len(pipelineOptions(cfg, nil, testMetrics(t), health.New())); got != 7 {
		t.Errorf("len(options) = %d, want 7", got)
	}
}

func TestOpenStore_FilesWithoutDSN(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "runs")

	st, check, closeStore, err := openStore(ctx, config.StoreConfig{Dir: dir})
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	defer closeStore()
	if _, ok := st.(*store.FileStore); !ok {
		t.Fatalf("store = %T, want *store.FileStore", st)
	}
	if check.Name != "store" || check.Check(ctx) != nil {
		t.Errorf("checker = %q, healthy = %v", check.Name, check.Check(ctx))
	}
	if err := st.Save(ctx, &store.Run{ID: "r1", Source: "book.txt"}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A second process sees the run the first one stored.
	again, _, closeAgain, err := openStore(ctx, config.StoreConfig{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer closeAgain()
	if r, err := again.Get(ctx, "r1"); err != nil || r.Source != "book.txt" {
		t.Errorf("Get after reopen = %+v, %v", r, err)
	}
}

func TestRunsCommands(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	st := store.NewMemStore()
	for _, id := range []string{"r1", "r2"} {
		if err := st.Save(ctx, &store.Run{ID: id}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	e := &env{pipe: pipeline.New(&llmmock.Provider{}, pipeline.WithStore(st))}

	if err := (&RunsDeleteCmd{IDs: []string{"r1", "missing"}}).Run(ctx, e); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.Get(ctx, "r1"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("r1 still stored: %v", err)
	}

	out := filepath.Join(dir, "runs.json")
	if err := (&RunsListCmd{Output: out}).Run(ctx, e); err != nil {
		t.Fatalf("list: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var runs []store.Run
	if err := json.Unmarshal(data, &runs); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	if len(runs) != 1 || runs[0].ID != "r2" {
		t.Errorf("runs = %+v, want only r2", runs)
	}
}
