package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sjawhar/interview-ai/internal/config"
	"github.com/sjawhar/interview-ai/internal/suggest"
	"github.com/sjawhar/interview-ai/internal/transcribe"
)

func TestBuildGeneratorFallsBackToStub(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"bad model", config.Config{Suggestion: config.Suggestion{Model: "gemini"}}},
		{"missing key", config.Config{Suggestion: config.Suggestion{Model: "openai/gpt-4o-mini"}}},
		{"unknown provider", config.Config{Suggestion: config.Suggestion{Model: "acme/model"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := buildGenerator(tt.cfg, nil, zerolog.Nop()).(suggest.Stub); !ok {
				t.Fatalf("expected stub generator for %+v", tt.cfg.Suggestion)
			}
		})
	}
}

func TestBuildGeneratorUsesConfiguredProvider(t *testing.T) {
	cfg := config.Config{
		Suggestion:   config.Suggestion{Model: "openai/gpt-4o-mini", Timeout: "5s"},
		OpenAIAPIKey: "sk-test",
	}
	if _, ok := buildGenerator(cfg, nil, zerolog.Nop()).(*suggest.LLM); !ok {
		t.Fatal("expected LLM generator")
	}
}

func TestBuildTranscribers(t *testing.T) {
	ctx := context.Background()

	streaming, batch, closeFn, err := buildTranscribers(ctx, config.Config{Transcription: config.Transcription{Provider: "deepgram"}}, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildTranscribers failed: %v", err)
	}
	defer closeFn()
	if _, ok := streaming.(*transcribe.Stub); !ok {
		t.Fatalf("deepgram without key should use stub, got %T", streaming)
	}
	if _, ok := batch.(*transcribe.Stub); !ok {
		t.Fatalf("batch = %T, want stub", batch)
	}

	streaming, batch, closeFn, err = buildTranscribers(ctx, config.Config{
		Transcription:  config.Transcription{Provider: "deepgram"},
		DeepgramAPIKey: "dg-test",
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("buildTranscribers failed: %v", err)
	}
	defer closeFn()
	if _, ok := streaming.(*transcribe.Deepgram); !ok {
		t.Fatalf("streaming = %T, want deepgram", streaming)
	}
	if _, ok := batch.(*transcribe.DeepgramBatch); !ok {
		t.Fatalf("batch = %T, want deepgram prerecorded client", batch)
	}
}

func TestInterviewConfigFromConfig(t *testing.T) {
	cfg := config.Config{
		Transcription: config.Transcription{Model: "nova-2", LanguageCode: "en-GB", SampleRate: 8000, Punctuate: true},
		Suggestion:    config.Suggestion{RecentResponses: 3},
	}
	got := interviewConfig(cfg)
	if got.RecentResponses != 3 || got.Transcription.SampleRate != 8000 || got.Transcription.LanguageCode != "en-GB" {
		t.Fatalf("interview config = %+v", got)
	}
	if !got.Transcription.InterimResults {
		t.Fatal("interim results should be enabled for live streams")
	}
}

func TestPrintResult(t *testing.T) {
	result := transcribe.Result{Transcript: "hello there", Confidence: 0.9}

	var buf bytes.Buffer
	if err := printResult(&buf, result, false); err != nil {
		t.Fatalf("printResult failed: %v", err)
	}
	if !strings.Contains(buf.String(), "hello there") || !strings.Contains(buf.String(), "0.90") {
		t.Fatalf("unexpected output %q", buf.String())
	}

	buf.Reset()
	if err := printResult(&buf, result, true); err != nil {
		t.Fatalf("printResult failed: %v", err)
	}
	if !strings.Contains(buf.String(), `"transcript": "hello there"`) {
		t.Fatalf("unexpected json output %q", buf.String())
	}
}

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	for _, key := range []string{"DB_PATH", "TRANSCRIPTION_PROVIDER", "LOG_LEVEL"} {
		t.Setenv(config.EnvPrefix+key, "")
	}
	prev := config.DotEnvFile
	config.DotEnvFile = filepath.Join(t.TempDir(), ".env")
	t.Cleanup(func() { config.DotEnvFile = prev })

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "db", "test.db")
	cfgPath := filepath.Join(dir, "config.yaml")
	content := "db_path: " + dbPath + "\nlog_level: error\ntranscription:\n  provider: stub\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath, dbPath
}

func TestMigrateCommandCreatesDatabase(t *testing.T) {
	cfgPath, dbPath := writeTestConfig(t)

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfgPath, "migrate"})
	if err := root.Execute(); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database not created: %v", err)
	}
	if !strings.Contains(out.String(), "schema ready") {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func TestTranscribeCommandWithStub(t *testing.T) {
	cfgPath, _ := writeTestConfig(t)
	audioPath := filepath.Join(t.TempDir(), "clip.raw")
	if err := os.WriteFile(audioPath, make([]byte, 3200), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"--config", cfgPath, "transcribe", audioPath})
	if err := root.Execute(); err != nil {
		t.Fatalf("transcribe failed: %v", err)
	}
	if !strings.Contains(out.String(), "Mock transcript for testing") {
		t.Fatalf("unexpected output %q", out.String())
	}

	root = newRootCmd()
	root.SetArgs([]string{"--config", cfgPath, "transcribe", "--language", "xx-XX", audioPath})
	if err := root.Execute(); err == nil {
		t.Fatal("expected unsupported language error")
	}
}
