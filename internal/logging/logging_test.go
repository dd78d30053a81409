package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestInitWriterJSON(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	var buf bytes.Buffer
	InitWriter(Config{Level: "debug", Format: "json"}, &buf)

	logger := WithConnection("coordinator", "conn-1")
	logger.Debug().Str("session_id", "abc").Msg("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["component"] != "coordinator" || entry["conn_id"] != "conn-1" || entry["session_id"] != "abc" {
		t.Fatalf("unexpected log fields: %v", entry)
	}
	if entry["message"] != "hello" {
		t.Fatalf("unexpected message: %v", entry["message"])
	}
}

func TestInitWriterUnknownLevelFallsBackToInfo(t *testing.T) {
	prev := log.Logger
	t.Cleanup(func() {
		log.Logger = prev
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	})

	var buf bytes.Buffer
	InitWriter(Config{Level: "loud"}, &buf)

	logger := WithComponent("test")
	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered at info level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("expected info line, got: %s", out)
	}
}
