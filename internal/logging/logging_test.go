package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestComponent_TagsEveryLineWithTheComponentField(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)
	logger := Component(base, "fetch")
	logger.Info().Msg("hello")

	var decoded map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("failed to decode log line: %v", err)
	}
	if decoded["component"] != "fetch" {
		t.Errorf("expected component=fetch, got %v", decoded["component"])
	}
	if decoded["message"] != "hello" {
		t.Errorf("expected the message field preserved, got %v", decoded["message"])
	}
}

func TestNew_PrettyAndJSONBothProduceAUsableLogger(t *testing.T) {
	pretty := New(true)
	plain := New(false)
	// Both loggers must be usable without panicking; precise output format
	// (console vs JSON) is zerolog's own concern, not this package's.
	pretty.Info().Msg("pretty mode")
	plain.Info().Msg("json mode")
}
