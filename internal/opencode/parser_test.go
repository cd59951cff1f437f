package opencode

import (
	"os"
	"path/filepath"
	"testing"
)

func TestParsePartComplete(t *testing.T) {
	data := []byte(`{
		"id": "prt_01",
		"messageID": "msg_01",
		"sessionID": "ses_01",
		"type": "step-finish",
		"tokens": {
			"input": 1200,
			"output": 340,
			"reasoning": 55,
			"cache": {"write": 900, "read": 15000}
		},
		"cost": 0.0421
	}`)

	part, err := ParsePart(data)
	if err != nil {
		t.Fatalf("ParsePart: %v", err)
	}
	if part == nil {
		t.Fatal("expected a part, got nil")
	}
	if part.ID != "prt_01" || part.MessageID != "msg_01" || part.SessionID != "ses_01" {
		t.Fatalf("identifiers mismatch: %+v", part)
	}
	if part.EventType != "step-finish" {
		t.Fatalf("EventType = %q", part.EventType)
	}
	if part.Tokens.Input != 1200 || part.Tokens.Output != 340 || part.Tokens.Reasoning != 55 {
		t.Fatalf("token counts mismatch: %+v", part.Tokens)
	}
	if part.Tokens.Cache.Write != 900 || part.Tokens.Cache.Read != 15000 {
		t.Fatalf("cache counts mismatch: %+v", part.Tokens.Cache)
	}
	if part.Cost != 0.0421 {
		t.Fatalf("Cost = %v", part.Cost)
	}
}

func TestParsePartWithoutTokens(t *testing.T) {
	data := []byte(`{"id": "prt_02", "type": "step-start", "cost": 0}`)

	part, err := ParsePart(data)
	if err != nil {
		t.Fatalf("ParsePart: %v", err)
	}
	if part != nil {
		t.Fatalf("token-less part should yield nil, got %+v", part)
	}
}

func TestParsePartMalformed(t *testing.T) {
	for _, data := range []string{`{"id": "prt`, `not json at all`, ``} {
		part, err := ParsePart([]byte(data))
		if err == nil {
			t.Fatalf("ParsePart(%q): expected error", data)
		}
		if part != nil {
			t.Fatalf("ParsePart(%q): expected nil part on error", data)
		}
	}
}

func TestParseFileMissing(t *testing.T) {
	part, err := ParseFile(filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if part != nil {
		t.Fatalf("expected nil part, got %+v", part)
	}
}

func TestParseFileRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prt_03.json")
	payload := `{"id": "prt_03", "type": "step-finish", "tokens": {"input": 7, "output": 3, "reasoning": 0, "cache": {"write": 0, "read": 0}}, "cost": 0.001}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatal(err)
	}

	part, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if part == nil || part.Tokens.Input != 7 || part.Tokens.Output != 3 {
		t.Fatalf("unexpected part: %+v", part)
	}
}
