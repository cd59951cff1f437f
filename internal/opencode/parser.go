package opencode

import (
	"encoding/json"
	"fmt"
	"os"
)

// TokenUsage is the per-interaction token breakdown stored in a part file,
// including prompt-cache accounting.
type TokenUsage struct {
	Input     uint64     `json:"input"`
	Output    uint64     `json:"output"`
	Reasoning uint64     `json:"reasoning"`
	Cache     CacheUsage `json:"cache"`
}

type CacheUsage struct {
	Write uint64 `json:"write"`
	Read  uint64 `json:"read"`
}

// UsagePart is one decoded storage part. Parts without a tokens payload are
// lifecycle markers (step-start and friends) and carry no accounting weight.
type UsagePart struct {
	ID        string      `json:"id"`
	MessageID string      `json:"messageID"`
	SessionID string      `json:"sessionID"`
	EventType string      `json:"type"`
	Tokens    *TokenUsage `json:"tokens"`
	Cost      float64     `json:"cost"`
}

// ParsePart decodes a single part payload. It returns (nil, nil) when the
// JSON is valid but has no token data; callers must not treat that as an
// error, only as "contributes nothing".
func ParsePart(data []byte) (*UsagePart, error) {
	var part UsagePart
	if err := json.Unmarshal(data, &part); err != nil {
		return nil, fmt.Errorf("opencode: parsing part: %w", err)
	}
	if part.Tokens == nil {
		return nil, nil
	}
	return &part, nil
}

// ParseFile reads and decodes one part file.
func ParseFile(path string) (*UsagePart, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("opencode: reading part file: %w", err)
	}
	return ParsePart(data)
}
