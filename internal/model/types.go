package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// SelfContext is the context stamped on every delta from the gateway.
const SelfContext = "vessels.self"

// Delta is one Signal K delta message as received from the gateway.
type Delta map[string]json.RawMessage

// Context returns the decoded "context" member, or "" when absent.
func (d Delta) Context() string {
	raw, ok := d["context"]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// SetContext overwrites the "context" member.
func (d Delta) SetContext(ctx string) {
	raw, _ := json.Marshal(ctx)
	d["context"] = raw
}

// Updates decodes the "updates" member. A delta without updates (the
// server hello, for example) returns nil, nil.
func (d Delta) Updates() ([]Update, error) {
	raw, ok := d["updates"]
	if !ok {
		return nil, nil
	}
	var updates []Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("decode updates: %w", err)
	}
	return updates, nil
}

// Update is one entry of a delta's "updates" array.
type Update struct {
	Source    *Source     `json:"source,omitempty"`
	SourceRef string      `json:"$source,omitempty"`
	Timestamp string      `json:"timestamp,omitempty"`
	Values    []PathValue `json:"values"`
}

// Time parses the RFC 3339 timestamp. ok is false when missing or invalid.
func (u Update) Time() (t time.Time, ok bool) {
	if u.Timestamp == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, u.Timestamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SourceLabel returns $source when present, else "label.src" built from the
// source object, else "".
func (u Update) SourceLabel() string {
	if u.SourceRef != "" {
		return u.SourceRef
	}
	if u.Source == nil {
		return ""
	}
	if u.Source.Src != "" {
		return u.Source.Label + "." + u.Source.Src
	}
	return u.Source.Label
}

// Source describes where an update came from on the boat network.
type Source struct {
	Label string `json:"label"`
	Type  string `json:"type,omitempty"`
	Src   string `json:"src,omitempty"`
	PGN   int    `json:"pgn,omitempty"`
}

// PathValue is a single Signal K path and its value. The value stays raw;
// it may be a number, string, object or null.
type PathValue struct {
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}
