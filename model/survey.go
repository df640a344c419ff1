package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// NPS score bounds
const (
	MinScore = 0
	MaxScore = 10
)

// SurveyResult is the staged satisfaction survey of a process
type SurveyResult struct {
	ProcessID string     `json:"processo_id"`
	Score     int        `json:"nps"`
	Ratings   OrderedMap `json:"avaliacoes"`
	Feedback  OrderedMap `json:"feedback"`
	CreatedAt time.Time  `json:"criado_em"`
}

// Validate checks the survey before it is staged.
func (s *SurveyResult) Validate() error {
	if s.Score < MinScore || s.Score > MaxScore {
		return &ValidationError{Field: "nps", Message: fmt.Sprintf("score must be between %d and %d", MinScore, MaxScore)}
	}
	for _, e := range s.Feedback.Entries {
		if !e.IsString() {
			return &ValidationError{Field: "feedback", Message: fmt.Sprintf("feedback %q must be text", e.Key)}
		}
	}
	return nil
}

// Entry is one key/value pair of an OrderedMap. Value holds the raw JSON
// scalar so numbers and strings survive a round trip untouched.
type Entry struct {
	Key   string
	Value json.RawMessage
}

// IsString reports whether the value is a JSON string.
func (e Entry) IsString() bool {
	return len(e.Value) > 0 && e.Value[0] == '"'
}

// Text renders the value for display: strings unquoted, other scalars verbatim.
func (e Entry) Text() string {
	if e.IsString() {
		var s string
		if err := json.Unmarshal(e.Value, &s); err == nil {
			return s
		}
	}
	if string(e.Value) == "null" {
		return ""
	}
	return string(e.Value)
}

// OrderedMap is a JSON object of scalar values that keeps insertion order.
// Rating categories are open-ended, so keys are not fixed.
type OrderedMap struct {
	Entries []Entry
}

// Set appends or replaces key with the JSON encoding of v.
func (m *OrderedMap) Set(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	for i := range m.Entries {
		if m.Entries[i].Key == key {
			m.Entries[i].Value = raw
			return nil
		}
	}
	m.Entries = append(m.Entries, Entry{Key: key, Value: raw})
	return nil
}

// Get returns the entry for key.
func (m OrderedMap) Get(key string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// Len returns the number of entries.
func (m OrderedMap) Len() int {
	return len(m.Entries)
}

func (m OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, e := range m.Entries {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if len(e.Value) == 0 {
			buf.WriteString("null")
		} else {
			buf.Write(e.Value)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (m *OrderedMap) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		m.Entries = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return &ValidationError{Message: "expected a JSON object"}
	}

	entries := make([]Entry, 0)
	seen := make(map[string]int)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return &ValidationError{Message: "object key must be a string"}
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return err
		}
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
			return &ValidationError{Field: key, Message: "nested values are not supported"}
		}
		value := append(json.RawMessage(nil), trimmed...)
		// a repeated key keeps its first position and takes the last value
		if i, dup := seen[key]; dup {
			entries[i].Value = value
			continue
		}
		seen[key] = len(entries)
		entries = append(entries, Entry{Key: key, Value: value})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	m.Entries = entries
	return nil
}
