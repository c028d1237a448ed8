package domain

import (
	"fmt"
	"strings"
)

// Certainty tags how confident the user was about a value
type Certainty string

const (
	Certain   Certainty = "certain"
	Uncertain Certainty = "uncertain"
)

const (
	uncertainPrefix = "uncertain:"
	maxValueLength  = 4000
)

// Value is one extracted topic value with its certainty tag
type Value struct {
	Text      string    `json:"text"`
	Certainty Certainty `json:"certainty"`
}

// ParseValue converts an assessor string into a tagged value.
// "uncertain: <raw text>" yields an uncertain value; anything else is certain.
func ParseValue(raw string) Value {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) >= len(uncertainPrefix) && strings.EqualFold(trimmed[:len(uncertainPrefix)], uncertainPrefix) {
		return Value{Text: strings.TrimSpace(trimmed[len(uncertainPrefix):]), Certainty: Uncertain}
	}
	return Value{Text: trimmed, Certainty: Certain}
}

// IsUncertain reports whether the value carries the uncertain tag
func (v Value) IsUncertain() bool {
	return v.Certainty == Uncertain
}

// String renders the value in the tagged text form
func (v Value) String() string {
	if v.IsUncertain() {
		return uncertainPrefix + " " + v.Text
	}
	return v.Text
}

// Validate checks a value before it is stored
func (v Value) Validate() error {
	if v.Certainty != Certain && v.Certainty != Uncertain {
		return fmt.Errorf("%w: unknown certainty %q", ErrInvalidInput, v.Certainty)
	}
	if len(v.Text) > maxValueLength {
		return fmt.Errorf("%w: value exceeds %d characters", ErrInvalidInput, maxValueLength)
	}
	return nil
}

// ExtractedData is the cumulative topic store of a session
type ExtractedData map[string]Value

// ParseExtracted converts raw assessor output into tagged values, skipping empty entries
func ParseExtracted(raw map[string]string) ExtractedData {
	out := make(ExtractedData, len(raw))
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if key == "" || strings.TrimSpace(v) == "" {
			continue
		}
		out[key] = ParseValue(v)
	}
	return out
}

// Merge applies delta onto d. A certain value is never replaced by an uncertain one.
// Keys unknown to the catalog or values failing validation are rejected and returned.
func (d ExtractedData) Merge(delta ExtractedData, catalog *Catalog) (rejected []string) {
	for key, incoming := range delta {
		if catalog != nil && !catalog.KnownTopic(key) {
			rejected = append(rejected, key)
			continue
		}
		if err := incoming.Validate(); err != nil {
			rejected = append(rejected, key)
			continue
		}
		if existing, ok := d[key]; ok && !existing.IsUncertain() && incoming.IsUncertain() {
			continue
		}
		d[key] = incoming
	}
	return rejected
}

// Clone returns a copy of the map
func (d ExtractedData) Clone() ExtractedData {
	out := make(ExtractedData, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
