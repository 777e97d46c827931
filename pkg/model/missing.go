package model

import (
	"fmt"
	"strings"
)

// MissingReason classifies why a value is absent
type MissingReason int

const (
	// ReasonSystemMissing is a blank cell: NaN, empty string, SQL NULL
	ReasonSystemMissing MissingReason = iota
	// ReasonValidSkip is a question skipped by survey routing
	ReasonValidSkip
	// ReasonDontKnow is a "don't know" response
	ReasonDontKnow
	// ReasonRefused is a refused response
	ReasonRefused
	// ReasonNotStated is a response that was not recorded
	ReasonNotStated
)

var reasonNames = map[MissingReason]string{
	ReasonSystemMissing: "system_missing",
	ReasonValidSkip:     "valid_skip",
	ReasonDontKnow:      "dont_know",
	ReasonRefused:       "refused",
	ReasonNotStated:     "not_stated",
}

// AllReasons lists every reason in declaration order
func AllReasons() []MissingReason {
	return []MissingReason{
		ReasonSystemMissing,
		ReasonValidSkip,
		ReasonDontKnow,
		ReasonRefused,
		ReasonNotStated,
	}
}

// String returns the snake_case name used in config files and logs
func (r MissingReason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(r))
}

// ParseMissingReason parses a reason name as produced by String
func ParseMissingReason(s string) (MissingReason, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for r, name := range reasonNames {
		if name == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown missing reason %q", s)
}

// MarshalText implements encoding.TextMarshaler
func (r MissingReason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (r *MissingReason) UnmarshalText(text []byte) error {
	parsed, err := ParseMissingReason(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// MissingPolicy decides which cells count as missing. Codes applies to
// every numeric column and is overridden by a column's own MissingCodes.
// Only reasons listed in Exclude trigger listwise deletion and are left
// out of descriptive statistics.
type MissingPolicy struct {
	Codes   map[float64]MissingReason
	Exclude map[MissingReason]bool
}

// DefaultMissingPolicy treats every reason as missing
func DefaultMissingPolicy() MissingPolicy {
	exclude := make(map[MissingReason]bool, len(reasonNames))
	for _, r := range AllReasons() {
		exclude[r] = true
	}
	return MissingPolicy{
		Codes:   map[float64]MissingReason{},
		Exclude: exclude,
	}
}

// WithExclude returns a copy of the policy that excludes only the given reasons.
// System-missing cells cannot be kept: they have no value to analyse.
func (p MissingPolicy) WithExclude(reasons ...MissingReason) MissingPolicy {
	exclude := map[MissingReason]bool{ReasonSystemMissing: true}
	for _, r := range reasons {
		exclude[r] = true
	}
	return MissingPolicy{Codes: p.Codes, Exclude: exclude}
}

// Classify returns the reason a cell is absent, if any
func (p MissingPolicy) Classify(col Column, v Value) (MissingReason, bool) {
	if v.Null {
		return ReasonSystemMissing, true
	}
	if col.Kind != KindNumber {
		return 0, false
	}
	if r, ok := col.MissingCodes[v.Num]; ok {
		return r, true
	}
	if r, ok := p.Codes[v.Num]; ok {
		return r, true
	}
	return 0, false
}

// IsMissing reports whether the cell is treated as missing under the policy
func (p MissingPolicy) IsMissing(col Column, v Value) bool {
	r, ok := p.Classify(col, v)
	if !ok {
		return false
	}
	if p.Exclude == nil {
		return true
	}
	return p.Exclude[r]
}
