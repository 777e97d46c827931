package frame

import (
	"errors"
	"fmt"
)

// Sentinel errors for errors.Is checks
var (
	ErrSchema = errors.New("schema error")
	ErrKey    = errors.New("key error")
)

// SchemaError reports a column that does not exist or collides with another
type SchemaError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	reason := e.Reason
	if reason == "" {
		reason = "does not exist"
	}
	return fmt.Sprintf("schema error: column %q %s in table %q", e.Column, reason, e.Table)
}

// Is matches ErrSchema
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchema
}

// KeyReason describes why a join key was rejected
type KeyReason int

const (
	// KeyMissing means the key column is absent from one side
	KeyMissing KeyReason = iota
	// KeyTypeMismatch means the key columns have different kinds
	KeyTypeMismatch
	// KeyDuplicate means the key is not unique in one side
	KeyDuplicate
)

func (r KeyReason) String() string {
	switch r {
	case KeyMissing:
		return "missing"
	case KeyTypeMismatch:
		return "type mismatch"
	case KeyDuplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("KeyReason(%d)", int(r))
	}
}

// KeyError reports a join key that is absent or not comparable
type KeyError struct {
	Table  string
	Key    string
	Reason KeyReason
	Detail string
}

func (e *KeyError) Error() string {
	msg := fmt.Sprintf("key error: %s key %q in table %q", e.Reason, e.Key, e.Table)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// Is matches ErrKey
func (e *KeyError) Is(target error) bool {
	return target == ErrKey
}

// DuplicateKeyError reports a key value occurring more than once in a
// one-to-one join input
type DuplicateKeyError struct {
	Table string
	Key   string
	Value string
	Count int
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("key error: %s=%s occurs %d times in table %q; one-to-one join requires unique keys",
		e.Key, e.Value, e.Count, e.Table)
}

// Is matches ErrKey
func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrKey
}
