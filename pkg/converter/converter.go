// pkg/converter/converter.go
package converter

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/caryjim/PIAAC-Exploratory-Cluster-Analysis/pkg/model"
)

// TypeConverter handles mapping and conversion of cell values between
// readers, database drivers and model.Value
type TypeConverter struct {
	logger *zap.Logger
	// Configuration options
	config TypeConverterConfig
}

// TypeConverterConfig provides configuration options for type conversion
type TypeConverterConfig struct {
	// Strings treated as system-missing in text sources
	NullTokens []string
	// Whether to treat empty strings as NULL
	EmptyStringAsNull bool
	// Trim surrounding whitespace before parsing
	TrimSpace bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() TypeConverterConfig {
	return TypeConverterConfig{
		NullTokens:        []string{"NA", "NaN", "nan", "NULL", "null", "."},
		EmptyStringAsNull: true,
		TrimSpace:         true,
	}
}

// NewTypeConverter creates a new TypeConverter with default configuration
func NewTypeConverter(logger *zap.Logger) *TypeConverter {
	return NewTypeConverterWithConfig(logger, DefaultConfig())
}

// NewTypeConverterWithConfig creates a TypeConverter with custom configuration
func NewTypeConverterWithConfig(logger *zap.Logger, config TypeConverterConfig) *TypeConverter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TypeConverter{
		logger: logger,
		config: config,
	}
}

// Config returns the converter configuration
func (c *TypeConverter) Config() TypeConverterConfig {
	return c.config
}

// ToValue converts a reader or driver value into a cell of the given kind
func (c *TypeConverter) ToValue(value interface{}, kind model.Kind) (model.Value, error) {
	if value == nil {
		return model.Null(), nil
	}
	if s, ok := value.(string); ok {
		return c.ParseValue(s, kind)
	}
	if b, ok := value.([]byte); ok {
		return c.ParseValue(string(b), kind)
	}

	switch kind {
	case model.KindNumber:
		f, err := toFloat(value)
		if err != nil {
			return model.Null(), err
		}
		return model.Number(f), nil
	case model.KindText:
		return model.Text(toString(value)), nil
	default:
		return model.Null(), fmt.Errorf("unsupported column kind %s", kind)
	}
}

// ParseValue parses a textual cell
func (c *TypeConverter) ParseValue(s string, kind model.Kind) (model.Value, error) {
	if c.config.TrimSpace {
		s = strings.TrimSpace(s)
	}
	if c.IsNullToken(s) {
		return model.Null(), nil
	}
	if kind == model.KindText {
		return model.Text(s), nil
	}
	f, err := toFloat(s)
	if err != nil {
		return model.Null(), err
	}
	return model.Number(f), nil
}

// IsNullToken reports whether s marks a system-missing cell
func (c *TypeConverter) IsNullToken(s string) bool {
	if s == "" {
		return c.config.EmptyStringAsNull
	}
	for _, tok := range c.config.NullTokens {
		if s == tok {
			return true
		}
	}
	return false
}

// InferKind returns KindNumber when every non-null sample parses as a number
func (c *TypeConverter) InferKind(samples []string) model.Kind {
	for _, s := range samples {
		if c.config.TrimSpace {
			s = strings.TrimSpace(s)
		}
		if c.IsNullToken(s) {
			continue
		}
		if _, err := toFloat(s); err != nil {
			return model.KindText
		}
	}
	return model.KindNumber
}

// ToSQLArg converts a cell into a database/sql argument
func ToSQLArg(v model.Value, kind model.Kind) interface{} {
	if v.Null {
		return nil
	}
	if kind == model.KindText {
		return v.Text
	}
	return v.Num
}
