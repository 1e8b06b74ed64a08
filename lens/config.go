package lens

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 8448
)

// Config holds settings for the collector server and the debugging client.
type Config struct {
	Host                           string
	Port, CacheMB, Width, MaxLines int
	StorageDir, Session            string
	LogFile, StatsFile, ReportFile string
	Color, Replay                  bool
	Formatter                      FormatterConfig
	// Custom flags support - all stored as strings for ease of use
	CustomFlags map[string]string
}

// Validate checks the config for contradicting or out of range values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	} else if c.Replay && c.StorageDir == "" {
		return errors.New("replay requires a storage directory")
	} else if c.MaxLines < 0 {
		return fmt.Errorf("invalid max lines: %d", c.MaxLines)
	} else if c.CacheMB < 0 {
		return fmt.Errorf("invalid cache size: %d", c.CacheMB)
	}
	return c.Formatter.Validate()
}

// Budget bounds how much of a value and trace is rendered.
type Budget struct {
	MaxDepth             int
	MaxStringLength      int
	MaxArrayInlineLength int
	MaxArrayInlineItems  int
	TraceLength          int
}

// DefaultBudget returns the standard render limits.
func DefaultBudget() Budget {
	return Budget{
		MaxDepth:             4,
		MaxStringLength:      1024,
		MaxArrayInlineLength: 100,
		MaxArrayInlineItems:  6,
		TraceLength:          3,
	}
}

// EscapeDialect selects how string contents are escaped.
type EscapeDialect uint8

const (
	EscapePlain EscapeDialect = iota
	EscapeGo
	EscapeJS
	EscapeJSON
	EscapeMySQL
	EscapePostgreSQL
	EscapeNamedControl
	EscapeSymbolic
	EscapeCP437
)

var escapeDialectNames = map[string]EscapeDialect{
	"plain":    EscapePlain,
	"go":       EscapeGo,
	"js":       EscapeJS,
	"json":     EscapeJSON,
	"mysql":    EscapeMySQL,
	"postgres": EscapePostgreSQL,
	"named":    EscapeNamedControl,
	"symbolic": EscapeSymbolic,
	"cp437":    EscapeCP437,
}

// ParseEscapeDialect maps a flag value to an EscapeDialect.
func ParseEscapeDialect(s string) (EscapeDialect, error) {
	if d, ok := escapeDialectNames[strings.ToLower(s)]; ok {
		return d, nil
	}
	return EscapePlain, fmt.Errorf("unknown escaping dialect: %s", s)
}

// JSONMode controls how strings holding JSON documents are shown.
type JSONMode uint8

const (
	// JSONOff only annotates the string as JSON.
	JSONOff JSONMode = iota
	// JSONInline renders the decoded document as a value in place of the string.
	JSONInline
	// JSONPretty renders the document re-indented.
	JSONPretty
)

// ParseJSONMode maps a flag value to a JSONMode.
func ParseJSONMode(s string) (JSONMode, error) {
	switch strings.ToLower(s) {
	case "off", "":
		return JSONOff, nil
	case "inline":
		return JSONInline, nil
	case "pretty":
		return JSONPretty, nil
	}
	return JSONOff, fmt.Errorf("unknown json mode: %s", s)
}

// FieldOrder selects the order composite fields are listed in.
type FieldOrder uint8

const (
	FieldOrderDeclaration FieldOrder = iota
	FieldOrderAlphabetic
	FieldOrderVisibility
)

// ParseFieldOrder maps a flag value to a FieldOrder.
func ParseFieldOrder(s string) (FieldOrder, error) {
	switch strings.ToLower(s) {
	case "declaration", "":
		return FieldOrderDeclaration, nil
	case "alphabetic":
		return FieldOrderAlphabetic, nil
	case "visibility":
		return FieldOrderVisibility, nil
	}
	return FieldOrderDeclaration, fmt.Errorf("unknown field order: %s", s)
}

// FormatterConfig is the immutable configuration threaded through a Dumper.
// Derive modified copies with the With methods instead of mutating a shared instance.
type FormatterConfig struct {
	Budget
	Heuristics     bool
	HiddenFields   []string
	Escaping       EscapeDialect
	EscapeNonASCII bool
	JSONMode       JSONMode
	FieldOrder     FieldOrder
	Indent         string
	Timezone       *time.Location
	SkipFrames     []SkipRule
	// BinaryChunkLength is the number of bytes per line when dumping binary strings.
	BinaryChunkLength int
	// StringInfoThreshold shows byte and character counts for strings longer than this.
	StringInfoThreshold int
	// Table layout tuning.
	FlexibleColumnRatio float64
	ColumnWidthCap      int
	WrapFillRatio       float64
	// Width is the table width, zero detects the terminal width.
	Width int
}

// DefaultFormatterConfig returns the standard dumper configuration.
func DefaultFormatterConfig() FormatterConfig {
	return FormatterConfig{
		Budget:              DefaultBudget(),
		Heuristics:          true,
		HiddenFields:        []string{"password", "passwd", "secret", "token", "apikey"},
		Indent:              "    ",
		Timezone:            time.Local,
		SkipFrames:          []SkipRule{{Package: "runtime"}, {Package: "testing"}},
		BinaryChunkLength:   16,
		StringInfoThreshold: 10,
		FlexibleColumnRatio: 2,
		ColumnWidthCap:      3,
		WrapFillRatio:       0.7,
	}
}

// WithBudget returns a copy of the config using b.
func (c FormatterConfig) WithBudget(b Budget) FormatterConfig {
	c.Budget = b
	return c
}

// WithHeuristics returns a copy of the config with heuristics toggled.
func (c FormatterConfig) WithHeuristics(on bool) FormatterConfig {
	c.Heuristics = on
	return c
}

// withDefaults fills zero limits and tuning values from DefaultFormatterConfig, so a partially built
// config still renders within bounds.
func (c FormatterConfig) withDefaults() FormatterConfig {
	def := DefaultFormatterConfig()
	if c.MaxDepth < 1 {
		c.MaxDepth = def.MaxDepth
	}
	if c.MaxStringLength < 1 {
		c.MaxStringLength = def.MaxStringLength
	}
	if c.BinaryChunkLength < 1 {
		c.BinaryChunkLength = def.BinaryChunkLength
	}
	if c.FlexibleColumnRatio <= 0 {
		c.FlexibleColumnRatio = def.FlexibleColumnRatio
	}
	if c.ColumnWidthCap < 1 {
		c.ColumnWidthCap = def.ColumnWidthCap
	}
	if c.WrapFillRatio <= 0 || c.WrapFillRatio > 1 {
		c.WrapFillRatio = def.WrapFillRatio
	}
	return c
}

// Validate checks the formatter limits.
func (c FormatterConfig) Validate() error {
	if c.MaxDepth < 1 {
		return fmt.Errorf("max depth must be positive: %d", c.MaxDepth)
	} else if c.MaxStringLength < 1 {
		return fmt.Errorf("max string length must be positive: %d", c.MaxStringLength)
	} else if c.TraceLength < 0 {
		return fmt.Errorf("trace length must not be negative: %d", c.TraceLength)
	} else if c.BinaryChunkLength < 1 {
		return fmt.Errorf("binary chunk length must be positive: %d", c.BinaryChunkLength)
	} else if c.WrapFillRatio < 0 || c.WrapFillRatio > 1 {
		return fmt.Errorf("wrap fill ratio out of range: %f", c.WrapFillRatio)
	}
	return nil
}

func (c FormatterConfig) location() *time.Location {
	if c.Timezone == nil {
		return time.Local
	}
	return c.Timezone
}

// isHidden reports if a field name matches the hidden field list, ignoring case and separators.
func (c FormatterConfig) isHidden(key string) bool {
	if key == "" {
		return false
	}
	normalized := strings.NewReplacer("_", "", "-", "").Replace(strings.ToLower(key))
	for _, h := range c.HiddenFields {
		if normalized == h || strings.HasSuffix(normalized, h) {
			return true
		}
	}
	return false
}
