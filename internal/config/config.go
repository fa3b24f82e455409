package config

import (
	"time"

	"golang.org/x/text/language"
)

// Analyzer engine names accepted in the analyze section.
const (
	// EngineStyle selects the built-in prose style analyzer.
	EngineStyle = "style"

	// EngineLua selects the Lua rule engine driven by a rules directory.
	EngineLua = "lua"
)

// Log level names accepted in the log section.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Config is the complete prosecheck configuration. The zero value is not
// usable; start from Default or Load.
type Config struct {
	Segment    SegmentConfig    `toml:"segment"`
	Dispatch   DispatchConfig   `toml:"dispatch"`
	Coordinate CoordinateConfig `toml:"coordinate"`
	Analyze    AnalyzeConfig    `toml:"analyze"`
	Log        LogConfig        `toml:"log"`
}

// SegmentConfig tunes how documents are cut into chunks.
type SegmentConfig struct {
	// MaxChunkSize bounds the byte length of every chunk.
	MaxChunkSize int `toml:"max_chunk_size"`

	// OverlapSize is the number of bytes repeated between adjacent chunks.
	OverlapSize int `toml:"overlap_size"`

	// RespectSentenceBoundaries moves cuts back to sentence ends instead
	// of cutting mid-sentence.
	RespectSentenceBoundaries bool `toml:"respect_sentence_boundaries"`

	// Language is a BCP 47 tag selecting the abbreviation set used during
	// boundary detection. Empty selects English.
	Language string `toml:"language"`
}

// DispatchConfig tunes concurrent chunk analysis.
type DispatchConfig struct {
	// MaxConcurrency caps how many chunks are analyzed at once.
	MaxConcurrency int `toml:"max_concurrency"`

	// BackgroundDelayMs is how long off-screen chunks wait before their
	// analysis wave starts, in milliseconds.
	BackgroundDelayMs int `toml:"background_delay_ms"`
}

// BackgroundDelay returns the background wave delay as a duration.
func (d DispatchConfig) BackgroundDelay() time.Duration {
	return time.Duration(d.BackgroundDelayMs) * time.Millisecond
}

// CoordinateConfig tunes the content update coordinator.
type CoordinateConfig struct {
	// DebounceWindowMs is how long a human edit holds off queued
	// programmatic updates, in milliseconds.
	DebounceWindowMs int `toml:"debounce_window_ms"`

	// DrainPauseMs is the pause between consecutive queued applications,
	// in milliseconds.
	DrainPauseMs int `toml:"drain_pause_ms"`

	// QueueCapacity bounds how many programmatic updates may wait.
	QueueCapacity int `toml:"queue_capacity"`
}

// DebounceWindow returns the typing hold window as a duration.
func (c CoordinateConfig) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceWindowMs) * time.Millisecond
}

// DrainPause returns the inter-application pause as a duration.
func (c CoordinateConfig) DrainPause() time.Duration {
	return time.Duration(c.DrainPauseMs) * time.Millisecond
}

// AnalyzeConfig selects and tunes the analyzer.
type AnalyzeConfig struct {
	// Engine names the analyzer implementation: "style" or "lua".
	Engine string `toml:"engine"`

	// RulesDir is the directory holding the Lua rules manifest. Required
	// when Engine is "lua", ignored otherwise.
	RulesDir string `toml:"rules_dir"`

	// LongSentenceLimit is the grapheme count past which the style
	// analyzer flags a sentence.
	LongSentenceLimit int `toml:"long_sentence_limit"`

	// RateLimit caps analyzer calls per second. Zero disables limiting.
	RateLimit float64 `toml:"rate_limit"`

	// RateBurst is the token bucket burst size used when RateLimit is set.
	RateBurst int `toml:"rate_burst"`
}

// LogConfig tunes logging output.
type LogConfig struct {
	// Level is the minimum level emitted: debug, info, warn, or error.
	Level string `toml:"level"`
}

// Default returns the built-in configuration: 5000 byte chunks with 200
// bytes of overlap, two concurrent analyses, a 20 second background
// delay, a 300 ms typing hold, and the style analyzer.
func Default() Config {
	return Config{
		Segment: SegmentConfig{
			MaxChunkSize:              5000,
			OverlapSize:               200,
			RespectSentenceBoundaries: true,
		},
		Dispatch: DispatchConfig{
			MaxConcurrency:    2,
			BackgroundDelayMs: 20000,
		},
		Coordinate: CoordinateConfig{
			DebounceWindowMs: 300,
			DrainPauseMs:     50,
			QueueCapacity:    8,
		},
		Analyze: AnalyzeConfig{
			Engine:            EngineStyle,
			LongSentenceLimit: 250,
			RateBurst:         1,
		},
		Log: LogConfig{
			Level: LevelInfo,
		},
	}
}

// Validate checks every section and returns the first rejected value as
// a ValidationError.
func (c Config) Validate() error {
	if err := c.Segment.validate(); err != nil {
		return err
	}
	if err := c.Dispatch.validate(); err != nil {
		return err
	}
	if err := c.Coordinate.validate(); err != nil {
		return err
	}
	if err := c.Analyze.validate(); err != nil {
		return err
	}
	return c.Log.validate()
}

func (s SegmentConfig) validate() error {
	if s.MaxChunkSize <= 0 {
		return &ValidationError{Path: "segment.max_chunk_size", Message: "must be positive", Value: s.MaxChunkSize}
	}
	if s.OverlapSize <= 0 {
		return &ValidationError{Path: "segment.overlap_size", Message: "must be positive", Value: s.OverlapSize}
	}
	if s.MaxChunkSize <= 2*s.OverlapSize {
		return &ValidationError{Path: "segment.max_chunk_size", Message: "must exceed twice segment.overlap_size", Value: s.MaxChunkSize}
	}
	if s.Language != "" {
		if _, err := language.Parse(s.Language); err != nil {
			return &ValidationError{Path: "segment.language", Message: "not a valid BCP 47 tag", Value: s.Language}
		}
	}
	return nil
}

func (d DispatchConfig) validate() error {
	if d.MaxConcurrency < 1 {
		return &ValidationError{Path: "dispatch.max_concurrency", Message: "must be at least 1", Value: d.MaxConcurrency}
	}
	if d.BackgroundDelayMs < 0 {
		return &ValidationError{Path: "dispatch.background_delay_ms", Message: "cannot be negative", Value: d.BackgroundDelayMs}
	}
	return nil
}

func (c CoordinateConfig) validate() error {
	if c.DebounceWindowMs < 0 {
		return &ValidationError{Path: "coordinate.debounce_window_ms", Message: "cannot be negative", Value: c.DebounceWindowMs}
	}
	if c.DrainPauseMs < 0 {
		return &ValidationError{Path: "coordinate.drain_pause_ms", Message: "cannot be negative", Value: c.DrainPauseMs}
	}
	if c.QueueCapacity < 1 {
		return &ValidationError{Path: "coordinate.queue_capacity", Message: "must be at least 1", Value: c.QueueCapacity}
	}
	return nil
}

func (a AnalyzeConfig) validate() error {
	switch a.Engine {
	case EngineStyle, EngineLua:
	default:
		return &ValidationError{Path: "analyze.engine", Message: "must be \"style\" or \"lua\"", Value: a.Engine}
	}
	if a.Engine == EngineLua && a.RulesDir == "" {
		return &ValidationError{Path: "analyze.rules_dir", Message: "required when analyze.engine is \"lua\"", Value: a.RulesDir}
	}
	if a.LongSentenceLimit < 1 {
		return &ValidationError{Path: "analyze.long_sentence_limit", Message: "must be at least 1", Value: a.LongSentenceLimit}
	}
	if a.RateLimit < 0 {
		return &ValidationError{Path: "analyze.rate_limit", Message: "cannot be negative", Value: a.RateLimit}
	}
	if a.RateLimit > 0 && a.RateBurst < 1 {
		return &ValidationError{Path: "analyze.rate_burst", Message: "must be at least 1 when analyze.rate_limit is set", Value: a.RateBurst}
	}
	return nil
}

func (l LogConfig) validate() error {
	switch l.Level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return nil
	default:
		return &ValidationError{Path: "log.level", Message: "must be debug, info, warn, or error", Value: l.Level}
	}
}
