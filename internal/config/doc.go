// Package config loads, validates, and watches prosecheck configuration.
//
// Configuration lives in a single TOML file with one table per pipeline
// stage:
//
//	[segment]
//	max_chunk_size = 5000
//	overlap_size = 200
//
//	[dispatch]
//	max_concurrency = 2
//	background_delay_ms = 20000
//
//	[coordinate]
//	debounce_window_ms = 300
//
//	[analyze]
//	engine = "style"
//
// Every value has a built-in default, so an empty or missing file is a
// complete configuration. Load returns the defaults when the file does
// not exist; only a file that exists and fails to parse or validate is
// an error.
//
// # Live Reload
//
// Watcher monitors the configuration file and delivers a freshly loaded
// and validated Config to registered handlers after edits settle. A file
// that reloads into an invalid state is reported through the error
// handler and the previous configuration stays in effect.
package config
