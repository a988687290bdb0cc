// seehuhn.de/go/pdfscrub - forensic scanning and cleaning of PDF files
// Copyright (C) 2026  Jochen Voss <voss@seehuhn.de>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads the settings of the pdfscrub service and command
// line tool.
//
// Configuration is read from a single YAML file, given either explicitly
// or through the PDFSCRUB_CONFIG environment variable.  Values missing
// from the file keep their defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvVar names the environment variable which holds the path of the
// configuration file.
const EnvVar = "PDFSCRUB_CONFIG"

// Config is the complete configuration.
type Config struct {
	Scanner ScannerConfig `yaml:"scanner"`
	Cleaner CleanerConfig `yaml:"cleaner"`
	XRef    XRefConfig    `yaml:"xref"`
	Limits  LimitsConfig  `yaml:"limits"`
	Log     LogConfig     `yaml:"log"`
}

// ScannerConfig bounds a single forensic scan.
type ScannerConfig struct {
	// MaxDepth is the maximal nesting depth of the object graph.
	MaxDepth int `yaml:"max_depth"`

	// MaxMemory is the number of object bytes a scan may read.
	// Zero means no limit.
	MaxMemory int64 `yaml:"max_memory"`

	// Timeout is the wall clock limit of a scan.  Zero means no limit.
	Timeout time.Duration `yaml:"timeout"`

	// CacheTTL and CacheBytes configure the scan result cache.
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	CacheBytes int64         `yaml:"cache_bytes"`
}

// CleanerConfig configures the output of sanitized documents.
type CleanerConfig struct {
	CacheTTL   time.Duration `yaml:"cache_ttl"`
	CacheBytes int64         `yaml:"cache_bytes"`

	// XRefStream selects a compressed cross-reference stream instead of
	// a classic cross-reference table for the output files.
	XRefStream bool `yaml:"xref_stream"`
}

// XRefConfig configures the cross-reference tables of loaded documents.
type XRefConfig struct {
	MaxGeneration uint16 `yaml:"max_generation"`

	// GCThreshold is the number of free entries which triggers a
	// background collection.  A negative value disables collection.
	GCThreshold int `yaml:"gc_threshold"`
}

// LimitsConfig bounds the number of concurrent operations.
type LimitsConfig struct {
	MaxConcurrentScans  int64         `yaml:"max_concurrent_scans"`
	MaxConcurrentCleans int64         `yaml:"max_concurrent_cleans"`
	AcquireTimeout      time.Duration `yaml:"acquire_timeout"`
}

// LogConfig selects the log output.
type LogConfig struct {
	// Level is one of debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Scanner: ScannerConfig{
			MaxDepth:   64,
			MaxMemory:  256 << 20,
			Timeout:    30 * time.Second,
			CacheTTL:   time.Hour,
			CacheBytes: 64 << 20,
		},
		Cleaner: CleanerConfig{
			CacheTTL:   time.Hour,
			CacheBytes: 256 << 20,
		},
		XRef: XRefConfig{
			MaxGeneration: 65535,
			GCThreshold:   64,
		},
		Limits: LimitsConfig{
			MaxConcurrentScans:  8,
			MaxConcurrentCleans: 4,
			AcquireTimeout:      10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the configuration file at path.  If path is empty, the file
// named by PDFSCRUB_CONFIG is used, and if that variable is unset too,
// the defaults are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML configuration on top of the defaults and
// validates the result.  Unknown keys are an error.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	err := dec.Decode(cfg)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all values are in range.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Scanner.MaxDepth > 0, "scanner.max_depth must be positive, got %d", c.Scanner.MaxDepth)
	check(c.Scanner.MaxMemory >= 0, "scanner.max_memory must not be negative")
	check(c.Scanner.Timeout >= 0, "scanner.timeout must not be negative")
	check(c.Scanner.CacheTTL >= 0, "scanner.cache_ttl must not be negative")
	check(c.Scanner.CacheBytes >= 0, "scanner.cache_bytes must not be negative")
	check(c.Cleaner.CacheTTL >= 0, "cleaner.cache_ttl must not be negative")
	check(c.Cleaner.CacheBytes >= 0, "cleaner.cache_bytes must not be negative")
	check(c.XRef.MaxGeneration > 0, "xref.max_generation must be positive")
	check(c.Limits.MaxConcurrentScans > 0,
		"limits.max_concurrent_scans must be positive, got %d", c.Limits.MaxConcurrentScans)
	check(c.Limits.MaxConcurrentCleans > 0,
		"limits.max_concurrent_cleans must be positive, got %d", c.Limits.MaxConcurrentCleans)
	check(c.Limits.AcquireTimeout >= 0, "limits.acquire_timeout must not be negative")

	var lvl slog.Level
	check(lvl.UnmarshalText([]byte(c.Log.Level)) == nil, "log.level: invalid level %q", c.Log.Level)
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format: invalid format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}
