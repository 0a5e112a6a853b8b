// Package logging routes the standard logger to a rotating file.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where log output goes and how the file rotates.
type Config struct {
	// File is the log file. Empty uses DefaultFile.
	File string
	// Stderr also copies every line to standard error.
	Stderr     bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultFile is ~/.local/state/gitgrid/gitgrid.log, or "" when the home
// directory cannot be found.
func DefaultFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "gitgrid", "gitgrid.log")
}

// Setup points the standard logger at the configured outputs and returns a
// func that closes the file. When no file can be opened, logs go to stderr.
func Setup(cfg Config) func() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	path := cfg.File
	if path == "" {
		path = DefaultFile()
	}
	if path == "" {
		log.SetOutput(os.Stderr)
		return func() {}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		log.SetOutput(os.Stderr)
		log.Printf("logging: cannot create log dir, using stderr: %v", err)
		return func() {}
	}

	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	var out io.Writer = file
	if cfg.Stderr {
		out = io.MultiWriter(os.Stderr, file)
	}
	log.SetOutput(out)
	return func() {
		log.SetOutput(os.Stderr)
		_ = file.Close()
	}
}
