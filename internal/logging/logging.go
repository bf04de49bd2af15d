// Package logging optionally mirrors the process log into a file in
// addition to stdout.
package logging

import (
	"io"
	"log"
	"os"
	"path/filepath"
)

// Init routes log output to both stdout and the file at path. An empty
// path leaves stdout-only logging in place. Failures are logged and
// otherwise non-fatal.
func Init(path string) {
	if path == "" {
		return
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		log.Printf("WARNING: cannot create log directory: %v", err)
		return
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("WARNING: cannot open log file %s: %v", path, err)
		return
	}

	log.SetOutput(io.MultiWriter(os.Stdout, f))
	log.Printf("logging to file: %s", path)
}
