// Package cli holds the startup sequence shared by the songgen binaries.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/book-expert/logger"
	"github.com/book-expert/songgen/internal/config"
)

const bootstrapLogSuffix = "-bootstrap.log"

// App is a loaded configuration plus the binary's own logger.
type App struct {
	Config *config.Config
	Log    *logger.Logger
}

// Bootstrap creates a temporary logger, loads the configuration, creates
// the output directories and opens <name>.log under the configured log
// directory.
func Bootstrap(name string) (*App, error) {
	bootstrapLog, err := logger.New(os.TempDir(), name+bootstrapLogSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	defer func() { _ = bootstrapLog.Close() }()

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	err = cfg.EnsureDirectories()
	if err != nil {
		bootstrapLog.Error("Failed to create directories: %v", err)

		return nil, err
	}

	log, err := logger.New(cfg.Paths.BaseLogsDir, name+".log")
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, fmt.Errorf("failed to create final logger: %w", err)
	}

	return &App{Config: cfg, Log: log}, nil
}

// Close flushes the binary's logger.
func (a *App) Close() {
	err := a.Log.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", err)
	}
}

// PrintJSON writes v to w as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(v)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}

	return nil
}

// Exit prints err to stderr and exits non-zero. It returns when err is nil.
func Exit(err error) {
	if err == nil {
		return
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
