package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "mboxport",
	Short:         "Migrate a Gmail Takeout mbox archive into an IMAP mailbox, label by label",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Logging level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-dir", "", "Directory for log files (in addition to stdout)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// setupLogger builds the process logger from the persistent flags. The
// returned level string drives the progress bar, which only renders at
// info. The cleanup closes the optional log file.
func setupLogger(cmd *cobra.Command) (*slog.Logger, string, func() error, error) {
	cleanup := func() error { return nil }

	logLevel, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, "", cleanup, err
	}
	logDir, err := cmd.Flags().GetString("log-dir")
	if err != nil {
		return nil, "", cleanup, err
	}

	logLevel = strings.ToLower(logLevel)
	if logLevel == "warning" {
		logLevel = "warn"
	}

	level := new(slog.LevelVar)
	switch logLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		return nil, "", cleanup, fmt.Errorf("invalid --log-level: %s", logLevel)
	}

	opts := &slog.HandlerOptions{Level: level}

	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, "", cleanup, err
		}

		logFilePath := filepath.Join(logDir, fmt.Sprintf("mboxport-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, "", cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), logLevel, cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), logLevel, cleanup, nil
}
