// Package logger configures the process-wide zerolog logger.
//
// All packages log through github.com/rs/zerolog/log; this package only owns
// the one-time setup (level, format, destination) driven by configuration.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configures the global logger.
//
// level is one of debug, info, warn, error (case-insensitive).
// format is "text" (console writer) or "json".
// output is "stdout", "stderr", or a file path (opened in append mode).
func Setup(level, format, output string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zerolog.SetGlobalLevel(lvl)

	w, err := destination(output)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		log.Logger = zerolog.New(w).With().Timestamp().Logger()
	case "text", "":
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w})
	default:
		return fmt.Errorf("invalid log format %q (want text or json)", format)
	}

	return nil
}

func destination(output string) (io.Writer, error) {
	switch output {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %q: %w", output, err)
		}
		return f, nil
	}
}
