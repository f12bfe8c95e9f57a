// Package logging builds the zerolog logger shared by the binaries.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the level and outputs of the logger.
type Options struct {
	Level   string
	File    string // rotated with lumberjack when set
	Console bool   // human readable output instead of JSON on stdout
	Out     io.Writer
}

// New returns the logger and a function releasing its file output.
func New(o Options) (zerolog.Logger, func() error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(o.Level)))
	if err != nil || o.Level == "" {
		level = zerolog.InfoLevel
	}

	var out io.Writer = os.Stdout
	if o.Out != nil {
		out = o.Out
	}
	if o.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	closer := func() error { return nil }
	if o.File != "" {
		lj := &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, lj)
		closer = lj.Close
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	if err != nil {
		logger.Warn().Str("level", o.Level).Msg("unknown log level, using info")
	}
	return logger, closer
}
