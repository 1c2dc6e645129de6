package main

import (
	"io"
	"log/slog"
	"os"

	"hermannm.dev/devlog"

	"assistnow/internal/config"
)

// level is shared by every handler installed below so -debug can raise it
// after the config has been read.
var level slog.LevelVar

// Until the config is loaded, log to stderr. stdout stays clean for
// -trace-summary.
func init() {
	installLogger(os.Stderr, false)
}

func installLogger(w io.Writer, addSource bool) {
	slog.SetDefault(slog.New(devlog.NewHandler(w, &devlog.Options{
		Level:     &level,
		AddSource: addSource,
	})))
}

// configureLogging applies the log section. debug overrides the level.
func configureLogging(lc config.LogConfig, debug bool) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(lc.Level)); err != nil {
		lvl = slog.LevelInfo
	}
	if debug {
		lvl = slog.LevelDebug
	}
	level.Set(lvl)

	var w io.Writer = os.Stderr
	if lc.Output == config.LogStdout {
		w = os.Stdout
	}
	installLogger(w, lc.Source)
}
