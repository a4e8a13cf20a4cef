package main

import (
	"io"
	"io/ioutil"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
)

var logger *golog.Logger

// SetLogger overrides the main logger of this command.
func SetLogger(l *golog.Logger) {
	logger = l
}

var logLevels = []log.Level{
	log.Warning,
	log.Info,
	log.Debug,
}

// verbosityLevel maps the number of -v flags to a log level.
func verbosityLevel(numVerbose int) log.Level {
	if numVerbose >= len(logLevels) {
		numVerbose = len(logLevels) - 1
	}
	return logLevels[numVerbose]
}

// newLogger returns the command logger writing to w at the given verbosity.
func newLogger(w io.Writer, numVerbose int) *golog.Logger {
	return golog.New(w, verbosityLevel(numVerbose))
}

func init() {
	// Set a default null logger
	SetLogger(golog.New(ioutil.Discard, log.Debug))
}
