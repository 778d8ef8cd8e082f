package main

import (
	"io/ioutil"

	"github.com/alexcesaro/log"
	"github.com/alexcesaro/log/golog"
)

// logger is the CLI's leveled logger. Library packages log through their own
// SetLogger, which main only enables at debug level.
var logger *golog.Logger

// SetLogger overrides the CLI logger.
func SetLogger(l *golog.Logger) {
	logger = l
}

func init() {
	// Silent until main picks a level.
	SetLogger(golog.New(ioutil.Discard, log.Debug))
}
