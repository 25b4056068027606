// Copyright 2012 The LevelDB-Go and Pebble Authors. All rights reserved. Use
// of this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package base

import (
	"log"
	"os"
)

// Logger defines the logging interface consumed by the engine. It matches
// the narrow surface the teacher's Options.Logger field expects: info
// lines for operational events (compactions, flushes, manifest rolls) and
// a fatal path for unrecoverable invariant violations.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// DefaultLogger writes to os.Stderr via the standard library logger. It is
// used whenever Options.Logger is left nil.
var DefaultLogger Logger = &stdLogger{log.New(os.Stderr, "", log.LstdFlags)}

type stdLogger struct {
	*log.Logger
}

func (l *stdLogger) Infof(format string, args ...interface{}) {
	l.Printf("INFO: "+format, args...)
}

func (l *stdLogger) Errorf(format string, args ...interface{}) {
	l.Printf("ERROR: "+format, args...)
}

func (l *stdLogger) Fatalf(format string, args ...interface{}) {
	l.Printf("FATAL: "+format, args...)
	os.Exit(1)
}
