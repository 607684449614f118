// Package qlog is a minimal levelled logger matching the call-site
// shape of rclone's fs.Debugf/fs.Infof/fs.Logf/fs.Errorf: a subject
// (anything with a String(), or nil) followed by a format string and
// args. It exists so every package in this module logs the same way
// the teacher's backends do, rather than reaching for the stdlib log
// package directly at dozens of call sites.
package qlog

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// Level controls which of Debugf/Infof/Logf/Errorf actually print.
type Level int32

const (
	LevelError Level = iota
	LevelInfo
	LevelDebug
)

var level = int32(LevelInfo)
var std = log.New(os.Stderr, "", log.LstdFlags)

// SetLevel changes the global verbosity. Safe for concurrent use.
func SetLevel(l Level) { atomic.StoreInt32(&level, int32(l)) }

func current() Level { return Level(atomic.LoadInt32(&level)) }

func prefix(o any) string {
	if o == nil {
		return ""
	}
	if s, ok := o.(fmt.Stringer); ok {
		return s.String() + ": "
	}
	return fmt.Sprintf("%v: ", o)
}

// Debugf logs at debug level. o is an optional subject (endpoint, part,
// request...) rendered as a prefix via its String() method.
func Debugf(o any, format string, args ...any) {
	if current() < LevelDebug {
		return
	}
	std.Printf("DEBUG: "+prefix(o)+format, args...)
}

// Infof logs at info level.
func Infof(o any, format string, args ...any) {
	if current() < LevelInfo {
		return
	}
	std.Printf("INFO : "+prefix(o)+format, args...)
}

// Logf is an alias for Infof, matching the teacher's fs.Logf name used
// for "always show unless quiet" messages.
func Logf(o any, format string, args ...any) {
	Infof(o, format, args...)
}

// Errorf always logs, regardless of level.
func Errorf(o any, format string, args ...any) {
	std.Printf("ERROR: "+prefix(o)+format, args...)
}
