// Package logging wraps github.com/charmbracelet/log so every package in
// this module logs through one consistent, structured backbone instead of
// the teacher's printf-style dw_printf/text_color_set pair (spec §9: the
// variadic printf/assertion macros are replaced with structured logging
// at boundary points only).
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

// New returns a logger prefixed with the given subsystem name, writing to
// stderr at Info level by default.
func New(subsystem string) *log.Logger {
	var l = log.NewWithOptions(os.Stderr, log.Options{
		Prefix:          subsystem,
		ReportTimestamp: true,
	})
	l.SetLevel(log.InfoLevel)
	return l
}

// GuestInputWarn logs an untrusted-data condition (a malformed BDL entry,
// an out-of-range register write) at Warn level. Per spec §9, this must
// never panic or assert in a release build — it always downgrades to a
// log event.
func GuestInputWarn(l *log.Logger, msg string, kv ...any) {
	l.Warn("guest input: "+msg, kv...)
}
