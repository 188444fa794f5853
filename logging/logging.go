// Package logging sets up the run log: an append-only file in the
// "<timestamp> - <LEVEL> - <message>" format plus a coloured console copy.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

// TimestampLayout is the timestamp format of every run log line.
const TimestampLayout = "2006-01-02 15:04:05.000"

// Config describes where the run log goes.
type Config struct {
	// File is opened for append and created when missing. Empty disables
	// the file writer.
	File string
	// Level is the minimum level written, e.g. "INFO" or "DEBUG".
	Level string
	// Console receives the coloured copy; nil means stderr.
	Console io.Writer
}

// Logging owns a loggo context. Components get loggers from it rather than
// from the process-wide default context.
type Logging struct {
	context *loggo.Context
	file    *os.File
}

// New builds the logging context described by cfg.
func New(cfg Config) (*Logging, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Trace(err)
	}

	l := &Logging{context: loggo.NewContext(level)}

	console := cfg.Console
	if console == nil {
		console = os.Stderr
	}
	if err := l.context.AddWriter("console", &consoleWriter{out: console}); err != nil {
		return nil, errors.Annotate(err, "adding console writer")
	}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err != nil {
			return nil, errors.Annotate(err, "opening log file")
		}
		l.file = f
		if err := l.context.AddWriter("file", loggo.NewSimpleWriter(f, FormatEntry)); err != nil {
			_ = f.Close()
			return nil, errors.Annotate(err, "adding file writer")
		}
	}
	return l, nil
}

// Logger returns the logger for a module, e.g. "archiveprune.runner".
func (l *Logging) Logger(module string) loggo.Logger {
	return l.context.GetLogger(module)
}

// Context exposes the underlying loggo context, mainly for tests that add
// their own writer.
func (l *Logging) Context() *loggo.Context {
	return l.context
}

// Close flushes and closes the log file.
func (l *Logging) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		_ = l.file.Close()
		return errors.Trace(err)
	}
	return l.file.Close()
}

// ParseLevel accepts loggo level names plus WARN. Empty means INFO.
func ParseLevel(s string) (loggo.Level, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch s {
	case "":
		return loggo.INFO, nil
	case "WARN":
		return loggo.WARNING, nil
	}
	level, ok := loggo.ParseLevel(s)
	if !ok {
		return loggo.UNSPECIFIED, errors.NotValidf("log level %q", s)
	}
	return level, nil
}

// LevelName is the name written to the run log. WARNING is shortened to
// WARN.
func LevelName(level loggo.Level) string {
	if level == loggo.WARNING {
		return "WARN"
	}
	return level.String()
}

// FormatEntry renders one entry as a single run log line without the
// trailing newline.
func FormatEntry(entry loggo.Entry) string {
	return fmt.Sprintf("%s - %s - %s",
		entry.Timestamp.Format(TimestampLayout),
		LevelName(entry.Level),
		oneLine(entry.Message),
	)
}

func oneLine(s string) string {
	return strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(s)
}

type consoleWriter struct {
	out io.Writer
}

var levelColors = map[loggo.Level]*color.Color{
	loggo.TRACE:    color.New(color.FgHiBlack),
	loggo.DEBUG:    color.New(color.FgCyan),
	loggo.INFO:     color.New(color.FgBlue, color.Bold),
	loggo.WARNING:  color.New(color.FgYellow, color.Bold),
	loggo.ERROR:    color.New(color.FgRed, color.Bold),
	loggo.CRITICAL: color.New(color.FgHiRed, color.Bold),
}

func (w *consoleWriter) Write(entry loggo.Entry) {
	name := fmt.Sprintf("%-5s", LevelName(entry.Level))
	if c, ok := levelColors[entry.Level]; ok {
		name = c.Sprint(name)
	}
	fmt.Fprintf(w.out, "%s %s %s\n", entry.Timestamp.Format("15:04:05"), name, entry.Message)
}
