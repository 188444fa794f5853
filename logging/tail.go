package logging

import (
	"bufio"
	"os"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/juju/loggo"
)

// Line is one parsed run log line.
type Line struct {
	Timestamp time.Time
	Level     string
	Message   string
}

// ParseLine splits a run log line. It reports false for lines not written
// by FormatEntry.
func ParseLine(s string) (Line, bool) {
	parts := strings.SplitN(s, " - ", 3)
	if len(parts) != 3 {
		return Line{}, false
	}
	ts, err := time.ParseInLocation(TimestampLayout, parts[0], time.Local)
	if err != nil {
		return Line{}, false
	}
	if _, err := ParseLevel(parts[1]); err != nil {
		return Line{}, false
	}
	return Line{Timestamp: ts, Level: parts[1], Message: parts[2]}, true
}

// Tail returns up to limit of the most recent lines at or above minLevel,
// oldest first. A limit of zero or less returns every matching line.
func Tail(path string, limit int, minLevel string) ([]Line, error) {
	min, err := ParseLevel(minLevel)
	if err != nil {
		return nil, errors.Trace(err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Annotate(err, "opening log file")
	}
	defer f.Close()

	var lines []Line
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line, ok := ParseLine(scanner.Text())
		if !ok {
			continue
		}
		if level, _ := ParseLevel(line.Level); level < min {
			continue
		}
		lines = append(lines, line)
		if limit > 0 && len(lines) > limit {
			lines = lines[1:]
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Annotate(err, "reading log file")
	}
	return lines, nil
}

// Severity returns the loggo level of a parsed line.
func (l Line) Severity() loggo.Level {
	level, _ := ParseLevel(l.Level)
	return level
}
