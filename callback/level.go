package callback

import (
	"fmt"
	"strings"
)

// Level is the severity attached to a log line crossing the LogNotifier boundary.
type Level uint8

// Severity levels, lowest to highest
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
	LevelCritical
)

var levelNames = [...]string{
	LevelDebug:    "debug",
	LevelInfo:     "info",
	LevelWarning:  "warning",
	LevelError:    "error",
	LevelCritical: "critical",
}

// Levels returns every defined severity in ascending order.
func Levels() []Level {
	return []Level{LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical}
}

// Valid reports whether l is one of the defined severities.
func (l Level) Valid() bool {
	return l <= LevelCritical
}

func (l Level) String() string {
	if !l.Valid() {
		return fmt.Sprintf("level(%d)", uint8(l))
	}
	return levelNames[l]
}

// ParseLevel converts a level name back to a Level.
// "warn" and "fatal" are accepted as aliases for warning and critical.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "critical", "fatal":
		return LevelCritical, nil
	default:
		return LevelDebug, fmt.Errorf("unknown log level: %q", s)
	}
}
