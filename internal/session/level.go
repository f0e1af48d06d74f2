package session

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

var ErrInvalidLevel = errors.New("session: invalid permission level")

// Level is an ordered permission level; a grant satisfies any requirement at
// or below its own level.
type Level uint8

const (
	LevelNone Level = iota
	LevelRead
	LevelWrite
	LevelExec
)

func (l Level) String() string {
	switch l {
	case LevelRead:
		return "r"
	case LevelWrite:
		return "w"
	case LevelExec:
		return "x"
	default:
		return "-"
	}
}

// ParseLevel accepts "r", "w", "x" and "-" (no access).
func ParseLevel(raw string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "r", "read":
		return LevelRead, nil
	case "w", "write":
		return LevelWrite, nil
	case "x", "exec":
		return LevelExec, nil
	case "-", "none":
		return LevelNone, nil
	default:
		return LevelNone, fmt.Errorf("%w: %q", ErrInvalidLevel, raw)
	}
}

// Grant allows access to every (scope, object, method) its globs match.
type Grant struct {
	Scope  string
	Object string
	Method string
	Level  Level
}

func (g Grant) Matches(scope, object, method string) bool {
	return globMatch(g.Scope, scope) && globMatch(g.Object, object) && globMatch(g.Method, method)
}

func globMatch(pattern, name string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	ok, err := path.Match(pattern, name)
	return err == nil && ok
}

// User is a loaded password store entry. Users are immutable after load.
type User struct {
	Username     string
	PasswordHash string
	Grants       []Grant
}
