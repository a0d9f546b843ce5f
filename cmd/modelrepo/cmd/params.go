package cmd

import (
	"database/sql"
	"regexp"
	"strconv"
	"strings"
)

var (
	paramNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	numberPattern    = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)
)

// parseParams converts -p flag values into command arguments. A value of the
// form name=value with an identifier name becomes a sql.NamedArg; anything
// else is positional.
func parseParams(raw []string) []any {
	args := make([]any, 0, len(raw))
	for _, p := range raw {
		if name, value, ok := strings.Cut(p, "="); ok && paramNamePattern.MatchString(name) {
			args = append(args, sql.Named(name, parseValue(value)))
			continue
		}
		args = append(args, parseValue(p))
	}
	return args
}

// parseValue infers the type of a literal: null, integers, floats and
// booleans are converted, everything else stays a string. Quoting a value
// with single quotes keeps it a string.
func parseValue(s string) any {
	if len(s) >= 2 && strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") {
		return s[1 : len(s)-1]
	}
	if strings.EqualFold(s, "null") {
		return nil
	}
	if numberPattern.MatchString(s) {
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
