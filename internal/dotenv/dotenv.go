// Package dotenv reads the KEY=VALUE environment file handed to the helper
// scripts (paths of the PKI, the server address, and so on).
package dotenv

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

var validKey = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseString parses dotenv-formatted text into a map. Blank lines and
// #-comments are skipped, an "export " prefix is accepted, and a line without
// '=' or with an invalid key is an error naming its line number.
func ParseString(s string) (map[string]string, error) {
	env := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(s))
	n := 0
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")

		key, val, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || !validKey.MatchString(key) {
			return nil, fmt.Errorf("line %d: expected KEY=VALUE", n)
		}
		env[key] = value(strings.TrimSpace(val))
	}
	return env, scanner.Err()
}

// value unquotes a quoted value, or strips a trailing " #comment" from a bare
// one.
func value(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') ||
			(s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	if i := strings.Index(s, " #"); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

// ParseFile reads and parses a .env file.
func ParseFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	env, err := ParseString(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return env, nil
}

// Environ converts env into sorted KEY=VALUE pairs suitable for exec.Cmd.Env.
func Environ(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

// LoadEnviron reads path and returns its pairs appended to the current
// process environment, so the file overrides inherited values. An empty path
// yields nil, meaning "inherit unchanged".
func LoadEnviron(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	env, err := ParseFile(path)
	if err != nil {
		return nil, err
	}
	return append(os.Environ(), Environ(env)...), nil
}
