package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// LoadDotenv loads variables from the given files (default ".env") without
// overriding values already present in the environment. Missing files are ignored.
func LoadDotenv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func String(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func RequiredString(key string) (string, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func Port(key, fallback string) (string, error) {
	v := String(key, fallback)
	p, err := strconv.Atoi(v)
	if err != nil || p < 1 || p > 65535 {
		return "", fmt.Errorf("%s must be a valid TCP port (got %q)", key, v)
	}
	return v, nil
}

// Int returns the integer value of key, or fallback when unset, malformed or below min.
func Int(key string, fallback, min int) int {
	v, err := strconv.Atoi(String(key, ""))
	if err != nil || v < min {
		return fallback
	}
	return v
}

// Seconds reads a positive number of seconds as a duration.
func Seconds(key string, fallback time.Duration) time.Duration {
	n := Int(key, 0, 1)
	if n == 0 {
		return fallback
	}
	return time.Duration(n) * time.Second
}

func Bool(key string, fallback bool) bool {
	v := String(key, "")
	if v == "" {
		return fallback
	}
	return IsTruthy(v)
}

func IsTruthy(s string) bool {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// List splits a comma separated value, dropping blanks.
func List(key, fallback string) []string {
	return SplitList(String(key, fallback))
}

func SplitList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
