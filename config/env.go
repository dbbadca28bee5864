// Package config provides the typed environment accessor handed to service
// factories. The pipeline itself never reads process configuration; factories
// declare what they need through an Env so tests can substitute values
// without touching the real environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Env reads configuration values from an environment-shaped lookup.
type Env struct {
	lookup func(key string) (string, bool)
}

// New returns an Env backed by the process environment.
func New() *Env {
	return &Env{lookup: os.LookupEnv}
}

// NewFromMap returns an Env backed by a fixed map, for tests.
func NewFromMap(values map[string]string) *Env {
	return &Env{lookup: func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}}
}

// String returns the value for key, or fallback when unset or empty.
func (e *Env) String(key, fallback string) string {
	if value, ok := e.lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

// Require returns the value for key or an error when unset or empty.
func (e *Env) Require(key string) (string, error) {
	value, ok := e.lookup(key)
	if !ok || value == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return value, nil
}

// Int returns the integer value for key, or fallback when unset or invalid.
func (e *Env) Int(key string, fallback int) int {
	value, ok := e.lookup(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// Bool returns the boolean value for key, or fallback when unset or invalid.
func (e *Env) Bool(key string, fallback bool) bool {
	value, ok := e.lookup(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// Duration returns the duration value for key, or fallback when unset or
// invalid. Values use time.ParseDuration syntax ("30s", "5m").
func (e *Env) Duration(key string, fallback time.Duration) time.Duration {
	value, ok := e.lookup(key)
	if !ok || value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
