// ABOUTME: Tests for CLI helpers
// ABOUTME: Covers flag parsing, limits, token lifetimes, logger output, and addresses

package main

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/photoid-gateway/internal/config"
)

func TestParseFlags(t *testing.T) {
	flags, err := parseFlags([]string{"--name", "ops", "--ttl=48h"}, "name", "ttl")
	require.NoError(t, err)
	assert.Equal(t, "ops", flags["name"])
	assert.Equal(t, "48h", flags["ttl"])

	_, err = parseFlags([]string{"--bogus", "x"}, "name")
	assert.ErrorContains(t, err, "unknown flag")

	_, err = parseFlags([]string{"--name"}, "name")
	assert.ErrorContains(t, err, "requires a value")

	_, err = parseFlags([]string{"stray"}, "name")
	assert.ErrorContains(t, err, "unexpected argument")
}

func TestParseLimit(t *testing.T) {
	n, err := parseLimit("")
	require.NoError(t, err)
	assert.Equal(t, 20, n)

	n, err = parseLimit("5")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	_, err = parseLimit("0")
	assert.Error(t, err)
	_, err = parseLimit("many")
	assert.Error(t, err)
}

func TestParseTTL(t *testing.T) {
	ttl, err := parseTTL("")
	require.NoError(t, err)
	assert.Equal(t, 30*24*time.Hour, ttl)

	ttl, err = parseTTL("2h")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, ttl)

	_, err = parseTTL("-1h")
	assert.Error(t, err)
	_, err = parseTTL("soon")
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestColorHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "info", Format: "text"}, &buf)

	logger.With("component", "gateway").Info("image stored", "identifier", "00042")
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "image stored")
	assert.Contains(t, out, "component=")
	assert.Contains(t, out, "00042")
	assert.NotContains(t, out, "hidden")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)

	logger.Debug("event handled", "outcome", "waiting")

	assert.Contains(t, buf.String(), `"msg":"event handled"`)
	assert.Contains(t, buf.String(), `"outcome":"waiting"`)
}

func TestLocalAddr(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Host: "0.0.0.0", Port: 8000}}
	assert.Equal(t, "127.0.0.1:8000", localAddr(cfg))

	cfg.Server.Host = "10.1.2.3"
	assert.Equal(t, "10.1.2.3:8000", localAddr(cfg))
}
