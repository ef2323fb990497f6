package main

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunArguments(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no command", args: nil, wantErr: "missing command"},
		{name: "unknown command", args: []string{"frobnicate"}, wantErr: `unknown command "frobnicate"`},
		{name: "pub without topic", args: []string{"pub", "-m", "x"}, wantErr: "pub: -t is required"},
		{name: "req without topic", args: []string{"req"}, wantErr: "req: -t is required"},
		{name: "missing config file", args: []string{"-config", "/nonexistent/mqttier.yaml", "pub"}, wantErr: "reading config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(context.Background(), tt.args, &stdout, &stderr)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		cfg, err := loadConfig("")
		require.NoError(t, err)
		assert.Equal(t, []string{"tcp://localhost:1883"}, cfg.Servers)
	})

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "mqttier.yaml")
		require.NoError(t, os.WriteFile(path, []byte("servers: [\"ws://broker:8080/mqtt\"]\nclient_id: cli\n"), 0o600))

		cfg, err := loadConfig(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"ws://broker:8080/mqtt"}, cfg.Servers)
		assert.Equal(t, "cli", cfg.ClientID)
	})
}

func TestConsoleHandler(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	logger := slog.New(newConsoleHandler(&buf, slog.LevelInfo))

	logger.Debug("hidden")
	logger.With("client_id", "abc").WithGroup("conn").Info("connected", "server", "tcp://x")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "| INFO  | connected")
	assert.Contains(t, out, " client_id=abc")
	assert.Contains(t, out, " conn.server=tcp://x")
}
