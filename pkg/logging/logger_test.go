// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(42), "UNKNOWN"},
	}
	for _, tc := range tests {
		if got := tc.level.String(); got != tc.want {
			t.Errorf("Level(%d).String() = %q, want %q", tc.level, got, tc.want)
		}
	}
}

func TestFileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelDebug,
		LogDir:  dir,
		Service: "test",
		Quiet:   true,
	})
	logger.Slog().Info("hello", "key", "value")
	logger.Slog().Debug("low level")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	name := "test_" + time.Now().Format("2006-01-02") + ".log"
	file, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("expected log file: %v", err)
	}
	defer file.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			t.Fatalf("file log is not JSON: %v", err)
		}
		lines = append(lines, entry)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(lines))
	}
	if lines[0]["msg"] != "hello" || lines[0]["key"] != "value" {
		t.Errorf("unexpected first entry: %v", lines[0])
	}
	if lines[0]["service"] != "test" {
		t.Errorf("missing service attribute: %v", lines[0])
	}
}

func TestLevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "filtered",
		Quiet:   true,
	})
	logger.Slog().Info("dropped")
	logger.Slog().Warn("kept")
	logger.Close()

	name := "filtered_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	content := string(data)
	if strings.Contains(content, "dropped") {
		t.Error("Info entry should have been filtered at LevelWarn")
	}
	if !strings.Contains(content, "kept") {
		t.Error("Warn entry missing from log file")
	}
}

func TestMultiHandlerEnabled(t *testing.T) {
	dir := t.TempDir()
	file, err := os.Create(filepath.Join(dir, "a.log"))
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()

	m := &multiHandler{handlers: []slog.Handler{
		slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelError}),
		slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}}
	if !m.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("multiHandler should be enabled if any destination is")
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home dir in environment")
	}
	got := expandPath("~/logs")
	want := filepath.Join(home, "logs")
	if got != want {
		t.Errorf("expandPath(~/logs) = %q, want %q", got, want)
	}
	if got := expandPath("/var/log"); got != "/var/log" {
		t.Errorf("absolute path should pass through, got %q", got)
	}
}
