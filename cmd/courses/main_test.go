package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes one CLI invocation against dir and returns its trimmed output.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--data", dir, "--agent", "alice", "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return strings.TrimSpace(out.String()), err
}

func mustRun(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := run(t, dir, args...)
	require.NoError(t, err, out)
	return out
}

func TestCourseWorkflow(t *testing.T) {
	dir := t.TempDir()

	course := mustRun(t, dir, "course", "create", "Algebra", "--timestamp", "100")
	require.Len(t, course, 64)

	assert.Equal(t, course, mustRun(t, dir, "course", "list"))
	assert.Equal(t, course, mustRun(t, dir, "course", "mine"))

	section := mustRun(t, dir, "section", "create", course, "Intro", "--timestamp", "101")
	assert.Equal(t, section, mustRun(t, dir, "course", "sections", course))

	k1 := mustRun(t, dir, "content", "create", section, "video1", "--url", "http://x", "--description", "intro video", "--timestamp", "102")
	assert.Equal(t, k1, mustRun(t, dir, "content", "list", section))

	k2 := mustRun(t, dir, "content", "update", section, k1, "--name", "video1-fixed", "--url", "http://y")
	assert.NotEqual(t, k1, k2)
	assert.Equal(t, k2, mustRun(t, dir, "content", "list", section))
	assert.Contains(t, mustRun(t, dir, "content", "get", k1), "video1")

	assert.Equal(t, course, mustRun(t, dir, "course", "update", course, section, "--title", "Linear Algebra"))
	got := mustRun(t, dir, "course", "get", course)
	assert.Contains(t, got, "Linear Algebra")
	assert.Contains(t, got, "Section:   "+section)

	assert.Equal(t, section, mustRun(t, dir, "section", "update", section, "Introduction"))
	assert.Contains(t, mustRun(t, dir, "section", "get", section), "Introduction")

	mustRun(t, dir, "section", "delete", section)
	assert.Equal(t, "section not found", mustRun(t, dir, "section", "get", section))
	assert.Contains(t, mustRun(t, dir, "content", "get", k2), "video1-fixed")

	mustRun(t, dir, "course", "delete", course)
	assert.Equal(t, "course not found", mustRun(t, dir, "course", "get", course))
	assert.Empty(t, mustRun(t, dir, "course", "list"))

	_, err := run(t, dir, "section", "create", course, "Late")
	assert.Error(t, err)
}

func TestEnrollmentCommands(t *testing.T) {
	dir := t.TempDir()

	course := mustRun(t, dir, "course", "create", "Algebra", "--request-id", "req-1", "--timestamp", "5")
	assert.Equal(t, course, mustRun(t, dir, "course", "create", "Algebra", "--request-id", "req-1", "--timestamp", "5"))

	section := mustRun(t, dir, "section", "create", course, "Intro", "--request-id", "req-2", "--timestamp", "6")
	assert.Equal(t, section, mustRun(t, dir, "section", "create", course, "Intro", "--request-id", "req-2", "--timestamp", "6"))
	assert.Equal(t, section, mustRun(t, dir, "course", "sections", course))

	mustRun(t, dir, "course", "enroll", course)
	assert.Equal(t, course, mustRun(t, dir, "course", "enrolled"))
	assert.Len(t, mustRun(t, dir, "course", "students", course), 64)

	mustRun(t, dir, "course", "unenroll", course)
	assert.Empty(t, mustRun(t, dir, "course", "enrolled"))

	assert.Equal(t, "removed 0 links", mustRun(t, dir, "course", "repair", course))
	assert.Equal(t, "checked 1 courses and 1 sections, removed 0 links", mustRun(t, dir, "repair", "--workers", "2"))
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "courses.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: memory\ncompression: lzma\n"), 0o600))

	course := mustRun(t, dir, "--config", path, "course", "create", "Algebra")
	assert.Len(t, course, 64)

	// the memory backend forgets everything between invocations
	assert.Empty(t, mustRun(t, dir, "--config", path, "course", "list"))
}

func TestInvalidArguments(t *testing.T) {
	dir := t.TempDir()

	_, err := run(t, dir, "course", "get", "not-hex")
	assert.Error(t, err)

	_, err = run(t, dir, "--backend", "postgres", "course", "list")
	assert.Error(t, err)

	_, err = run(t, dir, "course", "update", strings.Repeat("ab", 32))
	assert.Error(t, err, "--title is required")
}
