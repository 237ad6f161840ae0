package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"routined/internal/routine"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	root := newRootCmd()
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body = `{
  "timezone": "Asia/Seoul",
  "storage": { "driver": "sqlite", "path": "` + filepath.Join(dir, "routined.db") + `" }` + body + `
}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRoutineLifecycle(t *testing.T) {
	cfg := writeConfig(t, `,
  "holidays": { "static": [ { "date": "2025-05-05", "name": "Children's Day" } ] }`)

	out, err := run(t, "-c", cfg, "add", "stretch", "--id", "s", "--kind", "weekly", "--days", "1,2,3,4,5,6,7", "--at", "07:30")
	require.NoError(t, err)
	assert.Contains(t, out, "saved s (weekly)")
	assert.Contains(t, out, "next reminder")

	_, err = run(t, "-c", cfg, "add", "commute", "--id", "c", "--kind", "weekday_holiday", "--split", "weekday")
	require.NoError(t, err)

	_, err = run(t, "-c", cfg, "add", "broken", "--kind", "every_x_days", "--split", "holiday")
	assert.ErrorIs(t, err, routine.ErrUnsupportedCombination)

	out, err = run(t, "-c", cfg, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "stretch")
	assert.Contains(t, out, "split=weekday")

	out, err = run(t, "-c", cfg, "due", "2025-05-05")
	require.NoError(t, err)
	assert.Contains(t, out, "2025-05-05 (Monday)")
	assert.Contains(t, out, "[ ]  s")
	assert.NotContains(t, out, "commute", "holiday excludes the weekday side")

	_, err = run(t, "-c", cfg, "check", "c", "--date", "2025-05-05")
	require.Error(t, err)

	out, err = run(t, "-c", cfg, "check", "s", "--date", "2025-05-05")
	require.NoError(t, err)
	assert.Equal(t, "s done on 2025-05-05\n", out)

	out, err = run(t, "-c", cfg, "due", "2025-05-05")
	require.NoError(t, err)
	assert.Contains(t, out, "[x]  s")

	// stretch: 7 due, 1 done; commute: Tue..Fri due.
	out, err = run(t, "-c", cfg, "report", "weekly", "--date", "2025-05-07")
	require.NoError(t, err)
	assert.Contains(t, out, "weekly report 2025-05-05 .. 2025-05-11")
	assert.Contains(t, out, "completion  1/11 (9%)")
	assert.Contains(t, out, "most kept   stretch (1)")
	assert.Contains(t, out, "most missed stretch (6)")

	out, err = run(t, "-c", cfg, "next")
	require.NoError(t, err)
	assert.Contains(t, out, "07:30")

	out, err = run(t, "-c", cfg, "holidays", "2025-05")
	require.NoError(t, err)
	assert.Contains(t, out, "source: static")
	assert.Contains(t, out, "2025-05-05  Mon Children's Day")

	_, err = run(t, "-c", cfg, "rm", "s")
	require.NoError(t, err)
	_, err = run(t, "-c", cfg, "rm", "c")
	require.NoError(t, err)
	out, err = run(t, "-c", cfg, "list")
	require.NoError(t, err)
	assert.Equal(t, "no routines\n", out)
}

func TestConfigInitAndValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "etc", "routined.yaml")

	out, err := run(t, "-c", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote "+path)

	_, err = run(t, "-c", path, "config", "init")
	require.Error(t, err, "init must not overwrite without --force")
	_, err = run(t, "-c", path, "config", "init", "--force")
	require.NoError(t, err)

	out, err = run(t, "-c", path, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")
	assert.Contains(t, out, "resync    00:05")
}

func TestMissingConfigOutsideDefaultPathFails(t *testing.T) {
	_, err := run(t, "-c", filepath.Join(t.TempDir(), "nope.yaml"), "list")
	require.Error(t, err)
}

func TestParseDay(t *testing.T) {
	today := routine.NewDate(2024, time.March, 1)
	cases := []struct {
		in   string
		want routine.Date
		ok   bool
	}{
		{"", today, true},
		{"today", today, true},
		{"yesterday", routine.NewDate(2024, time.February, 29), true},
		{"tomorrow", routine.NewDate(2024, time.March, 2), true},
		{"2024-12-31", routine.NewDate(2024, time.December, 31), true},
		{"31/12/2024", routine.Date{}, false},
	}
	for _, tc := range cases {
		got, err := parseDay(tc.in, today)
		if !tc.ok {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "routined "+Version)
}
