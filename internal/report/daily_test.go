// internal/report/daily_test.go
package report

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedDay(t *testing.T, dir, date string, hours int) []string {
	t.Helper()
	names := make([]string, 0, hours)
	for h := 0; h < hours; h++ {
		name := fmt.Sprintf("%s-%02d.md", date, h)
		body := fmt.Sprintf("# Marvinous Report: %s %02d:00\n\n## Summary\nOK: hour %d\n", date, h, h)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0644))
		names = append(names, name)
	}
	return names
}

func zipEntries(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()

	out := make(map[string]string)
	for _, f := range zr.File {
		data, err := readEntry(f)
		require.NoError(t, err)
		out[f.Name] = string(data)
	}
	return out
}

func TestSummarizeDay(t *testing.T) {
	dir := t.TempDir()
	names := seedDay(t, dir, "2025-01-01", 24)
	// Neighbouring days and foreign files must be left alone
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2025-01-02-00.md"), []byte("next day"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2025-01-01-notes.md"), []byte("notes"), 0644))

	var gotPrompt string
	roller := &Roller{Generator: GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		gotPrompt = p
		return "Day summary X", nil
	})}

	res, err := roller.SummarizeDay(context.Background(), dir, "2025-01-01")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "2025-01-01-DAILY.md"), res.SummaryPath)
	assert.Equal(t, filepath.Join(dir, "archive", "2025-01-01.zip"), res.ArchivePath)
	assert.Equal(t, names, res.Archived)
	assert.Zero(t, res.DeleteFailures)

	summary, err := os.ReadFile(res.SummaryPath)
	require.NoError(t, err)
	assert.Equal(t, "Day summary X", string(summary))

	entries := zipEntries(t, res.ArchivePath)
	assert.Len(t, entries, 24)
	assert.Contains(t, entries["2025-01-01-13.md"], "OK: hour 13")

	for _, name := range names {
		assert.NoFileExists(t, filepath.Join(dir, name))
	}
	assert.FileExists(t, filepath.Join(dir, "2025-01-02-00.md"))
	assert.FileExists(t, filepath.Join(dir, "2025-01-01-notes.md"))

	// Prompt carries every hour in order
	assert.Contains(t, gotPrompt, "--- Hour 00 (2025-01-01-00.md) ---")
	assert.Contains(t, gotPrompt, "--- Hour 23 (2025-01-01-23.md) ---")
	assert.Less(t, strings.Index(gotPrompt, "Hour 00"), strings.Index(gotPrompt, "Hour 23"))
	assert.NotContains(t, gotPrompt, "next day")
}

// An original that vanishes before cleanup is counted and skipped; the
// rollup still succeeds with every entry archived.
func TestSummarizeDayDeleteFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	names := seedDay(t, dir, "2025-01-01", 3)

	roller := &Roller{Generator: GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		require.NoError(t, os.Remove(filepath.Join(dir, names[1])))
		return "summary", nil
	})}

	res, err := roller.SummarizeDay(context.Background(), dir, "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeleteFailures)
	assert.Equal(t, names, res.Archived)
	assert.FileExists(t, filepath.Join(dir, "2025-01-01-DAILY.md"))

	entries := zipEntries(t, res.ArchivePath)
	assert.Len(t, entries, 3)
	assert.Contains(t, entries[names[1]], "OK: hour 1")

	for _, name := range names {
		assert.NoFileExists(t, filepath.Join(dir, name))
	}
}

func TestSummarizeDayNoReports(t *testing.T) {
	dir := t.TempDir()
	seedDay(t, dir, "2025-01-02", 3)

	called := false
	roller := &Roller{Generator: GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		called = true
		return "", nil
	})}

	_, err := roller.SummarizeDay(context.Background(), dir, "2025-01-01")
	require.ErrorIs(t, err, ErrNoReportsForDate)
	assert.False(t, called)
	assert.NoFileExists(t, filepath.Join(dir, "2025-01-01-DAILY.md"))
	assert.NoDirExists(t, filepath.Join(dir, ArchiveDir))

	// Missing directory is the same non-event
	_, err = roller.SummarizeDay(context.Background(), filepath.Join(dir, "nope"), "2025-01-01")
	assert.ErrorIs(t, err, ErrNoReportsForDate)
}

func TestSummarizeDayGeneratorFailureKeepsOriginals(t *testing.T) {
	dir := t.TempDir()
	names := seedDay(t, dir, "2025-01-01", 5)

	boom := errors.New("backend down")
	roller := &Roller{Generator: GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		return "", boom
	})}

	_, err := roller.SummarizeDay(context.Background(), dir, "2025-01-01")
	require.ErrorIs(t, err, boom)

	for _, name := range names {
		assert.FileExists(t, filepath.Join(dir, name))
	}
	assert.NoFileExists(t, filepath.Join(dir, "2025-01-01-DAILY.md"))
	assert.NoDirExists(t, filepath.Join(dir, ArchiveDir))
}

func TestSummarizeDayCarriesExistingArchive(t *testing.T) {
	dir := t.TempDir()
	roller := &Roller{Generator: GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		return "summary", nil
	})}

	seedDay(t, dir, "2025-01-01", 2)
	_, err := roller.SummarizeDay(context.Background(), dir, "2025-01-01")
	require.NoError(t, err)

	// A late hour shows up after the first rollup
	late := "2025-01-01-23.md"
	require.NoError(t, os.WriteFile(filepath.Join(dir, late), []byte("late"), 0644))

	res, err := roller.SummarizeDay(context.Background(), dir, "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, []string{late}, res.Archived)

	entries := zipEntries(t, res.ArchivePath)
	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"2025-01-01-00.md", "2025-01-01-01.md", late}, names)
	assert.Equal(t, "late", entries[late])
}

func TestSummarizeDayInvalidDate(t *testing.T) {
	roller := &Roller{Generator: GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		return "", nil
	})}
	_, err := roller.SummarizeDay(context.Background(), t.TempDir(), "2025-13-45")
	require.ErrorIs(t, err, ErrInvalidDate)
	assert.NotErrorIs(t, err, ErrNoReportsForDate)
}

func TestFindHourlyIgnoresDaily(t *testing.T) {
	dir := t.TempDir()
	seedDay(t, dir, "2025-01-01", 2)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "2025-01-01-DAILY.md"), []byte("x"), 0644))

	names, err := FindHourly(dir, "2025-01-01")
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-01-01-00.md", "2025-01-01-01.md"}, names)
}

func TestYesterdayUTC(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 30, 0, 0, time.UTC)
	assert.Equal(t, "2025-02-28", YesterdayUTC(now))
}
