// internal/report/daily.go
package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/zeebo/blake3"

	"github.com/signalnine/marvinous/internal/fsutil"
	"github.com/signalnine/marvinous/internal/prompt"
)

// ArchiveDir is the subdirectory of the report dir holding daily archives
const ArchiveDir = "archive"

var (
	// ErrNoReportsForDate means there was nothing to roll up; not a fault
	ErrNoReportsForDate = errors.New("no reports found for date")
	// ErrInvalidDate means the date is not YYYY-MM-DD
	ErrInvalidDate = errors.New("invalid date")
	// ErrArchive wraps failures to build or verify the archive
	ErrArchive = errors.New("archive hourly reports")
)

// Generator turns a prompt into narrative text
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a function to Generator
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Roller summarizes a day of hourly reports and archives them
type Roller struct {
	Generator Generator
	// BuildPrompt defaults to prompt.BuildDaily
	BuildPrompt func(date string, hours []prompt.HourReport) string
}

// DailyResult describes a finished rollup
type DailyResult struct {
	Date           string
	SummaryPath    string
	ArchivePath    string
	Archived       []string
	DeleteFailures int
}

// YesterdayUTC is the date the scheduled rollup summarizes
func YesterdayUTC(now time.Time) string {
	return now.UTC().AddDate(0, 0, -1).Format(dateLayout)
}

// FindHourly lists the hourly artifacts in dir for date, in chronological order.
func FindHourly(dir, date string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() || !strings.HasPrefix(name, date) || !IsHourlyName(name) {
			continue
		}
		names = append(names, name)
	}
	// Fixed-width names sort chronologically
	sort.Strings(names)
	return names, nil
}

// SummarizeDay rolls up the hourly reports for date:
//  1. summarize them through the Generator into DATE-DAILY.md
//  2. write them all into archive/DATE.zip and verify it
//  3. only then delete the originals, best-effort
func (r *Roller) SummarizeDay(ctx context.Context, dir, date string) (*DailyResult, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidDate, date, err)
	}

	names, err := FindHourly(dir, date)
	if err != nil {
		return nil, fmt.Errorf("read report dir: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoReportsForDate, date)
	}
	slog.Info("found hourly reports", "date", date, "count", len(names))

	hours := make([]prompt.HourReport, 0, len(names))
	contents := make(map[string][]byte, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		contents[name] = data
		hours = append(hours, prompt.HourReport{Filename: name, Hour: name[11:13], Content: string(data)})
	}

	build := r.BuildPrompt
	if build == nil {
		build = prompt.BuildDaily
	}
	text := build(date, hours)
	slog.Info("sending daily summary prompt", "date", date, "chars", len(text))

	summary, err := r.Generator.Generate(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("generate daily summary: %w", err)
	}

	res := &DailyResult{Date: date, Archived: names}

	res.SummaryPath = filepath.Join(dir, DailyName(date))
	if err := fsutil.WriteFileAtomic(res.SummaryPath, []byte(summary), 0644); err != nil {
		return nil, fmt.Errorf("write daily summary: %w", err)
	}
	slog.Info("daily summary written", "path", res.SummaryPath)

	res.ArchivePath, err = writeArchive(dir, date, names, contents)
	if err != nil {
		return nil, err
	}
	slog.Info("hourly reports archived", "path", res.ArchivePath, "count", len(names))

	for _, name := range names {
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			res.DeleteFailures++
			slog.Warn("failed to delete archived report", "file", name, "error", err)
		}
	}

	slog.Info("daily rollup complete", "date", date, "delete_failures", res.DeleteFailures)
	return res, nil
}

// writeArchive builds archive/DATE.zip from contents. Entries already in an
// earlier archive for the same date are carried over unless superseded. The
// container is built in a temp file, renamed into place, then reopened and
// checked against the originals.
func writeArchive(dir, date string, names []string, contents map[string][]byte) (string, error) {
	archiveDir := filepath.Join(dir, ArchiveDir)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchive, err)
	}
	path := filepath.Join(archiveDir, date+".zip")

	carried, err := readArchive(path)
	if err != nil {
		return "", fmt.Errorf("%w: read existing %s: %v", ErrArchive, path, err)
	}
	for _, name := range names {
		delete(carried, name)
	}

	want := make(map[string][32]byte, len(contents)+len(carried))
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	add := func(name string, data []byte, modified time.Time) error {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: modified})
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		want[name] = blake3.Sum256(data)
		return nil
	}

	older := make([]string, 0, len(carried))
	for name := range carried {
		older = append(older, name)
	}
	sort.Strings(older)
	for _, name := range older {
		if err := add(name, carried[name], time.Now()); err != nil {
			return "", fmt.Errorf("%w: %v", ErrArchive, err)
		}
	}
	for _, name := range names {
		modified := time.Now()
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil {
			modified = info.ModTime()
		}
		if err := add(name, contents[name], modified); err != nil {
			return "", fmt.Errorf("%w: %v", ErrArchive, err)
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchive, err)
	}

	if err := fsutil.WriteFileAtomic(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrArchive, err)
	}

	if err := verifyArchive(path, want); err != nil {
		return "", fmt.Errorf("%w: verify %s: %v", ErrArchive, path, err)
	}
	return path, nil
}

// readArchive loads every entry of an existing archive. A missing archive is empty.
func readArchive(path string) (map[string][]byte, error) {
	out := make(map[string][]byte)
	zr, err := zip.OpenReader(path)
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	for _, f := range zr.File {
		data, err := readEntry(f)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Name, err)
		}
		out[f.Name] = data
	}
	return out, nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// verifyArchive checks that the archive at path holds exactly the entries in
// want with matching content hashes.
func verifyArchive(path string, want map[string][32]byte) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return err
	}
	defer zr.Close()

	seen := make(map[string]bool, len(zr.File))
	for _, f := range zr.File {
		sum, ok := want[f.Name]
		if !ok {
			return fmt.Errorf("unexpected entry %s", f.Name)
		}
		data, err := readEntry(f)
		if err != nil {
			return fmt.Errorf("%s: %w", f.Name, err)
		}
		if blake3.Sum256(data) != sum {
			return fmt.Errorf("%s: content mismatch", f.Name)
		}
		seen[f.Name] = true
	}
	if len(seen) != len(want) {
		return fmt.Errorf("archive has %d of %d entries", len(seen), len(want))
	}
	return nil
}
