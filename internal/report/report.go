// internal/report/report.go
package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/signalnine/marvinous/internal/fsutil"
)

const (
	// Ext is the extension of every report artifact
	Ext = ".md"

	hourLayout = "2006-01-02-15"
	dateLayout = "2006-01-02"
	dailyTag   = "-DAILY"

	// len("2006-01-02-15.md")
	hourlyNameLen = len(hourLayout) + len(Ext)
)

// HourlyName is the artifact filename for the hour containing ts (UTC)
func HourlyName(ts time.Time) string {
	return ts.UTC().Format(hourLayout) + Ext
}

// DailyName is the summary artifact filename for date (YYYY-MM-DD)
func DailyName(date string) string {
	return date + dailyTag + Ext
}

// IsHourlyName reports whether name has the YYYY-MM-DD-HH.md shape
func IsHourlyName(name string) bool {
	if len(name) != hourlyNameLen || name[10] != '-' || name[13] != '.' || !strings.HasSuffix(name, Ext) {
		return false
	}
	_, err := time.Parse(hourLayout, name[:13])
	return err == nil
}

// WriteHourly writes text to dir/YYYY-MM-DD-HH.md, replacing any earlier
// report for the same hour.
func WriteHourly(dir string, ts time.Time, text string) (string, error) {
	path := filepath.Join(dir, HourlyName(ts))
	if err := fsutil.WriteFileAtomic(path, []byte(text), 0644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	slog.Info("report written", "path", path)
	return path, nil
}

// Meta describes one report on disk
type Meta struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	Daily     bool      `json:"daily"`
	Severity  string    `json:"severity"`
	SizeBytes int64     `json:"size_bytes"`
}

// ParseFilenameTime returns the time a report filename refers to. DAILY
// reports map to midnight of their date. ok is false for unrecognized names.
func ParseFilenameTime(name string) (ts time.Time, daily bool, ok bool) {
	base := strings.TrimSuffix(name, Ext)
	if base == name {
		return time.Time{}, false, false
	}
	if d, found := strings.CutSuffix(base, dailyTag); found {
		t, err := time.Parse(dateLayout, d)
		return t, true, err == nil
	}
	t, err := time.Parse(hourLayout, base)
	return t, false, err == nil
}

// ListReports returns every report in dir, newest first. Severity is
// recomputed from each file. Files that cannot be read right now (e.g.
// mid-replace) are skipped.
func ListReports(dir string) ([]Meta, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return []Meta{}, nil
	}
	if err != nil {
		return nil, err
	}

	reports := make([]Meta, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		ts, daily, ok := ParseFilenameTime(entry.Name())
		if !ok {
			continue
		}

		m, err := ReadMeta(dir, entry.Name())
		if err != nil {
			slog.Debug("skipping unreadable report", "file", entry.Name(), "error", err)
			continue
		}
		m.Timestamp = ts
		m.Daily = daily
		reports = append(reports, *m)
	}

	sort.Slice(reports, func(i, j int) bool {
		if reports[i].Timestamp.Equal(reports[j].Timestamp) {
			return reports[i].Filename > reports[j].Filename
		}
		return reports[i].Timestamp.After(reports[j].Timestamp)
	})
	return reports, nil
}

// ReadMeta reads one report and computes its metadata
func ReadMeta(dir, name string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	ts, daily, _ := ParseFilenameTime(name)
	return &Meta{
		Filename:  name,
		Timestamp: ts,
		Daily:     daily,
		Severity:  Classify(string(data)).Lower(),
		SizeBytes: int64(len(data)),
	}, nil
}
