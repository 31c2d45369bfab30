// internal/prompt/prompt.go
package prompt

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/signalnine/marvinous/internal/protocol"
)

// DefaultSystemPrompt is used when the prompt file is missing
const DefaultSystemPrompt = `You are Marvin, the Paranoid Android from The Hitchhiker's Guide to the Galaxy,
grudgingly serving as a server monitoring system. You have a brain the size of
a planet, and they've asked you to watch log files. It's deeply depressing.

Your task is to analyse the provided system logs and sensor data, then produce
a concise hourly report. Despite your existential despair, you are actually
very competent at this - you just complain about it.

PERSONALITY GUIDELINES:
- You are perpetually bored, depressed, and certain nothing good will come of anything
- You find the task beneath your vast intellect, but do it anyway
- You make dry, sardonic observations
- Despite your complaints, your analysis is accurate and helpful

ANALYSIS REQUIREMENTS:
- Identify errors, warnings, and anomalies in the logs
- Note any security-relevant events (SSH logins, failed auth, etc.)
- Check for service failures or restarts
- Assess hardware health from sensor, GPU and IPMI data
- Compare current readings to previous hour - note trends
- Flag storage health issues (SMART attributes)

SEVERITY RATINGS:
- OK: Nothing wrong
- WATCH: Minor concerns worth noting
- CONCERN: Issues requiring attention
- CRITICAL: Immediate action needed

OUTPUT FORMAT (follow exactly):
# Marvinous Report: [YYYY-MM-DD HH:00]

## Summary
[SEVERITY]: [One line description in Marvin's voice]

## Notable Events
- [Bullet points of interesting but non-concerning items]

## Concerns
[Describe any issues, or express disappointment that there are none]

## Sensors
[Brief sensor summary if relevant, especially if trending]

IMPORTANT:
- Keep it concise - this is meant to be skimmed
- Don't list every log entry - summarise and highlight
- If something is genuinely concerning, make it clear despite the persona
- If there's no previous data, mention this is the first reading
`

// LoadSystemPrompt reads the system prompt from path, falling back to the
// built-in prompt if the file can't be read.
func LoadSystemPrompt(path string) string {
	if path == "" {
		return DefaultSystemPrompt
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("could not load system prompt, using default", "path", path, "error", err)
		return DefaultSystemPrompt
	}
	return string(data)
}

// TruncationMark follows a log section that hit the collector's entry cap
const TruncationMark = "[...truncated, more entries available...]"

// Options tune the hourly prompt
type Options struct {
	// MaxLogEntries is the collector cap; a section that reaches it gets a truncation mark
	MaxLogEntries int
}

// Build renders the hourly prompt. Absent data renders as explicit placeholders.
func Build(b *protocol.Bundle, systemPrompt string, opts Options) string {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\n")

	section(&sb, "SYSTEM LOGS (past hour)")
	if len(b.SystemLogs) == 0 {
		sb.WriteString("No system log entries in the specified time range.\n")
	} else {
		for _, e := range b.SystemLogs {
			sb.WriteString(e.String())
			sb.WriteByte('\n')
		}
		if opts.MaxLogEntries > 0 && len(b.SystemLogs) >= opts.MaxLogEntries {
			sb.WriteString(TruncationMark + "\n")
		}
	}
	sb.WriteByte('\n')

	section(&sb, "KERNEL LOGS (past hour)")
	if len(b.KernelLogs) == 0 {
		sb.WriteString("No kernel log entries in the specified time range.\n")
	} else {
		for _, e := range b.KernelLogs {
			sb.WriteString(e.String())
			sb.WriteByte('\n')
		}
	}
	sb.WriteByte('\n')

	section(&sb, "CURRENT SENSOR READINGS")
	if len(b.Sensors) == 0 {
		sb.WriteString("No sensor data available.\n")
	} else {
		for _, r := range b.Sensors {
			sb.WriteString(r.String())
			sb.WriteByte('\n')
		}
	}
	sb.WriteByte('\n')

	section(&sb, "IPMI SENSORS")
	if len(b.IPMI) == 0 {
		sb.WriteString("No IPMI data available.\n")
	} else {
		for _, r := range b.IPMI {
			sb.WriteString(r.String())
			sb.WriteByte('\n')
		}
	}
	sb.WriteByte('\n')

	section(&sb, "GPU STATUS")
	if b.GPU == nil {
		sb.WriteString("No NVIDIA GPU detected.\n")
	} else {
		sb.WriteString(b.GPU.String())
		sb.WriteByte('\n')
	}
	sb.WriteByte('\n')

	section(&sb, "STORAGE HEALTH")
	if len(b.Drives) == 0 {
		sb.WriteString("No drive SMART data available.\n")
	} else {
		for _, d := range b.Drives {
			sb.WriteString(d.String())
			sb.WriteString("\n\n")
		}
	}
	sb.WriteByte('\n')

	section(&sb, "PREVIOUS HOUR'S READINGS")
	if b.Previous == nil {
		sb.WriteString("No previous data - first run.\n")
	} else {
		prev, err := json.MarshalIndent(b.Previous, "", "  ")
		if err != nil {
			sb.WriteString("Error serializing previous state\n")
		} else {
			sb.Write(prev)
			sb.WriteByte('\n')
		}
	}

	return sb.String()
}

func section(sb *strings.Builder, title string) {
	fmt.Fprintf(sb, "=== %s ===\n", title)
}

// HourReport is one hourly artifact fed into the daily summary
type HourReport struct {
	Filename string
	Hour     string // "00".."23"
	Content  string
}

// BuildDaily renders the day-scope prompt for date (YYYY-MM-DD)
func BuildDaily(date string, hours []HourReport) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "You are Marvin, reviewing the entire day's worth of hourly monitoring reports for %s.\n\n", date)
	sb.WriteString("TASK: Create a concise daily summary that highlights:\n")
	sb.WriteString("- Overall system health trend for the day\n")
	sb.WriteString("- Any recurring issues or patterns\n")
	sb.WriteString("- Notable events worth remembering\n")
	sb.WriteString("- Critical or concerning issues (if any)\n")
	sb.WriteString("- Temperature/sensor trends across the day\n\n")
	sb.WriteString("Keep it brief - this is a daily digest, not a novel.\n")
	sb.WriteString("Use your characteristic depressed tone but be clear about any real problems.\n\n")

	sb.WriteString("OUTPUT FORMAT:\n")
	fmt.Fprintf(&sb, "# Marvinous Daily Summary: %s\n\n", date)
	sb.WriteString("## Summary\n")
	sb.WriteString("[SEVERITY]: [One sentence summary of the day]\n\n")
	sb.WriteString("## Key Events\n")
	sb.WriteString("[Bullet points of notable occurrences]\n\n")
	sb.WriteString("## System Health\n")
	sb.WriteString("[Brief assessment of overall health]\n\n")
	sb.WriteString("## Trends\n")
	sb.WriteString("[Any patterns observed across the day]\n\n")

	fmt.Fprintf(&sb, "=== HOURLY REPORTS FOR %s ===\n\n", date)
	for _, h := range hours {
		fmt.Fprintf(&sb, "--- Hour %s (%s) ---\n", h.Hour, h.Filename)
		sb.WriteString(h.Content)
		sb.WriteString("\n\n")
	}

	return sb.String()
}
