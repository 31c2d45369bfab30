// internal/protocol/types.go
package protocol

import (
	"fmt"
	"time"
)

// LogEntry is one journal line
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Priority  int       `json:"priority"`
	Unit      string    `json:"unit,omitempty"`
	Message   string    `json:"message"`
}

func (e LogEntry) String() string {
	unit := e.Unit
	if unit == "" {
		unit = "unknown"
	}
	return fmt.Sprintf("%s [%d] %s: %s", e.Timestamp.UTC().Format("Jan 02 15:04:05"), e.Priority, unit, e.Message)
}

// SensorReading is a single lm-sensors input value
type SensorReading struct {
	Chip   string  `json:"chip"`
	Sensor string  `json:"sensor"`
	Value  float64 `json:"value"`
	Unit   string  `json:"unit"`
}

func (r SensorReading) String() string {
	return fmt.Sprintf("%s/%s: %.1f%s", r.Chip, r.Sensor, r.Value, r.Unit)
}

// GPUStatus is the nvidia-smi summary for the first GPU
type GPUStatus struct {
	Name        string  `json:"name"`
	Temperature float64 `json:"temperature"`
	MemoryUsed  uint64  `json:"memory_used"`
	MemoryTotal uint64  `json:"memory_total"`
	Utilisation uint8   `json:"utilisation"`
	PowerDraw   float64 `json:"power_draw"`
}

func (g GPUStatus) String() string {
	var memPct uint64
	if g.MemoryTotal > 0 {
		memPct = g.MemoryUsed * 100 / g.MemoryTotal
	}
	return fmt.Sprintf("%s\nTemperature: %.0f°C\nMemory: %d MiB / %d MiB (%d%%)\nUtilisation: %d%%\nPower: %.1fW",
		g.Name, g.Temperature, g.MemoryUsed, g.MemoryTotal, memPct, g.Utilisation, g.PowerDraw)
}

// DriveHealth is the flattened SMART record for one device
type DriveHealth struct {
	Device             string   `json:"device"`
	Model              string   `json:"model"`
	ReallocatedSectors uint64   `json:"reallocated_sectors"`
	PendingSectors     uint64   `json:"pending_sectors"`
	Temperature        *float64 `json:"temperature,omitempty"`
	PowerOnHours       uint64   `json:"power_on_hours"`
}

func (d DriveHealth) String() string {
	temp := "N/A"
	if d.Temperature != nil {
		temp = fmt.Sprintf("%.0f", *d.Temperature)
	}
	return fmt.Sprintf("%s - %s\n  Reallocated Sectors: %d\n  Pending Sectors: %d\n  Temperature: %s°C\n  Power On Hours: %d",
		d.Device, d.Model, d.ReallocatedSectors, d.PendingSectors, temp, d.PowerOnHours)
}

// IPMIReading is one `ipmitool sdr list` row
type IPMIReading struct {
	Sensor string `json:"sensor"`
	Value  string `json:"value"`
	Status string `json:"status"`
}

func (r IPMIReading) String() string {
	return fmt.Sprintf("%s: %s (%s)", r.Sensor, r.Value, r.Status)
}

// Snapshot is the previous run's readings, kept for trend comparison
type Snapshot struct {
	Timestamp time.Time       `json:"timestamp"`
	Sensors   []SensorReading `json:"sensors"`
	GPU       *GPUStatus      `json:"gpu,omitempty"`
	Drives    []DriveHealth   `json:"drives"`
}

// Bundle is everything collected for one pipeline run
type Bundle struct {
	SystemLogs []LogEntry      `json:"system_logs"`
	KernelLogs []LogEntry      `json:"kernel_logs"`
	Sensors    []SensorReading `json:"sensors"`
	IPMI       []IPMIReading   `json:"ipmi"`
	GPU        *GPUStatus      `json:"gpu,omitempty"`
	Drives     []DriveHealth   `json:"drives"`
	Previous   *Snapshot       `json:"previous,omitempty"`
}

// SnapshotAt captures the bundle's trendable readings at ts
func (b *Bundle) SnapshotAt(ts time.Time) *Snapshot {
	return &Snapshot{
		Timestamp: ts.UTC(),
		Sensors:   b.Sensors,
		GPU:       b.GPU,
		Drives:    b.Drives,
	}
}

// RunRecord is what we persist to the history DB for every guarded run
type RunRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Kind       string    `json:"kind"` // "hourly" or "daily"
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    string    `json:"outcome"`
	Severity   string    `json:"severity,omitempty"`
	ReportFile string    `json:"report_file,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
	LatencyMs  int64     `json:"latency_ms"`
}
