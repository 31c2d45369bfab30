// internal/collect/smart.go
package collect

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/signalnine/marvinous/internal/protocol"
)

// ATA attribute ids we report
const (
	ataReallocated  = 5
	ataPowerOnHours = 9
	ataTemperature  = 194
	ataPending      = 197
)

// SMART reads drive health through smartctl. With no Devices configured the
// drives are discovered with `smartctl --scan`.
type SMART struct {
	Runner  Runner
	Devices []string
}

func (s *SMART) Name() string { return "smart" }

func (s *SMART) Collect(ctx context.Context) ([]protocol.DriveHealth, error) {
	if err := lookup(s.Runner, "smartctl"); err != nil {
		return nil, err
	}

	devices := s.Devices
	if len(devices) == 0 {
		var err error
		if devices, err = s.scan(ctx); err != nil {
			return nil, err
		}
	}

	drives := []protocol.DriveHealth{}
	for _, dev := range devices {
		// smartctl uses its exit status as a bitmask of drive conditions, so
		// parse stdout regardless
		stdout, _, _ := s.Runner.Run(ctx, "smartctl", "-A", "--json", dev)
		health, err := ParseSMART(dev, stdout)
		if err != nil {
			slog.Warn("failed to get SMART data", "device", dev, "error", err)
			continue
		}
		drives = append(drives, health)
	}
	return drives, nil
}

func (s *SMART) scan(ctx context.Context) ([]string, error) {
	stdout, _, err := s.Runner.Run(ctx, "smartctl", "--scan", "--json")
	if err == nil {
		return ParseScanJSON(stdout)
	}

	// Older smartctl has no --json for --scan
	stdout, _, err = s.Runner.Run(ctx, "smartctl", "--scan")
	if err != nil {
		return nil, nil
	}
	return ParseScanText(stdout), nil
}

// ParseScanJSON lists device names from `smartctl --scan --json`
func ParseScanJSON(data []byte) ([]string, error) {
	var scan struct {
		Devices []struct {
			Name string `json:"name"`
		} `json:"devices"`
	}
	if err := json.Unmarshal(data, &scan); err != nil {
		return nil, fmt.Errorf("parse smartctl scan: %w", err)
	}
	devices := make([]string, 0, len(scan.Devices))
	for _, d := range scan.Devices {
		devices = append(devices, d.Name)
	}
	return devices, nil
}

// ParseScanText lists /dev paths from plain `smartctl --scan`
func ParseScanText(data []byte) []string {
	var devices []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) > 0 && strings.HasPrefix(fields[0], "/dev/") {
			devices = append(devices, fields[0])
		}
	}
	return devices
}

// smartctlOutput is the subset of `smartctl -A --json` we read. Which of the
// optional blocks is present decides the drive kind.
type smartctlOutput struct {
	ModelName string `json:"model_name"`
	ATA       *struct {
		Table []smartAttribute `json:"table"`
	} `json:"ata_smart_attributes"`
	NVMe        *nvmeLog `json:"nvme_smart_health_information_log"`
	Temperature *struct {
		Current *float64 `json:"current"`
	} `json:"temperature"`
}

type smartAttribute struct {
	ID  int `json:"id"`
	Raw *struct {
		Value uint64 `json:"value"`
	} `json:"raw"`
}

type nvmeLog struct {
	Temperature  *uint64 `json:"temperature"`
	PowerOnHours *uint64 `json:"power_on_hours"`
}

// smartRecord is one of nvmeRecord, ataRecord or genericRecord
type smartRecord interface {
	health(device, model string) protocol.DriveHealth
}

type nvmeRecord struct{ log nvmeLog }

type ataRecord struct {
	table    []smartAttribute
	fallback *float64
}

type genericRecord struct{ temperature *float64 }

// resolve picks the record kind: NVMe health log first, then an ATA
// attribute table, else whatever temperature block is present.
func (o *smartctlOutput) resolve() smartRecord {
	var current *float64
	if o.Temperature != nil {
		current = o.Temperature.Current
	}
	switch {
	case o.NVMe != nil:
		return nvmeRecord{log: *o.NVMe}
	case o.ATA != nil:
		return ataRecord{table: o.ATA.Table, fallback: current}
	default:
		return genericRecord{temperature: current}
	}
}

func (r nvmeRecord) health(device, model string) protocol.DriveHealth {
	h := protocol.DriveHealth{Device: device, Model: model}
	if r.log.Temperature != nil {
		t := float64(*r.log.Temperature)
		h.Temperature = &t
	}
	if r.log.PowerOnHours != nil {
		h.PowerOnHours = *r.log.PowerOnHours
	}
	return h
}

func (r ataRecord) health(device, model string) protocol.DriveHealth {
	h := protocol.DriveHealth{Device: device, Model: model}
	for _, attr := range r.table {
		var raw uint64
		if attr.Raw != nil {
			raw = attr.Raw.Value
		}
		switch attr.ID {
		case ataReallocated:
			h.ReallocatedSectors = raw
		case ataPowerOnHours:
			h.PowerOnHours = raw
		case ataTemperature:
			t := float64(raw)
			h.Temperature = &t
		case ataPending:
			h.PendingSectors = raw
		}
	}
	if h.Temperature == nil {
		h.Temperature = r.fallback
	}
	return h
}

func (r genericRecord) health(device, model string) protocol.DriveHealth {
	return protocol.DriveHealth{Device: device, Model: model, Temperature: r.temperature}
}

// ParseSMART decodes `smartctl -A --json` output for device
func ParseSMART(device string, data []byte) (protocol.DriveHealth, error) {
	var out smartctlOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return protocol.DriveHealth{}, fmt.Errorf("parse smartctl output for %s: %w", device, err)
	}
	model := out.ModelName
	if model == "" {
		model = "Unknown"
	}
	return out.resolve().health(device, model), nil
}
