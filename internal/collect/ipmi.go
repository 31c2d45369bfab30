// internal/collect/ipmi.go
package collect

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/signalnine/marvinous/internal/config"
	"github.com/signalnine/marvinous/internal/protocol"
)

// ErrModulesNotLoaded means ipmitool is installed but cannot reach the BMC
var ErrModulesNotLoaded = errors.New("IPMI modules not loaded")

// IPMI reads BMC sensors through `ipmitool sdr list`
type IPMI struct {
	Runner Runner
	// Baseline drops "no reading" rows for hardware that isn't installed
	Baseline *config.HardwareBaseline
}

func (i *IPMI) Name() string { return "ipmi" }

func (i *IPMI) Collect(ctx context.Context) ([]protocol.IPMIReading, error) {
	if err := lookup(i.Runner, "ipmitool"); err != nil {
		return nil, err
	}
	stdout, stderr, err := i.Runner.Run(ctx, "ipmitool", "sdr", "list")
	if err != nil {
		if bytes.Contains(stderr, []byte("Could not open device")) || bytes.Contains(stderr, []byte("open failed")) {
			return nil, ErrModulesNotLoaded
		}
		slog.Debug("ipmitool failed", "stderr", strings.TrimSpace(string(stderr)), "error", err)
		return []protocol.IPMIReading{}, nil
	}

	readings := ParseIPMI(stdout)
	if i.Baseline != nil {
		readings = FilterIPMI(readings, i.Baseline)
	}
	return readings, nil
}

// ParseIPMI decodes "NAME | VALUE | STATUS" rows
func ParseIPMI(data []byte) []protocol.IPMIReading {
	readings := []protocol.IPMIReading{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		parts := strings.Split(sc.Text(), "|")
		if len(parts) < 3 {
			continue
		}
		readings = append(readings, protocol.IPMIReading{
			Sensor: strings.TrimSpace(parts[0]),
			Value:  strings.TrimSpace(parts[1]),
			Status: strings.TrimSpace(parts[2]),
		})
	}
	return readings
}

// FilterIPMI removes "no reading" rows for DIMM slots and fan headers that
// are not in the baseline. Missing readings for installed hardware are kept
// and logged, since they point at a failed part. Other sensors are kept.
func FilterIPMI(readings []protocol.IPMIReading, baseline *config.HardwareBaseline) []protocol.IPMIReading {
	kept := make([]protocol.IPMIReading, 0, len(readings))
	for _, r := range readings {
		if r.Value != "no reading" && r.Status != "ns" {
			kept = append(kept, r)
			continue
		}

		switch {
		case strings.HasPrefix(r.Sensor, "DIMM_"):
			if !slices.Contains(baseline.Memory.InstalledSlots, r.Sensor) {
				continue
			}
			slog.Warn("installed DIMM has no reading, possible hardware failure", "sensor", r.Sensor)
		case strings.Contains(r.Sensor, "_FAN"):
			if !slices.Contains(baseline.Cooling.InstalledFans, r.Sensor) {
				continue
			}
			slog.Warn("installed fan has no reading, possible hardware failure", "sensor", r.Sensor)
		}
		kept = append(kept, r)
	}

	slog.Info("IPMI filtering", "before", len(readings), "after", len(kept))
	return kept
}
