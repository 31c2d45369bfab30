// internal/collect/sensors.go
package collect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/signalnine/marvinous/internal/protocol"
)

// Sensors reads lm-sensors through `sensors -j`
type Sensors struct {
	Runner Runner
}

func (s *Sensors) Name() string { return "sensors" }

func (s *Sensors) Collect(ctx context.Context) ([]protocol.SensorReading, error) {
	if err := lookup(s.Runner, "sensors"); err != nil {
		return nil, err
	}
	stdout, stderr, err := s.Runner.Run(ctx, "sensors", "-j")
	if err != nil {
		if bytes.Contains(stderr, []byte("No sensors found")) || bytes.Contains(stderr, []byte("No such file")) {
			return nil, fmt.Errorf("%w: %s", ErrNotAvailable, strings.TrimSpace(string(stderr)))
		}
		return nil, toolError("sensors", stderr, err)
	}
	return ParseSensors(stdout)
}

// ParseSensors flattens `sensors -j` output. Every numeric *_input field
// becomes one reading; results are sorted by chip, then sensor.
func ParseSensors(data []byte) ([]protocol.SensorReading, error) {
	var chips map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &chips); err != nil {
		return nil, fmt.Errorf("parse sensors output: %w", err)
	}

	readings := []protocol.SensorReading{}
	for chip, sensors := range chips {
		for sensor, raw := range sensors {
			if sensor == "Adapter" {
				continue
			}
			var fields map[string]json.RawMessage
			if err := json.Unmarshal(raw, &fields); err != nil {
				continue
			}
			for key, v := range fields {
				if !strings.Contains(key, "_input") {
					continue
				}
				var value float64
				if err := json.Unmarshal(v, &value); err != nil {
					continue
				}
				readings = append(readings, protocol.SensorReading{
					Chip:   chip,
					Sensor: sensor,
					Value:  value,
					Unit:   unitFor(key),
				})
			}
		}
	}

	sort.Slice(readings, func(i, j int) bool {
		a, b := readings[i], readings[j]
		if a.Chip != b.Chip {
			return a.Chip < b.Chip
		}
		if a.Sensor != b.Sensor {
			return a.Sensor < b.Sensor
		}
		return a.Unit < b.Unit
	})
	return readings, nil
}

func unitFor(key string) string {
	switch {
	case strings.HasPrefix(key, "temp"):
		return "°C"
	case strings.HasPrefix(key, "fan"):
		return "RPM"
	case strings.HasPrefix(key, "in"):
		return "V"
	case strings.HasPrefix(key, "power"):
		return "W"
	default:
		return ""
	}
}
