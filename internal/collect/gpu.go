// internal/collect/gpu.go
package collect

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/signalnine/marvinous/internal/protocol"
)

const gpuQuery = "--query-gpu=name,temperature.gpu,memory.used,memory.total,utilization.gpu,power.draw"

// GPU reads the first NVIDIA GPU through nvidia-smi. No driver or no device
// is reported as a nil status, not an error.
type GPU struct {
	Runner Runner
}

func (g *GPU) Name() string { return "gpu" }

func (g *GPU) Collect(ctx context.Context) (*protocol.GPUStatus, error) {
	if _, err := g.Runner.LookPath("nvidia-smi"); err != nil {
		return nil, nil
	}
	stdout, stderr, err := g.Runner.Run(ctx, "nvidia-smi", gpuQuery, "--format=csv,noheader,nounits")
	if err != nil {
		if bytes.Contains(stderr, []byte("NVIDIA-SMI has failed")) || bytes.Contains(stderr, []byte("No devices were found")) {
			return nil, nil
		}
		return nil, toolError("nvidia-smi", stderr, err)
	}
	return ParseGPU(stdout)
}

// ParseGPU decodes the first CSV row of the nvidia-smi query. Empty output
// means no GPU. An unparseable power draw ("N/A") reads as 0.
func ParseGPU(data []byte) (*protocol.GPUStatus, error) {
	line, _, _ := strings.Cut(strings.TrimSpace(string(data)), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, nil
	}

	parts := strings.Split(line, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 6 {
		return nil, fmt.Errorf("nvidia-smi: expected 6 fields, got %d: %s", len(parts), line)
	}

	temp, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi: invalid temperature %q", parts[1])
	}
	used, err := strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi: invalid memory used %q", parts[2])
	}
	total, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi: invalid memory total %q", parts[3])
	}
	util, err := strconv.ParseUint(parts[4], 10, 8)
	if err != nil {
		return nil, fmt.Errorf("nvidia-smi: invalid utilisation %q", parts[4])
	}
	power, _ := strconv.ParseFloat(parts[5], 64)

	return &protocol.GPUStatus{
		Name:        parts[0],
		Temperature: temp,
		MemoryUsed:  used,
		MemoryTotal: total,
		Utilisation: uint8(util),
		PowerDraw:   power,
	}, nil
}
