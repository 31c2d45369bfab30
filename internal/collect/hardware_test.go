// internal/collect/hardware_test.go
package collect

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/marvinous/internal/config"
	"github.com/signalnine/marvinous/internal/protocol"
)

const sensorsFixture = `{
  "nvme-pci-0100": {
    "Adapter": "PCI adapter",
    "Composite": {"temp1_input": 38.85, "temp1_max": 81.85}
  },
  "coretemp-isa-0000": {
    "Adapter": "ISA adapter",
    "Package id 0": {"temp1_input": 52.0, "temp1_crit": 100.0},
    "Core 0": {"temp2_input": 49.0}
  },
  "nct6798-isa-0290": {
    "Adapter": "ISA adapter",
    "fan2": {"fan2_input": 1200.0, "fan2_min": 0.0},
    "in0": {"in0_input": 1.02},
    "PPT": {"power1_input": 65.5},
    "weird": {"curr1_input": 2.0}
  }
}`

func TestParseSensors(t *testing.T) {
	readings, err := ParseSensors([]byte(sensorsFixture))
	require.NoError(t, err)

	assert.Equal(t, []protocol.SensorReading{
		{Chip: "coretemp-isa-0000", Sensor: "Core 0", Value: 49, Unit: "°C"},
		{Chip: "coretemp-isa-0000", Sensor: "Package id 0", Value: 52, Unit: "°C"},
		{Chip: "nct6798-isa-0290", Sensor: "PPT", Value: 65.5, Unit: "W"},
		{Chip: "nct6798-isa-0290", Sensor: "fan2", Value: 1200, Unit: "RPM"},
		{Chip: "nct6798-isa-0290", Sensor: "in0", Value: 1.02, Unit: "V"},
		{Chip: "nct6798-isa-0290", Sensor: "weird", Value: 2, Unit: ""},
		{Chip: "nvme-pci-0100", Sensor: "Composite", Value: 38.85, Unit: "°C"},
	}, readings)

	_, err = ParseSensors([]byte("{"))
	assert.Error(t, err)
}

func TestSensorsNoneFound(t *testing.T) {
	r := &fakeRunner{outputs: map[string]cannedOutput{
		"sensors -j": {stderr: "No sensors found!", err: errors.New("exit status 1")},
	}}
	_, err := (&Sensors{Runner: r}).Collect(context.Background())
	assert.ErrorIs(t, err, ErrNotAvailable)
}

func TestParseGPU(t *testing.T) {
	gpu, err := ParseGPU([]byte("NVIDIA GeForce RTX 4090, 61, 2048, 24564, 37, 118.52\n"))
	require.NoError(t, err)
	assert.Equal(t, &protocol.GPUStatus{
		Name:        "NVIDIA GeForce RTX 4090",
		Temperature: 61,
		MemoryUsed:  2048,
		MemoryTotal: 24564,
		Utilisation: 37,
		PowerDraw:   118.52,
	}, gpu)

	gpu, err = ParseGPU([]byte("Tesla T4, 40, 0, 15360, 0, [N/A]\n"))
	require.NoError(t, err)
	assert.Zero(t, gpu.PowerDraw)

	gpu, err = ParseGPU([]byte("  \n"))
	require.NoError(t, err)
	assert.Nil(t, gpu)

	_, err = ParseGPU([]byte("Tesla T4, 40"))
	assert.Error(t, err)
	_, err = ParseGPU([]byte("Tesla T4, hot, 0, 15360, 0, 10"))
	assert.Error(t, err)
}

func TestGPUAbsent(t *testing.T) {
	r := &fakeRunner{missing: map[string]bool{"nvidia-smi": true}}
	gpu, err := (&GPU{Runner: r}).Collect(context.Background())
	require.NoError(t, err)
	assert.Nil(t, gpu)

	r = &fakeRunner{outputs: map[string]cannedOutput{
		"nvidia-smi " + gpuQuery + " --format=csv,noheader,nounits": {stderr: "No devices were found", err: errors.New("exit status 6")},
	}}
	gpu, err = (&GPU{Runner: r}).Collect(context.Background())
	require.NoError(t, err)
	assert.Nil(t, gpu)
}

const nvmeFixture = `{
  "model_name": "Samsung SSD 990 PRO 2TB",
  "nvme_smart_health_information_log": {"temperature": 41, "power_on_hours": 1532},
  "temperature": {"current": 41}
}`

const ataFixture = `{
  "model_name": "WDC WD40EFRX",
  "ata_smart_attributes": {"table": [
    {"id": 5, "name": "Reallocated_Sector_Ct", "raw": {"value": 8}},
    {"id": 9, "name": "Power_On_Hours", "raw": {"value": 40123}},
    {"id": 194, "name": "Temperature_Celsius", "raw": {"value": 34}},
    {"id": 197, "name": "Current_Pending_Sector", "raw": {"value": 2}},
    {"id": 1, "name": "Raw_Read_Error_Rate", "raw": {"value": 99}}
  ]}
}`

func TestParseSMART(t *testing.T) {
	nvme, err := ParseSMART("/dev/nvme0", []byte(nvmeFixture))
	require.NoError(t, err)
	assert.Equal(t, "Samsung SSD 990 PRO 2TB", nvme.Model)
	require.NotNil(t, nvme.Temperature)
	assert.Equal(t, 41.0, *nvme.Temperature)
	assert.EqualValues(t, 1532, nvme.PowerOnHours)
	assert.Zero(t, nvme.ReallocatedSectors)

	ata, err := ParseSMART("/dev/sda", []byte(ataFixture))
	require.NoError(t, err)
	assert.EqualValues(t, 8, ata.ReallocatedSectors)
	assert.EqualValues(t, 2, ata.PendingSectors)
	assert.EqualValues(t, 40123, ata.PowerOnHours)
	require.NotNil(t, ata.Temperature)
	assert.Equal(t, 34.0, *ata.Temperature)

	// ATA table without attribute 194 falls back to the temperature block
	noTemp, err := ParseSMART("/dev/sdb", []byte(`{"ata_smart_attributes":{"table":[]},"temperature":{"current":29}}`))
	require.NoError(t, err)
	assert.Equal(t, "Unknown", noTemp.Model)
	require.NotNil(t, noTemp.Temperature)
	assert.Equal(t, 29.0, *noTemp.Temperature)

	generic, err := ParseSMART("/dev/sdc", []byte(`{"model_name":"USB bridge"}`))
	require.NoError(t, err)
	assert.Nil(t, generic.Temperature)

	_, err = ParseSMART("/dev/sdd", []byte("garbage"))
	assert.Error(t, err)
}

func TestSMARTCollectScansAndSkipsBadDrives(t *testing.T) {
	r := &fakeRunner{outputs: map[string]cannedOutput{
		"smartctl --scan --json":        {stdout: `{"devices":[{"name":"/dev/nvme0"},{"name":"/dev/sda"},{"name":"/dev/sdz"}]}`},
		"smartctl -A --json /dev/nvme0": {stdout: nvmeFixture},
		"smartctl -A --json /dev/sda":   {stdout: ataFixture, err: errors.New("exit status 64")},
		"smartctl -A --json /dev/sdz":   {stdout: "", err: errors.New("exit status 2")},
	}}

	drives, err := (&SMART{Runner: r}).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, drives, 2)
	assert.Equal(t, "/dev/nvme0", drives[0].Device)
	assert.Equal(t, "/dev/sda", drives[1].Device)
}

func TestSMARTScanFallback(t *testing.T) {
	r := &fakeRunner{outputs: map[string]cannedOutput{
		"smartctl --scan":             {stdout: "/dev/sda -d scsi # /dev/sda, SCSI device\nnoise\n"},
		"smartctl -A --json /dev/sda": {stdout: ataFixture},
	}}
	drives, err := (&SMART{Runner: r}).Collect(context.Background())
	require.NoError(t, err)
	require.Len(t, drives, 1)
	assert.Equal(t, "WDC WD40EFRX", drives[0].Model)
}

func TestSMARTConfiguredDevices(t *testing.T) {
	r := &fakeRunner{outputs: map[string]cannedOutput{
		"smartctl -A --json /dev/nvme0": {stdout: nvmeFixture},
	}}
	drives, err := (&SMART{Runner: r, Devices: []string{"/dev/nvme0"}}).Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, drives, 1)
	assert.NotContains(t, r.calls, "smartctl --scan --json")
}

const ipmiFixture = `CPU_Temp         | 45 degrees C      | ok
DIMM_A1          | 38 degrees C      | ok
DIMM_B1          | no reading        | ns
DIMM_A2          | no reading        | ns
CPU_FAN1         | 1800 RPM          | ok
SYS_FAN3         | no reading        | ns
SYS_FAN4         | no reading        | ns
PSU2 Status      | no reading        | ns
garbage line
`

func TestParseIPMI(t *testing.T) {
	readings := ParseIPMI([]byte(ipmiFixture))
	require.Len(t, readings, 8)
	assert.Equal(t, protocol.IPMIReading{Sensor: "CPU_Temp", Value: "45 degrees C", Status: "ok"}, readings[0])
}

func TestFilterIPMI(t *testing.T) {
	baseline := &config.HardwareBaseline{
		Memory:  config.MemoryBaseline{InstalledSlots: []string{"DIMM_A1", "DIMM_A2"}},
		Cooling: config.CoolingBaseline{InstalledFans: []string{"CPU_FAN1", "SYS_FAN3"}},
	}
	kept := FilterIPMI(ParseIPMI([]byte(ipmiFixture)), baseline)

	var names []string
	for _, r := range kept {
		names = append(names, r.Sensor)
	}
	// DIMM_B1 and SYS_FAN4 are empty slots; DIMM_A2 and SYS_FAN3 are installed but silent
	assert.Equal(t, []string{"CPU_Temp", "DIMM_A1", "DIMM_A2", "CPU_FAN1", "SYS_FAN3", "PSU2 Status"}, names)
}

func TestIPMIModulesNotLoaded(t *testing.T) {
	r := &fakeRunner{outputs: map[string]cannedOutput{
		"ipmitool sdr list": {stderr: "Could not open device at /dev/ipmi0", err: errors.New("exit status 1")},
	}}
	_, err := (&IPMI{Runner: r}).Collect(context.Background())
	assert.ErrorIs(t, err, ErrModulesNotLoaded)
}

func TestIPMICollectFiltered(t *testing.T) {
	r := &fakeRunner{outputs: map[string]cannedOutput{
		"ipmitool sdr list": {stdout: ipmiFixture},
	}}
	readings, err := (&IPMI{Runner: r, Baseline: &config.HardwareBaseline{}}).Collect(context.Background())
	require.NoError(t, err)
	assert.Len(t, readings, 4)
}
