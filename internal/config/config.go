// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the packaged config lives
const DefaultPath = "/etc/marvinous/marvinous.yaml"

// Config is the full marvinous configuration
type Config struct {
	General    GeneralConfig    `yaml:"general"`
	Ollama     OllamaConfig     `yaml:"ollama"`
	Collection CollectionConfig `yaml:"collection"`
	Storage    StorageConfig    `yaml:"storage"`
	Sensors    SensorsConfig    `yaml:"sensors"`
	IPMI       IPMIConfig       `yaml:"ipmi"`
	GPU        GPUConfig        `yaml:"gpu"`
	Web        WebConfig        `yaml:"web"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Baseline   HardwareBaseline `yaml:"baseline"`
}

type GeneralConfig struct {
	ReportDir  string `yaml:"report_dir"`
	StateFile  string `yaml:"state_file"`
	PromptFile string `yaml:"prompt_file"`
	HistoryDB  string `yaml:"history_db"` // empty disables run history
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"` // "json", "text" or "auto" (text on a terminal)
}

// OllamaConfig describes the generation backend
type OllamaConfig struct {
	Endpoint   string        `yaml:"endpoint"`
	Model      string        `yaml:"model"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type CollectionConfig struct {
	LogSince       string `yaml:"log_since"`
	LogPriorityMax int    `yaml:"log_priority_max"`
	IncludeKernel  bool   `yaml:"include_kernel"`
	MaxLogEntries  int    `yaml:"max_log_entries"`
}

type StorageConfig struct {
	Devices []string `yaml:"devices"` // empty means auto-detect
}

type SensorsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type IPMIConfig struct {
	Enabled  bool `yaml:"enabled"`
	Optional bool `yaml:"optional"`
}

type GPUConfig struct {
	Enabled  bool `yaml:"enabled"`
	Optional bool `yaml:"optional"`
}

// WebConfig controls the dashboard started by `marvinous serve`
type WebConfig struct {
	Enabled     bool    `yaml:"enabled"`
	BindAddress string  `yaml:"bind_address"`
	Port        int     `yaml:"port"`
	StaticDir   string  `yaml:"static_dir"`
	RateLimit   float64 `yaml:"rate_limit"` // manual triggers per second
	RateBurst   int     `yaml:"rate_burst"`
}

// ScheduleConfig drives the in-process scheduler. Zero Hourly disables it.
type ScheduleConfig struct {
	Hourly  time.Duration `yaml:"hourly"`
	DailyAt string        `yaml:"daily_at"` // HH:MM UTC, empty disables the rollup
}

// HardwareBaseline lists hardware that is physically installed, so that
// "no reading" IPMI rows for empty slots can be dropped.
type HardwareBaseline struct {
	Memory  MemoryBaseline  `yaml:"memory"`
	Cooling CoolingBaseline `yaml:"cooling"`
}

type MemoryBaseline struct {
	InstalledSlots []string `yaml:"installed_slots"`
}

type CoolingBaseline struct {
	InstalledFans []string `yaml:"installed_fans"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			ReportDir:  "/var/log/marvinous/reports",
			StateFile:  "/var/log/marvinous/state/previous.json",
			PromptFile: "/etc/marvinous/system-prompt.txt",
			HistoryDB:  "/var/lib/marvinous/history.db",
			LogLevel:   "info",
			LogFormat:  "json",
		},
		Ollama: OllamaConfig{
			Endpoint:   "http://localhost:11434",
			Model:      "qwen2.5:7b",
			Timeout:    120 * time.Second,
			MaxRetries: 3,
			RetryDelay: 30 * time.Second,
		},
		Collection: CollectionConfig{
			LogSince:       "1 hour ago",
			LogPriorityMax: 5,
			IncludeKernel:  true,
			MaxLogEntries:  500,
		},
		Sensors: SensorsConfig{Enabled: true},
		IPMI:    IPMIConfig{Enabled: true, Optional: true},
		GPU:     GPUConfig{Enabled: true, Optional: true},
		Web: WebConfig{
			BindAddress: "0.0.0.0",
			Port:        9090,
			RateLimit:   0.2,
			RateBurst:   2,
		},
	}
}

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid configuration")

var dailyAtRe = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// Load reads config from a YAML file layered over Default, then applies env overrides
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault behaves like Load but falls back to Default when the file
// does not exist. The bool reports whether the file was found.
func LoadOrDefault(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		applyEnv(cfg)
		return cfg, false, cfg.Validate()
	}
	if err != nil {
		return nil, false, err
	}
	return cfg, true, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MARVINOUS_REPORT_DIR"); v != "" {
		cfg.General.ReportDir = v
	}
	if v := os.Getenv("MARVINOUS_OLLAMA_ENDPOINT"); v != "" {
		cfg.Ollama.Endpoint = v
	}
	if v := os.Getenv("MARVINOUS_OLLAMA_MODEL"); v != "" {
		cfg.Ollama.Model = v
	}
	if v := os.Getenv("MARVINOUS_LOG_LEVEL"); v != "" {
		cfg.General.LogLevel = v
	}
}

// Validate rejects values the pipeline cannot run with
func (c *Config) Validate() error {
	switch {
	case c.General.ReportDir == "":
		return fmt.Errorf("%w: general.report_dir is empty", ErrInvalid)
	case c.General.StateFile == "":
		return fmt.Errorf("%w: general.state_file is empty", ErrInvalid)
	case c.Ollama.Endpoint == "":
		return fmt.Errorf("%w: ollama.endpoint is empty", ErrInvalid)
	case c.Ollama.Model == "":
		return fmt.Errorf("%w: ollama.model is empty", ErrInvalid)
	case c.Ollama.MaxRetries < 1:
		return fmt.Errorf("%w: ollama.max_retries must be at least 1, got %d", ErrInvalid, c.Ollama.MaxRetries)
	case c.Ollama.RetryDelay < 0:
		return fmt.Errorf("%w: ollama.retry_delay is negative", ErrInvalid)
	case c.Ollama.Timeout <= 0:
		return fmt.Errorf("%w: ollama.timeout must be positive", ErrInvalid)
	case c.Collection.LogPriorityMax < 0 || c.Collection.LogPriorityMax > 7:
		return fmt.Errorf("%w: collection.log_priority_max must be 0..7, got %d", ErrInvalid, c.Collection.LogPriorityMax)
	case c.Collection.MaxLogEntries < 1:
		return fmt.Errorf("%w: collection.max_log_entries must be positive", ErrInvalid)
	case c.Web.Port < 1 || c.Web.Port > 65535:
		return fmt.Errorf("%w: web.port out of range: %d", ErrInvalid, c.Web.Port)
	case c.Schedule.Hourly < 0:
		return fmt.Errorf("%w: schedule.hourly is negative", ErrInvalid)
	case c.Schedule.DailyAt != "" && !dailyAtRe.MatchString(c.Schedule.DailyAt):
		return fmt.Errorf("%w: schedule.daily_at must be HH:MM, got %q", ErrInvalid, c.Schedule.DailyAt)
	}
	return nil
}

// WebAddr is the dashboard listen address
func (c *Config) WebAddr() string {
	return fmt.Sprintf("%s:%d", c.Web.BindAddress, c.Web.Port)
}
