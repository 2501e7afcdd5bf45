package config

// #region imports
import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/selfheal/go-controller/internal/failure"
)

// #endregion

// #region types

// Config is the full runtime configuration of the pipeline.
type Config struct {
	Paths      Paths              `yaml:"paths" toml:"paths"`
	Thresholds map[string]float64 `yaml:"thresholds" toml:"thresholds" validate:"dive,gte=0"`
	Policy     Policy             `yaml:"policy" toml:"policy"`
	Deploy     Deploy             `yaml:"deploy" toml:"deploy"`
	Events     Events             `yaml:"events" toml:"events"`
	Logging    Logging            `yaml:"logging" toml:"logging"`
}

// Paths locates every file the pipeline reads or writes.
type Paths struct {
	LogDir          string `yaml:"log_dir" toml:"log_dir" validate:"required"`
	Dataset         string `yaml:"dataset" toml:"dataset" validate:"required"`
	QTable          string `yaml:"qtable" toml:"qtable" validate:"required"`
	Feedback        string `yaml:"feedback" toml:"feedback" validate:"required"`
	History         string `yaml:"history" toml:"history"`                   // empty = no audit history
	MetricsTextfile string `yaml:"metrics_textfile" toml:"metrics_textfile"` // empty = no export
	EventsFile      string `yaml:"events_file" toml:"events_file"`
}

// Policy holds the learning hyperparameters.
type Policy struct {
	Alpha   float64 `yaml:"alpha" toml:"alpha" validate:"gt=0,lte=1"`
	Epsilon float64 `yaml:"epsilon" toml:"epsilon" validate:"gte=0,lte=1"`
	Gamma   float64 `yaml:"gamma" toml:"gamma" validate:"gte=0,lte=1"`
	Mode    string  `yaml:"mode" toml:"mode" validate:"oneof=single chained"`
	Seed    uint64  `yaml:"seed" toml:"seed"` // 0 = time-seeded
}

// Deploy configures the deployment trigger.
type Deploy struct {
	Timeout        time.Duration `yaml:"timeout" toml:"timeout" validate:"gt=0"`
	CrashDelay     time.Duration `yaml:"crash_delay" toml:"crash_delay" validate:"gte=0"`
	LatencyPenalty time.Duration `yaml:"latency_penalty" toml:"latency_penalty" validate:"gte=0"`
	SimulateDelays bool          `yaml:"simulate_delays" toml:"simulate_delays"`
	ProbeAddr      string        `yaml:"probe_addr" toml:"probe_addr"` // empty = simulated trigger
	ProbeService   string        `yaml:"probe_service" toml:"probe_service"`
}

// Events selects the event sink.
type Events struct {
	Sink     string `yaml:"sink" toml:"sink" validate:"oneof=file mqtt none"`
	Broker   string `yaml:"broker" toml:"broker" validate:"required_if=Sink mqtt"`
	Topic    string `yaml:"topic" toml:"topic"`
	ClientID string `yaml:"client_id" toml:"client_id"`
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// Logging configures the logger.
type Logging struct {
	Level string `yaml:"level" toml:"level" validate:"oneof=debug info warn error"`
}

// #endregion

// #region defaults

// Default returns the configuration used when no file is given.
// Thresholds are left empty so that a file omitting them is reported; Load fills them.
func Default() *Config {
	return &Config{
		Paths: Paths{
			LogDir:     "logs",
			Dataset:    "dataset/student_scores.csv",
			QTable:     "logs/rl_log.csv",
			Feedback:   "logs/user_feedback.csv",
			History:    "logs/history.db",
			EventsFile: "logs/mcp_messages.log",
		},
		Policy: Policy{Alpha: 0.1, Epsilon: 0.1, Gamma: 0.9, Mode: "single"},
		Deploy: Deploy{
			Timeout:        15 * time.Second,
			CrashDelay:     1500 * time.Millisecond,
			LatencyPenalty: 10 * time.Second,
			SimulateDelays: true,
			ProbeService:   "dashboard",
		},
		Events:  Events{Sink: "file", Topic: "selfheal/events"},
		Logging: Logging{Level: "info"},
	}
}

// #endregion

// #region load

// Load reads the YAML or TOML file at path over the defaults.
// A sibling .env file is loaded first and ${VAR} references in the file are expanded.
// An empty path returns the defaults with every threshold set.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		cfg.Thresholds = failure.DefaultThresholds().Map()
		applyEnv(cfg)
		return cfg, validate(cfg)
	}

	envFile := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	expanded := os.ExpandEnv(string(data))

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}

	applyEnv(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets a few settings be overridden without editing the file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("SELFHEAL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SELFHEAL_DATASET"); v != "" {
		cfg.Paths.Dataset = v
	}
	if v := os.Getenv("SELFHEAL_MQTT_BROKER"); v != "" {
		cfg.Events.Broker = v
	}
}

func validate(cfg *Config) error {
	cfg.Logging.Level = normalizeLevel(cfg.Logging.Level)
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// normalizeLevel folds the spellings logging.ParseLevel accepts onto the validated set.
func normalizeLevel(s string) string {
	switch l := strings.ToLower(strings.TrimSpace(s)); l {
	case "":
		return "info"
	case "warning":
		return "warn"
	default:
		return l
	}
}

// #endregion
