package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Learning  LearningConfig  `yaml:"learning"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type LearningConfig struct {
	DataDir           string        `yaml:"data_dir"`
	ReferenceWindow   int           `yaml:"reference_window"`
	DriftBins         int           `yaml:"drift_bins"`
	DriftThreshold    float64       `yaml:"drift_threshold"`
	FeedbackThreshold int           `yaml:"feedback_threshold"`
	FlushInterval     time.Duration `yaml:"flush_interval"`
	FlushBatchSize    int           `yaml:"flush_batch_size"`
}

// RuleWeightsPath is the rule-confidence store file under the data dir.
func (c LearningConfig) RuleWeightsPath() string {
	return filepath.Join(c.DataDir, "rule_weights.json")
}

// PatternsPath is the pattern-discovery store file under the data dir.
func (c LearningConfig) PatternsPath() string {
	return filepath.Join(c.DataDir, "pattern_state.json")
}

// TelemetryPath is the audit log file under the data dir.
func (c LearningConfig) TelemetryPath() string {
	return filepath.Join(c.DataDir, "telemetry.json")
}

// RulesDir holds one artifact file per auto-generated rule.
func (c LearningConfig) RulesDir() string {
	return filepath.Join(c.DataDir, "discovered_rules")
}

type SchedulerConfig struct {
	RetrainCheckSchedule string `yaml:"retrain_check_schedule"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {

		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8090
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}

	if c.Redis.Host == "" {
		c.Redis.Host = "localhost"
	}
	if c.Redis.Port == 0 {
		c.Redis.Port = 6379
	}

	if c.Learning.DataDir == "" {
		c.Learning.DataDir = "data"
	}
	if c.Learning.ReferenceWindow == 0 {
		c.Learning.ReferenceWindow = 200
	}
	if c.Learning.DriftBins == 0 {
		c.Learning.DriftBins = 10
	}
	if c.Learning.DriftThreshold == 0 {
		c.Learning.DriftThreshold = 0.15
	}
	if c.Learning.FeedbackThreshold == 0 {
		c.Learning.FeedbackThreshold = 20
	}
	if c.Learning.FlushInterval == 0 {
		c.Learning.FlushInterval = 2 * time.Second
	}
	if c.Learning.FlushBatchSize == 0 {
		c.Learning.FlushBatchSize = 16
	}

	if c.Scheduler.RetrainCheckSchedule == "" {
		c.Scheduler.RetrainCheckSchedule = "@every 1m"
	}
}
