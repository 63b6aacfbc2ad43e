package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"imageresize/converter"
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	SourceDir     string
	OutputDir     string
	SourceFilter  string
	OutputFormat  string
	ScaleFactor   float64
	QueueCapacity int
	WorkerCount   int
	ResizeFilter  string
	ResizeDelay   time.Duration
	BenchRuns     int
	CleanOutput   bool

	DatabaseURL  string
	RedisAddr    string
	KafkaBrokers string
	KafkaTopic   string
	MetricsAddr  string
}

// Load reads the configuration from the environment. Integrations
// (postgres, redis, kafka, metrics) stay disabled unless their address is
// set.
func Load() *Config {
	return &Config{
		SourceDir:     getEnv("SOURCE_DIR", "./images"),
		OutputDir:     getEnv("OUTPUT_DIR", "./images-resized"),
		SourceFilter:  getEnv("SOURCE_FILTER", "*.jpg"),
		OutputFormat:  getEnv("OUTPUT_FORMAT", "png"),
		ScaleFactor:   getEnvAsFloat("SCALE_FACTOR", 0.1),
		QueueCapacity: getEnvAsInt("QUEUE_CAPACITY", 0),
		WorkerCount:   getEnvAsInt("WORKER_COUNT", 5),
		ResizeFilter:  getEnv("RESIZE_FILTER", "lanczos"),
		ResizeDelay:   getEnvAsDuration("RESIZE_DELAY", 0),
		BenchRuns:     getEnvAsInt("BENCH_RUNS", 10),
		CleanOutput:   getEnvAsBool("CLEAN_OUTPUT", false),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		KafkaBrokers:  getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "image_events"),
		MetricsAddr:   getEnv("METRICS_ADDR", ""),
	}
}

// fileConfig mirrors Config for TOML files; nil fields keep the current
// value.
type fileConfig struct {
	SourceDir     *string  `toml:"source_dir"`
	OutputDir     *string  `toml:"output_dir"`
	SourceFilter  *string  `toml:"source_filter"`
	OutputFormat  *string  `toml:"output_format"`
	ScaleFactor   *float64 `toml:"scale_factor"`
	QueueCapacity *int     `toml:"queue_capacity"`
	WorkerCount   *int     `toml:"worker_count"`
	ResizeFilter  *string  `toml:"resize_filter"`
	ResizeDelay   *string  `toml:"resize_delay"`
	BenchRuns     *int     `toml:"bench_runs"`
	CleanOutput   *bool    `toml:"clean_output"`
	DatabaseURL   *string  `toml:"database_url"`
	RedisAddr     *string  `toml:"redis_addr"`
	KafkaBrokers  *string  `toml:"kafka_brokers"`
	KafkaTopic    *string  `toml:"kafka_topic"`
	MetricsAddr   *string  `toml:"metrics_addr"`
}

// LoadFile overlays the TOML file at path on top of c.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&c.SourceDir, fc.SourceDir)
	setString(&c.OutputDir, fc.OutputDir)
	setString(&c.SourceFilter, fc.SourceFilter)
	setString(&c.OutputFormat, fc.OutputFormat)
	setString(&c.ResizeFilter, fc.ResizeFilter)
	setString(&c.DatabaseURL, fc.DatabaseURL)
	setString(&c.RedisAddr, fc.RedisAddr)
	setString(&c.KafkaBrokers, fc.KafkaBrokers)
	setString(&c.KafkaTopic, fc.KafkaTopic)
	setString(&c.MetricsAddr, fc.MetricsAddr)
	if fc.ScaleFactor != nil {
		c.ScaleFactor = *fc.ScaleFactor
	}
	if fc.QueueCapacity != nil {
		c.QueueCapacity = *fc.QueueCapacity
	}
	if fc.WorkerCount != nil {
		c.WorkerCount = *fc.WorkerCount
	}
	if fc.BenchRuns != nil {
		c.BenchRuns = *fc.BenchRuns
	}
	if fc.CleanOutput != nil {
		c.CleanOutput = *fc.CleanOutput
	}
	if fc.ResizeDelay != nil {
		d, err := time.ParseDuration(*fc.ResizeDelay)
		if err != nil {
			return fmt.Errorf("parse config %s: resize_delay: %w", path, err)
		}
		c.ResizeDelay = d
	}
	return nil
}

func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.SourceDir) == "" {
		problems = append(problems, "source directory is required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		problems = append(problems, "output directory is required")
	}
	if c.SourceDir != "" && c.OutputDir != "" && sameDir(c.SourceDir, c.OutputDir) {
		problems = append(problems, "output directory must differ from source directory")
	}
	if _, err := filepath.Match(c.SourceFilter, ""); err != nil || c.SourceFilter == "" {
		problems = append(problems, fmt.Sprintf("invalid source filter %q", c.SourceFilter))
	}
	if _, err := converter.ParseFormat(c.OutputFormat); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := converter.ParseFilter(c.ResizeFilter); err != nil {
		problems = append(problems, err.Error())
	}
	if c.ScaleFactor <= 0 || c.ScaleFactor > 1 {
		problems = append(problems, fmt.Sprintf("scale factor %v must be in (0,1]", c.ScaleFactor))
	}
	if c.WorkerCount < 1 {
		problems = append(problems, "worker count must be at least 1")
	}
	if c.QueueCapacity < 0 {
		problems = append(problems, "queue capacity must not be negative")
	}
	if c.ResizeDelay < 0 {
		problems = append(problems, "resize delay must not be negative")
	}
	if c.BenchRuns < 1 {
		problems = append(problems, "bench runs must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) Brokers() []string {
	var brokers []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func sameDir(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
