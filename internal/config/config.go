package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type HTTPConfig struct {
	Bind            string `yaml:"bind"`
	Port            int    `yaml:"port"`
	ShutdownGraceMS int    `yaml:"shutdown_grace_ms"`
}

type LoggingConfig struct {
	Level  string        `yaml:"level"`
	Format string        `yaml:"format"` // json, console, auto
	File   FileLogConfig `yaml:"file"`
}

type FileLogConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	StdoutTrace  bool   `yaml:"stdout_trace"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRows       int    `yaml:"max_rows"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type SynthConfig struct {
	Device              string   `yaml:"device"` // auto, accelerated-gpu, accelerated-unified-memory, cpu
	Tiers               []string `yaml:"tiers"`  // ordered: proper, hosted, mock, synthetic
	ProperCommand       string   `yaml:"proper_command"`
	HostedEndpoint      string   `yaml:"hosted_endpoint"`
	HostedModel         string   `yaml:"hosted_model"`
	HostedTimeoutMS     int      `yaml:"hosted_timeout_ms"`
	DisableModelCompile bool     `yaml:"disable_model_compile"`
	DefaultMaxAudioMS   int      `yaml:"default_max_audio_ms"`
	// ResolveOnStart runs the tier cascade during startup. Worker-style
	// deployments set it false to defer resolution to the first event.
	ResolveOnStart bool `yaml:"resolve_on_start"`
}

type WorkerConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Subject   string `yaml:"subject"`
	Queue     string `yaml:"queue"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type Config struct {
	ServiceName string          `yaml:"service_name"`
	Environment string          `yaml:"environment"`
	HTTP        HTTPConfig      `yaml:"http"`
	Logging     LoggingConfig   `yaml:"logging"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	History     HistoryConfig   `yaml:"history"`
	Synth       SynthConfig     `yaml:"synth"`
	Worker      WorkerConfig    `yaml:"worker"`
}

func Default() Config {
	return Config{
		ServiceName: "sona-tts",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:            "0.0.0.0",
			Port:            8080,
			ShutdownGraceMS: 5000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
			File: FileLogConfig{
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 14,
			},
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "",
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			Embedded:       false,
			Port:           4222,
			Servers:        []string{"nats://127.0.0.1:4222"},
			ConnectTimeout: 2000,
		},
		History: HistoryConfig{
			Enabled:       true,
			Path:          "./data/sona.db",
			RetentionDays: 30,
			MaxRows:       100000,
		},
		Synth: SynthConfig{
			Device:              "auto",
			Tiers:               []string{"proper", "hosted", "mock", "synthetic"},
			HostedTimeoutMS:     10000,
			DisableModelCompile: true,
			DefaultMaxAudioMS:   10000,
			ResolveOnStart:      true,
		},
		Worker: WorkerConfig{
			Enabled:   false,
			Subject:   "tts.generate",
			Queue:     "sona-workers",
			TimeoutMS: 30000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "SONA_SERVICE_NAME")
	overrideString(&cfg.Environment, "SONA_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "SONA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "SONA_HTTP_PORT")
	overrideInt(&cfg.HTTP.ShutdownGraceMS, "SONA_HTTP_SHUTDOWN_GRACE_MS")
	overrideString(&cfg.Logging.Level, "SONA_LOG_LEVEL")
	overrideString(&cfg.Logging.Format, "SONA_LOG_FORMAT")
	overrideString(&cfg.Logging.File.Path, "SONA_LOG_FILE_PATH")
	overrideInt(&cfg.Logging.File.MaxSizeMB, "SONA_LOG_FILE_MAX_SIZE_MB")
	overrideInt(&cfg.Logging.File.MaxBackups, "SONA_LOG_FILE_MAX_BACKUPS")
	overrideInt(&cfg.Logging.File.MaxAgeDays, "SONA_LOG_FILE_MAX_AGE_DAYS")
	overrideBool(&cfg.Logging.File.Compress, "SONA_LOG_FILE_COMPRESS")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "SONA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "SONA_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Telemetry.StdoutTrace, "SONA_TELEMETRY_STDOUT_TRACE")
	overrideBool(&cfg.Bus.Embedded, "SONA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "SONA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "SONA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "SONA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "SONA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "SONA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "SONA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "SONA_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.History.Enabled, "SONA_HISTORY_ENABLED")
	overrideString(&cfg.History.Path, "SONA_HISTORY_PATH")
	overrideInt(&cfg.History.RetentionDays, "SONA_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxRows, "SONA_HISTORY_MAX_ROWS")
	overrideBool(&cfg.History.VacuumOnStart, "SONA_HISTORY_VACUUM_ON_START")
	overrideString(&cfg.Synth.Device, "SONA_SYNTH_DEVICE")
	overrideStringSlice(&cfg.Synth.Tiers, "SONA_SYNTH_TIERS")
	overrideString(&cfg.Synth.ProperCommand, "SONA_SYNTH_PROPER_COMMAND")
	overrideString(&cfg.Synth.HostedEndpoint, "SONA_SYNTH_HOSTED_ENDPOINT")
	overrideString(&cfg.Synth.HostedModel, "SONA_SYNTH_HOSTED_MODEL")
	overrideInt(&cfg.Synth.HostedTimeoutMS, "SONA_SYNTH_HOSTED_TIMEOUT_MS")
	overrideBool(&cfg.Synth.DisableModelCompile, "SONA_SYNTH_DISABLE_MODEL_COMPILE")
	overrideInt(&cfg.Synth.DefaultMaxAudioMS, "SONA_SYNTH_DEFAULT_MAX_AUDIO_MS")
	overrideBool(&cfg.Synth.ResolveOnStart, "SONA_SYNTH_RESOLVE_ON_START")
	overrideBool(&cfg.Worker.Enabled, "SONA_WORKER_ENABLED")
	overrideString(&cfg.Worker.Subject, "SONA_WORKER_SUBJECT")
	overrideString(&cfg.Worker.Queue, "SONA_WORKER_QUEUE")
	overrideInt(&cfg.Worker.TimeoutMS, "SONA_WORKER_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.HTTP.ShutdownGraceMS < 0 {
		return errors.New("http.shutdown_grace_ms must be >= 0")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return errors.New("logging.level must be one of debug|info|warn|error")
	}
	switch cfg.Logging.Format {
	case "json", "console", "auto":
	default:
		return errors.New("logging.format must be one of json|console|auto")
	}
	if cfg.Logging.File.Path != "" && cfg.Logging.File.MaxSizeMB <= 0 {
		return errors.New("logging.file.max_size_mb must be positive when a log file is configured")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else if cfg.Worker.Enabled {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when the worker is enabled without an embedded server")
		}
	}
	if cfg.History.Enabled && cfg.History.Path == "" {
		return errors.New("history.path must not be empty when history is enabled")
	}
	if cfg.History.RetentionDays < 0 {
		return errors.New("history.retention_days must be >= 0")
	}
	if cfg.History.MaxRows < 0 {
		return errors.New("history.max_rows must be >= 0")
	}
	switch cfg.Synth.Device {
	case "auto", "accelerated-gpu", "accelerated-unified-memory", "cpu":
	default:
		return errors.New("synth.device must be one of auto|accelerated-gpu|accelerated-unified-memory|cpu")
	}
	if len(cfg.Synth.Tiers) == 0 {
		return errors.New("synth.tiers must not be empty")
	}
	for _, tier := range cfg.Synth.Tiers {
		switch tier {
		case "proper", "hosted", "mock", "synthetic":
		default:
			return fmt.Errorf("synth.tiers contains unknown tier %q", tier)
		}
	}
	if cfg.Synth.HostedTimeoutMS <= 0 {
		return errors.New("synth.hosted_timeout_ms must be positive")
	}
	if cfg.Synth.DefaultMaxAudioMS <= 0 {
		return errors.New("synth.default_max_audio_ms must be positive")
	}
	if cfg.Worker.Enabled {
		if cfg.Worker.Subject == "" {
			return errors.New("worker.subject must not be empty when the worker is enabled")
		}
		if cfg.Worker.TimeoutMS <= 0 {
			return errors.New("worker.timeout_ms must be positive when the worker is enabled")
		}
	}
	return nil
}
