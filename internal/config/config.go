package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

const envPrefix = "COMPUTE"

// Flag and configuration keys.
const (
	KeyThreads       = "threads"
	KeyQueueSize     = "queue-size"
	KeyFaultPolicy   = "fault-policy"
	KeyDispatchRate  = "dispatch-rate"
	KeyDispatchBurst = "dispatch-burst"
	KeyStepDelay     = "step-delay"
	KeyProgramFormat = "program-format"
	KeyReportFormat  = "format"
	KeyProgress      = "progress"
	KeyDBPath        = "db"
	KeyMetricsFile   = "metrics-file"
	KeyTrace         = "trace"
	KeyLogLevel      = "log-level"
	KeyLogFormat     = "log-format"
	KeyLogFile       = "log-file"
)

const (
	defaultThreads       = 1
	defaultQueueSize     = 64
	defaultFaultPolicy   = "continue"
	defaultDispatchBurst = 1
	defaultReportFormat  = "text"
	defaultLogLevel      = "info"
	defaultLogFormat     = "json"

	logFileMaxSizeMB  = 100
	logFileMaxBackups = 3
	logFileMaxAgeDays = 28
)

// Config holds application configuration resolved from flags, COMPUTE_*
// environment variables and an optional YAML config file.
type Config struct {
	Threads       int           `mapstructure:"threads"`
	QueueSize     int           `mapstructure:"queue-size"`
	FaultPolicy   string        `mapstructure:"fault-policy"`
	DispatchRate  float64       `mapstructure:"dispatch-rate"`
	DispatchBurst int           `mapstructure:"dispatch-burst"`
	StepDelay     time.Duration `mapstructure:"step-delay"`
	ProgramFormat string        `mapstructure:"program-format"`
	ReportFormat  string        `mapstructure:"format"`
	Progress      bool          `mapstructure:"progress"`
	DBPath        string        `mapstructure:"db"`
	MetricsFile   string        `mapstructure:"metrics-file"`
	Trace         bool          `mapstructure:"trace"`
	LogLevel      string        `mapstructure:"log-level"`
	LogFormat     string        `mapstructure:"log-format"`
	LogFile       string        `mapstructure:"log-file"`
}

// BindFlags registers the run flags on fs and returns a viper instance bound
// to them and to the COMPUTE_* environment.
func BindFlags(fs *pflag.FlagSet) (*viper.Viper, error) {
	fs.Int(KeyThreads, defaultThreads, "number of worker threads (at least 1)")
	fs.Int(KeyQueueSize, defaultQueueSize, "task queue capacity, 0 for unbounded")
	fs.String(KeyFaultPolicy, defaultFaultPolicy, "reaction to a worker fault: continue or abort")
	fs.Float64(KeyDispatchRate, 0, "maximum tasks dispatched per second, 0 for unlimited")
	fs.Int(KeyDispatchBurst, defaultDispatchBurst, "dispatch burst size when a rate is set")
	fs.Duration(KeyStepDelay, 0, "delay between two steps of a counter task")
	fs.String(KeyProgramFormat, "", "program format: line or yaml (default: from file extension)")
	fs.String(KeyReportFormat, defaultReportFormat, "report format: text, json or yaml")
	fs.Bool(KeyProgress, false, "print each result to stderr as it completes")
	fs.String(KeyDBPath, "", "SQLite database recording run history, empty to disable")
	fs.String(KeyMetricsFile, "", "write Prometheus metrics to this file after the run")
	fs.Bool(KeyTrace, false, "export OpenTelemetry spans to stderr")
	fs.String(KeyLogLevel, defaultLogLevel, "log level: debug, info, warn or error")
	fs.String(KeyLogFormat, defaultLogFormat, "log format: json or text")
	fs.String(KeyLogFile, "", "write logs to this rotated file instead of stderr")

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}
	return v, nil
}

// Load resolves the configuration from v, reading configFile first when set.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// Validate checks the presentation and logging settings. Pool settings are
// validated by the engine.
func (c Config) Validate() error {
	switch strings.ToLower(c.ReportFormat) {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown report format %q", c.ReportFormat)
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// Level returns the parsed log level.
func (c Config) Level() slog.Level {
	return parseLogLevel(c.LogLevel)
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured logger writing to w at the configured level.
// format "text" selects the text handler; anything else is JSON.
func NewLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// LogSink returns the writer logs go to: a size-rotated file when LogFile is
// set, stderr otherwise.
func (c Config) LogSink() io.WriteCloser {
	if c.LogFile == "" {
		return nopCloser{os.Stderr}
	}
	return &lumberjack.Logger{
		Filename:   c.LogFile,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
		MaxAge:     logFileMaxAgeDays,
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
