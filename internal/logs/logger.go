// Package logs builds the process-wide zap.Logger used by every component.
// Nothing here is a package-level singleton: New returns a handle
// that callers are expected to inject into their constructors.
package logs

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log level constants accepted in Config.Level.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Config controls logger construction. It is a plain value so it can be
// embedded directly in the server configuration and round-tripped through
// YAML/viper without a separate mapping step.
type Config struct {
	Level         string `yaml:"level" mapstructure:"level"`
	JSONFormat    bool   `yaml:"jsonFormat" mapstructure:"jsonFormat"`
	EnableConsole bool   `yaml:"enableConsole" mapstructure:"enableConsole"`
	EnableFile    bool   `yaml:"enableFile" mapstructure:"enableFile"`
	Filename      string `yaml:"filename" mapstructure:"filename"`
	Dir           string `yaml:"dir" mapstructure:"dir"`
	MaxSizeMB     int    `yaml:"maxSizeMB" mapstructure:"maxSizeMB"`
	MaxBackups    int    `yaml:"maxBackups" mapstructure:"maxBackups"`
	MaxAgeDays    int    `yaml:"maxAgeDays" mapstructure:"maxAgeDays"`
	Compress      bool   `yaml:"compress" mapstructure:"compress"`
}

// DefaultConfig returns sane defaults: console only, human-readable, info
// level. stdio transport mode relies on stderr never colliding with the
// MCP wire protocol on stdout, so console output always targets stderr.
func DefaultConfig() *Config {
	return &Config{
		Level:         LevelInfo,
		EnableConsole: true,
		EnableFile:    false,
		Filename:      "db2i-mcp-gateway.log",
		MaxSizeMB:     10,
		MaxBackups:    5,
		MaxAgeDays:    30,
		Compress:      true,
	}
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case LevelDebug:
		return zap.DebugLevel
	case LevelWarn:
		return zap.WarnLevel
	case LevelError:
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// New builds a *zap.Logger from cfg. A nil cfg falls back to DefaultConfig.
func New(cfg *Config) (*zap.Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	level := parseLevel(cfg.Level)

	var cores []zapcore.Core

	if cfg.EnableConsole {
		cores = append(cores, zapcore.NewCore(consoleEncoder(), zapcore.AddSync(os.Stderr), level))
	}

	if cfg.EnableFile {
		fc, err := fileCore(cfg, level)
		if err != nil {
			return nil, fmt.Errorf("logs: create file core: %w", err)
		}
		cores = append(cores, fc)
	}

	if len(cores) == 0 {
		return nil, fmt.Errorf("logs: no outputs configured")
	}

	core := NewSecretSanitizer(zapcore.NewTee(cores...))
	return zap.New(core, zap.AddCaller()), nil
}

func fileCore(cfg *Config, level zapcore.Level) (zapcore.Core, error) {
	path, err := FilePath(cfg.Dir, cfg.Filename)
	if err != nil {
		return nil, err
	}
	writer := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	enc := fileEncoder()
	if cfg.JSONFormat {
		enc = jsonEncoder()
	}
	return zapcore.NewCore(enc, zapcore.AddSync(writer), level), nil
}

func consoleEncoder() zapcore.Encoder {
	c := zap.NewDevelopmentEncoderConfig()
	c.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	c.EncodeLevel = zapcore.CapitalColorLevelEncoder
	c.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewConsoleEncoder(c)
}

func fileEncoder() zapcore.Encoder {
	c := zap.NewProductionEncoderConfig()
	c.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02T15:04:05.000Z07:00")
	c.EncodeLevel = zapcore.CapitalLevelEncoder
	c.EncodeCaller = zapcore.ShortCallerEncoder
	c.ConsoleSeparator = " | "
	return zapcore.NewConsoleEncoder(c)
}

func jsonEncoder() zapcore.Encoder {
	c := zap.NewProductionEncoderConfig()
	c.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	c.EncodeLevel = zapcore.LowercaseLevelEncoder
	c.EncodeCaller = zapcore.ShortCallerEncoder
	return zapcore.NewJSONEncoder(c)
}
