package logger

import (
	"log"
	"os"

	"chainhealth/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a zap logger writing to stdout.
func NewLogger(cfg config.LoggerConfig) (*zap.Logger, error) {
	return NewLoggerTo(cfg, zapcore.Lock(os.Stdout))
}

// NewLoggerTo creates a zap logger writing to out. One-shot CLI commands log to stderr so that
// their stdout carries only results.
func NewLoggerTo(cfg config.LoggerConfig, out zapcore.WriteSyncer) (*zap.Logger, error) {
	logLevel := zap.NewAtomicLevel()
	if err := logLevel.UnmarshalText([]byte(cfg.Level)); err != nil {
		logLevel.SetLevel(zap.InfoLevel)
		log.Printf("Warning: Failed to parse log level '%s', defaulting to 'info'. Error: %v\n", cfg.Level, err)
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if cfg.Encoding == "console" {
		encoder = zapcore.NewConsoleEncoder(encoderCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encoderCfg)
	}

	return zap.New(
		zapcore.NewCore(encoder, out, logLevel),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	), nil
}
