// Package logs builds the zap loggers used by the CLI and the daemon worker.
package logs

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// EnvDebug enables debug-level diagnostics on stderr.
const EnvDebug = "MCPT_DEBUG"

// DebugEnabled reports whether MCPT_DEBUG requests verbose diagnostics.
func DebugEnabled() bool {
	switch strings.ToLower(os.Getenv(EnvDebug)) {
	case "", "false", "0", "no":
		return false
	}
	return true
}

// NewCLILogger returns the logger for one-shot CLI invocations. Output goes
// to stderr only, so stdout stays clean for command results. Below debug
// level the logger is almost silent: the CLI reports through the error
// taxonomy, not through log lines.
func NewCLILogger(debug bool) *zap.Logger {
	level := zapcore.WarnLevel
	if debug {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.TimeKey = "" // timestamps are noise for interactive use
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		level,
	)
	return zap.New(core)
}

// NewDaemonLogger returns the rotating file logger for a daemon worker.
// One file per server under dir, JSON encoded so the logs stay greppable
// after rotation.
func NewDaemonLogger(dir, serverName string) (*zap.Logger, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	writer := &lumberjack.Logger{
		Filename:   filepath.Join(dir, serverName+".log"),
		MaxSize:    5, // MB
		MaxBackups: 2,
		MaxAge:     14, // days
		Compress:   true,
	}

	level := zapcore.InfoLevel
	if DebugEnabled() {
		level = zapcore.DebugLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.AddSync(writer),
		level,
	)
	return zap.New(core), nil
}
