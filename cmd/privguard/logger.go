package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/privguard/internal/infra"
)

// createLogger logs JSON to <logDir>/privguard_YYYYMMDD.log and, when
// console is not nil, human-readable lines to console. The returned func
// flushes and closes the log file.
func createLogger(logDir, level string, console io.Writer) (*zap.Logger, func()) {
	atom := zap.NewAtomicLevelAt(levelFor(level))

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var cores []zapcore.Core
	var file *os.File

	dir := infra.ExpandHome(logDir)
	if err := infra.EnsureDir(dir); err == nil {
		f, err := os.OpenFile(logFilePath(dir, time.Now()), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err == nil {
			file = f
			cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(f), atom))
		}
	}
	if console != nil {
		consoleConfig := encoderConfig
		consoleConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(consoleConfig), zapcore.AddSync(console), atom))
	}

	if len(cores) == 0 {
		// Fallback to stderr if file logging fails
		logger, err := zap.NewProduction()
		if err != nil {
			return zap.NewNop(), func() {}
		}
		return logger, func() { _ = logger.Sync() }
	}

	logger := zap.New(zapcore.NewTee(cores...))
	return logger, func() {
		_ = logger.Sync()
		if file != nil {
			_ = file.Close()
		}
	}
}

// logFilePath names one log file per day.
func logFilePath(dir string, now time.Time) string {
	return filepath.Join(dir, "privguard_"+now.Format("20060102")+".log")
}

// levelFor maps a settings level name to a zap level. Unknown names log at
// info.
func levelFor(name string) zapcore.Level {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "warning" {
		name = "warn"
	}
	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
