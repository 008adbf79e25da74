// Package runlog appends structured JSON records of each run to a log file.
package runlog

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is an open run log.
type Log struct {
	*zap.Logger
	file *os.File
}

// Open appends to path, creating it (and its directory) if needed. Every
// record carries run_id.
func Open(path, runID string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("open run log: %w", err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(f), zapcore.DebugLevel)
	logger := zap.New(core).With(zap.String("run_id", runID))
	return &Log{Logger: logger, file: f}, nil
}

// Nop returns a Log that discards everything.
func Nop() *Log {
	return &Log{Logger: zap.NewNop()}
}

// Close flushes and closes the file.
func (l *Log) Close() error {
	_ = l.Logger.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
