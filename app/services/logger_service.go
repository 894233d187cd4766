package services

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggerService handles application logging. Entries go to stdout and to
// one file per day under logDir.
type LoggerService struct {
	logDir string
	file   *dailyFile
	logger *zap.Logger
}

// NewLoggerService creates a logger writing to logDir with the given
// level (debug, info, warn, error) and format (console, json).
func NewLoggerService(logDir, level, format string) *LoggerService {
	s := &LoggerService{logDir: logDir}

	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(format, true), zapcore.Lock(zapcore.AddSync(os.Stdout)), parseLevel(level)),
	}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not create logs directory %s: %v. Logging to stdout only.\n", logDir, err)
	} else {
		s.file = &dailyFile{dir: logDir}
		cores = append(cores, zapcore.NewCore(newEncoder(format, false), s.file, parseLevel(level)))
	}

	s.logger = zap.New(zapcore.NewTee(cores...), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	s.LogInfo("Logger initialized", fmt.Sprintf("Log directory: %s", s.logDir))
	return s
}

// Logger returns the underlying zap logger for component injection
func (s *LoggerService) Logger() *zap.Logger {
	return s.logger
}

// Named returns a child logger for a component
func (s *LoggerService) Named(name string) *zap.Logger {
	return s.logger.Named(name)
}

// LogInfo logs an informational message
func (s *LoggerService) LogInfo(message string, details ...string) {
	s.logger.Info(message, detailFields(details)...)
}

// LogWarning logs a warning message
func (s *LoggerService) LogWarning(message string, details ...string) {
	s.logger.Warn(message, detailFields(details)...)
}

// LogError logs an error message
func (s *LoggerService) LogError(message string, err error, details ...string) {
	fields := detailFields(details)
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	s.logger.Error(message, fields...)
}

// LogPanic logs a panic with stack trace
func (s *LoggerService) LogPanic(recovered interface{}) {
	s.logger.Error("Recovered from panic",
		zap.Any("panic", recovered),
		zap.String("stack", string(debug.Stack())),
	)
}

// RecoverPanic is a helper to recover from panics in goroutines
func (s *LoggerService) RecoverPanic() {
	if r := recover(); r != nil {
		s.LogPanic(r)
	}
}

// GetLogDirectory returns the directory where logs are stored
func (s *LoggerService) GetLogDirectory() string {
	return s.logDir
}

// GetTodayLogPath returns the path to today's log file
func (s *LoggerService) GetTodayLogPath() string {
	return filepath.Join(s.logDir, dailyFileName(time.Now()))
}

// CleanOldLogs removes log files older than specified days
func (s *LoggerService) CleanOldLogs(daysToKeep int) error {
	files, err := os.ReadDir(s.logDir)
	if err != nil {
		return err
	}

	cutoffDate := time.Now().AddDate(0, 0, -daysToKeep)

	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".log" {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		if info.ModTime().Before(cutoffDate) {
			filePath := filepath.Join(s.logDir, file.Name())
			s.LogInfo("Deleting old log file", filePath)
			os.Remove(filePath)
		}
	}

	return nil
}

// Close flushes buffered entries and closes the log file
func (s *LoggerService) Close() {
	_ = s.logger.Sync()
	if s.file != nil {
		s.file.Close()
	}
}

func detailFields(details []string) []zap.Field {
	if len(details) == 0 {
		return nil
	}
	return []zap.Field{zap.String("details", strings.Join(details, " | "))}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func newEncoder(format string, color bool) zapcore.Encoder {
	cfg := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == "json" {
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		return zapcore.NewJSONEncoder(cfg)
	}
	if color {
		cfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(cfg)
}

func dailyFileName(t time.Time) string {
	return t.Format("2006-01-02") + ".log"
}

// dailyFile is a zapcore.WriteSyncer that switches to a new file when the
// local date changes.
type dailyFile struct {
	mu         sync.Mutex
	dir        string
	currentDay string
	file       *os.File
}

func (d *dailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.rotateLocked(time.Now()); err != nil {
		return 0, err
	}
	return d.file.Write(p)
}

func (d *dailyFile) Sync() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	return d.file.Sync()
}

func (d *dailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

func (d *dailyFile) rotateLocked(now time.Time) error {
	today := now.Format("2006-01-02")
	if d.currentDay == today && d.file != nil {
		return nil
	}

	if d.file != nil {
		d.file.Close()
	}

	file, err := os.OpenFile(filepath.Join(d.dir, dailyFileName(now)), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	d.file = file
	d.currentDay = today
	return nil
}
