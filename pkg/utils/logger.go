package utils

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileMaxSizeMB  = 20
	logFileMaxBackups = 3
	logFileMaxAgeDays = 14
)

// LogConfig mirrors the log_* configuration keys. When File is set the log
// goes there (rotated), and to the console too only if Console is true.
type LogConfig struct {
	Level   string
	Format  string
	File    string
	Console bool
}

type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
}

func NewLogger(config LogConfig, service, version string) (*Logger, error) {
	return newLogger(config, service, version, os.Stdout)
}

func newLogger(config LogConfig, service, version string, console io.Writer) (*Logger, error) {
	l := &Logger{Logger: logrus.New()}

	level, err := logrus.ParseLevel(strings.TrimSpace(config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.EqualFold(strings.TrimSpace(config.Format), "json") {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "severity",
				logrus.FieldKeyMsg:   "message",
			},
		})
		l.AddHook(&ServiceHook{Service: service, Version: version})
	} else {
		l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true, DisableColors: true})
	}

	if config.File == "" {
		l.SetOutput(console)
		return l, nil
	}

	if err := os.MkdirAll(filepath.Dir(config.File), 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	l.file = &lumberjack.Logger{
		Filename:   config.File,
		MaxSize:    logFileMaxSizeMB,
		MaxBackups: logFileMaxBackups,
		MaxAge:     logFileMaxAgeDays,
		Compress:   true,
	}
	if config.Console {
		l.SetOutput(io.MultiWriter(l.file, console))
	} else {
		l.SetOutput(l.file)
	}
	return l, nil
}

func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Install makes package-level logrus calls log through l.
func (l *Logger) Install() {
	std := logrus.StandardLogger()
	std.SetOutput(l.Out)
	std.SetLevel(l.Level)
	std.SetFormatter(l.Formatter)
	std.ReplaceHooks(make(logrus.LevelHooks))
	for _, hooks := range l.Hooks {
		for _, h := range hooks {
			std.AddHook(h)
		}
	}
}

// ServiceHook stamps every entry with the service name and build version.
type ServiceHook struct {
	Service string
	Version string
}

func (h *ServiceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *ServiceHook) Fire(entry *logrus.Entry) error {
	entry.Data["service"] = h.Service
	entry.Data["version"] = h.Version
	return nil
}

func DefaultLogger() *Logger {
	l, _ := newLogger(LogConfig{}, "otxsubs", "dev", os.Stdout)
	return l
}
