package logger

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Log is the process-wide structured logger.
var Log = logrus.New()

func init() {
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	Log.SetOutput(os.Stdout)
	Log.SetLevel(logrus.InfoLevel)
}

// Configure adjusts verbosity for the given environment.
func Configure(environment string) {
	switch environment {
	case "production":
		Log.SetLevel(logrus.InfoLevel)
	case "test":
		Log.SetLevel(logrus.WarnLevel)
	default:
		Log.SetLevel(logrus.DebugLevel)
	}
}

// SetOutput redirects log output, mostly useful in tests.
func SetOutput(w io.Writer) {
	Log.SetOutput(w)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields).WithField("source", "app")
}

func Infof(format string, args ...interface{}) {
	Log.WithField("source", "app").Infof(format, args...)
}

func Debugf(format string, args ...interface{}) {
	Log.WithField("source", "app").Debugf(format, args...)
}

func Warnf(format string, args ...interface{}) {
	Log.WithField("source", "app").Warnf(format, args...)
}

// Error logs err (when non-nil) alongside msg.
func Error(err error, msg string) {
	entry := Log.WithField("source", "app")
	if err != nil {
		entry = entry.WithField("error", err.Error())
	}
	entry.Error(msg)
}

// Fatalf logs and exits.
func Fatalf(format string, args ...interface{}) {
	Log.WithField("source", "app").Fatalf(format, args...)
}

// GormLogger routes GORM output through logrus.
type GormLogger struct {
	LogLevel      gormlogger.LogLevel
	SlowThreshold time.Duration
}

// NewGormLogger returns a GORM logger at the given level.
func NewGormLogger(level gormlogger.LogLevel) gormlogger.Interface {
	return &GormLogger{LogLevel: level, SlowThreshold: 200 * time.Millisecond}
}

func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	newLogger := *l
	newLogger.LogLevel = level
	return &newLogger
}

func (l *GormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Info {
		Log.WithFields(logrus.Fields{"source": "gorm", "data": data}).Info(msg)
	}
}

func (l *GormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Warn {
		Log.WithFields(logrus.Fields{"source": "gorm", "data": data}).Warn(msg)
	}
}

func (l *GormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.LogLevel >= gormlogger.Error {
		Log.WithFields(logrus.Fields{"source": "gorm", "data": data}).Error(msg)
	}
}

func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.LogLevel <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	fields := logrus.Fields{
		"source":  "gorm",
		"elapsed": elapsed.String(),
		"sql":     sql,
		"rows":    rows,
	}

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.LogLevel >= gormlogger.Error:
		fields["error"] = err.Error()
		Log.WithFields(fields).Error("SQL query error")
	case elapsed > l.SlowThreshold && l.SlowThreshold != 0 && l.LogLevel >= gormlogger.Warn:
		Log.WithFields(fields).Warn("slow SQL query")
	case l.LogLevel >= gormlogger.Info:
		Log.WithFields(fields).Debug("SQL query executed")
	}
}
