package log

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
)

const (
	// default log level
	defaultLogLevel = logrus.InfoLevel

	// log file name
	globalLogFileName = "global.log"
	// default log directory
	logDir = "mempoollogs"
	// default log file params
	defaultLogMaxSize    = 500 // maximum file size before rotation, in MB
	defaultLogMaxBackups = 3   // maximum number of old log files to keep
	defaultLogMaxAge     = 28  // maximum number of days to retain old log files
)

// Fields is an alias to avoid importing logrus at every call site.
type Fields = logrus.Fields

// Logger is the structured logger handed to the pool and its collaborators.
type Logger = logrus.Logger

var (
	// logger instance used by the application
	logger *logrus.Logger

	// default logfile path
	defaultLogFilePath = "./" + logDir + "/" + globalLogFileName
)

func init() {
	logger = createStandardLogger(defaultLogFilePath, defaultLogLevel.String(), true)
}

// Global returns the process-wide logger instance.
func Global() *Logger {
	return logger
}

// SetGlobalLogger redirects the global logger to the given file at the given
// level. Invalid levels fall back to info.
func SetGlobalLogger(logFilename string, logLevel string) {
	output := &lumberjack.Logger{
		Filename:   logFilename,
		MaxSize:    defaultLogMaxSize,
		MaxBackups: defaultLogMaxBackups,
		MaxAge:     defaultLogMaxAge,
	}
	logger.SetOutput(io.MultiWriter(output, os.Stdout))

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = defaultLogLevel
	}
	logger.SetLevel(level)
}

// NewLogger creates a dedicated rotating logger, used to give the pool its own
// log file separate from the global one.
func NewLogger(logFilename string, logLevel string) *Logger {
	if logFilename == "" {
		logFilename = defaultLogFilePath
	}
	poolLogger := createStandardLogger(logFilename, logLevel, false)
	poolLogger.WithFields(logrus.Fields{
		"path":  logFilename,
		"level": logLevel,
	}).Info("Pool logger started")
	return poolLogger
}

func createStandardLogger(logFilename string, logLevel string, stdOut bool) *logrus.Logger {
	logger := logrus.New()
	output := &lumberjack.Logger{
		Filename:   logFilename,
		MaxSize:    defaultLogMaxSize,
		MaxBackups: defaultLogMaxBackups,
		MaxAge:     defaultLogMaxAge,
	}

	if stdOut {
		logger.SetOutput(io.MultiWriter(output, os.Stdout))
	} else {
		logger.SetOutput(output)
	}

	logger.SetFormatter(&logrus.TextFormatter{
		ForceColors:     true,
		PadLevelText:    true,
		FullTimestamp:   true,
		TimestampFormat: "01-02|15:04:05.000",
	})
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		level = defaultLogLevel
	}
	logger.SetLevel(level)
	return logger
}

func WithField(key string, val interface{}) *logrus.Entry {
	return logger.WithField(key, val)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return logger.WithFields(fields)
}

func Trace(keyvals ...interface{}) {
	logger.Trace(keyvals...)
}

func Tracef(msg string, args ...interface{}) {
	logger.Tracef(msg, args...)
}

func Debug(keyvals ...interface{}) {
	logger.Debug(keyvals...)
}

func Debugf(msg string, args ...interface{}) {
	logger.Debugf(msg, args...)
}

func Info(keyvals ...interface{}) {
	logger.Info(keyvals...)
}

func Infof(msg string, args ...interface{}) {
	logger.Infof(msg, args...)
}

func Warn(keyvals ...interface{}) {
	logger.Warn(keyvals...)
}

func Warnf(msg string, args ...interface{}) {
	logger.Warnf(msg, args...)
}

func Error(keyvals ...interface{}) {
	logger.Error(keyvals...)
}

func Errorf(msg string, args ...interface{}) {
	logger.Errorf(msg, args...)
}

func Fatal(keyvals ...interface{}) {
	logger.Fatal(keyvals...)
}

func Fatalf(msg string, args ...interface{}) {
	logger.Fatalf(msg, args...)
}
