package lib

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LogDirectory = "logs"
	LogFileName  = "validator.log"
)

func init() {
	color.NoColor = false
}

// LoggerI defines the interface for the leveled, formatted logging used
// throughout the core. Every package takes a LoggerI rather than reaching
// for a global logger, so a caller can route consensus/pool/substate logs
// independently.
type LoggerI interface {
	Debug(msg string)
	Info(msg string)
	Warn(msg string)
	Error(msg string)
	Fatal(msg string)
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

const (
	DebugLevel int32 = -4
	InfoLevel  int32 = 0
	WarnLevel  int32 = 4
	ErrorLevel int32 = 8

	reset = iota
	red
	green
	yellow
	blue
	gray
)

var _ LoggerI = &Logger{}

// LoggerConfig holds the level and destination writer for a Logger.
type LoggerConfig struct {
	Level int32 `json:"level"`
	Out   io.Writer
}

// Logger is the concrete LoggerI backed by a rotating file (lumberjack) and
// stdout, colorized per level.
type Logger struct {
	config LoggerConfig
}

func (l *Logger) Debug(msg string) {
	if l.config.Level <= DebugLevel {
		l.write(colorString(blue, "DEBUG: "+msg))
	}
}
func (l *Logger) Info(msg string) {
	if l.config.Level <= InfoLevel {
		l.write(colorString(green, "INFO: "+msg))
	}
}
func (l *Logger) Warn(msg string) {
	if l.config.Level <= WarnLevel {
		l.write(colorString(yellow, "WARN: "+msg))
	}
}
func (l *Logger) Error(msg string) {
	if l.config.Level <= ErrorLevel {
		l.write(colorString(red, "ERROR: "+msg))
	}
}
func (l *Logger) Fatal(msg string) {
	l.Error(msg)
	os.Exit(1)
}
func (l *Logger) Debugf(format string, args ...interface{}) {
	if l.config.Level <= DebugLevel {
		l.write(colorString(blue, "DEBUG: "+fmt.Sprintf(format, args...)))
	}
}
func (l *Logger) Infof(format string, args ...interface{}) {
	if l.config.Level <= InfoLevel {
		l.write(colorString(green, "INFO: "+fmt.Sprintf(format, args...)))
	}
}
func (l *Logger) Warnf(format string, args ...interface{}) {
	if l.config.Level <= WarnLevel {
		l.write(colorString(yellow, "WARN: "+fmt.Sprintf(format, args...)))
	}
}
func (l *Logger) Errorf(format string, args ...interface{}) {
	if l.config.Level <= ErrorLevel {
		l.write(colorString(red, "ERROR: "+fmt.Sprintf(format, args...)))
	}
}
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.write(colorString(red, "FATAL: "+fmt.Sprintf(format, args...)))
	os.Exit(1)
}

// write() prepends a gray timestamp and flushes the line to the destination
func (l *Logger) write(msg string) {
	stamp := colorString(gray, time.Now().Format(time.StampMilli))
	if _, err := l.config.Out.Write([]byte(fmt.Sprintf("%s %s\n", stamp, msg))); err != nil {
		fmt.Println("logger write failed:", err)
	}
}

// NewLogger() builds a Logger that writes to stdout and a rotating log file
// under dataDirPath/logs, falling back to the given config.Out if already set.
func NewLogger(config LoggerConfig, dataDirPath ...string) LoggerI {
	if config.Out == nil {
		dir := ""
		if len(dataDirPath) > 0 {
			dir = dataDirPath[0]
		}
		if dir == "" {
			dir, _ = os.UserHomeDir()
		}
		logPath := filepath.Join(dir, LogDirectory, LogFileName)
		_ = os.MkdirAll(filepath.Join(dir, LogDirectory), os.ModePerm)
		logFile := &lumberjack.Logger{
			Filename:   logPath,
			MaxSize:    4, // megabytes
			MaxBackups: 100,
			MaxAge:     14, // days
			Compress:   true,
		}
		config.Out = io.MultiWriter(os.Stdout, logFile)
	}
	return &Logger{config: config}
}

// NewDefaultLogger() is a Debug-level Logger writing to stdout only, for tests and tools.
func NewDefaultLogger() LoggerI {
	return &Logger{config: LoggerConfig{Level: DebugLevel, Out: os.Stdout}}
}

// NewNullLogger() discards all output; used by tests that don't care about log lines.
func NewNullLogger() LoggerI {
	return &Logger{config: LoggerConfig{Level: DebugLevel, Out: io.Discard}}
}

func colorString(c int, msg string) string {
	switch c {
	case red:
		return color.New(color.FgRed).Sprint(msg)
	case green:
		return color.New(color.FgGreen).Sprint(msg)
	case yellow:
		return color.New(color.FgYellow).Sprint(msg)
	case blue:
		return color.New(color.FgBlue).Sprint(msg)
	case gray:
		return color.New(color.FgHiBlack).Sprint(msg)
	default:
		return msg
	}
}
