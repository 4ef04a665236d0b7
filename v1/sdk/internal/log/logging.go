// Copyright (C) 2017 Librato, Inc. All rights reserved.

// Package log is the leveled logger used inside the SDK. Messages go through a
// private logrus logger, so they never mix with an application's logrus
// configuration. It is not the logging callback handed to applications, which
// lives in the sdk package.
package log

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// LogLevel is a type that defines the log level.
type LogLevel uint8

// log levels
const (
	DEBUG LogLevel = iota
	INFO
	WARNING
	ERROR
)

// DefaultLevel defines the default log level
const DefaultLevel = WARNING

const envSDKLogLevel = "APPOPTICS_SDK_DEBUG_LEVEL"

// LevelStr represents the log levels in strings
var LevelStr = []string{
	DEBUG:   "DEBUG",
	INFO:    "INFO",
	WARNING: "WARN",
	ERROR:   "ERROR",
}

var logrusLevels = []logrus.Level{
	DEBUG:   logrus.DebugLevel,
	INFO:    logrus.InfoLevel,
	WARNING: logrus.WarnLevel,
	ERROR:   logrus.ErrorLevel,
}

const (
	timeLayout = "2006/01/02 15:04:05.000000"
	callerKey  = "caller"
)

var logger = logrus.New()

func init() {
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(sdkFormatter{})
	initLog()
}

func initLog() {
	SetLevelFromStr(os.Getenv(envSDKLogLevel))
}

// sdkFormatter writes one line per entry:
//
//	2006/01/02 15:04:05.000000 WARN  [SDK] message
//
// DEBUG entries carry the file and line of the caller after the tag.
type sdkFormatter struct{}

func (sdkFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b strings.Builder
	b.WriteString(e.Time.Format(timeLayout))
	fmt.Fprintf(&b, " %-5s [SDK] ", LevelStr[fromLogrus(e.Level)])
	if c, ok := e.Data[callerKey].(string); ok {
		b.WriteString(c)
		b.WriteByte(' ')
	}
	b.WriteString(e.Message)
	if !strings.HasSuffix(e.Message, "\n") {
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}

func fromLogrus(l logrus.Level) LogLevel {
	for lv, ll := range logrusLevels {
		if ll == l {
			return LogLevel(lv)
		}
	}
	if l > logrus.DebugLevel {
		return DEBUG
	}
	return ERROR
}

// SetOutput sets the output destination for the internal logger.
func SetOutput(w io.Writer) { logger.SetOutput(w) }

// SetLevel sets the log level of the SDK logger. Levels above ERROR are
// treated as ERROR.
func SetLevel(level LogLevel) {
	if level > ERROR {
		level = ERROR
	}
	logger.SetLevel(logrusLevels[level])
}

// Level returns the current log level of the SDK logger
func Level() LogLevel { return fromLogrus(logger.GetLevel()) }

// SetLevelFromStr changes the level to the one s names. Invalid strings fall
// back to DefaultLevel.
func SetLevelFromStr(s string) {
	level, ok := ToLogLevel(s)
	if !ok {
		level = DefaultLevel
	}
	SetLevel(level)
}

// ToLogLevel converts a name like "warn" or an index like "2" to a log level.
// It returns DefaultLevel and false if s is neither.
func ToLogLevel(s string) (LogLevel, bool) {
	if i, err := strconv.Atoi(s); err == nil {
		if i < 0 || i >= len(LevelStr) {
			return DefaultLevel, false
		}
		return LogLevel(i), true
	}
	l, err := StrToLevel(strings.ToUpper(strings.TrimSpace(s)))
	return l, err == nil
}

// StrToLevel converts an upper case level name, e.g. "DEBUG", to its
// LogLevel. Unknown names give DefaultLevel and an error.
func StrToLevel(e string) (LogLevel, error) {
	for idx, s := range LevelStr {
		if s == e {
			return LogLevel(idx), nil
		}
	}
	return DefaultLevel, errors.Errorf("unknown log level %q", e)
}

// caller returns "file.go:line" of the code calling the exported logging
// function. skip counts the frames between caller and that function.
func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "na:na"
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// logIt must be called directly by the exported functions for the DEBUG
// caller to be right.
func logIt(level LogLevel, msg string, args []interface{}) {
	if level > ERROR {
		level = ERROR
	}
	ll := logrusLevels[level]
	if !logger.IsLevelEnabled(ll) {
		return
	}

	var text string
	if msg == "" {
		text = fmt.Sprint(args...)
	} else {
		text = fmt.Sprintf(msg, args...)
	}

	entry := logrus.NewEntry(logger)
	if level == DEBUG {
		// logIt, then Debug or Debugf
		entry = entry.WithField(callerKey, caller(2))
	}
	entry.Log(ll, text)
}

// Logf formats the log message with specified args
// and print it in the specified level
func Logf(level LogLevel, msg string, args ...interface{}) {
	logIt(level, msg, args)
}

// Log prints the log message in the specified level
func Log(level LogLevel, args ...interface{}) {
	logIt(level, "", args)
}

// Debugf formats the log message with specified args at DEBUG level
func Debugf(msg string, args ...interface{}) {
	logIt(DEBUG, msg, args)
}

// Debug prints the log message at DEBUG level
func Debug(args ...interface{}) {
	logIt(DEBUG, "", args)
}

// Infof formats the log message with specified args at INFO level
func Infof(msg string, args ...interface{}) {
	logIt(INFO, msg, args)
}

// Info prints the log message at INFO level
func Info(args ...interface{}) {
	logIt(INFO, "", args)
}

// Warningf formats the log message with specified args at WARN level
func Warningf(msg string, args ...interface{}) {
	logIt(WARNING, msg, args)
}

// Warning prints the log message at WARN level
func Warning(args ...interface{}) {
	logIt(WARNING, "", args)
}

// Errorf formats the log message with specified args at ERROR level
func Errorf(msg string, args ...interface{}) {
	logIt(ERROR, msg, args)
}

// Error prints the log message at ERROR level
func Error(args ...interface{}) {
	logIt(ERROR, "", args)
}
