// Copyright 2019 Intel Corporation.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package common

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// LogType - type of logging, used in all packages
type LogType uint8

const (
	// No - no output even after fatal errors
	No LogType = 1 << iota
	// Initialization - output during system initialization
	Initialization = 2
	// Debug - output during execution one time per time period (scheduler ticks)
	Debug = 4
	// Verbose - output during execution as soon as something happens. Can influence performance
	Verbose = 8
)

var (
	currentLogType = No | Initialization | Debug
	logger         = newLogger(os.Stderr)
)

func newLogger(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(logrus.DebugLevel)
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
	})
	return l
}

func sprint(v ...interface{}) string {
	return strings.TrimSuffix(fmt.Sprintln(v...), "\n")
}

// LogError internal, used in all packages
func LogError(logType LogType, v ...interface{}) string {
	if logType&currentLogType != 0 {
		t := sprint(v...)
		logger.Error(t)
		return t
	}
	return ""
}

// LogWarning internal, used in all packages
func LogWarning(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		logger.Warn(sprint(v...))
	}
}

// LogDebug internal, used in all packages
func LogDebug(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		logger.Debug(sprint(v...))
	}
}

// LogInfo internal, used in all packages
func LogInfo(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		logger.Info(sprint(v...))
	}
}

// LogDrop internal, used in all packages
func LogDrop(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		logger.WithField("drop", true).Debug(sprint(v...))
	}
}

// LogTitle prints without category decoration.
func LogTitle(logType LogType, v ...interface{}) {
	if logType&currentLogType != 0 {
		logger.Info(fmt.Sprint(v...))
	}
}

// SetLogType internal, used in cmd package
func SetLogType(logType LogType) {
	currentLogType = logType
}

// GetLogType returns enabled logging categories.
func GetLogType() LogType {
	return currentLogType
}

// SetLogOutput redirects all log output.
func SetLogOutput(out io.Writer) {
	logger.SetOutput(out)
}

// LogTypeEnabled reports whether any of the categories is enabled. Burst
// processing uses it to skip formatting of per-burst messages.
func LogTypeEnabled(logType LogType) bool {
	return logType&currentLogType != 0
}
