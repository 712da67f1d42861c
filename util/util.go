package util

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Debug is the highest DPrintf level that is printed.
var Debug uint64 = 0

var logger = &logrus.Logger{
	Out:       os.Stderr,
	Formatter: &logrus.TextFormatter{DisableTimestamp: true},
	Hooks:     make(logrus.LevelHooks),
	Level:     logrus.DebugLevel,
}

func SetDebug(level uint64) {
	Debug = level
}

// SetFormat selects the trace output format, "text" or "json".
func SetFormat(format string) {
	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
}

func Logger() *logrus.Logger {
	return logger
}

func DPrintf(level uint64, format string, a ...interface{}) {
	if level <= Debug {
		logger.WithField("dlevel", level).Debugf(format, a...)
	}
}

func RoundUp(n uint64, sz uint64) uint64 {
	return (n + sz - 1) / sz
}

func Min(n uint64, m uint64) uint64 {
	if n < m {
		return n
	} else {
		return m
	}
}

// SumOverflows reports whether a+b wraps around.
func SumOverflows(a uint64, b uint64) bool {
	return a+b < a
}

// SumOverflows32 reports whether a+b wraps around 32 bits.
func SumOverflows32(a uint32, b uint32) bool {
	return a+b < a
}

func CloneByteSlice(s []byte) []byte {
	s2 := make([]byte, len(s))
	copy(s2, s)
	return s2
}
