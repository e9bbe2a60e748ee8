// Package klog is a small leveled, colorized logger in the spirit of
// go-ethereum's logger+glog combination (verbosity-gated Infof/Debugf
// calls) and the teacher's own log.Debugf/Infof/Errorf call sites. It
// intentionally does not carry geth's file-rotation/mlog machinery,
// which is sized for a blockchain client's audit trail rather than
// this module's scope.
package klog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
)

// Level is a logging verbosity level, lowest-to-highest.
type Level int

const (
	LevelError Level = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

var (
	mu      sync.Mutex
	out     io.Writer = colorable.NewColorableStdout()
	level             = LevelInfo

	errPrefix   = color.New(color.FgRed, color.Bold).SprintFunc()
	warnPrefix  = color.New(color.FgYellow).SprintFunc()
	infoPrefix  = color.New(color.FgGreen).SprintFunc()
	debugPrefix = color.New(color.FgCyan).SprintFunc()
)

// SetLevel adjusts the package-wide verbosity gate.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
}

// SetOutput redirects log output, mainly for tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// V reports whether l is enabled at the current verbosity, mirroring
// glog.V(logger.Detail) gating seen in the teacher's dependency tree.
func V(l Level) bool {
	mu.Lock()
	defer mu.Unlock()
	return l <= level
}

func logf(l Level, prefix func(a ...interface{}) string, tag, format string, args ...interface{}) {
	if !V(l) {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	ts := time.Now().Format("15:04:05.000")
	fmt.Fprintf(out, "%s %s %s\n", ts, prefix(tag), fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...interface{}) { logf(LevelError, errPrefix, "ERR", format, args...) }
func Warnf(format string, args ...interface{})  { logf(LevelWarn, warnPrefix, "WRN", format, args...) }
func Infof(format string, args ...interface{})  { logf(LevelInfo, infoPrefix, "INF", format, args...) }
func Debugf(format string, args ...interface{}) { logf(LevelDebug, debugPrefix, "DBG", format, args...) }

func init() {
	if os.Getenv("KADLAN_LOG_LEVEL") == "debug" {
		level = LevelDebug
	}
}
