/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package modlog

import (
	"fmt"
	"io"
	builtinlog "log"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/hyperledger/aries-edge-agent-go/component/log/internal/metadata"
	"github.com/hyperledger/aries-edge-agent-go/spi/log"
)

const (
	logLevelFormatter   = "UTC %s-> %s "
	logPrefixFormatter  = " [%s] "
	callerInfoFormatter = "- %s "

	maxCallers     = 8
	skipCallers    = 5
	notFound       = "n/a"
	logFramePrefix = "log.(*Log)"
)

// DefLog is the built-in logger on top of the standard go log package.
// Format: [<MODULE>] <TIME UTC> - <CALLER> -> <LEVEL> <TEXT>.
type DefLog struct {
	logger *builtinlog.Logger
	module string
}

// NewDefLog returns a DefLog for module writing to stdout.
func NewDefLog(module string) *DefLog {
	logger := builtinlog.New(os.Stdout, fmt.Sprintf(logPrefixFormatter, module),
		builtinlog.Ldate|builtinlog.Ltime|builtinlog.LUTC)

	return &DefLog{logger: logger, module: module}
}

// Fatalf logs at CRITICAL and exits.
func (l *DefLog) Fatalf(format string, args ...interface{}) {
	l.logf(log.CRITICAL, format, args...)
	os.Exit(1)
}

// Panicf logs at CRITICAL and panics.
func (l *DefLog) Panicf(format string, args ...interface{}) {
	l.logf(log.CRITICAL, format, args...)
	panic(fmt.Sprintf(format, args...))
}

// Debugf logs at DEBUG.
func (l *DefLog) Debugf(format string, args ...interface{}) {
	l.logf(log.DEBUG, format, args...)
}

// Infof logs at INFO.
func (l *DefLog) Infof(format string, args ...interface{}) {
	l.logf(log.INFO, format, args...)
}

// Warnf logs at WARNING.
func (l *DefLog) Warnf(format string, args ...interface{}) {
	l.logf(log.WARNING, format, args...)
}

// Errorf logs at ERROR.
func (l *DefLog) Errorf(format string, args ...interface{}) {
	l.logf(log.ERROR, format, args...)
}

// SetOutput sets the output destination for the logger.
func (l *DefLog) SetOutput(output io.Writer) {
	l.logger.SetOutput(output)
}

func (l *DefLog) logf(level log.Level, format string, args ...interface{}) {
	const callDepth = 2

	prefix := fmt.Sprintf(logLevelFormatter, l.callerInfo(level), metadata.ParseString(level))

	if err := l.logger.Output(callDepth, prefix+fmt.Sprintf(format, args...)); err != nil {
		fmt.Printf("error from logger.Output %v\n", err) //nolint:forbidigo
	}
}

// callerInfo walks the stack past the log package frames to find the real caller.
func (l *DefLog) callerInfo(level log.Level) string {
	if !metadata.IsCallerInfoEnabled(l.module, level) {
		return ""
	}

	fpcs := make([]uintptr, maxCallers)

	n := runtime.Callers(skipCallers, fpcs)
	if n == 0 {
		return fmt.Sprintf(callerInfoFormatter, notFound)
	}

	frames := runtime.CallersFrames(fpcs[:n])

	for f, more := frames.Next(); ; f, more = frames.Next() {
		_, fnName := filepath.Split(f.Function)
		if f.Function == "" {
			fnName = notFound
		}

		if !strings.HasPrefix(fnName, logFramePrefix) || !more {
			return fmt.Sprintf(callerInfoFormatter, fnName)
		}
	}
}
