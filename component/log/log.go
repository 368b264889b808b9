/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package log implements a generic string logger for fmt-style log messages intended for developers & debugging.
//
// Loggers are scoped by module and are handed to services as options; a derived logger created with With
// carries key/value context (message id, thread id) for the duration of a single call.
package log

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hyperledger/aries-edge-agent-go/component/log/internal/metadata"
	"github.com/hyperledger/aries-edge-agent-go/spi/log"
)

//nolint:lll
const (
	loggerNotInitializedMsg = "Default logger initialized (please call log.Initialize() if you wish to use a custom logger)"
	loggerModule            = "edge-agent/common"
)

// Log is an implementation of Logger interface.
// It encapsulates default or custom logger to provide module and level based logging.
type Log struct {
	module   string
	provider log.LoggerProvider
	fields   string

	once     *sync.Once
	instance *log.Logger
}

// Option configures a Log.
type Option func(l *Log)

// WithProvider binds the Log to a specific provider instead of the process-wide one.
func WithProvider(p log.LoggerProvider) Option {
	return func(l *Log) {
		l.provider = &modlogProvider{custom: p}
	}
}

// New creates and returns a Logger implementation based on given module name.
// The underlying logger instance is lazily initialized on first use.
func New(module string, opts ...Option) *Log {
	l := &Log{module: module, once: &sync.Once{}, instance: new(log.Logger)}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

// With returns a derived Log whose lines are prefixed with key=[value] pairs.
func (l *Log) With(keyvals ...string) *Log {
	var sb strings.Builder

	sb.WriteString(l.fields)

	for i := 0; i+1 < len(keyvals); i += 2 {
		fmt.Fprintf(&sb, "%s=[%s] ", keyvals[i], keyvals[i+1])
	}

	return &Log{
		module:   l.module,
		provider: l.provider,
		fields:   sb.String(),
		once:     l.once,
		instance: l.instance,
	}
}

// Module returns the module name of the Log.
func (l *Log) Module() string {
	return l.module
}

// Fatalf calls Fatalf function of underlying logger.
func (l *Log) Fatalf(msg string, args ...interface{}) {
	l.logger().Fatalf(l.fields+msg, args...)
}

// Panicf calls Panicf function of underlying logger.
func (l *Log) Panicf(msg string, args ...interface{}) {
	l.logger().Panicf(l.fields+msg, args...)
}

// Debugf calls Debugf function of underlying logger.
func (l *Log) Debugf(msg string, args ...interface{}) {
	l.logger().Debugf(l.fields+msg, args...)
}

// Infof calls Infof function of underlying logger.
func (l *Log) Infof(msg string, args ...interface{}) {
	l.logger().Infof(l.fields+msg, args...)
}

// Warnf calls Warnf function of underlying logger.
func (l *Log) Warnf(msg string, args ...interface{}) {
	l.logger().Warnf(l.fields+msg, args...)
}

// Errorf calls Errorf function of underlying logger.
func (l *Log) Errorf(msg string, args ...interface{}) {
	l.logger().Errorf(l.fields+msg, args...)
}

func (l *Log) logger() log.Logger {
	l.once.Do(func() {
		p := l.provider
		if p == nil {
			p = loggerProvider()
		}

		*l.instance = p.GetLogger(l.module)
	})

	return *l.instance
}

// SetLevel sets the logging level of a module. If not set the level is INFO.
func SetLevel(module string, level log.Level) {
	metadata.SetLevel(module, level)
}

// GetLevel returns the logging level of a module.
func GetLevel(module string) log.Level {
	return metadata.GetLevel(module)
}

// IsEnabledFor reports whether level is enabled for module.
func IsEnabledFor(module string, level log.Level) bool {
	return metadata.IsEnabledFor(module, level)
}

// ParseLevel returns the log level from a string representation.
func ParseLevel(level string) (log.Level, error) {
	return metadata.ParseLevel(level)
}

// ShowCallerInfo shows caller info in log lines for module and level.
func ShowCallerInfo(module string, level log.Level) {
	metadata.ShowCallerInfo(module, level)
}

// HideCallerInfo hides caller info in log lines for module and level.
func HideCallerInfo(module string, level log.Level) {
	metadata.HideCallerInfo(module, level)
}
