/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package modlog provides a moduled, level-filtering wrapper for any log.Logger.
package modlog

import (
	"github.com/hyperledger/aries-edge-agent-go/component/log/internal/metadata"
	"github.com/hyperledger/aries-edge-agent-go/spi/log"
)

// ModLog filters calls to the wrapped logger by the module's level (INFO by default).
type ModLog struct {
	logger log.Logger
	module string
}

// NewModLog wraps logger for module.
func NewModLog(logger log.Logger, module string) *ModLog {
	return &ModLog{logger: logger, module: module}
}

// Fatalf calls underlying logger.Fatalf.
func (m *ModLog) Fatalf(format string, args ...interface{}) {
	m.logger.Fatalf(format, args...)
}

// Panicf calls underlying logger.Panicf.
func (m *ModLog) Panicf(format string, args ...interface{}) {
	m.logger.Panicf(format, args...)
}

// Debugf logs if DEBUG is enabled.
func (m *ModLog) Debugf(format string, args ...interface{}) {
	if metadata.IsEnabledFor(m.module, log.DEBUG) {
		m.logger.Debugf(format, args...)
	}
}

// Infof logs if INFO is enabled.
func (m *ModLog) Infof(format string, args ...interface{}) {
	if metadata.IsEnabledFor(m.module, log.INFO) {
		m.logger.Infof(format, args...)
	}
}

// Warnf logs if WARNING is enabled.
func (m *ModLog) Warnf(format string, args ...interface{}) {
	if metadata.IsEnabledFor(m.module, log.WARNING) {
		m.logger.Warnf(format, args...)
	}
}

// Errorf logs if ERROR is enabled.
func (m *ModLog) Errorf(format string, args ...interface{}) {
	if metadata.IsEnabledFor(m.module, log.ERROR) {
		m.logger.Errorf(format, args...)
	}
}

// Logger returns the wrapped logger.
func (m *ModLog) Logger() log.Logger {
	return m.logger
}
