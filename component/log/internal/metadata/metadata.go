/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package metadata keeps the per-module level and caller-info settings of the log component.
package metadata

import (
	"errors"
	"strings"
	"sync"

	"github.com/hyperledger/aries-edge-agent-go/spi/log"
)

const defaultModule = ""

//nolint:gochecknoglobals
var (
	levelNames = []string{"CRITICAL", "ERROR", "WARNING", "INFO", "DEBUG"}

	rwmutex     = &sync.RWMutex{}
	levels      = map[string]log.Level{}
	callerInfos = map[callerInfoKey]bool{}
)

type callerInfoKey struct {
	module string
	level  log.Level
}

// ErrInvalidLogLevel is returned by ParseLevel for unknown level names.
var ErrInvalidLogLevel = errors.New("logger: invalid log level")

// ParseLevel returns the log level from a string representation.
func ParseLevel(level string) (log.Level, error) {
	for i, name := range levelNames {
		if strings.EqualFold(name, level) {
			return log.Level(i), nil
		}
	}

	return log.ERROR, ErrInvalidLogLevel
}

// ParseString returns the string representation of a log level.
func ParseString(level log.Level) string {
	if level < 0 || int(level) >= len(levelNames) {
		return "UNKNOWN"
	}

	return levelNames[level]
}

// SetLevel sets the level for a module. An empty module sets the default level.
func SetLevel(module string, level log.Level) {
	rwmutex.Lock()
	defer rwmutex.Unlock()

	levels[module] = level
}

// GetLevel returns the level of a module, falling back to the default (INFO).
func GetLevel(module string) log.Level {
	rwmutex.RLock()
	defer rwmutex.RUnlock()

	if level, ok := levels[module]; ok {
		return level
	}

	if level, ok := levels[defaultModule]; ok {
		return level
	}

	return log.INFO
}

// IsEnabledFor reports whether level is logged for module.
func IsEnabledFor(module string, level log.Level) bool {
	return level <= GetLevel(module)
}

// ShowCallerInfo enables caller info for module and level.
func ShowCallerInfo(module string, level log.Level) {
	setCallerInfo(module, level, true)
}

// HideCallerInfo disables caller info for module and level.
func HideCallerInfo(module string, level log.Level) {
	setCallerInfo(module, level, false)
}

// IsCallerInfoEnabled reports whether caller info is shown. Enabled unless hidden.
func IsCallerInfoEnabled(module string, level log.Level) bool {
	rwmutex.RLock()
	defer rwmutex.RUnlock()

	enabled, ok := callerInfos[callerInfoKey{module: module, level: level}]

	return !ok || enabled
}

func setCallerInfo(module string, level log.Level, enabled bool) {
	rwmutex.Lock()
	defer rwmutex.Unlock()

	callerInfos[callerInfoKey{module: module, level: level}] = enabled
}
