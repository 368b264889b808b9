/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package log

import (
	"sync"

	"github.com/hyperledger/aries-edge-agent-go/component/log/internal/modlog"
	"github.com/hyperledger/aries-edge-agent-go/spi/log"
)

// loggerProviderInstance is the fallback factory, used by loggers created without WithProvider.
//
//nolint:gochecknoglobals
var (
	loggerProviderInstance log.LoggerProvider
	loggerProviderOnce     sync.Once
)

// Initialize sets the custom logging provider used by loggers created without WithProvider.
// It must be called before the first line is logged.
func Initialize(l log.LoggerProvider) {
	loggerProviderOnce.Do(func() {
		loggerProviderInstance = &modlogProvider{custom: l}
		loggerProviderInstance.GetLogger(loggerModule).Debugf("Logger provider initialized")
	})
}

func loggerProvider() log.LoggerProvider {
	loggerProviderOnce.Do(func() {
		loggerProviderInstance = &modlogProvider{}
		loggerProviderInstance.GetLogger(loggerModule).Debugf(loggerNotInitializedMsg)
	})

	return loggerProviderInstance
}

// modlogProvider wraps a custom provider (or the default logger) with module level filtering.
type modlogProvider struct {
	custom log.LoggerProvider
}

// GetLogger returns moduled logger implementation.
func (p *modlogProvider) GetLogger(module string) log.Logger {
	var logger log.Logger
	if p.custom != nil {
		logger = p.custom.GetLogger(module)
	} else {
		logger = modlog.NewDefLog(module)
	}

	return modlog.NewModLog(logger, module)
}
