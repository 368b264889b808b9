/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-edge-agent-go/spi/log"
)

func TestLevels(t *testing.T) {
	module := "sample-module-warning"
	SetLevel(module, log.WARNING)
	require.Equal(t, log.WARNING, GetLevel(module))
	require.True(t, IsEnabledFor(module, log.ERROR))
	require.True(t, IsEnabledFor(module, log.WARNING))
	require.False(t, IsEnabledFor(module, log.INFO))

	require.Equal(t, log.INFO, GetLevel("never-configured"))
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("debug")
	require.NoError(t, err)
	require.Equal(t, log.DEBUG, l)
	require.Equal(t, "DEBUG", ParseString(l))

	_, err = ParseLevel("verbose")
	require.ErrorIs(t, err, ErrInvalidLogLevel)
	require.Equal(t, "UNKNOWN", ParseString(log.Level(42)))
}

func TestCallerInfo(t *testing.T) {
	module := "sample-module-caller-info"

	require.True(t, IsCallerInfoEnabled(module, log.INFO))
	HideCallerInfo(module, log.INFO)
	require.False(t, IsCallerInfoEnabled(module, log.INFO))
	ShowCallerInfo(module, log.INFO)
	require.True(t, IsCallerInfoEnabled(module, log.INFO))
}
