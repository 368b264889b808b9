/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package modlog

import (
	"bytes"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-edge-agent-go/component/log/internal/metadata"
	"github.com/hyperledger/aries-edge-agent-go/spi/log"
)

func TestModLogFiltersByLevel(t *testing.T) {
	const module = "modlog-filter"

	var buf bytes.Buffer

	def := NewDefLog(module)
	def.SetOutput(&buf)

	logger := NewModLog(def, module)
	require.Equal(t, def, logger.Logger())

	metadata.SetLevel(module, log.WARNING)
	metadata.HideCallerInfo(module, log.WARNING)

	logger.Infof("not shown")
	require.Empty(t, buf.String())

	logger.Warnf("brown %s", "fox")

	match, err := regexp.MatchString(`\[modlog-filter\] .* UTC -> WARNING brown fox`, buf.String())
	require.NoError(t, err)
	require.True(t, match, buf.String())
}

func TestDefLogCallerInfo(t *testing.T) {
	const module = "modlog-caller"

	var buf bytes.Buffer

	def := NewDefLog(module)
	def.SetOutput(&buf)

	metadata.ShowCallerInfo(module, log.ERROR)
	def.Errorf("failure")
	require.Contains(t, buf.String(), "-> ERROR failure")
	require.Contains(t, buf.String(), " - ")

	require.Panics(t, func() { def.Panicf("fatal %d", 1) })
}
