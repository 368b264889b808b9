/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package context

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-edge-agent-go/component/storageutil/mem"
	"github.com/hyperledger/aries-edge-agent-go/pkg/crypto/ecdhcrypto"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/dispatcher/outbound"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/transport"
	arieshttp "github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/transport/http"
	"github.com/hyperledger/aries-edge-agent-go/pkg/secret"
	"github.com/hyperledger/aries-edge-agent-go/pkg/store/agent"
	"github.com/hyperledger/aries-edge-agent-go/pkg/vdr"
	"github.com/hyperledger/aries-edge-agent-go/pkg/vdr/peer"
	"github.com/hyperledger/aries-edge-agent-go/spi/storage"
)

type failingStorage struct {
	storage.Provider
}

func (f *failingStorage) OpenStore(string) (storage.Store, error) {
	return nil, errors.New("disk full")
}

func TestNewProvider(t *testing.T) {
	t.Run("test new with default", func(t *testing.T) {
		prov, err := New()
		require.NoError(t, err)
		require.Empty(t, prov.OutboundDispatcher())
		require.Nil(t, prov.Mediation())
		require.Nil(t, prov.AgentStore())
	})

	t.Run("test error return from options", func(t *testing.T) {
		_, err := New(func(opts *Provider) error {
			return errors.New("error creating the framework option")
		})
		require.Error(t, err)
	})

	t.Run("test new with storage provider", func(t *testing.T) {
		sp := mem.NewProvider()

		prov, err := New(WithStorageProvider(sp))
		require.NoError(t, err)
		require.Equal(t, sp, prov.StorageProvider())
		require.NotNil(t, prov.AgentStore())
		require.Equal(t, prov.AgentStore(), prov.MediatorStore())
		require.Equal(t, prov.AgentStore(), prov.ConnectionStore())
		require.Equal(t, prov.AgentStore(), prov.MessageStore())
		require.Equal(t, prov.AgentStore(), prov.PeerDIDStore())
	})

	t.Run("test storage provider failure", func(t *testing.T) {
		_, err := New(WithStorageProvider(&failingStorage{}))
		require.ErrorContains(t, err, "disk full")
	})

	t.Run("test new with agent store", func(t *testing.T) {
		store, err := agent.New(&storeProvider{mem.NewProvider()})
		require.NoError(t, err)

		prov, err := New(WithAgentStore(store))
		require.NoError(t, err)
		require.Equal(t, store, prov.AgentStore())
	})

	t.Run("test new with collaborators", func(t *testing.T) {
		sp := mem.NewProvider()
		secrets, err := secret.NewStore(sp)
		require.NoError(t, err)

		registry := vdr.New(vdr.WithVDR(peer.New()))
		c := ecdhcrypto.New()

		httpOut, err := arieshttp.NewOutbound()
		require.NoError(t, err)

		prov, err := New(
			WithStorageProvider(sp),
			WithSecretStore(secrets),
			WithSecretResolver(secrets),
			WithCrypto(c),
			WithVDRegistry(registry),
			WithOutboundTransports(httpOut),
			WithServiceEndpoint("https://agent.example.com/didcomm"),
		)
		require.NoError(t, err)

		p := packer.New(prov)
		require.NoError(t, WithPackager(p)(prov))

		o := outbound.NewOutbound(prov)
		require.NoError(t, WithOutboundDispatcher(o)(prov))

		require.Equal(t, secrets, prov.SecretStore())
		require.Equal(t, secrets, prov.SecretResolver())
		require.Equal(t, c, prov.Crypto())
		require.Equal(t, registry, prov.VDRegistry())
		require.Equal(t, []transport.OutboundTransport{httpOut}, prov.OutboundTransports())
		require.Equal(t, p, prov.Packager())
		require.Equal(t, o, prov.OutboundDispatcher())
		require.Equal(t, "https://agent.example.com/didcomm", prov.ServiceEndpoint())
		require.Empty(t, prov.AllServices())
		require.Nil(t, prov.Pickup())
		require.Nil(t, prov.DIDCreator())
	})
}
