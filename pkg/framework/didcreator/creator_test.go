/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package didcreator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-edge-agent-go/component/storageutil/mem"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	"github.com/hyperledger/aries-edge-agent-go/pkg/secret"
	spisecret "github.com/hyperledger/aries-edge-agent-go/spi/secret"
)

type mockProvider struct {
	secrets SecretStore
	store   PeerDIDStore
}

func (m *mockProvider) SecretStore() SecretStore { return m.secrets }

func (m *mockProvider) PeerDIDStore() PeerDIDStore { return m.store }

type peerDIDRecorder struct {
	dids    map[string]string
	errPut  error
	lastDID string
}

func (r *peerDIDRecorder) StorePeerDID(id, alias string) error {
	if r.errPut != nil {
		return r.errPut
	}

	r.dids[id] = alias
	r.lastDID = id

	return nil
}

type failingSecrets struct{}

func (failingSecrets) Add(...*spisecret.Secret) error { return errors.New("store locked") }

func TestDIDCreator(t *testing.T) {
	ctx := context.Background()

	secrets, err := secret.NewStore(mem.NewProvider())
	require.NoError(t, err)

	recorder := &peerDIDRecorder{dids: map[string]string{}}
	endpoint := did.Service{
		Type:            []string{did.DIDCommMessagingServiceType},
		ServiceEndpoint: []did.ServiceEndpoint{{URI: "did:peer:2.routing"}},
	}

	creator := New(&mockProvider{secrets: secrets, store: recorder}, WithCreatorService(endpoint))

	t.Run("default services", func(t *testing.T) {
		doc, err := creator.Create(ctx, WithAlias("mediator host"))
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(doc.ID, "did:peer:2."))
		require.Equal(t, "mediator host", recorder.dids[doc.ID])

		services := doc.DIDCommServices()
		require.Len(t, services, 1)
		require.Equal(t, "did:peer:2.routing", services[0].ServiceEndpoint[0].URI)

		found, err := secrets.FindSecrets(ctx, []string{doc.ID + "#key-1", doc.ID + "#key-2"})
		require.NoError(t, err)
		require.Len(t, found, 2)
		require.Equal(t, "X25519", found[0].JWK.Crv)
		require.Equal(t, "Ed25519", found[1].JWK.Crv)
	})

	t.Run("explicit services", func(t *testing.T) {
		doc, err := creator.Create(ctx, WithService(did.Service{
			Type:            []string{did.DIDCommMessagingServiceType},
			ServiceEndpoint: []did.ServiceEndpoint{{URI: "https://agent.example.com"}},
		}))
		require.NoError(t, err)
		require.Equal(t, "https://agent.example.com", doc.DIDCommServices()[0].ServiceEndpoint[0].URI)
	})

	t.Run("unique DIDs", func(t *testing.T) {
		a, err := creator.Create(ctx)
		require.NoError(t, err)

		b, err := creator.Create(ctx)
		require.NoError(t, err)
		require.NotEqual(t, a.ID, b.ID)
	})

	t.Run("secret store failure", func(t *testing.T) {
		c := New(&mockProvider{secrets: failingSecrets{}, store: recorder})

		_, err := c.Create(ctx)
		require.ErrorContains(t, err, "store locked")
	})

	t.Run("peer DID store failure", func(t *testing.T) {
		c := New(&mockProvider{secrets: secrets, store: &peerDIDRecorder{errPut: errors.New("full")}})

		_, err := c.Create(ctx)
		require.ErrorContains(t, err, "full")
	})
}

func TestCreateWithoutService(t *testing.T) {
	secrets, err := secret.NewStore(mem.NewProvider())
	require.NoError(t, err)

	creator := New(&mockProvider{secrets: secrets, store: &peerDIDRecorder{dids: map[string]string{}}},
		WithCreatorService(did.Service{
			Type:            []string{did.DIDCommMessagingServiceType},
			ServiceEndpoint: []did.ServiceEndpoint{{URI: "https://agent.example.com"}},
		}))

	doc, err := creator.Create(context.Background(), WithService())
	require.NoError(t, err)
	require.Empty(t, doc.Service)
}
