/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package testutil builds DIDComm identities for tests: peer DIDs whose secrets are stored in memory.
package testutil

import (
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-edge-agent-go/component/storageutil/mem"
	"github.com/hyperledger/aries-edge-agent-go/pkg/crypto/ecdhcrypto"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	mockprovider "github.com/hyperledger/aries-edge-agent-go/pkg/mock/provider"
	"github.com/hyperledger/aries-edge-agent-go/pkg/secret"
	"github.com/hyperledger/aries-edge-agent-go/pkg/vdr"
	vdrapi "github.com/hyperledger/aries-edge-agent-go/pkg/vdr/api"
	"github.com/hyperledger/aries-edge-agent-go/pkg/vdr/peer"
)

// Identity is a peer DID together with the provider holding its secrets.
type Identity struct {
	DID          string
	AgreementKID string
	AuthKID      string
	Secrets      *secret.Store
	Provider     *mockprovider.Provider
}

// NewRegistry returns a registry resolving peer DIDs plus the given VDRs.
func NewRegistry(extra ...vdrapi.VDR) *vdr.Registry {
	opts := []vdr.Option{vdr.WithVDR(peer.New())}

	for _, v := range extra {
		opts = append(opts, vdr.WithVDR(v))
	}

	return vdr.New(opts...)
}

// NewIdentity creates a numalgo 2 peer DID with one X25519 agreement key and one Ed25519 authentication key
// and stores both secrets in a fresh in-memory store.
func NewIdentity(t *testing.T, registry vdrapi.Registry, services ...did.Service) *Identity {
	t.Helper()

	_, edPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	xPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)

	peerDID, err := peer.Create(
		[]peer.Key{{Type: peer.Ed25519, Value: edPriv.Public().(ed25519.PublicKey)}},
		[]peer.Key{{Type: peer.X25519, Value: xPriv.PublicKey().Bytes()}},
		services)
	require.NoError(t, err)

	id := &Identity{
		DID:          peerDID.String(),
		AgreementKID: peerDID.String() + "#key-1",
		AuthKID:      peerDID.String() + "#key-2",
	}

	storeProvider := mem.NewProvider()

	id.Secrets, err = secret.NewStore(storeProvider)
	require.NoError(t, err)

	agreement, err := secret.NewSecret(id.AgreementKID, xPriv)
	require.NoError(t, err)

	auth, err := secret.NewSecret(id.AuthKID, edPriv)
	require.NoError(t, err)

	require.NoError(t, id.Secrets.Add(agreement, auth))

	id.Provider = &mockprovider.Provider{
		VDRegistryValue:      registry,
		SecretResolverValue:  id.Secrets,
		CryptoValue:          ecdhcrypto.New(),
		StorageProviderValue: storeProvider,
	}

	return id
}

// DIDCommService returns a DIDCommMessaging service for uri.
func DIDCommService(uri string, routingKeys ...string) did.Service {
	return did.Service{
		Type: []string{did.DIDCommMessagingServiceType},
		ServiceEndpoint: []did.ServiceEndpoint{{
			URI:         uri,
			Accept:      []string{"didcomm/v2"},
			RoutingKeys: routingKeys,
		}},
	}
}
