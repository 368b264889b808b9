/*
Copyright SecureKey Technologies Inc. All Rights Reserved.
SPDX-License-Identifier: Apache-2.0
*/

package provider

import (
	"github.com/hyperledger/aries-edge-agent-go/component/log"
	vdrapi "github.com/hyperledger/aries-edge-agent-go/pkg/vdr/api"
	"github.com/hyperledger/aries-edge-agent-go/spi/crypto"
	"github.com/hyperledger/aries-edge-agent-go/spi/secret"
	"github.com/hyperledger/aries-edge-agent-go/spi/storage"
)

// Provider mocks the collaborators services are created with.
type Provider struct {
	VDRegistryValue      vdrapi.Registry
	SecretResolverValue  secret.Resolver
	CryptoValue          crypto.Crypto
	StorageProviderValue storage.Provider
	LoggerValue          *log.Log
}

// VDRegistry returns the DID registry.
func (p *Provider) VDRegistry() vdrapi.Registry {
	return p.VDRegistryValue
}

// SecretResolver returns the secret resolver.
func (p *Provider) SecretResolver() secret.Resolver {
	return p.SecretResolverValue
}

// Crypto returns the crypto service.
func (p *Provider) Crypto() crypto.Crypto {
	return p.CryptoValue
}

// StorageProvider returns the storage provider.
func (p *Provider) StorageProvider() storage.Provider {
	return p.StorageProviderValue
}
