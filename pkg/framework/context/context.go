/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package context creates the Provider handed to the agent services and provides simple accessor methods to
// the collaborators it carries.
package context

import (
	"fmt"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/basicmessage"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/connection"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/transport"
	"github.com/hyperledger/aries-edge-agent-go/pkg/framework/didcreator"
	"github.com/hyperledger/aries-edge-agent-go/pkg/store/agent"
	vdrapi "github.com/hyperledger/aries-edge-agent-go/pkg/vdr/api"
	"github.com/hyperledger/aries-edge-agent-go/spi/crypto"
	"github.com/hyperledger/aries-edge-agent-go/spi/secret"
	"github.com/hyperledger/aries-edge-agent-go/spi/storage"
)

// Provider supplies the framework configuration to client objects.
type Provider struct {
	services           []dispatcher.ProtocolService
	storeProvider      storage.Provider
	agentStore         *agent.Store
	secretStore        didcreator.SecretStore
	secretResolver     secret.Resolver
	crypto             crypto.Crypto
	packager           dispatcher.Packager
	vdr                vdrapi.Registry
	outboundDispatcher dispatcher.Outbound
	outboundTransports []transport.OutboundTransport
	didCreator         didcreator.Creator
	mediation          *mediator.Service
	pickup             connection.Pickup
	serviceEndpoint    string
}

// ProviderOption configures the framework.
type ProviderOption func(opts *Provider) error

// New instantiates a new context provider.
func New(opts ...ProviderOption) (*Provider, error) {
	ctxProvider := Provider{}

	for _, opt := range opts {
		err := opt(&ctxProvider)
		if err != nil {
			return nil, fmt.Errorf("error creating the context provider: %w", err)
		}
	}

	return &ctxProvider, nil
}

// OutboundDispatcher returns an outbound dispatcher.
func (p *Provider) OutboundDispatcher() dispatcher.Outbound {
	return p.outboundDispatcher
}

// OutboundTransports returns the outbound transports.
func (p *Provider) OutboundTransports() []transport.OutboundTransport {
	return p.outboundTransports
}

// AllServices returns the protocol services receiving inbound messages.
func (p *Provider) AllServices() []dispatcher.ProtocolService {
	return p.services
}

// Crypto returns the crypto service.
func (p *Provider) Crypto() crypto.Crypto {
	return p.crypto
}

// Packager returns the packager service.
func (p *Provider) Packager() dispatcher.Packager {
	return p.packager
}

// VDRegistry returns the DID resolver registry.
func (p *Provider) VDRegistry() vdrapi.Registry {
	return p.vdr
}

// SecretResolver returns the resolver used to find private keys.
func (p *Provider) SecretResolver() secret.Resolver {
	return p.secretResolver
}

// SecretStore returns the store receiving the secrets of created DIDs.
func (p *Provider) SecretStore() didcreator.SecretStore {
	return p.secretStore
}

// StorageProvider return a storage provider.
func (p *Provider) StorageProvider() storage.Provider {
	return p.storeProvider
}

// AgentStore returns the agent record store.
func (p *Provider) AgentStore() *agent.Store {
	return p.agentStore
}

// PeerDIDStore returns the store recording our own DIDs.
func (p *Provider) PeerDIDStore() didcreator.PeerDIDStore {
	return p.agentStore
}

// MediatorStore returns the store holding the granted mediation.
func (p *Provider) MediatorStore() mediator.MediatorStore {
	return p.agentStore
}

// ConnectionStore returns the store holding DID pairs and seen messages.
func (p *Provider) ConnectionStore() connection.Store {
	return p.agentStore
}

// MessageStore returns the store holding seen messages.
func (p *Provider) MessageStore() basicmessage.Store {
	return p.agentStore
}

// DIDCreator returns the peer DID creator.
func (p *Provider) DIDCreator() didcreator.Creator {
	return p.didCreator
}

// Mediation returns the mediator coordination service.
func (p *Provider) Mediation() connection.Mediation {
	if p.mediation == nil {
		return nil
	}

	return p.mediation
}

// Pickup returns the message pickup poller.
func (p *Provider) Pickup() connection.Pickup {
	return p.pickup
}

// ServiceEndpoint returns the endpoint advertised in the DIDComm service of new DIDs.
func (p *Provider) ServiceEndpoint() string {
	return p.serviceEndpoint
}

// WithOutboundTransports injects the outbound transports into the context.
func WithOutboundTransports(transports ...transport.OutboundTransport) ProviderOption {
	return func(opts *Provider) error {
		opts.outboundTransports = transports
		return nil
	}
}

// WithOutboundDispatcher injects an outbound dispatcher into the context.
func WithOutboundDispatcher(outboundDispatcher dispatcher.Outbound) ProviderOption {
	return func(opts *Provider) error {
		opts.outboundDispatcher = outboundDispatcher
		return nil
	}
}

// WithProtocolServices injects the protocol services into the context.
func WithProtocolServices(services ...dispatcher.ProtocolService) ProviderOption {
	return func(opts *Provider) error {
		opts.services = services
		return nil
	}
}

// WithCrypto injects a crypto service into the context.
func WithCrypto(c crypto.Crypto) ProviderOption {
	return func(opts *Provider) error {
		opts.crypto = c
		return nil
	}
}

// WithPackager injects a packager into the context.
func WithPackager(p dispatcher.Packager) ProviderOption {
	return func(opts *Provider) error {
		opts.packager = p
		return nil
	}
}

// WithVDRegistry injects a DID registry into the context.
func WithVDRegistry(vdr vdrapi.Registry) ProviderOption {
	return func(opts *Provider) error {
		opts.vdr = vdr
		return nil
	}
}

// WithSecretResolver injects the secret resolver into the context.
func WithSecretResolver(r secret.Resolver) ProviderOption {
	return func(opts *Provider) error {
		opts.secretResolver = r
		return nil
	}
}

// WithSecretStore injects the store receiving new secrets into the context.
func WithSecretStore(s didcreator.SecretStore) ProviderOption {
	return func(opts *Provider) error {
		opts.secretStore = s
		return nil
	}
}

// WithStorageProvider injects a storage provider into the context and opens the agent store on it.
func WithStorageProvider(s storage.Provider) ProviderOption {
	return func(opts *Provider) error {
		store, err := agent.New(&storeProvider{s})
		if err != nil {
			return fmt.Errorf("open agent store: %w", err)
		}

		opts.storeProvider = s
		opts.agentStore = store

		return nil
	}
}

// WithAgentStore injects an already opened agent store into the context.
func WithAgentStore(s *agent.Store) ProviderOption {
	return func(opts *Provider) error {
		opts.agentStore = s
		return nil
	}
}

// WithDIDCreator injects the peer DID creator into the context.
func WithDIDCreator(c didcreator.Creator) ProviderOption {
	return func(opts *Provider) error {
		opts.didCreator = c
		return nil
	}
}

// WithMediation injects the mediator coordination service into the context.
func WithMediation(m *mediator.Service) ProviderOption {
	return func(opts *Provider) error {
		opts.mediation = m
		return nil
	}
}

// WithPickup injects the message pickup poller into the context.
func WithPickup(p connection.Pickup) ProviderOption {
	return func(opts *Provider) error {
		opts.pickup = p
		return nil
	}
}

// WithServiceEndpoint injects the advertised service endpoint into the context.
func WithServiceEndpoint(endpoint string) ProviderOption {
	return func(opts *Provider) error {
		opts.serviceEndpoint = endpoint
		return nil
	}
}

type storeProvider struct {
	storage.Provider
}

func (s *storeProvider) StorageProvider() storage.Provider {
	return s.Provider
}
