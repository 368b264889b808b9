/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package agent wires DID resolution, DIDComm packing, mediation and connections into one edge agent.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/pkg/common/downloader"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/dispatcher/inbound"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/dispatcher/outbound"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/basicmessage"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/connection"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/messagepickup"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/outofband"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/transport"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	fwcontext "github.com/hyperledger/aries-edge-agent-go/pkg/framework/context"
	"github.com/hyperledger/aries-edge-agent-go/pkg/framework/didcreator"
	agentstore "github.com/hyperledger/aries-edge-agent-go/pkg/store/agent"
	"github.com/hyperledger/aries-edge-agent-go/pkg/vdr"
	vdrapi "github.com/hyperledger/aries-edge-agent-go/pkg/vdr/api"
	"github.com/hyperledger/aries-edge-agent-go/pkg/vdr/peer"
	"github.com/hyperledger/aries-edge-agent-go/pkg/vdr/prism"
	spisecret "github.com/hyperledger/aries-edge-agent-go/spi/secret"
	"github.com/hyperledger/aries-edge-agent-go/spi/storage"
)

const prismMethod = "prism"

var logger = log.New("edge-agent/framework/agent")

// Agent provides access to the context being managed by the framework and the operations of an edge agent.
type Agent struct {
	storeProvider      storage.Provider
	secretResolvers    []spisecret.Resolver
	ledger             prism.LedgerLookup
	outboundTransports []transport.OutboundTransport
	serviceEndpoint    string
	cacheSize          int
	cacheTTL           time.Duration
	retryAttempts      int
	retryDelay         time.Duration
	handshakeTimeout   time.Duration
	pollInterval       time.Duration
	basicMessageHandle basicmessage.MessageHandle
	logger             *log.Log

	ctx          *fwcontext.Provider
	registry     *vdr.Registry
	outbound     *outbound.Dispatcher
	inbound      *inbound.MessageHandler
	mediation    *mediator.Service
	pickup       *messagepickup.Service
	connections  *connection.Service
	basicMessage *basicmessage.MessageService
	downloader   *downloader.Downloader
}

// Option configures the framework.
type Option func(opts *Agent) error

// New initializes the edge agent based on the set of options provided.
func New(opts ...Option) (*Agent, error) {
	a := &Agent{}

	for _, option := range opts {
		err := option(a)
		if err != nil {
			closeErr := a.Close()
			return nil, fmt.Errorf("close err: %v Error in option passed to New: %w", closeErr, err)
		}
	}

	if err := defFrameworkOpts(a); err != nil {
		return nil, fmt.Errorf("default option initialization failed: %w", err)
	}

	return initializeServices(a)
}

func initializeServices(a *Agent) (*Agent, error) {
	// order is important: the packer needs the registry, the dispatcher needs the packer and the services
	// need the dispatcher.
	if err := createContext(a); err != nil {
		return nil, err
	}

	if err := createOutboundDispatcher(a); err != nil {
		return nil, err
	}

	if err := loadServices(a); err != nil {
		return nil, err
	}

	return a, nil
}

// WithStoreProvider injects a storage provider to the framework.
func WithStoreProvider(prov storage.Provider) Option {
	return func(opts *Agent) error {
		opts.storeProvider = prov
		return nil
	}
}

// WithSecretResolver adds secret resolvers consulted after the agent's own secret store.
func WithSecretResolver(resolvers ...spisecret.Resolver) Option {
	return func(opts *Agent) error {
		opts.secretResolvers = append(opts.secretResolvers, resolvers...)
		return nil
	}
}

// WithLedger sets the ledger used to resolve short-form prism DIDs.
func WithLedger(l prism.LedgerLookup) Option {
	return func(opts *Agent) error {
		opts.ledger = l
		return nil
	}
}

// WithOutboundTransports injects the outbound transports to the framework.
func WithOutboundTransports(outboundTransports ...transport.OutboundTransport) Option {
	return func(opts *Agent) error {
		opts.outboundTransports = append(opts.outboundTransports, outboundTransports...)
		return nil
	}
}

// WithServiceEndpoint sets the endpoint advertised by DIDs created without mediation.
func WithServiceEndpoint(endpoint string) Option {
	return func(opts *Agent) error {
		opts.serviceEndpoint = endpoint
		return nil
	}
}

// WithResolverCache caches resolved DID documents.
func WithResolverCache(size int, ttl time.Duration) Option {
	return func(opts *Agent) error {
		opts.cacheSize = size
		opts.cacheTTL = ttl

		return nil
	}
}

// WithRetry sets the delivery attempts and the delay between them.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(opts *Agent) error {
		opts.retryAttempts = attempts
		opts.retryDelay = delay

		return nil
	}
}

// WithHandshakeTimeout sets how long SendHandshake waits for the connection response.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(opts *Agent) error {
		opts.handshakeTimeout = d
		return nil
	}
}

// WithPickupInterval sets how often the mediator is polled while a handshake is pending.
func WithPickupInterval(d time.Duration) Option {
	return func(opts *Agent) error {
		opts.pollInterval = d
		return nil
	}
}

// WithBasicMessageHandler sets the callback receiving basic messages.
func WithBasicMessageHandler(handle basicmessage.MessageHandle) Option {
	return func(opts *Agent) error {
		opts.basicMessageHandle = handle
		return nil
	}
}

// WithLogger sets the logger of the agent services, replacing their module loggers.
func WithLogger(l *log.Log) Option {
	return func(opts *Agent) error {
		opts.logger = l
		return nil
	}
}

// Context provides a handle to the framework context.
func (a *Agent) Context() *fwcontext.Provider {
	return a.ctx
}

// ParseDID parses a DID string.
func (a *Agent) ParseDID(id string) (*did.DID, error) {
	return did.Parse(id)
}

// ResolveDID resolves a peer or prism DID into its document.
func (a *Agent) ResolveDID(ctx context.Context, id string) (*did.Doc, error) {
	return a.registry.Resolve(ctx, id)
}

// CreatePeerDID creates a numalgo 2 peer DID. When a mediation is granted the DID is routed through the
// mediator and registered in its key list; otherwise services, or the default service, are advertised.
func (a *Agent) CreatePeerDID(ctx context.Context, services ...did.Service) (*did.Doc, error) {
	routing, err := a.mediation.RoutingService()
	if err != nil && !errors.Is(err, mediator.ErrNoMediator) {
		return nil, fmt.Errorf("create peer did: %w", err)
	}

	var docOpts []didcreator.DocOpt

	switch {
	case routing != nil:
		docOpts = append(docOpts, didcreator.WithService(append(services, *routing)...))
	case len(services) > 0:
		docOpts = append(docOpts, didcreator.WithService(services...))
	}

	doc, err := a.ctx.DIDCreator().Create(ctx, docOpts...)
	if err != nil {
		return nil, fmt.Errorf("create peer did: %w", err)
	}

	if routing != nil {
		if err = a.mediation.UpdateKeyList(ctx, []string{doc.ID}); err != nil {
			return nil, fmt.Errorf("create peer did: %w", err)
		}
	}

	return doc, nil
}

// CreatePrismDID creates a long-form prism DID from the master key and additional keys and services.
func (a *Agent) CreatePrismDID(ctx context.Context, masterKey *btcec.PublicKey,
	opts ...prism.CreateOption) (*did.Doc, error) {
	return a.registry.Create(ctx, prismMethod,
		vdrapi.WithOption(prism.MasterKeyOpt, masterKey),
		vdrapi.WithOption(prism.CreateOptionsOpt, opts))
}

// Pack packs msg into the requested media type.
func (a *Agent) Pack(ctx context.Context, msg *message.Message, mediaType string,
	opts ...packer.PackOption) (*packer.PackResult, error) {
	return a.ctx.Packager().Pack(ctx, msg, mediaType, opts...)
}

// Unpack opens an envelope layer by layer.
func (a *Agent) Unpack(ctx context.Context, wire []byte) (*message.Message, *packer.UnpackMetadata, error) {
	return a.ctx.Packager().Unpack(ctx, wire)
}

// AchieveMediation requests mediation from mediatorDID and persists the grant.
func (a *Agent) AchieveMediation(ctx context.Context, mediatorDID string) (*agentstore.Mediator, error) {
	return a.mediation.AchieveMediation(ctx, mediatorDID)
}

// UpdateKeyList announces dids to the mediator.
func (a *Agent) UpdateKeyList(ctx context.Context, dids []string) error {
	return a.mediation.UpdateKeyList(ctx, dids)
}

// PickupUnreadMessages fetches up to limit queued messages from the mediator.
func (a *Agent) PickupUnreadMessages(ctx context.Context, limit int) ([]messagepickup.Delivered, error) {
	return a.pickup.PickupUnreadMessages(ctx, limit)
}

// RegisterMessagesAsRead lets the mediator drop the delivered messages with ids.
func (a *Agent) RegisterMessagesAsRead(ctx context.Context, ids []string) error {
	return a.pickup.RegisterMessagesAsRead(ctx, ids)
}

// CreateInvitation creates a peer DID and an out-of-band invitation from it. When base is set the
// invitation URL is returned as well.
func (a *Agent) CreateInvitation(ctx context.Context, base string,
	opts ...outofband.Option) (*outofband.Invitation, string, error) {
	doc, err := a.CreatePeerDID(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("create invitation: %w", err)
	}

	inv := outofband.NewInvitation(doc.ID, opts...)

	if base == "" {
		return inv, "", nil
	}

	u, err := outofband.CreateInvitationURL(base, inv)
	if err != nil {
		return nil, "", fmt.Errorf("create invitation: %w", err)
	}

	return inv, u, nil
}

// SendHandshake accepts an invitation and waits for the connection to be established.
func (a *Agent) SendHandshake(ctx context.Context, inv *outofband.Invitation) (*agentstore.DIDPair, error) {
	return a.connections.SendHandshake(ctx, inv)
}

// AcceptInvitationURL parses an out-of-band invitation URL and accepts it.
func (a *Agent) AcceptInvitationURL(ctx context.Context, rawURL string) (*agentstore.DIDPair, error) {
	inv, err := outofband.ParseInvitationURL(rawURL)
	if err != nil {
		return nil, err
	}

	return a.SendHandshake(ctx, inv)
}

// DIDPairs returns the established connections.
func (a *Agent) DIDPairs() ([]agentstore.DIDPair, error) {
	return a.ctx.AgentStore().DIDPairs()
}

// HandleInbound unpacks an inbound envelope and dispatches its message. The reply is always empty: answers
// are sent through the outbound dispatcher.
func (a *Agent) HandleInbound(ctx context.Context, envelope []byte) ([]byte, error) {
	return nil, a.inbound.HandleInboundEnvelope(ctx, envelope)
}

// HandleMessage dispatches an already unpacked message, such as one picked up from the mediator. meta is
// the metadata of the envelope msg came in; messages whose sender it does not authenticate are rejected.
func (a *Agent) HandleMessage(ctx context.Context, msg *message.Message, meta *packer.UnpackMetadata) error {
	return a.inbound.HandleMessage(ctx, msg, meta)
}

// InboundHandler returns the handler to mount on inbound transports.
func (a *Agent) InboundHandler() transport.InboundMessageHandler {
	return a.HandleInbound
}

// SendMessage packs msg for its recipients and delivers it, returning the synchronous reply if any.
func (a *Agent) SendMessage(ctx context.Context, msg *message.Message) (*message.Message, error) {
	return a.outbound.Send(ctx, msg)
}

// SendBasicMessage sends a text message over an established connection.
func (a *Agent) SendBasicMessage(ctx context.Context, from, to, content string) (*basicmessage.Message, error) {
	return a.basicMessage.Send(ctx, from, to, content)
}

// Fetch downloads an http(s) resource or resolves a DID into its JSON document.
func (a *Agent) Fetch(ctx context.Context, ref string) ([]byte, error) {
	return a.downloader.Fetch(ctx, ref)
}

// Close frees resources being maintained by the framework.
func (a *Agent) Close() error {
	if a.registry != nil {
		if err := a.registry.Close(); err != nil {
			return fmt.Errorf("failed to close the vdr: %w", err)
		}
	}

	if a.storeProvider != nil {
		err := a.storeProvider.Close()
		if err != nil {
			return fmt.Errorf("failed to close the store: %w", err)
		}
	}

	return nil
}

func createContext(a *Agent) error {
	registryOpts := []vdr.Option{
		vdr.WithVDR(peer.New()),
		vdr.WithVDR(prism.New(prism.WithLedger(a.ledger))),
	}

	if a.logger != nil {
		registryOpts = append(registryOpts, vdr.WithLogger(a.logger))
	}

	if a.cacheSize > 0 || a.cacheTTL > 0 {
		registryOpts = append(registryOpts, vdr.WithCache(a.cacheSize, a.cacheTTL))
	}

	a.registry = vdr.New(registryOpts...)

	ctx, err := fwcontext.New(
		fwcontext.WithStorageProvider(a.storeProvider),
		fwcontext.WithVDRegistry(a.registry),
		fwcontext.WithCrypto(defaultCrypto()),
		fwcontext.WithOutboundTransports(a.outboundTransports...),
		fwcontext.WithServiceEndpoint(a.serviceEndpoint),
	)
	if err != nil {
		return fmt.Errorf("context creation failed: %w", err)
	}

	secrets, err := secretStore(a.storeProvider)
	if err != nil {
		return err
	}

	err = applyContextOptions(ctx,
		fwcontext.WithSecretStore(secrets),
		fwcontext.WithSecretResolver(secretResolver(secrets, a.secretResolvers)),
	)
	if err != nil {
		return err
	}

	if err = applyContextOptions(ctx, fwcontext.WithPackager(packer.New(ctx))); err != nil {
		return err
	}

	var creatorOpts []didcreator.Option
	if a.serviceEndpoint != "" {
		creatorOpts = append(creatorOpts, didcreator.WithCreatorService(didCommService(a.serviceEndpoint)))
	}

	if err = applyContextOptions(ctx, fwcontext.WithDIDCreator(didcreator.New(ctx, creatorOpts...))); err != nil {
		return err
	}

	a.ctx = ctx

	return nil
}

func createOutboundDispatcher(a *Agent) error {
	var opts []outbound.Option

	if a.logger != nil {
		opts = append(opts, outbound.WithLogger(a.logger))
	}

	if a.retryAttempts > 0 {
		opts = append(opts, outbound.WithRetry(a.retryAttempts, a.retryDelay))
	}

	a.outbound = outbound.NewOutbound(a.ctx, opts...)

	return applyContextOptions(a.ctx, fwcontext.WithOutboundDispatcher(a.outbound))
}

func loadServices(a *Agent) error {
	var (
		mediatorOpts []mediator.Option
		pickupOpts   []messagepickup.Option
		connOpts     []connection.Option
	)

	if a.logger != nil {
		mediatorOpts = append(mediatorOpts, mediator.WithLogger(a.logger))
		pickupOpts = append(pickupOpts, messagepickup.WithLogger(a.logger))
		connOpts = append(connOpts, connection.WithLogger(a.logger))
	}

	a.mediation = mediator.New(a.ctx, mediatorOpts...)
	a.pickup = messagepickup.New(a.ctx, pickupOpts...)

	if err := applyContextOptions(a.ctx, fwcontext.WithMediation(a.mediation), fwcontext.WithPickup(a.pickup)); err != nil {
		return err
	}

	// picked up messages go through the inbound dispatcher, which is created last.
	connOpts = append(connOpts, connection.WithMessageHandler(
		func(ctx context.Context, msg *message.Message, meta *packer.UnpackMetadata) error {
			return a.inbound.HandleMessage(ctx, msg, meta)
		}))

	if a.handshakeTimeout > 0 {
		connOpts = append(connOpts, connection.WithHandshakeTimeout(a.handshakeTimeout))
	}

	if a.pollInterval > 0 {
		connOpts = append(connOpts, connection.WithPollInterval(a.pollInterval))
	}

	a.connections = connection.New(a.ctx, connOpts...)

	handle := a.basicMessageHandle
	if handle == nil {
		handle = func(_ context.Context, msg basicmessage.Message) error {
			logger.With("msgID", msg.ID).Infof("basic message from %s", msg.From)

			return nil
		}
	}

	var basicOpts []basicmessage.Option
	if a.logger != nil {
		basicOpts = append(basicOpts, basicmessage.WithLogger(a.logger))
	}

	var err error

	a.basicMessage, err = basicmessage.NewMessageService(a.ctx, handle, basicOpts...)
	if err != nil {
		return fmt.Errorf("new protocol service failed: %w", err)
	}

	services := []dispatcher.ProtocolService{a.mediation, a.connections, a.basicMessage}

	if err = applyContextOptions(a.ctx, fwcontext.WithProtocolServices(services...)); err != nil {
		return err
	}

	// after adding all protocol services to the context, we can initialize the handler properly.
	a.inbound = inbound.NewInboundMessageHandler(a.ctx)

	var downloaderOpts []downloader.Option

	if a.retryAttempts > 0 {
		downloaderOpts = append(downloaderOpts, downloader.WithRetry(a.retryAttempts, a.retryDelay))
	}

	a.downloader = downloader.New(a.registry, downloaderOpts...)

	return nil
}

func applyContextOptions(ctx *fwcontext.Provider, opts ...fwcontext.ProviderOption) error {
	for _, opt := range opts {
		if err := opt(ctx); err != nil {
			return fmt.Errorf("update context: %w", err)
		}
	}

	return nil
}
