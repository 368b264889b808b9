/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package mediator implements the client side of DIDComm mediator coordination: requesting mediation,
// registering recipient DIDs and wrapping messages in routing forwards.
package mediator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	"github.com/hyperledger/aries-edge-agent-go/pkg/framework/didcreator"
	"github.com/hyperledger/aries-edge-agent-go/pkg/store/agent"
)

const (
	defaultGrantTimeout = 30 * time.Second
	replyPollInterval   = 100 * time.Millisecond
)

var (
	// ErrMediationDenied is returned when the mediator answers with mediate-deny.
	ErrMediationDenied = errors.New("mediation denied")
	// ErrUnexpectedMessage is returned when a reply has an unexpected type or content.
	ErrUnexpectedMessage = errors.New("unexpected message")
	// ErrNoMediator is returned by operations that need a granted mediation when none is stored.
	ErrNoMediator = errors.New("no mediator registered")
	// ErrKeylistUpdateFailed is returned when the mediator reports an error for a keylist update.
	ErrKeylistUpdateFailed = errors.New("keylist update failed")

	errNoReplyYet = errors.New("no reply yet")
)

// State of the mediation.
type State int

// Mediation states.
const (
	StateNone State = iota
	StatePendingGrant
	StateGranted
)

// MediatorStore persists the granted mediation.
type MediatorStore interface {
	StoreMediator(m agent.Mediator) error
	Mediator() (*agent.Mediator, error)
}

type provider interface {
	OutboundDispatcher() dispatcher.Outbound
	DIDCreator() didcreator.Creator
	MediatorStore() MediatorStore
}

// Option configures the Service.
type Option func(s *Service)

// WithGrantTimeout sets how long AchieveMediation waits for an asynchronous grant.
func WithGrantTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.grantTimeout = d
	}
}

// WithLogger sets the service logger.
func WithLogger(l *log.Log) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// Service is the mediator coordination client.
type Service struct {
	sender       dispatcher.Outbound
	creator      didcreator.Creator
	store        MediatorStore
	grantTimeout time.Duration
	logger       *log.Log

	mu      sync.Mutex
	state   State
	pending map[string]*message.Message

	hostMu sync.Mutex
	host   string
}

// New returns the mediator coordination service.
func New(prov provider, opts ...Option) *Service {
	s := &Service{
		sender:       prov.OutboundDispatcher(),
		creator:      prov.DIDCreator(),
		store:        prov.MediatorStore(),
		grantTimeout: defaultGrantTimeout,
		logger:       log.New("edge-agent/mediator"),
		pending:      make(map[string]*message.Message),
	}

	for _, opt := range opts {
		opt(s)
	}

	if _, err := s.store.Mediator(); err == nil {
		s.state = StateGranted
	}

	return s
}

// State returns the mediation state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// AchieveMediation requests mediation from mediatorDID with a new host DID and stores the grant. When a
// mediation with mediatorDID is already stored it is returned unchanged.
func (s *Service) AchieveMediation(ctx context.Context, mediatorDID string) (*agent.Mediator, error) {
	if m, err := s.store.Mediator(); err == nil && m.MediatorDID == mediatorDID {
		return m, nil
	}

	host, err := s.hostDID(ctx)
	if err != nil {
		return nil, fmt.Errorf("achieve mediation: %w", err)
	}

	req, err := message.New(MediateRequestMsgType, struct{}{},
		message.WithFrom(host), message.WithTo(mediatorDID), message.WithReturnRoute(message.ReturnRouteAll))
	if err != nil {
		return nil, fmt.Errorf("achieve mediation: %w", err)
	}

	logger := s.logger.With("msgID", req.ID)

	s.mu.Lock()
	s.state = StatePendingGrant
	s.pending[req.ID] = nil
	s.mu.Unlock()

	defer s.forget(req.ID)

	reply, err := s.sender.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("send mediate request: %w", err)
	}

	if reply == nil {
		logger.Debugf("no synchronous reply, waiting for grant")

		if reply, err = s.awaitReply(ctx, req.ID); err != nil {
			return nil, fmt.Errorf("get grant for request ID '%s': %w", req.ID, err)
		}
	}

	grant, err := parseGrant(reply)
	if err != nil {
		return nil, err
	}

	m := agent.Mediator{HostDID: host, RoutingDID: grant.RoutingDID, MediatorDID: mediatorDID}

	if err = s.store.StoreMediator(m); err != nil {
		return nil, fmt.Errorf("save mediator: %w", err)
	}

	s.mu.Lock()
	s.state = StateGranted
	s.mu.Unlock()

	logger.Infof("mediation granted by %s", mediatorDID)

	return &m, nil
}

// hostDID returns the DID mediation is requested with. It is created by the first attempt and reused by
// the retries that follow a deny or a failed send.
func (s *Service) hostDID(ctx context.Context) (string, error) {
	s.hostMu.Lock()
	defer s.hostMu.Unlock()

	if s.host != "" {
		return s.host, nil
	}

	doc, err := s.creator.Create(ctx, didcreator.WithService(), didcreator.WithAlias("mediator host"))
	if err != nil {
		return "", err
	}

	s.host = doc.ID

	return s.host, nil
}

func parseGrant(reply *message.Message) (*Grant, error) {
	switch reply.Type {
	case MediateGrantMsgType:
		grant := &Grant{}

		if err := reply.DecodeBody(grant); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnexpectedMessage, err)
		}

		if grant.RoutingDID == "" {
			return nil, fmt.Errorf("%w: grant without routing_did", ErrUnexpectedMessage)
		}

		return grant, nil
	case MediateDenyMsgType:
		return nil, ErrMediationDenied
	default:
		return nil, fmt.Errorf("%w: %s in reply to mediate-request", ErrUnexpectedMessage, reply.Type)
	}
}

// UpdateKeyList registers dids as recipients at the mediator. Registering a DID twice is harmless.
func (s *Service) UpdateKeyList(ctx context.Context, dids []string) error {
	if len(dids) == 0 {
		return nil
	}

	m, err := s.mediator()
	if err != nil {
		return err
	}

	update := KeylistUpdate{}

	for _, id := range dids {
		update.Updates = append(update.Updates, Update{RecipientDID: id, Action: ActionAdd})
	}

	req, err := message.New(KeylistUpdateMsgType, update,
		message.WithFrom(m.HostDID), message.WithTo(m.MediatorDID), message.WithReturnRoute(message.ReturnRouteAll))
	if err != nil {
		return fmt.Errorf("keylist update: %w", err)
	}

	reply, err := s.sender.Send(ctx, req)
	if err != nil {
		return fmt.Errorf("send keylist update: %w", err)
	}

	if reply == nil || reply.Type != KeylistUpdateResponseMsgType {
		return nil
	}

	resp := KeylistUpdateResponse{}

	if err = reply.DecodeBody(&resp); err != nil {
		s.logger.Warnf("ignoring malformed keylist update response %s: %v", reply.ID, err)

		return nil
	}

	for _, u := range resp.Updated {
		if u.Result == ResultClientError || u.Result == ResultServerError {
			return fmt.Errorf("%w: %s for %s", ErrKeylistUpdateFailed, u.Result, u.RecipientDID)
		}
	}

	return nil
}

// Mediator returns the stored mediation.
func (s *Service) Mediator() (*agent.Mediator, error) {
	return s.mediator()
}

// RoutingService returns the DIDComm service that routes messages for our DIDs through the mediator.
func (s *Service) RoutingService() (*did.Service, error) {
	m, err := s.mediator()
	if err != nil {
		return nil, err
	}

	return &did.Service{
		Type:            []string{did.DIDCommMessagingServiceType},
		ServiceEndpoint: []did.ServiceEndpoint{{URI: m.RoutingDID, Accept: []string{"didcomm/v2"}}},
	}, nil
}

// Accept reports whether msgType belongs to mediator coordination.
func (s *Service) Accept(msgType string) bool {
	switch msgType {
	case MediateGrantMsgType, MediateDenyMsgType, KeylistUpdateResponseMsgType:
		return true
	default:
		return false
	}
}

// HandleInbound takes an asynchronous reply to a pending mediate-request. Replies to requests that are
// not pending are dropped.
func (s *Service) HandleInbound(_ context.Context, msg *message.Message) error {
	if !s.Accept(msg.Type) {
		return fmt.Errorf("%w: %s", ErrUnexpectedMessage, msg.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pending[msg.Thid]; !ok {
		s.logger.Debugf("dropping %s for unknown thread %s", msg.Type, msg.Thid)

		return nil
	}

	s.pending[msg.Thid] = msg

	return nil
}

func (s *Service) awaitReply(ctx context.Context, thid string) (*message.Message, error) {
	var reply *message.Message

	err := backoff.Retry(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()

		reply = s.pending[thid]
		if reply == nil {
			return errNoReplyYet
		}

		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(replyPollInterval),
		uint64(s.grantTimeout/replyPollInterval)), ctx))
	if err != nil {
		return nil, err
	}

	return reply, nil
}

func (s *Service) forget(thid string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, thid)
}

func (s *Service) mediator() (*agent.Mediator, error) {
	m, err := s.store.Mediator()
	if errors.Is(err, agent.ErrDataNotFound) {
		return nil, ErrNoMediator
	}

	return m, err
}
