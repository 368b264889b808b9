/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package connection implements the connection handshake that follows an out-of-band invitation. The
// invitee sends a request threaded on the invitation id and the inviter answers with a response on the
// same thread; both sides then hold a DID pair.
package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/messagepickup"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/outofband"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	"github.com/hyperledger/aries-edge-agent-go/pkg/framework/didcreator"
	"github.com/hyperledger/aries-edge-agent-go/pkg/store/agent"
)

const (
	// DefaultHandshakeTimeout is how long SendHandshake waits for the response by default.
	DefaultHandshakeTimeout = 30 * time.Second

	defaultPollInterval = time.Second
	pickupLimit         = 10
)

var (
	// ErrNoHandshakeResponse is returned when no correlated response arrives in time.
	ErrNoHandshakeResponse = errors.New("no handshake response")
	// ErrUnexpectedMessage is returned for messages this service does not handle.
	ErrUnexpectedMessage = errors.New("unexpected message")
	// ErrUnknownRecipient is returned for connection requests addressed to a DID we do not hold.
	ErrUnknownRecipient = errors.New("connection request to a DID we do not hold")
)

// Mediation routes new DIDs through the mediator.
type Mediation interface {
	RoutingService() (*did.Service, error)
	UpdateKeyList(ctx context.Context, dids []string) error
}

// Pickup streams the messages queued at the mediator.
type Pickup interface {
	Poll(ctx context.Context, interval time.Duration, limit int) <-chan messagepickup.Delivered
}

// Store persists DID pairs and the messages seen, and knows our DIDs.
type Store interface {
	StoreDIDPair(pair agent.DIDPair) error
	StoreMessage(msg *message.Message, dir agent.Direction) (bool, error)
	HasPeerDID(id string) (bool, error)
}

// MessageHandler dispatches a picked up message, unpacked with meta, to the service handling its type.
type MessageHandler func(ctx context.Context, msg *message.Message, meta *packer.UnpackMetadata) error

type provider interface {
	OutboundDispatcher() dispatcher.Outbound
	DIDCreator() didcreator.Creator
	Mediation() Mediation
	Pickup() Pickup
	ConnectionStore() Store
}

// Option configures the Service.
type Option func(s *Service)

// WithHandshakeTimeout sets how long SendHandshake waits for the response.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithPollInterval sets the pickup interval used while waiting for a response.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithMessageHandler sets where picked up messages are dispatched. By default those with an authenticated
// sender are handled by the connection service only.
func WithMessageHandler(h MessageHandler) Option {
	return func(s *Service) {
		s.dispatch = h
	}
}

// WithLogger sets the service logger.
func WithLogger(l *log.Log) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// Service implements the connection protocol.
type Service struct {
	sender       dispatcher.Outbound
	creator      didcreator.Creator
	mediation    Mediation
	pickup       Pickup
	store        Store
	dispatch     MessageHandler
	timeout      time.Duration
	pollInterval time.Duration
	logger       *log.Log

	mu      sync.Mutex
	waiters map[string]chan *message.Message
}

// New returns the connection service.
func New(prov provider, opts ...Option) *Service {
	s := &Service{
		sender:       prov.OutboundDispatcher(),
		creator:      prov.DIDCreator(),
		mediation:    prov.Mediation(),
		pickup:       prov.Pickup(),
		store:        prov.ConnectionStore(),
		timeout:      DefaultHandshakeTimeout,
		pollInterval: defaultPollInterval,
		logger:       log.New("edge-agent/connection"),
		waiters:      make(map[string]chan *message.Message),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.dispatch == nil {
		s.dispatch = func(ctx context.Context, msg *message.Message, meta *packer.UnpackMetadata) error {
			if err := dispatcher.VerifySender(msg, meta); err != nil {
				return err
			}

			return s.HandleInbound(ctx, msg)
		}
	}

	return s
}

// SendHandshake accepts inv: it creates a new DID, routed through the mediator when one is granted,
// sends the connection request and waits for the correlated response.
func (s *Service) SendHandshake(ctx context.Context, inv *outofband.Invitation) (*agent.DIDPair, error) {
	holder, mediated, err := s.newDID(ctx, inv.Body.Goal)
	if err != nil {
		return nil, fmt.Errorf("send handshake: %w", err)
	}

	req, err := message.New(RequestMsgType, Body{
		GoalCode: inv.Body.GoalCode,
		Goal:     inv.Body.Goal,
		Accept:   inv.Body.Accept,
	}, message.WithFrom(holder), message.WithTo(inv.From), message.WithThreadID(inv.ID))
	if err != nil {
		return nil, fmt.Errorf("send handshake: %w", err)
	}

	logger := s.logger.With("thid", inv.ID)

	waiter := s.register(inv.ID)
	defer s.unregister(inv.ID)

	if _, err = s.store.StoreMessage(req, agent.Sent); err != nil {
		return nil, fmt.Errorf("send handshake: %w", err)
	}

	reply, err := s.sender.Send(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("send connection request: %w", err)
	}

	if reply != nil {
		if err = s.HandleInbound(ctx, reply); err != nil {
			logger.Warnf("synchronous reply %s: %v", reply.ID, err)
		}
	}

	resp, err := s.await(ctx, waiter, mediated)
	if err != nil {
		return nil, err
	}

	pair := agent.DIDPair{Holder: holder, Other: resp.From, Name: inv.Body.Goal}

	if err = s.store.StoreDIDPair(pair); err != nil {
		return nil, fmt.Errorf("save did pair: %w", err)
	}

	logger.Infof("connected %s with %s", holder, resp.From)

	return &pair, nil
}

// newDID creates the DID we connect with and reports whether it is routed through a mediator.
func (s *Service) newDID(ctx context.Context, alias string) (string, bool, error) {
	var (
		routing *did.Service
		err     error
	)

	if s.mediation != nil {
		routing, err = s.mediation.RoutingService()
		if err != nil && !errors.Is(err, mediator.ErrNoMediator) {
			return "", false, err
		}
	}

	if routing == nil {
		doc, errCreate := s.creator.Create(ctx, didcreator.WithAlias(alias))
		if errCreate != nil {
			return "", false, errCreate
		}

		return doc.ID, false, nil
	}

	doc, err := s.creator.Create(ctx, didcreator.WithService(*routing), didcreator.WithAlias(alias))
	if err != nil {
		return "", false, err
	}

	if err = s.mediation.UpdateKeyList(ctx, []string{doc.ID}); err != nil {
		return "", false, err
	}

	return doc.ID, true, nil
}

func (s *Service) await(ctx context.Context, waiter <-chan *message.Message,
	poll bool) (*message.Message, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var delivered <-chan messagepickup.Delivered
	if poll && s.pickup != nil {
		delivered = s.pickup.Poll(waitCtx, s.pollInterval, pickupLimit)
	}

	for {
		select {
		case resp := <-waiter:
			return resp, nil
		case d, ok := <-delivered:
			if !ok {
				delivered = nil

				continue
			}

			if d.Err != nil {
				s.logger.Warnf("dropping picked up message %s: %v", d.AttachmentID, d.Err)

				continue
			}

			if err := s.dispatch(ctx, d.Message, d.Metadata); err != nil {
				s.logger.Warnf("handling picked up %s: %v", d.Message.Type, err)
			}
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			return nil, fmt.Errorf("%w within %s", ErrNoHandshakeResponse, s.timeout)
		}
	}
}

// Accept reports whether msgType belongs to the connection protocol.
func (s *Service) Accept(msgType string) bool {
	return msgType == RequestMsgType || msgType == ResponseMsgType
}

// HandleInbound answers requests and completes pending handshakes with their response. Messages already
// seen are ignored, as are responses on threads no handshake waits for.
func (s *Service) HandleInbound(ctx context.Context, msg *message.Message) error {
	if !s.Accept(msg.Type) {
		return fmt.Errorf("%w: %s", ErrUnexpectedMessage, msg.Type)
	}

	fresh, err := s.store.StoreMessage(msg, agent.Received)
	if err != nil {
		return fmt.Errorf("connection: %w", err)
	}

	logger := s.logger.With("msgID", msg.ID, "thid", msg.ThreadID())

	if !fresh {
		logger.Debugf("ignoring duplicate %s", msg.Type)

		return nil
	}

	if msg.Type == RequestMsgType {
		return s.respond(ctx, msg)
	}

	s.mu.Lock()
	waiter, ok := s.waiters[msg.ThreadID()]
	delete(s.waiters, msg.ThreadID())
	s.mu.Unlock()

	if !ok {
		logger.Debugf("ignoring uncorrelated response from %s", msg.From)

		return nil
	}

	waiter <- msg

	return nil
}

func (s *Service) respond(ctx context.Context, req *message.Message) error {
	if req.From == "" || len(req.To) == 0 {
		return fmt.Errorf("%w: connection request needs from and to", ErrUnexpectedMessage)
	}

	body := Body{}

	if err := req.DecodeBody(&body); err != nil {
		return fmt.Errorf("connection request: %w", err)
	}

	holder := req.To[0]

	ours, err := s.store.HasPeerDID(holder)
	if err != nil {
		return fmt.Errorf("connection request: %w", err)
	}

	if !ours {
		return fmt.Errorf("%w: %s", ErrUnknownRecipient, holder)
	}

	resp, err := message.New(ResponseMsgType, body,
		message.WithFrom(holder), message.WithTo(req.From), message.WithThreadID(req.ThreadID()))
	if err != nil {
		return fmt.Errorf("connection response: %w", err)
	}

	if _, err = s.store.StoreMessage(resp, agent.Sent); err != nil {
		return fmt.Errorf("connection response: %w", err)
	}

	if _, err = s.sender.Send(ctx, resp); err != nil {
		return fmt.Errorf("send connection response: %w", err)
	}

	pair := agent.DIDPair{Holder: holder, Other: req.From, Name: body.Goal}

	if err = s.store.StoreDIDPair(pair); err != nil {
		return fmt.Errorf("save did pair: %w", err)
	}

	s.logger.Infof("accepted connection from %s on %s", req.From, holder)

	return nil
}

func (s *Service) register(thid string) <-chan *message.Message {
	ch := make(chan *message.Message, 1)

	s.mu.Lock()
	s.waiters[thid] = ch
	s.mu.Unlock()

	return ch
}

func (s *Service) unregister(thid string) {
	s.mu.Lock()
	delete(s.waiters, thid)
	s.mu.Unlock()
}
