/*
Copyright Scoir Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package messagepickup implements the recipient side of message pickup: fetching the messages a
// mediator queued for our DIDs and acknowledging them.
package messagepickup

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-edge-agent-go/pkg/store/agent"
)

const (
	// DefaultPollInterval is the default interval between pickups of Poll.
	DefaultPollInterval = 5 * time.Second
	// DefaultLimit is the default number of messages requested per pickup.
	DefaultLimit = 10

	defaultConcurrency = 4
)

var (
	// ErrNoMediator is returned when no mediation is stored.
	ErrNoMediator = errors.New("no mediator registered")
	// ErrUnexpectedMessage is returned when the mediator replies with an unexpected message.
	ErrUnexpectedMessage = errors.New("unexpected message")
	// ErrNoReply is returned when the mediator does not reply on the same connection.
	ErrNoReply = errors.New("mediator did not reply")
)

type provider interface {
	OutboundDispatcher() dispatcher.Outbound
	Packager() dispatcher.Packager
	MediatorStore() mediator.MediatorStore
}

// Option configures the Service.
type Option func(s *Service)

// WithConcurrency bounds how many attachments of a delivery are unpacked at once.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *log.Log) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// Service for the messagepickup protocol.
type Service struct {
	sender      dispatcher.Outbound
	unpacker    dispatcher.Packager
	store       mediator.MediatorStore
	concurrency int
	logger      *log.Log
}

// New returns the messagepickup service.
func New(prov provider, opts ...Option) *Service {
	s := &Service{
		sender:      prov.OutboundDispatcher(),
		unpacker:    prov.Packager(),
		store:       prov.MediatorStore(),
		concurrency: defaultConcurrency,
		logger:      log.New("edge-agent/messagepickup"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Status asks the mediator for the status of our queue.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	reply, err := s.request(ctx, StatusRequestMsgType, StatusRequest{})
	if err != nil {
		return nil, errors.Wrap(err, "status request")
	}

	if reply == nil {
		return nil, errors.Wrap(ErrNoReply, "status request")
	}

	if reply.Type != StatusMsgType {
		return nil, errors.Wrapf(ErrUnexpectedMessage, "%s in reply to status-request", reply.Type)
	}

	status := &Status{}

	if err = reply.DecodeBody(status); err != nil {
		return nil, errors.Wrap(err, "decode status")
	}

	return status, nil
}

// PickupUnreadMessages requests up to limit queued messages and unpacks them. A status reply means
// the queue is empty.
func (s *Service) PickupUnreadMessages(ctx context.Context, limit int) ([]Delivered, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	reply, err := s.request(ctx, DeliveryRequestMsgType, DeliveryRequest{Limit: limit})
	if err != nil {
		return nil, errors.Wrap(err, "delivery request")
	}

	if reply == nil {
		return nil, nil
	}

	switch reply.Type {
	case StatusMsgType:
		return nil, nil
	case DeliveryMsgType:
		return s.unpackDelivery(ctx, reply)
	default:
		return nil, errors.Wrapf(ErrUnexpectedMessage, "%s in reply to delivery-request", reply.Type)
	}
}

func (s *Service) unpackDelivery(ctx context.Context, delivery *message.Message) ([]Delivered, error) {
	delivered := make([]Delivered, len(delivery.Attachments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i := range delivery.Attachments {
		att := delivery.Attachments[i]
		out := &delivered[i]
		out.AttachmentID = att.ID

		g.Go(func() error {
			wire, err := att.Data.Fetch()
			if err != nil {
				out.Err = errors.Wrapf(err, "attachment %s", att.ID)

				return nil
			}

			out.Message, out.Metadata, err = s.unpacker.Unpack(gctx, wire)
			if err != nil {
				out.Err = errors.Wrapf(err, "attachment %s", att.ID)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return delivered, nil
}

// RegisterMessagesAsRead tells the mediator the messages with ids were received so it drops them.
func (s *Service) RegisterMessagesAsRead(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	if _, err := s.request(ctx, MessagesReceivedMsgType, MessagesReceived{MessageIDList: ids}); err != nil {
		return errors.Wrap(err, "messages received")
	}

	return nil
}

// Poll picks up messages every interval until ctx is done. Every picked up message is acknowledged
// once it was handed to the channel, including the ones that failed to unpack.
func (s *Service) Poll(ctx context.Context, interval time.Duration, limit int) <-chan Delivered {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	out := make(chan Delivered)

	go func() {
		defer close(out)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			if !s.pollOnce(ctx, out, limit) {
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return out
}

func (s *Service) pollOnce(ctx context.Context, out chan<- Delivered, limit int) bool {
	delivered, err := s.PickupUnreadMessages(ctx, limit)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}

		s.logger.Warnf("pickup failed: %v", err)

		return true
	}

	ids := make([]string, 0, len(delivered))

	for _, d := range delivered {
		select {
		case out <- d:
			ids = append(ids, d.AttachmentID)
		case <-ctx.Done():
			return false
		}
	}

	if err = s.RegisterMessagesAsRead(ctx, ids); err != nil {
		s.logger.Warnf("acknowledging %d messages failed: %v", len(ids), err)
	}

	return true
}

func (s *Service) request(ctx context.Context, msgType string, body interface{}) (*message.Message, error) {
	m, err := s.store.Mediator()
	if errors.Is(err, agent.ErrDataNotFound) {
		return nil, ErrNoMediator
	}

	if err != nil {
		return nil, err
	}

	req, err := message.New(msgType, body,
		message.WithFrom(m.HostDID), message.WithTo(m.MediatorDID), message.WithReturnRoute(message.ReturnRouteAll))
	if err != nil {
		return nil, err
	}

	s.logger.With("msgID", req.ID).Debugf("sending %s to %s", msgType, m.MediatorDID)

	return s.sender.Send(ctx, req)
}
