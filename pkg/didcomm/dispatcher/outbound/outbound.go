/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package outbound packs, routes and delivers DIDComm messages.
package outbound

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/transport"
	vdrapi "github.com/hyperledger/aries-edge-agent-go/pkg/vdr/api"
)

const (
	// DefaultAttempts is the default number of delivery attempts.
	DefaultAttempts = 10
	// DefaultDelay is the default delay between delivery attempts.
	DefaultDelay = time.Second
)

// provider interface for outbound ctx.
type provider interface {
	Packager() dispatcher.Packager
	VDRegistry() vdrapi.Registry
	OutboundTransports() []transport.OutboundTransport
}

// Option configures the Dispatcher.
type Option func(o *Dispatcher)

// WithRetry sets the number of delivery attempts and the constant delay between them.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *Dispatcher) {
		if attempts > 0 {
			o.attempts = attempts
		}

		if delay >= 0 {
			o.delay = delay
		}
	}
}

// WithPackOptions sets options applied to every Pack call, such as packer.WithSignFrom.
func WithPackOptions(opts ...packer.PackOption) Option {
	return func(o *Dispatcher) {
		o.packOpts = append(o.packOpts, opts...)
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *log.Log) Option {
	return func(o *Dispatcher) {
		o.logger = l
	}
}

// Dispatcher dispatch msgs to destination.
type Dispatcher struct {
	packager   dispatcher.Packager
	vdRegistry vdrapi.Registry
	transports []transport.OutboundTransport
	attempts   int
	delay      time.Duration
	packOpts   []packer.PackOption
	logger     *log.Log
}

// NewOutbound return new dispatcher outbound instance.
func NewOutbound(prov provider, opts ...Option) *Dispatcher {
	o := &Dispatcher{
		packager:   prov.Packager(),
		vdRegistry: prov.VDRegistry(),
		transports: prov.OutboundTransports(),
		attempts:   DefaultAttempts,
		delay:      DefaultDelay,
		logger:     log.New("edge-agent/didcomm/dispatcher"),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// Send encrypts msg for its first recipient (authcrypt when msg has a sender, anoncrypt otherwise), wraps it
// in forward messages for the recipient's routing keys and delivers it with retries. When the endpoint
// answers on the same connection the reply is unpacked and returned once its sender is authenticated.
func (o *Dispatcher) Send(ctx context.Context, msg *message.Message) (*message.Message, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("outboundDispatcher.Send: %w", packer.ErrNoDIDReceiverSet)
	}

	logger := o.logger.With("msgID", msg.ID, "type", msg.Type)

	packed, err := o.packager.Pack(ctx, msg, message.MediaTypeEncrypted, o.packOpts...)
	if err != nil {
		return nil, fmt.Errorf("outboundDispatcher.Send: failed to pack msg: %w", err)
	}

	dest, err := service.GetDestination(ctx, msg.To[0], o.vdRegistry)
	if err != nil {
		return nil, fmt.Errorf("outboundDispatcher.Send: %w", err)
	}

	envelope, err := mediator.WrapForward(ctx, o.packager, packed.Packed, dest.RecipientDID, dest.RoutingKeys)
	if err != nil {
		return nil, fmt.Errorf("outboundDispatcher.Send: failed to create forward msg: %w", err)
	}

	reply, err := o.Deliver(ctx, envelope, dest)
	if err != nil {
		return nil, fmt.Errorf("outboundDispatcher.Send: %w", err)
	}

	logger.Debugf("delivered to %s through %d routing keys", dest.ServiceEndpoint, len(dest.RoutingKeys))

	if len(reply) == 0 {
		return nil, nil
	}

	replyMsg, meta, err := o.packager.Unpack(ctx, reply)
	if err != nil {
		return nil, fmt.Errorf("outboundDispatcher.Send: failed to unpack reply: %w", err)
	}

	if err = dispatcher.VerifySender(replyMsg, meta); err != nil {
		return nil, fmt.Errorf("outboundDispatcher.Send: reply: %w", err)
	}

	return replyMsg, nil
}

// Deliver sends a packed envelope to dest through the transport accepting its endpoint. Failed attempts are
// retried with a constant delay; client errors are not retried.
func (o *Dispatcher) Deliver(ctx context.Context, envelope []byte, dest *service.Destination) ([]byte, error) {
	t, err := transport.Select(o.transports, dest.ServiceEndpoint)
	if err != nil {
		return nil, err
	}

	var (
		reply   []byte
		attempt int
	)

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(o.delay), uint64(o.attempts-1)), ctx)

	err = backoff.Retry(func() error {
		attempt++

		var errSend error

		reply, errSend = t.Send(ctx, envelope, dest)
		if errSend == nil {
			return nil
		}

		var statusErr *transport.StatusError
		if errors.As(errSend, &statusErr) && statusErr.Permanent() {
			return backoff.Permanent(errSend)
		}

		o.logger.Debugf("delivery attempt %d/%d to %s failed: %v", attempt, o.attempts, dest.ServiceEndpoint, errSend)

		return errSend
	}, b)
	if err != nil {
		return nil, fmt.Errorf("failed to send msg using outbound transport after %d attempts: %w", attempt, err)
	}

	return reply, nil
}
