/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package inbound

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/transport"
)

var logger = log.New("edge-agent/didcomm/dispatcher/inbound")

// ErrNoHandler is returned when no protocol service accepts a message type.
var ErrNoHandler = errors.New("no message handlers found")

type provider interface {
	Packager() dispatcher.Packager
	AllServices() []dispatcher.ProtocolService
}

// MessageHandler handles inbound envelopes, unpacking then dispatching them to a protocol service based on
// the message type.
type MessageHandler struct {
	unpacker dispatcher.Packager
	services []dispatcher.ProtocolService
}

// NewInboundMessageHandler creates an inbound message handler, that unpacks inbound envelopes and
// dispatches them to the appropriate ProtocolService.
func NewInboundMessageHandler(p provider) *MessageHandler {
	return &MessageHandler{
		unpacker: p.Packager(),
		services: p.AllServices(),
	}
}

// HandlerFunc returns the MessageHandler's transport.InboundMessageHandler function.
func (handler *MessageHandler) HandlerFunc() transport.InboundMessageHandler {
	return func(ctx context.Context, envelope []byte) ([]byte, error) {
		return nil, handler.HandleInboundEnvelope(ctx, envelope)
	}
}

// HandleInboundEnvelope unpacks an envelope and dispatches the message it carries.
func (handler *MessageHandler) HandleInboundEnvelope(ctx context.Context, envelope []byte) error {
	msg, meta, err := handler.unpacker.Unpack(ctx, envelope)
	if err != nil {
		return fmt.Errorf("inbound message handler: %w", err)
	}

	logger.Debugf("unpacked %s (encrypted=%t authenticated=%t)", msg.Type, meta.Encrypted, meta.Authenticated)

	return handler.HandleMessage(ctx, msg, meta)
}

// HandleMessage dispatches an unpacked message to the first protocol service accepting its type. meta is
// the metadata of the envelope msg was unpacked from: only messages whose sender it authenticates are
// dispatched.
func (handler *MessageHandler) HandleMessage(ctx context.Context, msg *message.Message,
	meta *packer.UnpackMetadata) error {
	if err := dispatcher.VerifySender(msg, meta); err != nil {
		return fmt.Errorf("inbound message handler: %w", err)
	}

	for _, svc := range handler.services {
		if svc.Accept(msg.Type) {
			return svc.HandleInbound(ctx, msg)
		}
	}

	return fmt.Errorf("%w for the message type: %s", ErrNoHandler, msg.Type)
}
