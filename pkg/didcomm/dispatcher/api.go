/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package dispatcher defines the contracts between the message dispatchers and the protocol services.
package dispatcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
)

// ErrUnauthenticatedSender is returned for messages whose envelope does not prove their from header.
var ErrUnauthenticatedSender = errors.New("unauthenticated sender")

// ProtocolService handles inbound messages of the types it accepts.
type ProtocolService interface {
	Accept(msgType string) bool
	HandleInbound(ctx context.Context, msg *message.Message) error
}

// Outbound sends messages and returns the synchronous reply, if any.
type Outbound interface {
	Send(ctx context.Context, msg *message.Message) (*message.Message, error)
}

// Packager packs and unpacks messages.
type Packager interface {
	Pack(ctx context.Context, msg *message.Message, mediaType string,
		opts ...packer.PackOption) (*packer.PackResult, error)
	Unpack(ctx context.Context, wire []byte) (*message.Message, *packer.UnpackMetadata, error)
	AnonEncrypt(ctx context.Context, payload []byte, cty string, to ...string) ([]byte, error)
}

// VerifySender checks that msg names its sender and that the envelope it came in was authcrypted or signed
// with a key of that sender.
func VerifySender(msg *message.Message, meta *packer.UnpackMetadata) error {
	if msg.From == "" {
		return fmt.Errorf("%w: %s %s has no from header", ErrUnauthenticatedSender, msg.Type, msg.ID)
	}

	if meta == nil {
		return fmt.Errorf("%w: %s %s has no envelope metadata", ErrUnauthenticatedSender, msg.Type, msg.ID)
	}

	from := did.DIDFromReference(msg.From)

	switch {
	case meta.Authenticated && did.DIDFromReference(meta.EncryptedFromKID) == from:
		return nil
	case meta.NonRepudiation && did.DIDFromReference(meta.SignFrom) == from:
		return nil
	default:
		return fmt.Errorf("%w: %s %s from %s", ErrUnauthenticatedSender, msg.Type, msg.ID, msg.From)
	}
}
