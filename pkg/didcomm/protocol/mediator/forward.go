/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
)

// Anoncrypter encrypts a payload for recipients without revealing the sender.
type Anoncrypter interface {
	AnonEncrypt(ctx context.Context, payload []byte, cty string, to ...string) ([]byte, error)
}

// Unpacker opens envelopes.
type Unpacker interface {
	Unpack(ctx context.Context, wire []byte) (*message.Message, *packer.UnpackMetadata, error)
}

// WrapForward wraps an encrypted envelope for delivery through routingKeys, listed outermost first. Every
// layer is a forward message naming the next hop, anoncrypted to one routing key; next is the final
// recipient.
func WrapForward(ctx context.Context, p Anoncrypter, envelope []byte, next string,
	routingKeys []string) ([]byte, error) {
	for i := len(routingKeys) - 1; i >= 0; i-- {
		fwd, err := message.New(ForwardMsgType, Forward{Next: next},
			message.WithTo(did.DIDFromReference(routingKeys[i])),
			message.WithAttachments(message.Attachment{
				ID:        uuid.New().String(),
				MediaType: message.MediaTypeEncrypted,
				Data:      message.AttachmentData{JSON: json.RawMessage(envelope)},
			}))
		if err != nil {
			return nil, fmt.Errorf("forward to %s: %w", next, err)
		}

		plaintext, err := json.Marshal(fwd)
		if err != nil {
			return nil, fmt.Errorf("forward to %s: %w", next, err)
		}

		envelope, err = p.AnonEncrypt(ctx, plaintext, message.MediaTypePlain, routingKeys[i])
		if err != nil {
			return nil, fmt.Errorf("forward to %s: %w", next, err)
		}

		next = routingKeys[i]
	}

	return envelope, nil
}

// UnwrapForward opens the outer layer of a forwarded envelope as the relay holding the routing key
// would, and returns the next hop and the inner envelope.
func UnwrapForward(ctx context.Context, p Unpacker, wire []byte) (string, []byte, error) {
	msg, _, err := p.Unpack(ctx, wire)
	if err != nil {
		return "", nil, err
	}

	if msg.Type != ForwardMsgType {
		return "", nil, fmt.Errorf("%w: %s is not a forward message", ErrUnexpectedMessage, msg.Type)
	}

	var fwd Forward

	if err = msg.DecodeBody(&fwd); err != nil {
		return "", nil, err
	}

	if fwd.Next == "" || len(msg.Attachments) != 1 {
		return "", nil, fmt.Errorf("%w: forward needs next and one attachment", ErrUnexpectedMessage)
	}

	inner, err := msg.Attachments[0].Data.Fetch()
	if err != nil {
		return "", nil, err
	}

	return fwd.Next, inner, nil
}
