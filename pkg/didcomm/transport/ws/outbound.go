/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ws

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/common/service"
)

const defaultReplyTimeout = 5 * time.Second

// OutboundClient websocket outbound.
type OutboundClient struct {
	replyTimeout time.Duration
}

// OutboundOpt configures the websocket outbound transport.
type OutboundOpt func(c *OutboundClient)

// WithReplyTimeout sets how long Send waits for a reply on the connection. Zero disables waiting.
func WithReplyTimeout(d time.Duration) OutboundOpt {
	return func(c *OutboundClient) {
		c.replyTimeout = d
	}
}

// NewOutbound creates a client for Outbound WS transport.
func NewOutbound(opts ...OutboundOpt) *OutboundClient {
	c := &OutboundClient{replyTimeout: defaultReplyTimeout}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Send sends the envelope over a new websocket connection and returns the first reply message, if one
// arrives within the reply timeout.
func (cs *OutboundClient) Send(ctx context.Context, data []byte, destination *service.Destination) ([]byte, error) {
	url := destination.ServiceEndpoint
	if url == "" {
		return nil, errors.New("url is mandatory")
	}

	client, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket client : %w", err)
	}

	defer func() {
		err = client.Close(websocket.StatusNormalClosure, "closing the connection")
		if err != nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
			logger.Debugf("failed to close connection: %v", err)
		}
	}()

	if err = client.Write(ctx, websocket.MessageText, data); err != nil {
		return nil, fmt.Errorf("websocket write message : %w", err)
	}

	if cs.replyTimeout == 0 {
		return nil, nil
	}

	readCtx, cancel := context.WithTimeout(ctx, cs.replyTimeout)
	defer cancel()

	messageType, reply, err := client.Read(readCtx)

	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, nil
	case websocket.CloseStatus(err) == websocket.StatusNormalClosure:
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("websocket read message : %w", err)
	case messageType != websocket.MessageText:
		return nil, errors.New("message type is not text message")
	}

	return reply, nil
}

// Accept checks for the url scheme.
func (cs *OutboundClient) Accept(url string) bool {
	return strings.HasPrefix(url, "ws://") || strings.HasPrefix(url, "wss://")
}
