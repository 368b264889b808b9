/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package transport defines the DIDComm transport collaborators and the errors they share.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/common/service"
)

// ErrNoTransport is returned when no outbound transport accepts an endpoint.
var ErrNoTransport = errors.New("no outbound transport accepts the endpoint")

// OutboundTransport interface definition for transport layer.
// This is the client side of the agent.
type OutboundTransport interface {
	// Send sends a packed envelope to the destination endpoint. It returns the synchronous reply, if any.
	Send(ctx context.Context, data []byte, destination *service.Destination) ([]byte, error)

	// Accept reports whether the transport handles url.
	Accept(url string) bool
}

// InboundMessageHandler handles an inbound packed envelope. A non-empty reply is returned to the sender
// on the same connection.
type InboundMessageHandler func(ctx context.Context, envelope []byte) ([]byte, error)

// Select returns the first transport accepting url.
func Select(transports []OutboundTransport, url string) (OutboundTransport, error) {
	for _, t := range transports {
		if t.Accept(url) {
			return t, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNoTransport, url)
}

// StatusError is a non-success response of a remote endpoint.
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("received non success POST HTTP status from agent at [%s]: status : %s", e.URL, e.Status)
}

// Permanent reports whether retrying the same request cannot succeed (a 4xx status).
func (e *StatusError) Permanent() bool {
	return e.StatusCode >= http.StatusBadRequest && e.StatusCode < http.StatusInternalServerError
}
