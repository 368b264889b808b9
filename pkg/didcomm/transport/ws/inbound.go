/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ws provides the websocket DIDComm transports.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"nhooyr.io/websocket"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/transport"
)

var logger = log.New("edge-agent/transport/ws")

const readHeaderTimeout = 10 * time.Second

// Inbound http(ws) type.
type Inbound struct {
	externalAddr string
	server       *http.Server
	listener     net.Listener
}

// NewInbound creates a new WebSocket inbound transport instance. When externalAddr is empty the listening
// address is advertised once started.
func NewInbound(internalAddr, externalAddr string) (*Inbound, error) {
	if internalAddr == "" {
		return nil, errors.New("websocket address is mandatory")
	}

	return &Inbound{
		externalAddr: externalAddr,
		server:       &http.Server{Addr: internalAddr, ReadHeaderTimeout: readHeaderTimeout},
	}, nil
}

// Start the http(ws) server.
func (i *Inbound) Start(handler transport.InboundMessageHandler) error {
	if handler == nil {
		return errors.New("websocket server start failed: message handler function is nil")
	}

	i.server.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		processRequest(w, r, handler)
	})

	var err error

	i.listener, err = net.Listen("tcp", i.server.Addr)
	if err != nil {
		return fmt.Errorf("websocket server start failed: %w", err)
	}

	if i.externalAddr == "" {
		i.externalAddr = "ws://" + i.listener.Addr().String()
	}

	go func() {
		if err := i.server.Serve(i.listener); !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("websocket server with address [%s] stopped, cause: %s", i.server.Addr, err)
		}
	}()

	return nil
}

// Stop the http(ws) server.
func (i *Inbound) Stop(ctx context.Context) error {
	if err := i.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("websocket server shutdown failed: %w", err)
	}

	return nil
}

// Endpoint provides the http(ws) connection details.
func (i *Inbound) Endpoint() string {
	return i.externalAddr
}

func processRequest(w http.ResponseWriter, r *http.Request, handler transport.InboundMessageHandler) {
	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Errorf("failed to upgrade the connection : %v", err)

		return
	}

	defer func() {
		if err := c.Close(websocket.StatusNormalClosure, "closing the connection"); err != nil &&
			websocket.CloseStatus(err) != websocket.StatusNormalClosure {
			logger.Debugf("failed to close connection: %v", err)
		}
	}()

	ctx := r.Context()

	for {
		_, envelope, err := c.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				logger.Debugf("connection closed: %v", err)
			}

			return
		}

		reply, err := handler(ctx, envelope)
		if err != nil {
			logger.Errorf("incoming msg processing failed: %v", err)

			continue
		}

		if len(reply) == 0 {
			continue
		}

		if err = c.Write(ctx, websocket.MessageText, reply); err != nil {
			logger.Errorf("error writing the message: %v", err)

			return
		}
	}
}
