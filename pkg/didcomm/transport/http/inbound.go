/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/transport"
)

const (
	maxBodySize       = 10 << 20
	readHeaderTimeout = 10 * time.Second
)

// NewInboundHandler will create a new handler to enforce DIDComm HTTP transport specs
// then routes processing to the mandatory 'msgHandler' argument. path is the route of the endpoint.
func NewInboundHandler(path string, msgHandler transport.InboundMessageHandler) (http.Handler, error) {
	if msgHandler == nil {
		logger.Errorf("Error creating a new inbound handler: message handler function is nil")

		return nil, errors.New("creation of inbound handler failed")
	}

	router := mux.NewRouter()
	router.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		processPOSTRequest(w, r, msgHandler)
	}).Methods(http.MethodPost)

	return cors.New(cors.Options{
		AllowedMethods: []string{http.MethodPost},
		AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With"},
	}).Handler(router), nil
}

func processPOSTRequest(w http.ResponseWriter, r *http.Request, messageHandler transport.InboundMessageHandler) {
	if valid := validateContentType(w, r); !valid {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		logger.Errorf("Error reading request body: %s - returning Code: %d", err, http.StatusInternalServerError)
		http.Error(w, "Failed to read payload", http.StatusInternalServerError)

		return
	}

	if len(body) == 0 {
		http.Error(w, "Empty payload", http.StatusBadRequest)

		return
	}

	reply, err := messageHandler(r.Context(), body)
	if err != nil {
		logger.Errorf("incoming msg processing failed: %v", err)
		http.Error(w, "failed to process the message", http.StatusBadRequest)

		return
	}

	if len(reply) == 0 {
		w.WriteHeader(http.StatusAccepted)

		return
	}

	w.Header().Set("Content-Type", message.MediaTypeEncrypted)
	w.WriteHeader(http.StatusOK)

	if _, err = w.Write(reply); err != nil {
		logger.Errorf("writing reply failed: %v", err)
	}
}

// validateContentType accepts the DIDComm media types and a missing content type.
func validateContentType(w http.ResponseWriter, r *http.Request) bool {
	ct := r.Header.Get("Content-Type")

	switch {
	case ct == "",
		strings.HasPrefix(ct, message.MediaTypeEncrypted),
		strings.HasPrefix(ct, message.MediaTypeSigned),
		strings.HasPrefix(ct, message.MediaTypePlain):
		return true
	default:
		http.Error(w, fmt.Sprintf("Unsupported Content-type \"%s\"", ct), http.StatusUnsupportedMediaType)

		return false
	}
}

// Inbound HTTP type.
type Inbound struct {
	externalAddr string
	advertised   bool
	path         string
	server       *http.Server
	listener     net.Listener
}

// NewInbound creates a new HTTP inbound transport listening on internalAddr. externalAddr is the URL
// advertised in DID document services; when empty the listening address is advertised once started.
func NewInbound(internalAddr, externalAddr, path string) (*Inbound, error) {
	if internalAddr == "" {
		return nil, errors.New("http address is mandatory")
	}

	if path == "" {
		path = "/"
	}

	return &Inbound{
		externalAddr: externalAddr,
		advertised:   externalAddr != "",
		path:         path,
		server:       &http.Server{Addr: internalAddr, ReadHeaderTimeout: readHeaderTimeout},
	}, nil
}

// Start the http server.
func (i *Inbound) Start(handler transport.InboundMessageHandler) error {
	h, err := NewInboundHandler(i.path, handler)
	if err != nil {
		return fmt.Errorf("http server start failed: %w", err)
	}

	i.server.Handler = h

	i.listener, err = net.Listen("tcp", i.server.Addr)
	if err != nil {
		return fmt.Errorf("http server start failed: %w", err)
	}

	if !i.advertised {
		i.externalAddr = "http://" + i.listener.Addr().String() + i.path
	}

	go func() {
		if err := i.server.Serve(i.listener); !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("http server with address [%s] stopped, cause: %s", i.server.Addr, err)
		}
	}()

	return nil
}

// Stop the http server.
func (i *Inbound) Stop(ctx context.Context) error {
	if err := i.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	return nil
}

// Endpoint provides the http connection details.
func (i *Inbound) Endpoint() string {
	return i.externalAddr
}
