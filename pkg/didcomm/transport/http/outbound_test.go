/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/transport"
)

const clientTimeout = 1 * time.Second

func TestWithOutboundOpts(t *testing.T) {
	clOpts := &outboundCommHTTPOpts{}
	WithOutboundHTTPClient(nil)(clOpts)
	require.Nil(t, clOpts.client)

	// opt.client is nil, so setting timeout should panic
	require.Panics(t, func() { WithOutboundTimeout(clientTimeout)(clOpts) })

	WithOutboundTLSConfig(nil)(clOpts)
	require.NotNil(t, clOpts.client)

	_, err := NewOutbound(WithOutboundHTTPClient(nil))
	require.EqualError(t, err, "creation of outbound transport requires an HTTP client")
}

func TestOutboundHTTPTransport(t *testing.T) {
	var gotContentType string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")

		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)

			return
		}

		switch string(body) {
		case `{"ciphertext":"bad"}`:
			w.WriteHeader(http.StatusBadRequest)
		case `{"ciphertext":"busy"}`:
			w.WriteHeader(http.StatusServiceUnavailable)
		case `{"ciphertext":"reply"}`:
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"ciphertext":"answer"}`)) //nolint:errcheck
		default:
			w.WriteHeader(http.StatusAccepted)
		}
	}))
	defer server.Close()

	ot, err := NewOutbound(WithOutboundHTTPClient(server.Client()), WithOutboundTimeout(clientTimeout))
	require.NoError(t, err)

	require.True(t, ot.Accept(server.URL))
	require.True(t, ot.Accept("https://mediator.example.com"))
	require.False(t, ot.Accept("ws://mediator.example.com"))

	ctx := context.Background()
	dest := &service.Destination{ServiceEndpoint: server.URL}

	t.Run("accepted without reply", func(t *testing.T) {
		reply, err := ot.Send(ctx, []byte(`{"ciphertext":"x"}`), dest)
		require.NoError(t, err)
		require.Empty(t, reply)
		require.Equal(t, message.MediaTypeEncrypted, gotContentType)
	})

	t.Run("synchronous reply", func(t *testing.T) {
		reply, err := ot.Send(ctx, []byte(`{"ciphertext":"reply"}`), dest)
		require.NoError(t, err)
		require.Equal(t, `{"ciphertext":"answer"}`, string(reply))
	})

	t.Run("client error is permanent", func(t *testing.T) {
		_, err := ot.Send(ctx, []byte(`{"ciphertext":"bad"}`), dest)

		var statusErr *transport.StatusError

		require.True(t, errors.As(err, &statusErr))
		require.True(t, statusErr.Permanent())
	})

	t.Run("server error is transient", func(t *testing.T) {
		_, err := ot.Send(ctx, []byte(`{"ciphertext":"busy"}`), dest)

		var statusErr *transport.StatusError

		require.True(t, errors.As(err, &statusErr))
		require.False(t, statusErr.Permanent())
	})

	t.Run("empty url", func(t *testing.T) {
		_, err := ot.Send(ctx, []byte("Hello World"), &service.Destination{})
		require.EqualError(t, err, "url is mandatory")
	})

	t.Run("unreachable", func(t *testing.T) {
		_, err := ot.Send(ctx, []byte("Hello World"), &service.Destination{ServiceEndpoint: "http://127.0.0.1:1"})
		require.Error(t, err)
	})
}
