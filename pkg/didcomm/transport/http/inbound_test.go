/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package http

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
)

func echoHandler(_ context.Context, envelope []byte) ([]byte, error) {
	switch string(envelope) {
	case "fail":
		return nil, errors.New("cannot unpack")
	case "quiet":
		return nil, nil
	default:
		return append([]byte("re:"), envelope...), nil
	}
}

func TestInboundHandler(t *testing.T) {
	_, err := NewInboundHandler("/", nil)
	require.Error(t, err)

	handler, err := NewInboundHandler("/didcomm", echoHandler)
	require.NoError(t, err)

	post := func(path, contentType, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		return rr
	}

	tests := []struct {
		name        string
		path        string
		contentType string
		body        string
		status      int
		reply       string
	}{
		{"reply", "/didcomm", message.MediaTypeEncrypted, "hello", http.StatusOK, "re:hello"},
		{"no reply", "/didcomm", message.MediaTypeEncrypted, "quiet", http.StatusAccepted, ""},
		{"no content type", "/didcomm", "", "hello", http.StatusOK, "re:hello"},
		{"handler error", "/didcomm", message.MediaTypeEncrypted, "fail", http.StatusBadRequest, ""},
		{"empty body", "/didcomm", message.MediaTypeEncrypted, "", http.StatusBadRequest, ""},
		{"wrong content type", "/didcomm", "text/plain", "hello", http.StatusUnsupportedMediaType, ""},
		{"unknown route", "/other", message.MediaTypeEncrypted, "hello", http.StatusNotFound, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := post(tc.path, tc.contentType, tc.body)
			require.Equal(t, tc.status, rr.Code)

			if tc.reply != "" {
				require.Equal(t, tc.reply, rr.Body.String())
			}
		})
	}

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/didcomm", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	})
}

func TestInboundTransport(t *testing.T) {
	_, err := NewInbound("", "", "")
	require.Error(t, err)

	inbound, err := NewInbound("127.0.0.1:0", "", "/didcomm")
	require.NoError(t, err)
	require.NoError(t, inbound.Start(echoHandler))

	defer func() {
		require.NoError(t, inbound.Stop(context.Background()))
	}()

	require.Contains(t, inbound.Endpoint(), "/didcomm")

	ot, err := NewOutbound()
	require.NoError(t, err)

	reply, err := ot.Send(context.Background(), []byte(`{"ciphertext":"x"}`),
		&service.Destination{ServiceEndpoint: inbound.Endpoint()})
	require.NoError(t, err)
	require.Equal(t, `re:{"ciphertext":"x"}`, string(reply))

	advertised, err := NewInbound("127.0.0.1:0", "https://agent.example.com/didcomm", "/didcomm")
	require.NoError(t, err)
	require.Equal(t, "https://agent.example.com/didcomm", advertised.Endpoint())
}
