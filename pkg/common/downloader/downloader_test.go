/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package downloader

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	mockvdr "github.com/hyperledger/aries-edge-agent-go/pkg/internal/gomocks/vdr/api"
	vdrapi "github.com/hyperledger/aries-edge-agent-go/pkg/vdr/api"
)

func TestDownloader_Fetch(t *testing.T) {
	t.Run("http success after a server error", func(t *testing.T) {
		var calls int32

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if atomic.AddInt32(&calls, 1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)

				return
			}

			_, _ = w.Write([]byte("schema")) //nolint:errcheck
		}))
		defer srv.Close()

		body, err := New(nil, WithRetry(3, 0)).Fetch(context.Background(), srv.URL)
		require.NoError(t, err)
		require.Equal(t, "schema", string(body))
		require.EqualValues(t, 2, atomic.LoadInt32(&calls))
	})

	t.Run("not found is not retried", func(t *testing.T) {
		var calls int32

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer srv.Close()

		_, err := New(nil, WithRetry(3, 0), WithHTTPClient(srv.Client())).Fetch(context.Background(), srv.URL)
		require.ErrorIs(t, err, vdrapi.ErrNotFound)
		require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	})

	t.Run("retries are exhausted", func(t *testing.T) {
		var calls int32

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		_, err := New(nil, WithRetry(2, 0)).Fetch(context.Background(), srv.URL)
		require.Error(t, err)
		require.Contains(t, err.Error(), "unsupported response [502]")
		require.EqualValues(t, 2, atomic.LoadInt32(&calls))
	})

	t.Run("did resolves to its document", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		registry := mockvdr.NewMockRegistry(ctrl)
		registry.EXPECT().Resolve(gomock.Any(), "did:example:123").Return(&did.Doc{ID: "did:example:123"}, nil)

		body, err := New(registry).Fetch(context.Background(), "did:example:123")
		require.NoError(t, err)

		doc, err := did.ParseDocument(body)
		require.NoError(t, err)
		require.Equal(t, "did:example:123", doc.ID)
	})

	t.Run("did resolution error", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		registry := mockvdr.NewMockRegistry(ctrl)
		registry.EXPECT().Resolve(gomock.Any(), "did:example:123").Return(nil, errors.New("ledger down"))

		_, err := New(registry).Fetch(context.Background(), "did:example:123")
		require.EqualError(t, err, "fetch did:example:123: ledger down")
	})

	t.Run("unsupported reference", func(t *testing.T) {
		_, err := New(nil).Fetch(context.Background(), "ftp://example.com/doc")
		require.ErrorIs(t, err, ErrUnsupportedReference)
	})
}
