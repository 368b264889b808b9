/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vdr

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	mockapi "github.com/hyperledger/aries-edge-agent-go/pkg/internal/gomocks/vdr/api"
	vdrapi "github.com/hyperledger/aries-edge-agent-go/pkg/vdr/api"
)

type creatorVDR struct {
	*mockapi.MockVDR
	created *did.Doc
}

func (c *creatorVDR) Create(_ context.Context, opts ...vdrapi.DIDMethodOption) (*did.Doc, error) {
	o := vdrapi.ApplyOptions(opts...)
	if id, ok := o.Values["id"].(string); ok {
		return &did.Doc{ID: id}, nil
	}

	return c.created, nil
}

func TestRegistry_Resolve(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid DID syntax is reported before any VDR is consulted", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		v := mockapi.NewMockVDR(ctrl)

		_, err := New(WithVDR(v)).Resolve(ctx, "did::prism:aaa:aaa")
		require.ErrorIs(t, err, did.ErrInvalidDIDSyntax)
	})

	t.Run("first accepting VDR wins", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		first := mockapi.NewMockVDR(ctrl)
		second := mockapi.NewMockVDR(ctrl)
		third := mockapi.NewMockVDR(ctrl)

		first.EXPECT().Accept("peer").Return(false)
		second.EXPECT().Accept("peer").Return(true)
		second.EXPECT().Read(gomock.Any(), "did:peer:0z6Mk").Return(&did.Doc{ID: "did:peer:0z6Mk"}, nil)

		doc, err := New(WithVDR(first), WithVDR(second), WithVDR(third)).Resolve(ctx, "did:peer:0z6Mk")
		require.NoError(t, err)
		require.Equal(t, "did:peer:0z6Mk", doc.ID)
	})

	t.Run("method not supported", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		v := mockapi.NewMockVDR(ctrl)
		v.EXPECT().Accept("web").Return(false)

		_, err := New(WithVDR(v)).Resolve(ctx, "did:web:example.com")
		require.ErrorIs(t, err, ErrDIDMethodNotSupported)
	})

	t.Run("resolution errors propagate unchanged", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		readErr := errors.New("ledger unavailable")

		v := mockapi.NewMockVDR(ctrl)
		v.EXPECT().Accept("prism").Return(true)
		v.EXPECT().Read(gomock.Any(), gomock.Any()).Return(nil, readErr)

		_, err := New(WithVDR(v)).Resolve(ctx, "did:prism:abc")
		require.Equal(t, readErr, err)
	})

	t.Run("cache serves repeated resolutions", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		v := mockapi.NewMockVDR(ctrl)
		v.EXPECT().Accept("peer").Return(true).Times(1)
		v.EXPECT().Read(gomock.Any(), "did:peer:0z6Mk").Return(&did.Doc{ID: "did:peer:0z6Mk"}, nil).Times(1)

		r := New(WithVDR(v), WithCache(0, time.Minute))

		var wg sync.WaitGroup

		first, err := r.Resolve(ctx, "did:peer:0z6Mk")
		require.NoError(t, err)

		for i := 0; i < 10; i++ {
			wg.Add(1)

			go func() {
				defer wg.Done()

				doc, err := r.Resolve(ctx, "did:peer:0z6Mk")
				require.NoError(t, err)
				require.Same(t, first, doc)
			}()
		}

		wg.Wait()
	})
}

func TestRegistry_Create(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	defer ctrl.Finish()

	plain := mockapi.NewMockVDR(ctrl)
	plain.EXPECT().Accept("web").Return(true).AnyTimes()
	plain.EXPECT().Accept(gomock.Any()).Return(false).AnyTimes()

	creator := &creatorVDR{MockVDR: mockapi.NewMockVDR(ctrl), created: &did.Doc{ID: "did:peer:2.Ez"}}
	creator.EXPECT().Accept("peer").Return(true).AnyTimes()

	r := New(WithVDR(plain), WithVDR(creator))

	doc, err := r.Create(ctx, "peer", vdrapi.WithOption("id", "did:peer:0z"))
	require.NoError(t, err)
	require.Equal(t, "did:peer:0z", doc.ID)

	_, err = r.Create(ctx, "web")
	require.ErrorIs(t, err, ErrDIDMethodNotSupported)

	plain.EXPECT().Close().Return(nil)
	creator.EXPECT().Close().Return(errors.New("close failed"))
	require.EqualError(t, r.Close(), "close vdr: close failed")
}
