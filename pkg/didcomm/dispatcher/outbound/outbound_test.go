/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package outbound

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/common/service"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/transport"
	mocktransport "github.com/hyperledger/aries-edge-agent-go/pkg/internal/gomocks/didcomm/transport"
	"github.com/hyperledger/aries-edge-agent-go/pkg/internal/testutil"
	vdrapi "github.com/hyperledger/aries-edge-agent-go/pkg/vdr/api"
)

const (
	bobEndpoint      = "http://bob.example.com/didcomm"
	mediatorEndpoint = "http://mediator.example.com/didcomm"
)

type mockProvider struct {
	packager   dispatcher.Packager
	vdr        vdrapi.Registry
	transports []transport.OutboundTransport
}

func (p *mockProvider) Packager() dispatcher.Packager {
	return p.packager
}

func (p *mockProvider) VDRegistry() vdrapi.Registry {
	return p.vdr
}

func (p *mockProvider) OutboundTransports() []transport.OutboundTransport {
	return p.transports
}

func TestNewOutbound(t *testing.T) {
	o := NewOutbound(&mockProvider{})
	require.Equal(t, DefaultAttempts, o.attempts)
	require.Equal(t, DefaultDelay, o.delay)

	o = NewOutbound(&mockProvider{}, WithRetry(3, 0), WithPackOptions(packer.WithSignFrom()))
	require.Equal(t, 3, o.attempts)
	require.Zero(t, o.delay)
	require.Len(t, o.packOpts, 1)

	o = NewOutbound(&mockProvider{}, WithRetry(0, -1))
	require.Equal(t, DefaultAttempts, o.attempts)
	require.Equal(t, DefaultDelay, o.delay)
}

func TestOutboundDispatcher_Send(t *testing.T) {
	registry := testutil.NewRegistry()
	alice := testutil.NewIdentity(t, registry)
	bob := testutil.NewIdentity(t, registry, testutil.DIDCommService(bobEndpoint))
	relay := testutil.NewIdentity(t, registry, testutil.DIDCommService(mediatorEndpoint))
	routedBob := testutil.NewIdentity(t, registry, testutil.DIDCommService(relay.DID))

	alicePacker := packer.New(alice.Provider)

	newMsg := func(t *testing.T, to string) *message.Message {
		t.Helper()

		msg, err := message.New("https://didcomm.org/basicmessage/2.0/message",
			map[string]string{"content": "hello"}, message.WithFrom(alice.DID), message.WithTo(to))
		require.NoError(t, err)

		return msg
	}

	t.Run("direct delivery", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		var sent []byte

		ot := mocktransport.NewMockOutboundTransport(ctrl)
		ot.EXPECT().Accept(bobEndpoint).Return(true)
		ot.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, data []byte, dest *service.Destination) ([]byte, error) {
				require.Equal(t, bob.DID, dest.RecipientDID)
				require.Empty(t, dest.RoutingKeys)

				sent = data

				return nil, nil
			})

		o := NewOutbound(&mockProvider{
			packager:   alicePacker,
			vdr:        registry,
			transports: []transport.OutboundTransport{ot},
		})

		msg := newMsg(t, bob.DID)

		reply, err := o.Send(context.Background(), msg)
		require.NoError(t, err)
		require.Nil(t, reply)

		got, meta, err := packer.New(bob.Provider).Unpack(context.Background(), sent)
		require.NoError(t, err)
		require.True(t, meta.Authenticated)
		require.Equal(t, msg.ID, got.ID)
	})

	t.Run("delivery through a mediator wraps a forward message", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		var sent []byte

		ot := mocktransport.NewMockOutboundTransport(ctrl)
		ot.EXPECT().Accept(mediatorEndpoint).Return(true)
		ot.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, data []byte, dest *service.Destination) ([]byte, error) {
				require.Equal(t, []string{relay.DID}, dest.RoutingKeys)

				sent = data

				return nil, nil
			})

		o := NewOutbound(&mockProvider{
			packager:   alicePacker,
			vdr:        registry,
			transports: []transport.OutboundTransport{ot},
		})

		msg := newMsg(t, routedBob.DID)

		_, err := o.Send(context.Background(), msg)
		require.NoError(t, err)

		next, inner, err := mediator.UnwrapForward(context.Background(), packer.New(relay.Provider), sent)
		require.NoError(t, err)
		require.Equal(t, routedBob.DID, next)

		got, _, err := packer.New(routedBob.Provider).Unpack(context.Background(), inner)
		require.NoError(t, err)
		require.Equal(t, msg.ID, got.ID)
	})

	t.Run("synchronous reply is unpacked", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		answer, err := message.New("https://didcomm.org/basicmessage/2.0/message",
			map[string]string{"content": "hi"}, message.WithFrom(bob.DID), message.WithTo(alice.DID))
		require.NoError(t, err)

		packedAnswer, err := packer.New(bob.Provider).Pack(context.Background(), answer, message.MediaTypeEncrypted)
		require.NoError(t, err)

		ot := mocktransport.NewMockOutboundTransport(ctrl)
		ot.EXPECT().Accept(gomock.Any()).Return(true)
		ot.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(packedAnswer.Packed, nil)

		o := NewOutbound(&mockProvider{
			packager:   alicePacker,
			vdr:        registry,
			transports: []transport.OutboundTransport{ot},
		})

		reply, err := o.Send(context.Background(), newMsg(t, bob.DID))
		require.NoError(t, err)
		require.Equal(t, answer.ID, reply.ID)

		var body map[string]string

		require.NoError(t, json.Unmarshal(reply.Body, &body))
		require.Equal(t, "hi", body["content"])
	})

	t.Run("synchronous reply without an authenticated sender", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		answer, err := message.New("https://didcomm.org/basicmessage/2.0/message",
			map[string]string{"content": "hi"}, message.WithFrom(bob.DID), message.WithTo(alice.DID))
		require.NoError(t, err)

		plain, err := packer.New(bob.Provider).Pack(context.Background(), answer, message.MediaTypePlain)
		require.NoError(t, err)

		ot := mocktransport.NewMockOutboundTransport(ctrl)
		ot.EXPECT().Accept(gomock.Any()).Return(true)
		ot.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(plain.Packed, nil)

		o := NewOutbound(&mockProvider{
			packager:   alicePacker,
			vdr:        registry,
			transports: []transport.OutboundTransport{ot},
		})

		reply, err := o.Send(context.Background(), newMsg(t, bob.DID))
		require.ErrorIs(t, err, dispatcher.ErrUnauthenticatedSender)
		require.Nil(t, reply)
	})

	t.Run("transient failures are retried", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		ot := mocktransport.NewMockOutboundTransport(ctrl)
		ot.EXPECT().Accept(gomock.Any()).Return(true)
		gomock.InOrder(
			ot.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("connection refused")),
			ot.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, &transport.StatusError{
				URL: bobEndpoint, StatusCode: http.StatusBadGateway, Status: "502 Bad Gateway",
			}),
			ot.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil),
		)

		o := NewOutbound(&mockProvider{
			packager:   alicePacker,
			vdr:        registry,
			transports: []transport.OutboundTransport{ot},
		}, WithRetry(3, 0))

		_, err := o.Send(context.Background(), newMsg(t, bob.DID))
		require.NoError(t, err)
	})

	t.Run("retries are exhausted", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		ot := mocktransport.NewMockOutboundTransport(ctrl)
		ot.EXPECT().Accept(gomock.Any()).Return(true)
		ot.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("connection refused")).Times(2)

		o := NewOutbound(&mockProvider{
			packager:   alicePacker,
			vdr:        registry,
			transports: []transport.OutboundTransport{ot},
		}, WithRetry(2, 0))

		_, err := o.Send(context.Background(), newMsg(t, bob.DID))
		require.Error(t, err)
		require.Contains(t, err.Error(), "after 2 attempts")
	})

	t.Run("client errors are not retried", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		statusErr := &transport.StatusError{URL: bobEndpoint, StatusCode: http.StatusBadRequest, Status: "400 Bad Request"}

		ot := mocktransport.NewMockOutboundTransport(ctrl)
		ot.EXPECT().Accept(gomock.Any()).Return(true)
		ot.EXPECT().Send(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, statusErr).Times(1)

		o := NewOutbound(&mockProvider{
			packager:   alicePacker,
			vdr:        registry,
			transports: []transport.OutboundTransport{ot},
		}, WithRetry(5, 0))

		_, err := o.Send(context.Background(), newMsg(t, bob.DID))
		require.ErrorIs(t, err, statusErr)
	})

	t.Run("no transport accepts the endpoint", func(t *testing.T) {
		ctrl := gomock.NewController(t)

		ot := mocktransport.NewMockOutboundTransport(ctrl)
		ot.EXPECT().Accept(bobEndpoint).Return(false)

		o := NewOutbound(&mockProvider{
			packager:   alicePacker,
			vdr:        registry,
			transports: []transport.OutboundTransport{ot},
		})

		_, err := o.Send(context.Background(), newMsg(t, bob.DID))
		require.ErrorIs(t, err, transport.ErrNoTransport)
	})

	t.Run("recipient without service", func(t *testing.T) {
		o := NewOutbound(&mockProvider{packager: alicePacker, vdr: registry})

		_, err := o.Send(context.Background(), newMsg(t, alice.DID))
		require.ErrorIs(t, err, packer.ErrNoValidServiceFound)
		require.ErrorIs(t, err, service.ErrNoDIDCommService)
	})

	t.Run("message without recipient", func(t *testing.T) {
		o := NewOutbound(&mockProvider{packager: alicePacker, vdr: registry})

		msg, err := message.New("https://didcomm.org/basicmessage/2.0/message", map[string]string{})
		require.NoError(t, err)

		_, err = o.Send(context.Background(), msg)
		require.ErrorIs(t, err, packer.ErrNoDIDReceiverSet)
	})
}
