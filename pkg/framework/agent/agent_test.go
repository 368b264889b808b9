/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/component/storageutil/mem"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/basicmessage"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/connection"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/outofband"
	arieshttp "github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/transport/http"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	mockmediator "github.com/hyperledger/aries-edge-agent-go/pkg/mock/mediator"
	agentstore "github.com/hyperledger/aries-edge-agent-go/pkg/store/agent"
	"github.com/hyperledger/aries-edge-agent-go/pkg/vdr/prism"
	"github.com/hyperledger/aries-edge-agent-go/spi/storage"
)

type closeErrStorage struct {
	storage.Provider
}

func (c *closeErrStorage) Close() error {
	return errors.New("close failed")
}

// newServedAgent creates an agent whose inbound HTTP endpoint is an httptest server.
func newServedAgent(t *testing.T, opts ...Option) *Agent {
	t.Helper()

	var a *Agent

	handler, err := arieshttp.NewInboundHandler("/", func(ctx context.Context, envelope []byte) ([]byte, error) {
		return a.HandleInbound(ctx, envelope)
	})
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	a, err = New(append([]Option{WithServiceEndpoint(srv.URL), WithRetry(2, 10*time.Millisecond)}, opts...)...)
	require.NoError(t, err)

	t.Cleanup(func() { require.NoError(t, a.Close()) })

	return a
}

// serve picks up and handles the messages queued for a at its mediator until ctx is done.
func serve(ctx context.Context, a *Agent) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(20 * time.Millisecond):
		}

		delivered, err := a.PickupUnreadMessages(ctx, 10)
		if err != nil {
			continue
		}

		ids := make([]string, 0, len(delivered))

		for _, d := range delivered {
			ids = append(ids, d.AttachmentID)

			if d.Err == nil {
				_ = a.HandleMessage(ctx, d.Message, d.Metadata) //nolint:errcheck
			}
		}

		_ = a.RegisterMessagesAsRead(ctx, ids) //nolint:errcheck
	}
}

func TestNew(t *testing.T) {
	t.Run("test new with default options", func(t *testing.T) {
		a, err := New()
		require.NoError(t, err)
		require.NotNil(t, a.Context())
		require.Len(t, a.Context().OutboundTransports(), 2)
		require.Len(t, a.Context().AllServices(), 3)
		require.NoError(t, a.Close())
	})

	t.Run("test error from option", func(t *testing.T) {
		_, err := New(func(opts *Agent) error {
			return errors.New("option failed")
		})
		require.ErrorContains(t, err, "option failed")
	})

	t.Run("test close error", func(t *testing.T) {
		a, err := New(WithStoreProvider(&closeErrStorage{mem.NewProvider()}))
		require.NoError(t, err)
		require.ErrorContains(t, a.Close(), "failed to close the store")
	})

	t.Run("test new with all options", func(t *testing.T) {
		a, err := New(
			WithStoreProvider(mem.NewProvider()),
			WithSecretResolver(),
			WithResolverCache(10, time.Minute),
			WithRetry(3, time.Millisecond),
			WithHandshakeTimeout(time.Second),
			WithPickupInterval(10*time.Millisecond),
			WithLogger(log.New("edge-agent/test")),
			WithBasicMessageHandler(func(context.Context, basicmessage.Message) error { return nil }),
		)
		require.NoError(t, err)
		require.NoError(t, a.Close())
	})
}

func TestAgent_ParseDID(t *testing.T) {
	a, err := New()
	require.NoError(t, err)

	defer func() { require.NoError(t, a.Close()) }()

	d, err := a.ParseDID("did:prism01:b2.-_%11:b4._-%11")
	require.NoError(t, err)
	require.Equal(t, "prism01", d.Method)

	_, err = a.ParseDID("did::prism:aaa:aaa")
	require.ErrorIs(t, err, did.ErrInvalidDIDSyntax)
}

func TestAgent_CreatePeerDID(t *testing.T) {
	ctx := context.Background()

	t.Run("default service endpoint", func(t *testing.T) {
		a, err := New(WithServiceEndpoint("https://agent.example.com/didcomm"))
		require.NoError(t, err)

		defer func() { require.NoError(t, a.Close()) }()

		doc, err := a.CreatePeerDID(ctx)
		require.NoError(t, err)
		require.True(t, strings.HasPrefix(doc.ID, "did:peer:2"))

		resolved, err := a.ResolveDID(ctx, doc.ID)
		require.NoError(t, err)
		require.Len(t, resolved.DIDCommServices(), 1)
		require.Equal(t, "https://agent.example.com/didcomm", resolved.DIDCommServices()[0].ServiceEndpoint[0].URI)

		dids, err := a.Context().AgentStore().PeerDIDs()
		require.NoError(t, err)
		require.Len(t, dids, 1)
	})

	t.Run("explicit services", func(t *testing.T) {
		a, err := New()
		require.NoError(t, err)

		defer func() { require.NoError(t, a.Close()) }()

		doc, err := a.CreatePeerDID(ctx, didCommService("https://other.example.com"))
		require.NoError(t, err)

		resolved, err := a.ResolveDID(ctx, doc.ID)
		require.NoError(t, err)
		require.Equal(t, "https://other.example.com", resolved.DIDCommServices()[0].ServiceEndpoint[0].URI)
	})

	t.Run("mediated did is routed and registered", func(t *testing.T) {
		m, err := mockmediator.New()
		require.NoError(t, err)

		defer m.Close()

		a, err := New()
		require.NoError(t, err)

		defer func() { require.NoError(t, a.Close()) }()

		grant, err := a.AchieveMediation(ctx, m.DID)
		require.NoError(t, err)
		require.Equal(t, m.DID, grant.RoutingDID)

		doc, err := a.CreatePeerDID(ctx)
		require.NoError(t, err)

		resolved, err := a.ResolveDID(ctx, doc.ID)
		require.NoError(t, err)
		require.Equal(t, m.DID, resolved.DIDCommServices()[0].ServiceEndpoint[0].URI)

		require.NoError(t, a.UpdateKeyList(ctx, []string{doc.ID}))
	})

	t.Run("mediation denied", func(t *testing.T) {
		m, err := mockmediator.New()
		require.NoError(t, err)

		defer m.Close()

		m.Deny = true

		a, err := New()
		require.NoError(t, err)

		defer func() { require.NoError(t, a.Close()) }()

		_, err = a.AchieveMediation(ctx, m.DID)
		require.ErrorIs(t, err, mediator.ErrMediationDenied)

		_, err = a.PickupUnreadMessages(ctx, 1)
		require.Error(t, err)
	})
}

func TestAgent_CreatePrismDID(t *testing.T) {
	ctx := context.Background()

	a, err := New()
	require.NoError(t, err)

	defer func() { require.NoError(t, a.Close()) }()

	master, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	auth, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	doc, err := a.CreatePrismDID(ctx, master.PubKey(), prism.WithAuthenticationKey("", auth.PubKey()))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(doc.ID, "did:prism:"))
	require.NotEmpty(t, doc.Authentication)

	resolved, err := a.ResolveDID(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.ID, resolved.ID)

	raw, err := a.Fetch(ctx, doc.ID)
	require.NoError(t, err)

	parsed, err := did.ParseDocument(raw)
	require.NoError(t, err)
	require.Equal(t, doc.ID, parsed.ID)
}

func TestAgent_PackUnpack(t *testing.T) {
	ctx := context.Background()

	alice, err := New()
	require.NoError(t, err)

	defer func() { require.NoError(t, alice.Close()) }()

	bob, err := New()
	require.NoError(t, err)

	defer func() { require.NoError(t, bob.Close()) }()

	aliceDoc, err := alice.CreatePeerDID(ctx)
	require.NoError(t, err)

	bobDoc, err := bob.CreatePeerDID(ctx)
	require.NoError(t, err)

	msg, err := message.New(basicmessage.MessageType, map[string]string{"content": "hello bob"},
		message.WithFrom(aliceDoc.ID), message.WithTo(bobDoc.ID))
	require.NoError(t, err)

	packed, err := alice.Pack(ctx, msg, message.MediaTypeEncrypted)
	require.NoError(t, err)

	got, meta, err := bob.Unpack(ctx, packed.Packed)
	require.NoError(t, err)
	require.True(t, meta.Authenticated)
	require.Equal(t, msg.ID, got.ID)
	require.Equal(t, msg.Type, got.Type)
	require.JSONEq(t, string(msg.Body), string(got.Body))

	_, _, err = alice.Unpack(ctx, packed.Packed)
	require.Error(t, err)
}

func TestAgent_DirectHandshake(t *testing.T) {
	ctx := context.Background()

	received := make(chan basicmessage.Message, 1)

	bob := newServedAgent(t, WithBasicMessageHandler(func(_ context.Context, msg basicmessage.Message) error {
		received <- msg

		return nil
	}))
	alice := newServedAgent(t, WithHandshakeTimeout(5*time.Second))

	inv, invURL, err := bob.CreateInvitation(ctx, "https://bob.example.com/invite",
		outofband.WithGoal("chat with bob", "connect"))
	require.NoError(t, err)
	require.Contains(t, invURL, outofband.URLParam+"=")

	pair, err := alice.AcceptInvitationURL(ctx, invURL)
	require.NoError(t, err)
	require.Equal(t, inv.From, pair.Other)
	require.Equal(t, "chat with bob", pair.Name)

	bobPairs, err := bob.DIDPairs()
	require.NoError(t, err)
	require.Len(t, bobPairs, 1)
	require.Equal(t, pair.Holder, bobPairs[0].Other)
	require.Equal(t, inv.From, bobPairs[0].Holder)

	_, err = alice.SendBasicMessage(ctx, pair.Holder, pair.Other, "hi bob")
	require.NoError(t, err)

	select {
	case msg := <-received:
		require.Equal(t, "hi bob", msg.Content)
		require.Equal(t, pair.Holder, msg.From)
	case <-time.After(5 * time.Second):
		t.Fatal("basic message not received")
	}
}

func TestAgent_HandleInboundRequiresAuthenticatedSender(t *testing.T) {
	ctx := context.Background()

	alice, err := New()
	require.NoError(t, err)

	defer func() { require.NoError(t, alice.Close()) }()

	bob, err := New()
	require.NoError(t, err)

	defer func() { require.NoError(t, bob.Close()) }()

	aliceDoc, err := alice.CreatePeerDID(ctx)
	require.NoError(t, err)

	bobDoc, err := bob.CreatePeerDID(ctx)
	require.NoError(t, err)

	req, err := message.New(connection.RequestMsgType, connection.Body{Goal: "spoofed"},
		message.WithFrom(aliceDoc.ID), message.WithTo(bobDoc.ID))
	require.NoError(t, err)

	plain, err := alice.Pack(ctx, req, message.MediaTypePlain)
	require.NoError(t, err)

	anon, err := alice.Context().Packager().AnonEncrypt(ctx, plain.Packed, message.MediaTypePlain, bobDoc.ID)
	require.NoError(t, err)

	for name, envelope := range map[string][]byte{"plaintext": plain.Packed, "anoncrypt": anon} {
		t.Run(name, func(t *testing.T) {
			_, err := bob.HandleInbound(ctx, envelope)
			require.ErrorIs(t, err, dispatcher.ErrUnauthenticatedSender)

			pairs, err := bob.DIDPairs()
			require.NoError(t, err)
			require.Empty(t, pairs)
		})
	}
}

func TestAgent_HandshakeTimeout(t *testing.T) {
	ctx := context.Background()

	bob, err := New()
	require.NoError(t, err)

	defer func() { require.NoError(t, bob.Close()) }()

	// bob advertises an endpoint that accepts the request but never answers.
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	defer sink.Close()

	bobDoc, err := bob.CreatePeerDID(ctx, didCommService(sink.URL))
	require.NoError(t, err)

	alice := newServedAgent(t, WithHandshakeTimeout(100*time.Millisecond))

	_, err = alice.SendHandshake(ctx, outofband.NewInvitation(bobDoc.ID))
	require.ErrorIs(t, err, connection.ErrNoHandshakeResponse)

	pairs, err := alice.DIDPairs()
	require.NoError(t, err)
	require.Empty(t, pairs)
}

func TestAgent_MediatedEndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := mockmediator.New()
	require.NoError(t, err)

	defer m.Close()

	received := make(chan basicmessage.Message, 1)

	alice, err := New(WithRetry(2, 10*time.Millisecond))
	require.NoError(t, err)

	defer func() { require.NoError(t, alice.Close()) }()

	bob, err := New(
		WithRetry(2, 10*time.Millisecond),
		WithHandshakeTimeout(10*time.Second),
		WithPickupInterval(20*time.Millisecond),
		WithBasicMessageHandler(func(_ context.Context, msg basicmessage.Message) error {
			received <- msg

			return nil
		}),
	)
	require.NoError(t, err)

	defer func() { require.NoError(t, bob.Close()) }()

	_, err = alice.AchieveMediation(ctx, m.DID)
	require.NoError(t, err)

	_, err = bob.AchieveMediation(ctx, m.DID)
	require.NoError(t, err)

	// alice is offline behind the mediator and answers from her pickup loop.
	go serve(ctx, alice)

	_, invURL, err := alice.CreateInvitation(ctx, "https://alice.example.com", outofband.WithGoal("chat", "connect"))
	require.NoError(t, err)

	inv, err := outofband.ParseInvitationURL(invURL)
	require.NoError(t, err)

	pair, err := bob.SendHandshake(ctx, inv)
	require.NoError(t, err)
	require.Equal(t, inv.From, pair.Other)

	stored, err := bob.DIDPairs()
	require.NoError(t, err)
	require.Equal(t, []agentstore.DIDPair{*pair}, stored)

	t.Run("bob packs a basic message alice unpacks", func(t *testing.T) {
		msg, err := message.New(basicmessage.MessageType, map[string]string{"content": "hello alice"},
			message.WithFrom(pair.Holder), message.WithTo(pair.Other))
		require.NoError(t, err)

		packed, err := bob.Pack(ctx, msg, message.MediaTypeEncrypted)
		require.NoError(t, err)

		got, _, err := alice.Unpack(ctx, packed.Packed)
		require.NoError(t, err)

		var body map[string]string

		require.NoError(t, json.Unmarshal(got.Body, &body))
		require.Equal(t, "hello alice", body["content"])
	})

	t.Run("alice sends a basic message through the mediator", func(t *testing.T) {
		_, err := alice.SendBasicMessage(ctx, pair.Other, pair.Holder, "hello bob")
		require.NoError(t, err)

		var ids []string

		require.Eventually(t, func() bool {
			delivered, err := bob.PickupUnreadMessages(ctx, 10)
			if err != nil || len(delivered) == 0 {
				return false
			}

			for _, d := range delivered {
				ids = append(ids, d.AttachmentID)

				if d.Err == nil {
					_ = bob.HandleMessage(ctx, d.Message, d.Metadata) //nolint:errcheck
				}
			}

			return true
		}, 5*time.Second, 20*time.Millisecond)

		require.NoError(t, bob.RegisterMessagesAsRead(ctx, ids))
		require.NoError(t, bob.RegisterMessagesAsRead(ctx, ids))

		msg := <-received
		require.Equal(t, "hello bob", msg.Content)

		delivered, err := bob.PickupUnreadMessages(ctx, 10)
		require.NoError(t, err)
		require.Empty(t, delivered)
	})
}
