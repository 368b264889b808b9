/*
Copyright Scoir Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messagepickup

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/packer"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/mediator"
	"github.com/hyperledger/aries-edge-agent-go/pkg/internal/testutil"
	"github.com/hyperledger/aries-edge-agent-go/pkg/store/agent"
)

type mockSender struct {
	mu      sync.Mutex
	sent    []*message.Message
	replyFn func(msg *message.Message) (*message.Message, error)
}

func (m *mockSender) Send(_ context.Context, msg *message.Message) (*message.Message, error) {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()

	if m.replyFn == nil {
		return nil, nil
	}

	return m.replyFn(msg)
}

func (m *mockSender) sentOfType(msgType string) []*message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*message.Message

	for _, msg := range m.sent {
		if msg.Type == msgType {
			out = append(out, msg)
		}
	}

	return out
}

type mockMediatorStore struct {
	mediator *agent.Mediator
	err      error
}

func (m *mockMediatorStore) StoreMediator(med agent.Mediator) error {
	m.mediator = &med

	return nil
}

func (m *mockMediatorStore) Mediator() (*agent.Mediator, error) {
	if m.err != nil {
		return nil, m.err
	}

	if m.mediator == nil {
		return nil, agent.ErrDataNotFound
	}

	return m.mediator, nil
}

type mockProvider struct {
	sender   dispatcher.Outbound
	unpacker dispatcher.Packager
	store    mediator.MediatorStore
}

func (p *mockProvider) OutboundDispatcher() dispatcher.Outbound {
	return p.sender
}

func (p *mockProvider) Packager() dispatcher.Packager {
	return p.unpacker
}

func (p *mockProvider) MediatorStore() mediator.MediatorStore {
	return p.store
}

type fixture struct {
	bob      *testutil.Identity
	alice    *testutil.Identity
	mediator *agent.Mediator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	registry := testutil.NewRegistry()

	bob := testutil.NewIdentity(t, registry)

	return &fixture{
		bob:   bob,
		alice: testutil.NewIdentity(t, registry),
		mediator: &agent.Mediator{
			HostDID:     bob.DID,
			RoutingDID:  "did:peer:2.routing",
			MediatorDID: "did:peer:2.mediator",
		},
	}
}

func (f *fixture) packForBob(t *testing.T, content string) (*message.Message, []byte) {
	t.Helper()

	msg, err := message.New("https://didcomm.org/basicmessage/2.0/message", map[string]string{"content": content},
		message.WithFrom(f.alice.DID), message.WithTo(f.bob.DID))
	require.NoError(t, err)

	res, err := packer.New(f.alice.Provider).Pack(context.Background(), msg, message.MediaTypeEncrypted)
	require.NoError(t, err)

	return msg, res.Packed
}

func (f *fixture) service(sender dispatcher.Outbound) *Service {
	return New(&mockProvider{
		sender:   sender,
		unpacker: packer.New(f.bob.Provider),
		store:    &mockMediatorStore{mediator: f.mediator},
	}, WithConcurrency(2))
}

func delivery(t *testing.T, attachments ...message.Attachment) *message.Message {
	t.Helper()

	msg, err := message.New(DeliveryMsgType, struct{}{}, message.WithAttachments(attachments...))
	require.NoError(t, err)

	return msg
}

func TestService_PickupUnreadMessages(t *testing.T) {
	f := newFixture(t)

	t.Run("delivery is unpacked in order", func(t *testing.T) {
		first, firstWire := f.packForBob(t, "one")
		second, secondWire := f.packForBob(t, "two")

		sender := &mockSender{replyFn: func(msg *message.Message) (*message.Message, error) {
			var req DeliveryRequest

			require.NoError(t, msg.DecodeBody(&req))
			require.Equal(t, 5, req.Limit)
			require.Equal(t, f.mediator.HostDID, msg.From)
			require.Equal(t, []string{f.mediator.MediatorDID}, msg.To)
			require.Equal(t, message.ReturnRouteAll, msg.ReturnRoute)

			return delivery(t,
				message.Attachment{ID: "a1", Data: message.AttachmentData{Base64: base64.StdEncoding.EncodeToString(firstWire)}},
				message.Attachment{ID: "a2", Data: message.AttachmentData{Base64: base64.StdEncoding.EncodeToString(secondWire)}},
			), nil
		}}

		delivered, err := f.service(sender).PickupUnreadMessages(context.Background(), 5)
		require.NoError(t, err)
		require.Len(t, delivered, 2)
		require.Equal(t, "a1", delivered[0].AttachmentID)
		require.Equal(t, first.ID, delivered[0].Message.ID)
		require.True(t, delivered[0].Metadata.Authenticated)
		require.Equal(t, second.ID, delivered[1].Message.ID)
	})

	t.Run("one broken attachment does not fail the batch", func(t *testing.T) {
		msg, wire := f.packForBob(t, "ok")

		sender := &mockSender{replyFn: func(*message.Message) (*message.Message, error) {
			return delivery(t,
				message.Attachment{ID: "bad", Data: message.AttachmentData{Base64: base64.StdEncoding.EncodeToString([]byte("{}"))}},
				message.Attachment{ID: "good", Data: message.AttachmentData{Base64: base64.StdEncoding.EncodeToString(wire)}},
			), nil
		}}

		delivered, err := f.service(sender).PickupUnreadMessages(context.Background(), 0)
		require.NoError(t, err)
		require.Len(t, delivered, 2)
		require.ErrorIs(t, delivered[0].Err, packer.ErrUnpackFailed)
		require.Nil(t, delivered[0].Message)
		require.NoError(t, delivered[1].Err)
		require.Equal(t, msg.ID, delivered[1].Message.ID)

		var req DeliveryRequest

		require.NoError(t, sender.sent[0].DecodeBody(&req))
		require.Equal(t, DefaultLimit, req.Limit)
	})

	t.Run("status reply means no messages", func(t *testing.T) {
		sender := &mockSender{replyFn: func(*message.Message) (*message.Message, error) {
			return message.New(StatusMsgType, Status{MessageCount: 0})
		}}

		delivered, err := f.service(sender).PickupUnreadMessages(context.Background(), 1)
		require.NoError(t, err)
		require.Empty(t, delivered)
	})

	t.Run("no reply", func(t *testing.T) {
		delivered, err := f.service(&mockSender{}).PickupUnreadMessages(context.Background(), 1)
		require.NoError(t, err)
		require.Empty(t, delivered)
	})

	t.Run("unexpected reply", func(t *testing.T) {
		sender := &mockSender{replyFn: func(*message.Message) (*message.Message, error) {
			return message.New("https://didcomm.org/other/1.0/thing", struct{}{})
		}}

		_, err := f.service(sender).PickupUnreadMessages(context.Background(), 1)
		require.ErrorIs(t, err, ErrUnexpectedMessage)
	})

	t.Run("send error", func(t *testing.T) {
		sender := &mockSender{replyFn: func(*message.Message) (*message.Message, error) {
			return nil, errors.New("offline")
		}}

		_, err := f.service(sender).PickupUnreadMessages(context.Background(), 1)
		require.EqualError(t, err, "delivery request: offline")
	})

	t.Run("no mediator", func(t *testing.T) {
		s := New(&mockProvider{sender: &mockSender{}, store: &mockMediatorStore{}})

		_, err := s.PickupUnreadMessages(context.Background(), 1)
		require.ErrorIs(t, err, ErrNoMediator)
	})

	t.Run("mediator store error", func(t *testing.T) {
		s := New(&mockProvider{sender: &mockSender{}, store: &mockMediatorStore{err: errors.New("store down")}})

		_, err := s.PickupUnreadMessages(context.Background(), 1)
		require.EqualError(t, err, "delivery request: store down")
	})
}

func TestService_RegisterMessagesAsRead(t *testing.T) {
	f := newFixture(t)

	t.Run("sends messages-received", func(t *testing.T) {
		sender := &mockSender{}

		require.NoError(t, f.service(sender).RegisterMessagesAsRead(context.Background(), []string{"a1", "a2"}))
		require.Len(t, sender.sent, 1)

		var body MessagesReceived

		require.NoError(t, sender.sent[0].DecodeBody(&body))
		require.Equal(t, []string{"a1", "a2"}, body.MessageIDList)
	})

	t.Run("nothing to acknowledge", func(t *testing.T) {
		sender := &mockSender{}

		require.NoError(t, f.service(sender).RegisterMessagesAsRead(context.Background(), nil))
		require.Empty(t, sender.sent)
	})
}

func TestService_Status(t *testing.T) {
	f := newFixture(t)

	t.Run("success", func(t *testing.T) {
		sender := &mockSender{replyFn: func(*message.Message) (*message.Message, error) {
			return message.New(StatusMsgType, Status{MessageCount: 3})
		}}

		status, err := f.service(sender).Status(context.Background())
		require.NoError(t, err)
		require.Equal(t, 3, status.MessageCount)
	})

	t.Run("no reply", func(t *testing.T) {
		_, err := f.service(&mockSender{}).Status(context.Background())
		require.ErrorIs(t, err, ErrNoReply)
	})

	t.Run("unexpected reply", func(t *testing.T) {
		sender := &mockSender{replyFn: func(*message.Message) (*message.Message, error) {
			return message.New(DeliveryMsgType, struct{}{})
		}}

		_, err := f.service(sender).Status(context.Background())
		require.ErrorIs(t, err, ErrUnexpectedMessage)
	})
}

func TestService_Poll(t *testing.T) {
	f := newFixture(t)
	msg, wire := f.packForBob(t, "polled")

	var (
		mu     sync.Mutex
		queued = map[string][]byte{"a1": wire}
	)

	sender := &mockSender{replyFn: func(req *message.Message) (*message.Message, error) {
		mu.Lock()
		defer mu.Unlock()

		switch req.Type {
		case MessagesReceivedMsgType:
			var body MessagesReceived

			require.NoError(t, req.DecodeBody(&body))

			for _, id := range body.MessageIDList {
				delete(queued, id)
			}

			return message.New(StatusMsgType, Status{MessageCount: len(queued)})
		default:
			if len(queued) == 0 {
				return message.New(StatusMsgType, Status{})
			}

			var atts []message.Attachment

			for id, w := range queued {
				atts = append(atts, message.Attachment{ID: id, Data: message.AttachmentData{
					Base64: base64.StdEncoding.EncodeToString(w),
				}})
			}

			return delivery(t, atts...), nil
		}
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := f.service(sender).Poll(ctx, 10*time.Millisecond, 10)

	select {
	case d := <-out:
		require.NoError(t, d.Err)
		require.Equal(t, msg.ID, d.Message.ID)
	case <-time.After(5 * time.Second):
		require.Fail(t, "no message polled")
	}

	require.Eventually(t, func() bool {
		return len(sender.sentOfType(MessagesReceivedMsgType)) > 0
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	for range out {
		require.Fail(t, "message delivered twice")
	}
}
