/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package basicmessage sends and receives human readable text messages over a connection.
package basicmessage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/dispatcher"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/store/agent"
)

// MessageType is the basic message type.
const MessageType = "https://didcomm.org/basicmessage/2.0/message"

var errHandleMandatory = errors.New("message handle is mandatory")

// Message is message model for basic message protocol.
type Message struct {
	ID       string
	From     string
	To       []string
	Lang     string
	SentTime time.Time
	Content  string
}

type body struct {
	Content string `json:"content"`
}

// MessageHandle is called for every new basic message received.
type MessageHandle func(ctx context.Context, msg Message) error

// Store records the messages seen.
type Store interface {
	StoreMessage(msg *message.Message, dir agent.Direction) (bool, error)
}

type provider interface {
	OutboundDispatcher() dispatcher.Outbound
	MessageStore() Store
}

// MessageService is the basic message protocol service.
type MessageService struct {
	sender dispatcher.Outbound
	store  Store
	handle MessageHandle
	logger *log.Log
}

// Option configures the MessageService.
type Option func(m *MessageService)

// WithLogger sets the service logger.
func WithLogger(l *log.Log) Option {
	return func(m *MessageService) {
		m.logger = l
	}
}

// NewMessageService creates a basic message service calling handle for received messages.
func NewMessageService(prov provider, handle MessageHandle, opts ...Option) (*MessageService, error) {
	if handle == nil {
		return nil, errHandleMandatory
	}

	m := &MessageService{
		sender: prov.OutboundDispatcher(),
		store:  prov.MessageStore(),
		handle: handle,
		logger: log.New("edge-agent/basicmessage"),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// Send sends content from our DID from to their DID to.
func (m *MessageService) Send(ctx context.Context, from, to, content string) (*Message, error) {
	msg, err := message.New(MessageType, body{Content: content}, message.WithFrom(from), message.WithTo(to))
	if err != nil {
		return nil, err
	}

	if _, err = m.sender.Send(ctx, msg); err != nil {
		return nil, fmt.Errorf("send basic message: %w", err)
	}

	if _, err = m.store.StoreMessage(msg, agent.Sent); err != nil {
		return nil, fmt.Errorf("send basic message: %w", err)
	}

	return m.toMessage(msg, content), nil
}

// Accept is acceptance criteria for this message service.
func (m *MessageService) Accept(msgType string) bool {
	return msgType == MessageType
}

// HandleInbound for basic message service. Messages already seen are not handed over again.
func (m *MessageService) HandleInbound(ctx context.Context, msg *message.Message) error {
	b := body{}

	if err := msg.DecodeBody(&b); err != nil {
		return fmt.Errorf("unable to decode incoming DID comm message: %w", err)
	}

	fresh, err := m.store.StoreMessage(msg, agent.Received)
	if err != nil {
		return err
	}

	if !fresh {
		m.logger.Debugf("ignoring duplicate basic message %s", msg.ID)

		return nil
	}

	return m.handle(ctx, *m.toMessage(msg, b.Content))
}

func (m *MessageService) toMessage(msg *message.Message, content string) *Message {
	out := &Message{
		ID:       msg.ID,
		From:     msg.From,
		To:       msg.To,
		SentTime: msg.CreatedTime,
		Content:  content,
	}

	if raw, ok := msg.Extra["lang"]; ok {
		if err := json.Unmarshal(raw, &out.Lang); err != nil {
			m.logger.With("msgID", msg.ID).Warnf("ignoring malformed lang %s: %v", raw, err)
		}
	}

	return out
}
