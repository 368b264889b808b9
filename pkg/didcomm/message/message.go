/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package message holds the DIDComm V2 plaintext message model.
package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/decorator"
)

// Media types of DIDComm V2 envelopes.
const (
	MediaTypePlain     = "application/didcomm-plain+json"
	MediaTypeSigned    = "application/didcomm-signed+json"
	MediaTypeEncrypted = "application/didcomm-encrypted+json"
)

// ReturnRouteAll asks the receiver to reply on the same transport connection.
const ReturnRouteAll = "all"

var (
	// ErrMessageAttachmentWithoutID is returned for an attachment with an empty id.
	ErrMessageAttachmentWithoutID = errors.New("message attachment without id")
	// ErrUnknownAttachmentDataType is returned when attachment data carries none, or more than one,
	// of base64, json and links.
	ErrUnknownAttachmentDataType = errors.New("unknown attachment data type")
	// ErrInvalidMessage is returned for plaintext messages missing required headers.
	ErrInvalidMessage = errors.New("invalid plaintext message")
)

// Attachment is a message attachment.
type Attachment = decorator.AttachmentV2

// AttachmentData is the payload of an Attachment.
type AttachmentData = decorator.AttachmentData

// Message is a DIDComm V2 plaintext message. Headers the model does not know are kept in Extra.
type Message struct {
	ID          string
	Type        string
	From        string
	To          []string
	Body        json.RawMessage
	Thid        string
	Pthid       string
	CreatedTime time.Time
	ExpiresTime time.Time
	Attachments []Attachment
	FromPrior   string
	ReturnRoute string
	Extra       map[string]json.RawMessage
}

type rawMessage struct {
	ID          string          `json:"id"`
	Typ         string          `json:"typ,omitempty"`
	Type        string          `json:"type"`
	Body        json.RawMessage `json:"body"`
	From        string          `json:"from,omitempty"`
	To          []string        `json:"to,omitempty"`
	Thid        string          `json:"thid,omitempty"`
	Pthid       string          `json:"pthid,omitempty"`
	CreatedTime int64           `json:"created_time,omitempty"`
	ExpiresTime int64           `json:"expires_time,omitempty"`
	Attachments []Attachment    `json:"attachments,omitempty"`
	FromPrior   string          `json:"from_prior,omitempty"`
	ReturnRoute string          `json:"return_route,omitempty"`
}

//nolint:gochecknoglobals
var knownHeaders = map[string]struct{}{
	"id": {}, "typ": {}, "type": {}, "body": {}, "from": {}, "to": {}, "thid": {}, "pthid": {},
	"created_time": {}, "expires_time": {}, "attachments": {}, "from_prior": {}, "return_route": {},
}

// Option configures a new message.
type Option func(m *Message)

// WithFrom sets the sender DID.
func WithFrom(from string) Option {
	return func(m *Message) {
		m.From = from
	}
}

// WithTo sets the recipient DIDs.
func WithTo(to ...string) Option {
	return func(m *Message) {
		m.To = to
	}
}

// WithThreadID sets the thread id.
func WithThreadID(thid string) Option {
	return func(m *Message) {
		m.Thid = thid
	}
}

// WithParentThreadID sets the parent thread id.
func WithParentThreadID(pthid string) Option {
	return func(m *Message) {
		m.Pthid = pthid
	}
}

// WithAttachments adds attachments.
func WithAttachments(attachments ...Attachment) Option {
	return func(m *Message) {
		m.Attachments = append(m.Attachments, attachments...)
	}
}

// WithReturnRoute sets the return_route header.
func WithReturnRoute(route string) Option {
	return func(m *Message) {
		m.ReturnRoute = route
	}
}

// WithExpiry sets expires_time relative to the creation time.
func WithExpiry(d time.Duration) Option {
	return func(m *Message) {
		m.ExpiresTime = m.CreatedTime.Add(d)
	}
}

// New creates a message of type msgType with a fresh id. A nil body becomes {}.
func New(msgType string, body interface{}, opts ...Option) (*Message, error) {
	m := &Message{
		ID:          uuid.New().String(),
		Type:        msgType,
		CreatedTime: time.Now().Truncate(time.Second),
	}

	if body == nil {
		m.Body = json.RawMessage("{}")
	} else {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("new message: marshal body: %w", err)
		}

		m.Body = b
	}

	for _, opt := range opts {
		opt(m)
	}

	return m, nil
}

// DecodeBody unmarshals the body into v.
func (m *Message) DecodeBody(v interface{}) error {
	if len(m.Body) == 0 {
		return fmt.Errorf("%w: message %s has no body", ErrInvalidMessage, m.ID)
	}

	if err := json.Unmarshal(m.Body, v); err != nil {
		return fmt.Errorf("decode body of %s: %w", m.Type, err)
	}

	return nil
}

// ThreadID returns the thread of the message; a message without thid starts its own thread.
func (m *Message) ThreadID() string {
	if m.Thid != "" {
		return m.Thid
	}

	return m.ID
}

// Validate checks that every attachment has an id and exactly one kind of data.
func (m *Message) Validate() error {
	for i := range m.Attachments {
		a := &m.Attachments[i]

		if a.ID == "" {
			return ErrMessageAttachmentWithoutID
		}

		kinds := 0

		if a.Data.Base64 != "" {
			kinds++
		}

		if a.Data.JSON != nil {
			kinds++
		}

		if len(a.Data.Links) > 0 {
			if a.Data.Hash == "" {
				return fmt.Errorf("%w: attachment %s has links without hash", ErrUnknownAttachmentDataType, a.ID)
			}

			kinds++
		}

		if kinds != 1 {
			return fmt.Errorf("%w: attachment %s", ErrUnknownAttachmentDataType, a.ID)
		}
	}

	return nil
}

// MarshalJSON renders the plaintext wire form, extra headers included.
func (m *Message) MarshalJSON() ([]byte, error) {
	raw := rawMessage{
		ID:          m.ID,
		Typ:         MediaTypePlain,
		Type:        m.Type,
		Body:        m.Body,
		From:        m.From,
		To:          m.To,
		Thid:        m.Thid,
		Pthid:       m.Pthid,
		Attachments: m.Attachments,
		FromPrior:   m.FromPrior,
		ReturnRoute: m.ReturnRoute,
	}

	if raw.Body == nil {
		raw.Body = json.RawMessage("{}")
	}

	if !m.CreatedTime.IsZero() {
		raw.CreatedTime = m.CreatedTime.Unix()
	}

	if !m.ExpiresTime.IsZero() {
		raw.ExpiresTime = m.ExpiresTime.Unix()
	}

	b, err := json.Marshal(raw)
	if err != nil || len(m.Extra) == 0 {
		return b, err
	}

	fields := map[string]json.RawMessage{}

	if err = json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}

	for k, v := range m.Extra {
		if _, known := knownHeaders[k]; !known {
			fields[k] = v
		}
	}

	return json.Marshal(fields)
}

// UnmarshalJSON reads the plaintext wire form. id and type are required.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw rawMessage

	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMessage, err.Error())
	}

	if raw.ID == "" || raw.Type == "" {
		return fmt.Errorf("%w: id and type are required", ErrInvalidMessage)
	}

	if raw.Typ != "" && raw.Typ != MediaTypePlain {
		return fmt.Errorf("%w: typ %q", ErrInvalidMessage, raw.Typ)
	}

	var fields map[string]json.RawMessage

	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMessage, err.Error())
	}

	*m = Message{
		ID:          raw.ID,
		Type:        raw.Type,
		From:        raw.From,
		To:          raw.To,
		Body:        raw.Body,
		Thid:        raw.Thid,
		Pthid:       raw.Pthid,
		Attachments: raw.Attachments,
		FromPrior:   raw.FromPrior,
		ReturnRoute: raw.ReturnRoute,
	}

	if raw.CreatedTime != 0 {
		m.CreatedTime = time.Unix(raw.CreatedTime, 0)
	}

	if raw.ExpiresTime != 0 {
		m.ExpiresTime = time.Unix(raw.ExpiresTime, 0)
	}

	for k, v := range fields {
		if _, known := knownHeaders[k]; known {
			continue
		}

		if m.Extra == nil {
			m.Extra = map[string]json.RawMessage{}
		}

		m.Extra[k] = v
	}

	return nil
}
