/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package outofband parses and builds out-of-band 2.0 invitations carried in the _oob URL parameter.
package outofband

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
)

const (
	// InvitationMsgType is the type of out-of-band 2.0 invitations.
	InvitationMsgType = "https://didcomm.org/out-of-band/2.0/invitation"
	// URLParam is the query parameter holding the encoded invitation.
	URLParam = "_oob"
)

var (
	// ErrInvalidURL is returned when a URL does not carry a decodable invitation.
	ErrInvalidURL = errors.New("invalid invitation URL")
	// ErrUnknownInvitationType is returned for invitations of another type than InvitationMsgType.
	ErrUnknownInvitationType = errors.New("unknown invitation type")
)

// Invitation is this protocol's `invitation` message.
type Invitation struct {
	ID          string               `json:"id"`
	Type        string               `json:"type"`
	From        string               `json:"from"`
	Body        InvitationBody       `json:"body"`
	Attachments []message.Attachment `json:"attachments,omitempty"`
}

// InvitationBody contains invitation's goal and accept headers.
type InvitationBody struct {
	GoalCode string   `json:"goal_code,omitempty"`
	Goal     string   `json:"goal,omitempty"`
	Accept   []string `json:"accept,omitempty"`
}

// Option configures NewInvitation.
type Option func(inv *Invitation)

// WithGoal sets the goal and goal code.
func WithGoal(goal, goalCode string) Option {
	return func(inv *Invitation) {
		inv.Body.Goal = goal
		inv.Body.GoalCode = goalCode
	}
}

// WithAccept sets the accepted media type profiles.
func WithAccept(accept ...string) Option {
	return func(inv *Invitation) {
		inv.Body.Accept = accept
	}
}

// WithAttachments adds attachments to the invitation.
func WithAttachments(attachments ...message.Attachment) Option {
	return func(inv *Invitation) {
		inv.Attachments = append(inv.Attachments, attachments...)
	}
}

// NewInvitation creates an invitation from the inviter DID from.
func NewInvitation(from string, opts ...Option) *Invitation {
	inv := &Invitation{
		ID:   uuid.New().String(),
		Type: InvitationMsgType,
		From: from,
		Body: InvitationBody{Accept: []string{"didcomm/v2"}},
	}

	for _, opt := range opts {
		opt(inv)
	}

	return inv
}

// ParseInvitationURL decodes the invitation in the _oob parameter of rawURL.
func ParseInvitationURL(rawURL string) (*Invitation, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	encoded := u.Query().Get(URLParam)
	if encoded == "" {
		return nil, fmt.Errorf("%w: missing %s parameter", ErrInvalidURL, URLParam)
	}

	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	return ParseInvitation(raw)
}

// ParseInvitation decodes a JSON invitation.
func ParseInvitation(raw []byte) (*Invitation, error) {
	inv := &Invitation{}

	if err := json.Unmarshal(raw, inv); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	if inv.Type != InvitationMsgType {
		return nil, fmt.Errorf("%w: %q", ErrUnknownInvitationType, inv.Type)
	}

	if inv.ID == "" || inv.From == "" {
		return nil, fmt.Errorf("%w: invitation needs id and from", ErrInvalidURL)
	}

	return inv, nil
}

// CreateInvitationURL encodes inv into the _oob parameter of base.
func CreateInvitationURL(base string, inv *Invitation) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	raw, err := json.Marshal(inv)
	if err != nil {
		return "", fmt.Errorf("marshal invitation: %w", err)
	}

	q := u.Query()
	q.Set(URLParam, base64.RawURLEncoding.EncodeToString(raw))
	u.RawQuery = q.Encode()

	return u.String(), nil
}
