/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/protocol/decorator"
)

const basicMessageType = "https://didcomm.org/basicmessage/2.0/message"

func TestNew(t *testing.T) {
	msg, err := New(basicMessageType, map[string]string{"content": "hello"},
		WithFrom("did:peer:alice"), WithTo("did:peer:bob"), WithThreadID("thread-1"),
		WithParentThreadID("parent-1"), WithReturnRoute(ReturnRouteAll), WithExpiry(time.Hour))
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	require.Equal(t, "thread-1", msg.ThreadID())
	require.Equal(t, time.Hour, msg.ExpiresTime.Sub(msg.CreatedTime))

	var body struct {
		Content string `json:"content"`
	}

	require.NoError(t, msg.DecodeBody(&body))
	require.Equal(t, "hello", body.Content)

	t.Run("nil body", func(t *testing.T) {
		m, err := New(basicMessageType, nil)
		require.NoError(t, err)
		require.JSONEq(t, "{}", string(m.Body))
		require.Equal(t, m.ID, m.ThreadID())
	})

	t.Run("unmarshalable body", func(t *testing.T) {
		_, err := New(basicMessageType, func() {})
		require.Error(t, err)
	})

	t.Run("decode errors", func(t *testing.T) {
		require.ErrorIs(t, (&Message{}).DecodeBody(&body), ErrInvalidMessage)
		require.Error(t, (&Message{Body: json.RawMessage(`[]`)}).DecodeBody(&body))
	})
}

func TestWireForm(t *testing.T) {
	t.Run("round trip with extra headers", func(t *testing.T) {
		wire := `{
			"id": "1234567890",
			"typ": "application/didcomm-plain+json",
			"type": "https://didcomm.org/basicmessage/2.0/message",
			"from": "did:example:alice",
			"to": ["did:example:bob"],
			"thid": "t1",
			"created_time": 1516269022,
			"expires_time": 1516385931,
			"body": {"content": "hi"},
			"attachments": [{"id": "a1", "media_type": "application/json", "data": {"json": {"k": "v"}}}],
			"lang": "en",
			"ack": ["x"]
		}`

		var msg Message

		require.NoError(t, json.Unmarshal([]byte(wire), &msg))
		require.Equal(t, "1234567890", msg.ID)
		require.Equal(t, []string{"did:example:bob"}, msg.To)
		require.Equal(t, int64(1516269022), msg.CreatedTime.Unix())
		require.Len(t, msg.Attachments, 1)
		require.JSONEq(t, `"en"`, string(msg.Extra["lang"]))
		require.Len(t, msg.Extra, 2)
		require.NoError(t, msg.Validate())

		out, err := json.Marshal(&msg)
		require.NoError(t, err)
		require.JSONEq(t, wire, string(out))
	})

	t.Run("minimal message", func(t *testing.T) {
		out, err := json.Marshal(&Message{ID: "1", Type: basicMessageType})
		require.NoError(t, err)
		require.JSONEq(t, `{"id":"1","typ":"application/didcomm-plain+json","type":"`+basicMessageType+`","body":{}}`,
			string(out))
	})

	t.Run("extra cannot override known headers", func(t *testing.T) {
		out, err := json.Marshal(&Message{ID: "1", Type: basicMessageType,
			Extra: map[string]json.RawMessage{"id": json.RawMessage(`"2"`)}})
		require.NoError(t, err)

		var msg Message

		require.NoError(t, json.Unmarshal(out, &msg))
		require.Equal(t, "1", msg.ID)
	})

	t.Run("missing id or type", func(t *testing.T) {
		var msg Message

		require.ErrorIs(t, json.Unmarshal([]byte(`{"type":"x","body":{}}`), &msg), ErrInvalidMessage)
		require.ErrorIs(t, json.Unmarshal([]byte(`{"id":"x","body":{}}`), &msg), ErrInvalidMessage)
	})

	t.Run("wrong typ", func(t *testing.T) {
		var msg Message

		err := json.Unmarshal([]byte(`{"id":"1","type":"x","typ":"application/didcomm-signed+json"}`), &msg)
		require.ErrorIs(t, err, ErrInvalidMessage)
	})

	t.Run("not an object", func(t *testing.T) {
		var msg Message

		require.Error(t, json.Unmarshal([]byte(`[1]`), &msg))
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		attachment Attachment
		err        error
	}{
		{
			name:       "base64",
			attachment: Attachment{ID: "1", Data: decorator.AttachmentData{Base64: "aGk="}},
		},
		{
			name:       "links with hash",
			attachment: Attachment{ID: "1", Data: decorator.AttachmentData{Links: []string{"https://a"}, Hash: "h"}},
		},
		{
			name:       "without id",
			attachment: Attachment{Data: decorator.AttachmentData{Base64: "aGk="}},
			err:        ErrMessageAttachmentWithoutID,
		},
		{
			name:       "without data",
			attachment: Attachment{ID: "1"},
			err:        ErrUnknownAttachmentDataType,
		},
		{
			name:       "two kinds of data",
			attachment: Attachment{ID: "1", Data: decorator.AttachmentData{Base64: "aGk=", JSON: map[string]string{}}},
			err:        ErrUnknownAttachmentDataType,
		},
		{
			name:       "links without hash",
			attachment: Attachment{ID: "1", Data: decorator.AttachmentData{Links: []string{"https://a"}}},
			err:        ErrUnknownAttachmentDataType,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := (&Message{ID: "m", Type: "t", Attachments: []Attachment{tc.attachment}}).Validate()
			if tc.err == nil {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, tc.err)
		})
	}
}
