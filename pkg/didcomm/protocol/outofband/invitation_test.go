/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package outofband

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

const inviter = "did:peer:2.Ez6LSinviter"

func TestInvitationURL(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		inv := NewInvitation(inviter, WithGoal("connect", "prism/connect"), WithAccept("didcomm/v2", "didcomm/aip2;env=rfc587"))

		u, err := CreateInvitationURL("https://agent.example.com/invite?lang=en", inv)
		require.NoError(t, err)
		require.Contains(t, u, "lang=en")
		require.Contains(t, u, URLParam+"=")

		parsed, err := ParseInvitationURL(u)
		require.NoError(t, err)
		require.Equal(t, inv, parsed)
	})

	t.Run("defaults", func(t *testing.T) {
		inv := NewInvitation(inviter)
		require.NotEmpty(t, inv.ID)
		require.Equal(t, InvitationMsgType, inv.Type)
		require.Equal(t, []string{"didcomm/v2"}, inv.Body.Accept)
	})

	t.Run("padded encoding is accepted", func(t *testing.T) {
		raw := `{"id":"1","type":"` + InvitationMsgType + `","from":"` + inviter + `","body":{"goal_code":"x"}}`

		inv, err := ParseInvitationURL("https://a.example?_oob=" + base64.URLEncoding.EncodeToString([]byte(raw)))
		require.NoError(t, err)
		require.Equal(t, "1", inv.ID)
		require.Equal(t, "x", inv.Body.GoalCode)
	})

	errCases := []struct {
		name   string
		url    string
		expect error
	}{
		{name: "unparsable url", url: "https://a.example/%zz?_oob=e30", expect: ErrInvalidURL},
		{name: "missing parameter", url: "https://a.example?x=1", expect: ErrInvalidURL},
		{name: "not base64", url: "https://a.example?_oob=***", expect: ErrInvalidURL},
		{name: "not json", url: "https://a.example?_oob=" + base64.RawURLEncoding.EncodeToString([]byte("nope")), expect: ErrInvalidURL},
		{
			name:   "wrong type",
			url:    "https://a.example?_oob=" + base64.RawURLEncoding.EncodeToString([]byte(`{"id":"1","type":"https://didcomm.org/out-of-band/1.1/invitation","from":"did:x:y"}`)),
			expect: ErrUnknownInvitationType,
		},
		{
			name:   "missing from",
			url:    "https://a.example?_oob=" + base64.RawURLEncoding.EncodeToString([]byte(`{"id":"1","type":"`+InvitationMsgType+`"}`)),
			expect: ErrInvalidURL,
		},
	}

	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseInvitationURL(tc.url)
			require.ErrorIs(t, err, tc.expect)
		})
	}

	t.Run("invalid base url", func(t *testing.T) {
		_, err := CreateInvitationURL("://bad", NewInvitation(inviter))
		require.ErrorIs(t, err, ErrInvalidURL)
	})
}
