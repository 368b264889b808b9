/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package jose

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyJWS(t *testing.T) {
	payload := []byte(`{"id":"1234"}`)
	typ := "application/didcomm-signed+json"

	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	ecPriv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tests := []struct {
		name string
		priv interface{}
		pub  interface{}
	}{
		{name: "EdDSA", priv: edPriv, pub: edPub},
		{name: "ES256", priv: ecPriv, pub: &ecPriv.PublicKey},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			kid := "did:example:alice#key-1"

			jws, err := SignJWS(payload, typ, kid, tc.priv)
			require.NoError(t, err)

			var general generalJWS
			require.NoError(t, json.Unmarshal([]byte(jws), &general))
			require.Len(t, general.Signatures, 1)
			require.Equal(t, kid, general.Signatures[0].Header.KID)

			gotTyp, err := JWSType(jws)
			require.NoError(t, err)
			require.Equal(t, typ, gotTyp)

			got, gotKID, err := VerifyJWS(jws, func(k string) (interface{}, error) {
				require.Equal(t, kid, k)

				return tc.pub, nil
			})
			require.NoError(t, err)
			require.Equal(t, payload, got)
			require.Equal(t, kid, gotKID)
		})
	}

	t.Run("wrong key", func(t *testing.T) {
		jws, err := SignJWS(payload, typ, "did:example:alice#key-1", edPriv)
		require.NoError(t, err)

		otherPub, _, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)

		_, _, err = VerifyJWS(jws, func(string) (interface{}, error) { return otherPub, nil })
		require.ErrorIs(t, err, ErrJWSVerification)

		_, _, err = VerifyJWS(jws, func(string) (interface{}, error) { return nil, errors.New("not found") })
		require.ErrorIs(t, err, ErrJWSVerification)
		require.Contains(t, err.Error(), "not found")
	})

	t.Run("unsupported key", func(t *testing.T) {
		p384, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
		require.NoError(t, err)

		_, err = SignJWS(payload, typ, "kid", p384)
		require.EqualError(t, err, "unsupported signing curve P-384")

		_, err = SignJWS(payload, typ, "kid", "key")
		require.EqualError(t, err, "unsupported signing key type string")
	})
}
