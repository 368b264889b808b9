/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package did

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("valid dids", func(t *testing.T) {
		tests := []struct {
			did      string
			method   string
			specific string
		}{
			{"did:example:123456789abcdefghi", "example", "123456789abcdefghi"},
			{"did:peer:2.Ez6LSbysY2xFMRpGMhb7tFTLMpeuPRaqaWM1yECx2AtzE3KCc", "peer",
				"2.Ez6LSbysY2xFMRpGMhb7tFTLMpeuPRaqaWM1yECx2AtzE3KCc"},
			{"did:prism:abc:def", "prism", "abc:def"},
			{"did:web:example.com%3A8443", "web", "example.com%3A8443"},
			{"did:prism01:b2.-_%11:b4._-%11", "prism01", "b2.-_%11:b4._-%11"},
		}

		for _, tc := range tests {
			d, err := Parse(tc.did)
			require.NoError(t, err, tc.did)
			require.Equal(t, Scheme, d.Scheme)
			require.Equal(t, tc.method, d.Method)
			require.Equal(t, tc.specific, d.MethodSpecificID)
			require.Equal(t, tc.did, d.String())
		}
	})

	t.Run("invalid dids", func(t *testing.T) {
		for _, s := range []string{
			"",
			"did",
			"did:",
			"did:example",
			"did:example:",
			"did:Example:123",
			"did:example:abc:",
			"did:prism:aaaa::",
			"did::prism:aaa:aaa",
			"did:prism::bbbb",
			"did:prism:aaaa::bbbb",
			"did:example::tail",
			"DID:example:123",
			"did:example:12 3",
			"did:example:%zz",
			"urn:example:123",
		} {
			_, err := Parse(s)
			require.ErrorIs(t, err, ErrInvalidDIDSyntax, s)
		}
	})
}

func TestParseDIDURL(t *testing.T) {
	t.Run("bare did", func(t *testing.T) {
		u, err := ParseDIDURL("did:example:123")
		require.NoError(t, err)
		require.Equal(t, "example", u.Method)
		require.Empty(t, u.Path)
		require.Empty(t, u.Queries)
		require.Empty(t, u.Fragment)
		require.Equal(t, "did:example:123", u.String())
	})

	t.Run("path query and fragment", func(t *testing.T) {
		u, err := ParseDIDURL("did:example:123/some/path?service=agent&relativeRef=/x#key-1")
		require.NoError(t, err)
		require.Equal(t, "123", u.MethodSpecificID)
		require.Equal(t, "/some/path", u.Path)
		require.Equal(t, []string{"agent"}, u.Queries["service"])
		require.Equal(t, []string{"/x"}, u.Queries["relativeRef"])
		require.Equal(t, "key-1", u.Fragment)
	})

	t.Run("fragment only", func(t *testing.T) {
		u, err := ParseDIDURL("did:peer:2.abc#6LSbys")
		require.NoError(t, err)
		require.Equal(t, "6LSbys", u.Fragment)
		require.Equal(t, "did:peer:2.abc#6LSbys", u.String())
	})

	t.Run("render queries in key order", func(t *testing.T) {
		u, err := ParseDIDURL("did:example:123?b=2&a=1")
		require.NoError(t, err)
		require.Equal(t, "did:example:123?a=1&b=2", u.String())
	})

	t.Run("invalid did part", func(t *testing.T) {
		_, err := ParseDIDURL("did:Example:123#key")
		require.ErrorIs(t, err, ErrInvalidDIDSyntax)
	})

	t.Run("invalid fragment", func(t *testing.T) {
		_, err := ParseDIDURL("did:example:123#a b")
		require.ErrorIs(t, err, ErrInvalidDIDSyntax)
	})

	t.Run("invalid query", func(t *testing.T) {
		_, err := ParseDIDURL("did:example:123?a=%zz")
		require.ErrorIs(t, err, ErrInvalidDIDSyntax)
	})

	t.Run("invalid path", func(t *testing.T) {
		_, err := ParseDIDURL("did:example:123/a b")
		require.ErrorIs(t, err, ErrInvalidDIDSyntax)
	})
}

func TestReferences(t *testing.T) {
	require.Equal(t, "did:example:1#key-1", ResolveReference("did:example:1", "#key-1"))
	require.Equal(t, "did:example:1?service=a", ResolveReference("did:example:1", "?service=a"))
	require.Equal(t, "did:example:2#k", ResolveReference("did:example:1", "did:example:2#k"))

	require.Equal(t, "did:example:1", DIDFromReference("did:example:1#key-1"))
	require.Equal(t, "did:example:1", DIDFromReference("did:example:1/path"))
	require.Equal(t, "did:example:1", DIDFromReference("did:example:1"))
}

const validDoc = `{
  "@context": ["https://www.w3.org/ns/did/v1"],
  "id": "did:example:123",
  "verificationMethod": [
    {
      "id": "#key-1",
      "type": "JsonWebKey2020",
      "publicKeyJwk": {"kty": "OKP", "crv": "Ed25519", "x": "11qYAYKxCrfVS_7TyWQHOg7hcvPapiMlrwIaaPcHURo"}
    },
    {
      "id": "did:example:123#key-2",
      "type": "X25519KeyAgreementKey2020",
      "controller": "did:example:controller",
      "publicKeyMultibase": "z6LSbysY2xFMRpGMhb7tFTLMpeuPRaqaWM1yECx2AtzE3KCc"
    }
  ],
  "authentication": ["#key-1"],
  "keyAgreement": [
    "did:example:123#key-2",
    {
      "id": "#key-3",
      "type": "JsonWebKey2020",
      "publicKeyJwk": {"kty": "OKP", "crv": "X25519", "x": "avH0O2Y4tqLAq8y9zpianr8ajii5m4F_mICrzNlatXs"}
    }
  ],
  "service": [
    {
      "id": "#didcomm",
      "type": "DIDCommMessaging",
      "serviceEndpoint": {"uri": "https://agent.example.com", "accept": ["didcomm/v2"], "routingKeys": ["did:example:mediator"]}
    },
    {
      "id": "#linked",
      "type": "LinkedDomains",
      "serviceEndpoint": "https://example.com"
    },
    {
      "id": "#multi",
      "type": ["DIDCommMessaging", "Other"],
      "serviceEndpoint": [{"uri": "https://a.example.com"}, "wss://b.example.com"]
    }
  ]
}`

func TestParseDocument(t *testing.T) {
	t.Run("valid document", func(t *testing.T) {
		doc, err := ParseDocument([]byte(validDoc))
		require.NoError(t, err)
		require.Equal(t, []string{ContextV1}, doc.Context)
		require.Equal(t, "did:example:123", doc.ID)

		require.Len(t, doc.VerificationMethod, 2)
		require.Equal(t, "did:example:123#key-1", doc.VerificationMethod[0].ID)
		require.Equal(t, "did:example:123", doc.VerificationMethod[0].Controller)
		require.NotNil(t, doc.VerificationMethod[0].JSONWebKey)
		require.Equal(t, "did:example:controller", doc.VerificationMethod[1].Controller)
		require.Equal(t, "key-2", doc.VerificationMethod[1].Fragment())

		require.Len(t, doc.Authentication, 1)
		require.False(t, doc.Authentication[0].Embedded)
		require.Equal(t, "did:example:123#key-1", doc.Authentication[0].VerificationMethod.ID)

		require.Len(t, doc.KeyAgreement, 2)
		require.True(t, doc.KeyAgreement[1].Embedded)
		require.Equal(t, "did:example:123#key-3", doc.KeyAgreement[1].VerificationMethod.ID)

		require.NoError(t, doc.Validate())

		ka, err := doc.KeyAgreementMethods()
		require.NoError(t, err)
		require.Len(t, ka, 2)

		for _, vm := range ka {
			j, errJWK := vm.JWK()
			require.NoError(t, errJWK)
			require.Equal(t, "X25519", j.Crv)
		}

		auth, err := doc.AuthenticationMethods()
		require.NoError(t, err)
		require.Len(t, auth, 1)
		require.Equal(t, "Ed25519", auth[0].JSONWebKey.Crv)

		require.Len(t, doc.Service, 3)
		require.Equal(t, "did:example:123#didcomm", doc.Service[0].ID)
		require.Equal(t, []string{"did:example:mediator"}, doc.Service[0].ServiceEndpoint[0].RoutingKeys)
		require.Equal(t, "https://example.com", doc.Service[1].ServiceEndpoint[0].URI)
		require.Len(t, doc.Service[2].ServiceEndpoint, 2)
		require.Equal(t, "wss://b.example.com", doc.Service[2].ServiceEndpoint[1].URI)

		didcomm := doc.DIDCommServices()
		require.Len(t, didcomm, 2)
		require.Equal(t, "did:example:123#multi", didcomm[1].ID)
	})

	t.Run("round trip through JSONBytes", func(t *testing.T) {
		doc, err := ParseDocument([]byte(validDoc))
		require.NoError(t, err)

		raw, err := doc.JSONBytes()
		require.NoError(t, err)

		again, err := ParseDocument(raw)
		require.NoError(t, err)
		require.Equal(t, doc.ID, again.ID)
		require.Len(t, again.VerificationMethod, 2)
		require.Len(t, again.KeyAgreement, 2)
		require.True(t, again.KeyAgreement[1].Embedded)
		require.Equal(t, doc.Service, again.Service)
	})

	t.Run("string context", func(t *testing.T) {
		doc, err := ParseDocument([]byte(`{"@context":"https://www.w3.org/ns/did/v1","id":"did:example:1"}`))
		require.NoError(t, err)
		require.Equal(t, []string{ContextV1}, doc.Context)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name string
			doc  string
			err  string
		}{
			{"not json", `{`, "JSON marshalling"},
			{"null", `null`, "not provided"},
			{"bad id", `{"id":"not-a-did"}`, "invalid document id"},
			{"no key material", `{"id":"did:example:1","verificationMethod":[{"id":"#k","type":"X"}]}`,
				"no supported key material"},
			{"bad jwk", `{"id":"did:example:1","verificationMethod":[{"id":"#k","publicKeyJwk":{"kty":"OKP","crv":"X25519","x":"!"}}]}`,
				"unable to read JWK"},
			{"bad relationship", `{"id":"did:example:1","authentication":[1]}`, "verification relationship"},
			{"bad endpoint", `{"id":"did:example:1","service":[{"id":"#s","type":"T","serviceEndpoint":1}]}`,
				"unsupported serviceEndpoint"},
		}

		for _, tc := range tests {
			t.Run(tc.name, func(t *testing.T) {
				_, err := ParseDocument([]byte(tc.doc))
				require.ErrorContains(t, err, tc.err)
			})
		}
	})
}

func TestDoc_Dereference(t *testing.T) {
	vm := VerificationMethod{ID: "did:example:1#key-1", PublicKeyMultibase: "z6MkhaXgBZDvotDkL5257faiztiGiC2QtKLGpbnnEGta2doK"}

	doc := BuildDoc("did:example:1",
		WithVerificationMethod([]VerificationMethod{vm}),
		WithAuthentication([]Verification{NewReferencedVerification(&vm)}),
		WithAssertionMethod([]Verification{NewReferencedVerification(&vm)}),
		WithCapabilityInvocation(nil),
		WithCapabilityDelegation(nil),
		WithKeyAgreement([]Verification{{VerificationMethod: VerificationMethod{ID: "#missing"}}}),
		WithService([]Service{{ID: "#s", Type: []string{"LinkedDomains"}}}),
	)

	require.Equal(t, []string{ContextV1}, doc.Context)
	require.Empty(t, doc.DIDCommServices())

	found, ok := doc.VerificationMethodByID("#key-1")
	require.True(t, ok)
	require.Equal(t, vm.ID, found.ID)

	j, err := found.JWK()
	require.NoError(t, err)
	require.Equal(t, "Ed25519", j.Crv)

	_, err = doc.KeyAgreementMethods()
	require.True(t, errors.Is(err, ErrVerificationMethodNotFound))
	require.ErrorIs(t, doc.Validate(), ErrVerificationMethodNotFound)

	_, err = (&VerificationMethod{ID: "did:example:1#empty"}).JWK()
	require.ErrorContains(t, err, "no key material")
	require.Empty(t, (&VerificationMethod{ID: "did:example:1"}).Fragment())
}
