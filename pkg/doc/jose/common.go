/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package jose holds the JWE and JWS structures used by DIDComm envelopes.
package jose

import (
	"encoding/base64"
	"encoding/json"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/jose/jwk"
)

// IANA registered JOSE headers (https://tools.ietf.org/html/rfc7515#section-4.1)
const (
	// HeaderAlgorithm identifies:
	// For JWS: the cryptographic algorithm used to secure the JWS.
	// For JWE: the cryptographic algorithm used to encrypt or determine the value of the CEK.
	HeaderAlgorithm = "alg" // string

	// HeaderEncryption identifies the JWE content encryption algorithm.
	HeaderEncryption = "enc" // string

	// HeaderKeyID is a hint:
	// For JWS: indicating which key was used to secure the JWS.
	// For JWE: which references the public key to which the JWE was encrypted.
	HeaderKeyID = "kid" // string

	// HeaderSenderKeyID references the (sender) public key used in the JWE key derivation/wrapping to
	// encrypt the CEK.
	HeaderSenderKeyID = "skid" // string

	// HeaderType declares the media type of the complete JWS or JWE.
	HeaderType = "typ" // string

	// HeaderContentType declares the media type of the secured content.
	HeaderContentType = "cty" // string

	// HeaderEPK is the ephemeral public key used to wrap/unwrap the CEK.
	HeaderEPK = "epk" // JSON

	// HeaderAPU is the base64url agreement PartyUInfo.
	HeaderAPU = "apu" // string

	// HeaderAPV is the base64url agreement PartyVInfo.
	HeaderAPV = "apv" // string
)

// Headers represents JOSE headers.
type Headers map[string]interface{}

// KeyID gets Key ID from JOSE headers.
func (h Headers) KeyID() (string, bool) {
	return h.stringValue(HeaderKeyID)
}

// SenderKeyID gets the sender Key ID from Jose headers.
func (h Headers) SenderKeyID() (string, bool) {
	return h.stringValue(HeaderSenderKeyID)
}

// Algorithm gets Algorithm from JOSE headers.
func (h Headers) Algorithm() (string, bool) {
	return h.stringValue(HeaderAlgorithm)
}

// Encryption gets content encryption algorithm from JOSE headers.
func (h Headers) Encryption() (string, bool) {
	return h.stringValue(HeaderEncryption)
}

// Type gets content encryption type from JOSE headers.
func (h Headers) Type() (string, bool) {
	return h.stringValue(HeaderType)
}

// ContentType gets the payload content type from JOSE headers.
func (h Headers) ContentType() (string, bool) {
	return h.stringValue(HeaderContentType)
}

// APU gets the decoded agreement PartyUInfo.
func (h Headers) APU() ([]byte, bool) {
	return h.bytesValue(HeaderAPU)
}

// APV gets the decoded agreement PartyVInfo.
func (h Headers) APV() ([]byte, bool) {
	return h.bytesValue(HeaderAPV)
}

func (h Headers) stringValue(key string) (string, bool) {
	raw, ok := h[key]
	if !ok {
		return "", false
	}

	str, ok := raw.(string)

	return str, ok
}

func (h Headers) bytesValue(key string) ([]byte, bool) {
	str, ok := h.stringValue(key)
	if !ok {
		return nil, false
	}

	b, err := base64.RawURLEncoding.DecodeString(str)
	if err != nil {
		return nil, false
	}

	return b, true
}

// EPK gets the ephemeral public key from JOSE headers.
func (h Headers) EPK() (*jwk.JWK, bool) {
	jwkRaw, ok := h[HeaderEPK]
	if !ok {
		return nil, false
	}

	var jwkKey jwk.JWK

	err := convertMapToValue(jwkRaw, &jwkKey)
	if err != nil {
		return nil, false
	}

	return &jwkKey, true
}

func convertMapToValue(vOriginToConvert, vDest interface{}) error {
	if raw, ok := vOriginToConvert.(json.RawMessage); ok {
		return json.Unmarshal(raw, vDest)
	}

	vBytes, err := json.Marshal(vOriginToConvert)
	if err != nil {
		return err
	}

	return json.Unmarshal(vBytes, vDest)
}
