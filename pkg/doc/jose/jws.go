/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package jose

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v3"
)

// ErrJWSVerification is returned when no signature of a JWS verifies.
var ErrJWSVerification = errors.New("jws verification failed")

// PublicKeyLookup returns the verification public key (ed25519.PublicKey or *ecdsa.PublicKey) for a kid.
type PublicKeyLookup func(kid string) (interface{}, error)

type flattenedJWS struct {
	Payload   string          `json:"payload"`
	Protected string          `json:"protected"`
	Header    json.RawMessage `json:"header,omitempty"`
	Signature string          `json:"signature"`
}

type generalJWSSignature struct {
	Protected string           `json:"protected"`
	Header    RecipientHeaders `json:"header"`
	Signature string           `json:"signature"`
}

type generalJWS struct {
	Payload    string                `json:"payload"`
	Signatures []generalJWSSignature `json:"signatures"`
}

// SignJWS signs payload with an Ed25519 (EdDSA) or P-256 (ES256) private key and returns the JWS in general
// JSON serialization with kid set in the protected and the per-signature header.
func SignJWS(payload []byte, typ, kid string, signingKey interface{}) (string, error) {
	alg, err := signatureAlgorithm(signingKey)
	if err != nil {
		return "", err
	}

	opts := (&jose.SignerOptions{}).WithHeader(HeaderKeyID, kid)
	if typ != "" {
		opts = opts.WithType(jose.ContentType(typ))
	}

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: signingKey}, opts)
	if err != nil {
		return "", fmt.Errorf("create jws signer: %w", err)
	}

	obj, err := signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("sign jws: %w", err)
	}

	var flat flattenedJWS

	if err = json.Unmarshal([]byte(obj.FullSerialize()), &flat); err != nil {
		return "", fmt.Errorf("re-serialize jws: %w", err)
	}

	general, err := json.Marshal(generalJWS{
		Payload: flat.Payload,
		Signatures: []generalJWSSignature{{
			Protected: flat.Protected,
			Header:    RecipientHeaders{KID: kid},
			Signature: flat.Signature,
		}},
	})
	if err != nil {
		return "", fmt.Errorf("re-serialize jws: %w", err)
	}

	return string(general), nil
}

// VerifyJWS verifies a JSON serialized JWS and returns its payload and the kid of the verified signature.
func VerifyJWS(serialized string, lookup PublicKeyLookup) ([]byte, string, error) {
	obj, err := jose.ParseSigned(serialized)
	if err != nil {
		return nil, "", fmt.Errorf("parse jws: %w", err)
	}

	var lastErr error

	for _, sig := range obj.Signatures {
		kid := sig.Header.KeyID
		if kid == "" {
			continue
		}

		key, errKey := lookup(kid)
		if errKey != nil {
			lastErr = errKey
			continue
		}

		_, _, payload, errVerify := obj.VerifyMulti(key)
		if errVerify != nil {
			lastErr = errVerify
			continue
		}

		return payload, kid, nil
	}

	if lastErr != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrJWSVerification, lastErr)
	}

	return nil, "", fmt.Errorf("%w: no signature carries a kid", ErrJWSVerification)
}

// JWSType returns the typ header of the first signature without verifying it.
func JWSType(serialized string) (string, error) {
	obj, err := jose.ParseSigned(serialized)
	if err != nil {
		return "", fmt.Errorf("parse jws: %w", err)
	}

	if len(obj.Signatures) == 0 {
		return "", errors.New("jws has no signatures")
	}

	typ, _ := obj.Signatures[0].Protected.ExtraHeaders[jose.HeaderType].(string) //nolint:errcheck

	return typ, nil
}

func signatureAlgorithm(key interface{}) (jose.SignatureAlgorithm, error) {
	switch k := key.(type) {
	case ed25519.PrivateKey:
		return jose.EdDSA, nil
	case *ecdsa.PrivateKey:
		if k.Curve != elliptic.P256() {
			return "", fmt.Errorf("unsupported signing curve %s", k.Curve.Params().Name)
		}

		return jose.ES256, nil
	default:
		return "", fmt.Errorf("unsupported signing key type %T", key)
	}
}
