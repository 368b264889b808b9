/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package jwk extends go-jose's JSONWebKey with the curves DIDComm needs but go-jose lacks:
// OKP X25519 for key agreement and EC secp256k1 for ledger-anchored DIDs.
package jwk

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/go-jose/go-jose/v3"
)

// Key types and curve names.
const (
	OKP       = "OKP"
	EC        = "EC"
	X25519    = "X25519"
	Ed25519   = "Ed25519"
	P256      = "P-256"
	Secp256k1 = "secp256k1"

	coordSize = 32
)

// ErrUnsupportedKey is returned for key types a JWK cannot carry.
var ErrUnsupportedKey = errors.New("jwk: unsupported key type")

// JWK (JSON Web Key) is a JSON data structure that represents a cryptographic key.
type JWK struct {
	jose.JSONWebKey

	Kty string
	Crv string
}

type rawJWK struct {
	Use string `json:"use,omitempty"`
	Kty string `json:"kty,omitempty"`
	Kid string `json:"kid,omitempty"`
	Crv string `json:"crv,omitempty"`
	Alg string `json:"alg,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	D   string `json:"d,omitempty"`
}

// New creates a JWK around an opaque key: ed25519 keys, *ecdsa keys on P-256 or secp256k1,
// or *ecdh X25519 keys.
func New(key interface{}) (*JWK, error) {
	j := &JWK{JSONWebKey: jose.JSONWebKey{Key: key}}

	switch k := key.(type) {
	case ed25519.PublicKey, ed25519.PrivateKey:
		j.Kty, j.Crv = OKP, Ed25519
	case *ecdh.PublicKey:
		if k.Curve() != ecdh.X25519() {
			return nil, fmt.Errorf("%w: ecdh curve %v", ErrUnsupportedKey, k.Curve())
		}

		j.Kty, j.Crv = OKP, X25519
	case *ecdh.PrivateKey:
		if k.Curve() != ecdh.X25519() {
			return nil, fmt.Errorf("%w: ecdh curve %v", ErrUnsupportedKey, k.Curve())
		}

		j.Kty, j.Crv = OKP, X25519
	case *ecdsa.PublicKey:
		crv, err := curveName(k.Curve)
		if err != nil {
			return nil, err
		}

		j.Kty, j.Crv = EC, crv
	case *ecdsa.PrivateKey:
		crv, err := curveName(k.Curve)
		if err != nil {
			return nil, err
		}

		j.Kty, j.Crv = EC, crv
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}

	return j, nil
}

func curveName(c elliptic.Curve) (string, error) {
	switch {
	case c == elliptic.P256():
		return P256, nil
	case c == btcec.S256():
		return Secp256k1, nil
	default:
		return "", fmt.Errorf("%w: curve %s", ErrUnsupportedKey, c.Params().Name)
	}
}

// IsPrivate reports whether the JWK carries private key material.
func (j *JWK) IsPrivate() bool {
	switch j.Key.(type) {
	case ed25519.PrivateKey, *ecdh.PrivateKey, *ecdsa.PrivateKey:
		return true
	default:
		return false
	}
}

// Public returns the public part of the JWK.
func (j *JWK) Public() *JWK {
	pub := &JWK{Kty: j.Kty, Crv: j.Crv, JSONWebKey: j.JSONWebKey}

	switch k := j.Key.(type) {
	case ed25519.PrivateKey:
		pub.Key = k.Public()
	case *ecdh.PrivateKey:
		pub.Key = k.PublicKey()
	case *ecdsa.PrivateKey:
		pub.Key = &k.PublicKey
	}

	return pub
}

// PublicKeyBytes returns the raw public key: the key bytes for OKP keys and the uncompressed
// point (0x04 || X || Y) for EC keys.
func (j *JWK) PublicKeyBytes() ([]byte, error) {
	switch k := j.Public().Key.(type) {
	case ed25519.PublicKey:
		return []byte(k), nil
	case *ecdh.PublicKey:
		return k.Bytes(), nil
	case *ecdsa.PublicKey:
		out := make([]byte, 0, 1+2*coordSize)
		out = append(out, 4) //nolint:gomnd
		out = append(out, padded(k.X)...)

		return append(out, padded(k.Y)...), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, j.Key)
	}
}

// MarshalJSON marshals the JWK; X25519 and secp256k1 keys are handled here, the rest by go-jose.
func (j *JWK) MarshalJSON() ([]byte, error) {
	raw := rawJWK{Kid: j.KeyID, Use: j.Use, Alg: j.Algorithm, Kty: j.Kty, Crv: j.Crv}

	switch k := j.Key.(type) {
	case *ecdh.PublicKey:
		raw.X = encode(k.Bytes())
	case *ecdh.PrivateKey:
		raw.X = encode(k.PublicKey().Bytes())
		raw.D = encode(k.Bytes())
	case *ecdsa.PublicKey:
		if j.Crv != Secp256k1 {
			return j.JSONWebKey.MarshalJSON()
		}

		raw.X, raw.Y = encode(padded(k.X)), encode(padded(k.Y))
	case *ecdsa.PrivateKey:
		if j.Crv != Secp256k1 {
			return j.JSONWebKey.MarshalJSON()
		}

		raw.X, raw.Y = encode(padded(k.X)), encode(padded(k.Y))
		raw.D = encode(padded(k.D))
	default:
		return j.JSONWebKey.MarshalJSON()
	}

	return json.Marshal(raw)
}

// UnmarshalJSON reads a JWK from its JSON representation.
func (j *JWK) UnmarshalJSON(data []byte) error {
	var raw rawJWK

	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unable to read JWK: %w", err)
	}

	var err error

	switch {
	case raw.Kty == OKP && raw.Crv == X25519:
		err = j.unmarshalX25519(&raw)
	case raw.Kty == EC && raw.Crv == Secp256k1:
		err = j.unmarshalSecp256k1(&raw)
	default:
		err = j.JSONWebKey.UnmarshalJSON(data)
	}

	if err != nil {
		return fmt.Errorf("unable to read JWK: %w", err)
	}

	j.Kty, j.Crv = raw.Kty, raw.Crv
	j.KeyID, j.Use, j.Algorithm = raw.Kid, raw.Use, raw.Alg

	return nil
}

func (j *JWK) unmarshalX25519(raw *rawJWK) error {
	if raw.D != "" {
		d, err := decode(raw.D)
		if err != nil {
			return err
		}

		priv, err := ecdh.X25519().NewPrivateKey(d)
		if err != nil {
			return err
		}

		j.Key = priv

		return nil
	}

	x, err := decode(raw.X)
	if err != nil {
		return err
	}

	pub, err := ecdh.X25519().NewPublicKey(x)
	if err != nil {
		return err
	}

	j.Key = pub

	return nil
}

func (j *JWK) unmarshalSecp256k1(raw *rawJWK) error {
	x, err := decode(raw.X)
	if err != nil {
		return err
	}

	y, err := decode(raw.Y)
	if err != nil {
		return err
	}

	point := append(append([]byte{4}, leftPad(x)...), leftPad(y)...) //nolint:gomnd

	pub, err := btcec.ParsePubKey(point)
	if err != nil {
		return fmt.Errorf("invalid secp256k1 point: %w", err)
	}

	ecPub := pub.ToECDSA()

	if raw.D == "" {
		j.Key = ecPub

		return nil
	}

	d, err := decode(raw.D)
	if err != nil {
		return err
	}

	j.Key = &ecdsa.PrivateKey{PublicKey: *ecPub, D: new(big.Int).SetBytes(d)}

	return nil
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

func padded(i *big.Int) []byte {
	return leftPad(i.Bytes())
}

func leftPad(b []byte) []byte {
	if len(b) >= coordSize {
		return b
	}

	out := make([]byte, coordSize)
	copy(out[coordSize-len(b):], b)

	return out
}
