/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package fingerprint encodes raw public keys as multibase(base58btc, multicodec || key) strings
// and back.
package fingerprint

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcutil/base58"
	"github.com/multiformats/go-multibase"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/jose/jwk"
)

// Public key codes in the multicodec table (https://github.com/multiformats/multicodec/blob/master/table.csv).
const (
	Secp256k1PubKeyMultiCodec = 0xe7
	X25519PubKeyMultiCodec    = 0xec
	ED25519PubKeyMultiCodec   = 0xed
	P256PubKeyMultiCodec      = 0x1200

	maxMulticodecBytes = 9
)

// ErrUnsupportedMulticodec is returned for multicodec prefixes that are not a supported key type.
var ErrUnsupportedMulticodec = errors.New("unsupported multicodec")

// ErrUnknownKeyEncoding is returned when the string is not a base58btc multibase value.
var ErrUnknownKeyEncoding = errors.New("unknown key encoding")

// KeyFingerprint generates a multicodec fingerprint for the raw public key value.
func KeyFingerprint(code uint64, pubKeyValue []byte) string {
	mc := multicodec(code)
	buf := make([]byte, len(mc)+len(pubKeyValue))
	copy(buf, mc)
	copy(buf[len(mc):], pubKeyValue)

	return "z" + base58.Encode(buf)
}

func multicodec(code uint64) []byte {
	buf := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(buf, code)

	return buf[:n]
}

// PubKeyFromFingerprint extracts the raw public key and its multicodec from a fingerprint.
func PubKeyFromFingerprint(fingerprint string) ([]byte, uint64, error) {
	enc, mc, err := multibase.Decode(fingerprint)
	if err != nil || enc != multibase.Base58BTC {
		return nil, 0, ErrUnknownKeyEncoding
	}

	code, n := binary.Uvarint(mc)
	if n <= 0 {
		return nil, 0, ErrUnknownKeyEncoding
	}

	if n > maxMulticodecBytes {
		return nil, 0, errors.New("code exceeds maximum size")
	}

	return mc[n:], code, nil
}

// JWKFromFingerprint decodes a fingerprint into a public JWK.
func JWKFromFingerprint(fingerprint string) (*jwk.JWK, error) {
	raw, code, err := PubKeyFromFingerprint(fingerprint)
	if err != nil {
		return nil, err
	}

	return JWKFromCode(code, raw)
}

// JWKFromCode builds a public JWK from a multicodec code and raw key bytes.
func JWKFromCode(code uint64, raw []byte) (*jwk.JWK, error) {
	switch code {
	case ED25519PubKeyMultiCodec:
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("invalid ed25519 key length %d", len(raw))
		}

		return jwk.New(ed25519.PublicKey(raw))
	case X25519PubKeyMultiCodec:
		pub, err := ecdh.X25519().NewPublicKey(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid x25519 key: %w", err)
		}

		return jwk.New(pub)
	case P256PubKeyMultiCodec:
		x, y := elliptic.UnmarshalCompressed(elliptic.P256(), raw)
		if x == nil {
			return nil, errors.New("invalid compressed P-256 key")
		}

		return jwk.New(&ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y})
	case Secp256k1PubKeyMultiCodec:
		pub, err := btcec.ParsePubKey(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid secp256k1 key: %w", err)
		}

		return jwk.New(pub.ToECDSA())
	default:
		return nil, fmt.Errorf("%w: 0x%x", ErrUnsupportedMulticodec, code)
	}
}

// FingerprintFromJWK is the inverse of JWKFromFingerprint. EC keys are encoded compressed.
func FingerprintFromJWK(j *jwk.JWK) (string, error) {
	switch k := j.Public().Key.(type) {
	case ed25519.PublicKey:
		return KeyFingerprint(ED25519PubKeyMultiCodec, k), nil
	case *ecdh.PublicKey:
		return KeyFingerprint(X25519PubKeyMultiCodec, k.Bytes()), nil
	case *ecdsa.PublicKey:
		switch j.Crv {
		case jwk.P256:
			return KeyFingerprint(P256PubKeyMultiCodec, elliptic.MarshalCompressed(k.Curve, k.X, k.Y)), nil
		case jwk.Secp256k1:
			return KeyFingerprint(Secp256k1PubKeyMultiCodec, compressSecp256k1(k)), nil
		}
	}

	return "", fmt.Errorf("%w: %s/%s", ErrUnsupportedMulticodec, j.Kty, j.Crv)
}

func compressSecp256k1(k *ecdsa.PublicKey) []byte {
	var x, y btcec.FieldVal

	x.SetByteSlice(k.X.Bytes())
	y.SetByteSlice(k.Y.Bytes())

	return btcec.NewPublicKey(&x, &y).SerializeCompressed()
}
