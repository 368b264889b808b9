/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package jwksupport converts between JWKs and the key agreement keys of the crypto SPI.
package jwksupport

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
	"math/big"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/jose/jwk"
	cryptoapi "github.com/hyperledger/aries-edge-agent-go/spi/crypto"
)

const coordSize = 32

// PublicKeyFromJWK converts a key agreement JWK (X25519 or P-256) to a crypto public key.
func PublicKeyFromJWK(j *jwk.JWK, kid string) (*cryptoapi.PublicKey, error) {
	switch k := j.Public().Key.(type) {
	case *ecdh.PublicKey:
		return &cryptoapi.PublicKey{KID: kid, X: k.Bytes(), Curve: cryptoapi.X25519, Type: cryptoapi.OKP}, nil
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return nil, fmt.Errorf("%w: %s is not a key agreement curve", jwk.ErrUnsupportedKey, j.Crv)
		}

		return &cryptoapi.PublicKey{
			KID:   kid,
			X:     pad(k.X.Bytes()),
			Y:     pad(k.Y.Bytes()),
			Curve: cryptoapi.P256,
			Type:  cryptoapi.EC,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %T is not a key agreement key", jwk.ErrUnsupportedKey, j.Key)
	}
}

// PrivateKeyFromJWK converts a private key agreement JWK to a crypto private key.
func PrivateKeyFromJWK(j *jwk.JWK, kid string) (*cryptoapi.PrivateKey, error) {
	pub, err := PublicKeyFromJWK(j, kid)
	if err != nil {
		return nil, err
	}

	switch k := j.Key.(type) {
	case *ecdh.PrivateKey:
		return &cryptoapi.PrivateKey{PublicKey: *pub, D: k.Bytes()}, nil
	case *ecdsa.PrivateKey:
		return &cryptoapi.PrivateKey{PublicKey: *pub, D: pad(k.D.Bytes())}, nil
	default:
		return nil, fmt.Errorf("%w: JWK %s has no private part", jwk.ErrUnsupportedKey, kid)
	}
}

// JWKFromPublicKey converts a crypto public key (as found in an epk header) to a JWK.
func JWKFromPublicKey(pub *cryptoapi.PublicKey) (*jwk.JWK, error) {
	switch pub.Curve {
	case cryptoapi.X25519:
		k, err := ecdh.X25519().NewPublicKey(pub.X)
		if err != nil {
			return nil, fmt.Errorf("jwk from X25519 key: %w", err)
		}

		return jwk.New(k)
	case cryptoapi.P256:
		k := &ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(pub.X),
			Y:     new(big.Int).SetBytes(pub.Y),
		}

		if !k.Curve.IsOnCurve(k.X, k.Y) {
			return nil, fmt.Errorf("jwk from P-256 key: point not on curve")
		}

		return jwk.New(k)
	default:
		return nil, fmt.Errorf("%w: curve %q", jwk.ErrUnsupportedKey, pub.Curve)
	}
}

func pad(b []byte) []byte {
	if len(b) >= coordSize {
		return b
	}

	out := make([]byte, coordSize)
	copy(out[coordSize-len(b):], b)

	return out
}
