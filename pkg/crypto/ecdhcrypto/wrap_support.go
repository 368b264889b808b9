/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package ecdhcrypto

import (
	"crypto"
	"crypto/aes"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/binary"
	"fmt"

	josecipher "github.com/go-jose/go-jose/v3/cipher"
	"golang.org/x/crypto/curve25519"

	cryptoapi "github.com/hyperledger/aries-edge-agent-go/spi/crypto"
)

type kwSupport interface {
	generateKey() (*cryptoapi.PrivateKey, error)
	agree(d []byte, pub *cryptoapi.PublicKey) ([]byte, error)
}

type okpKWSupport struct{}

func (o *okpKWSupport) generateKey() (*cryptoapi.PrivateKey, error) {
	d := make([]byte, curve25519.ScalarSize)

	if _, err := rand.Read(d); err != nil {
		return nil, err
	}

	x, err := curve25519.X25519(d, curve25519.Basepoint)
	if err != nil {
		return nil, err
	}

	return &cryptoapi.PrivateKey{
		PublicKey: cryptoapi.PublicKey{X: x, Curve: cryptoapi.X25519, Type: cryptoapi.OKP},
		D:         d,
	}, nil
}

func (o *okpKWSupport) agree(d []byte, pub *cryptoapi.PublicKey) ([]byte, error) {
	if pub.Curve != cryptoapi.X25519 {
		return nil, fmt.Errorf("expected X25519 public key, got %q", pub.Curve)
	}

	// X25519 rejects low order points with an all-zero output.
	return curve25519.X25519(d, pub.X)
}

type ecKWSupport struct{}

func (w *ecKWSupport) generateKey() (*cryptoapi.PrivateKey, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	point := priv.PublicKey().Bytes()
	size := (len(point) - 1) / 2 //nolint:gomnd

	return &cryptoapi.PrivateKey{
		PublicKey: cryptoapi.PublicKey{
			X:     point[1 : 1+size],
			Y:     point[1+size:],
			Curve: cryptoapi.P256,
			Type:  cryptoapi.EC,
		},
		D: priv.Bytes(),
	}, nil
}

func (w *ecKWSupport) agree(d []byte, pub *cryptoapi.PublicKey) ([]byte, error) {
	if pub.Curve != cryptoapi.P256 {
		return nil, fmt.Errorf("expected P-256 public key, got %q", pub.Curve)
	}

	priv, err := ecdh.P256().NewPrivateKey(d)
	if err != nil {
		return nil, err
	}

	point := make([]byte, 0, 1+len(pub.X)+len(pub.Y))
	point = append(point, 4) //nolint:gomnd
	point = append(point, pub.X...)
	point = append(point, pub.Y...)

	ecPub, err := ecdh.P256().NewPublicKey(point)
	if err != nil {
		return nil, err
	}

	return priv.ECDH(ecPub)
}

// kdfWithTag derives a KEK with Concat KDF. For ECDH-1PU the content tag is appended to SuppPubInfo as
// described in https://datatracker.ietf.org/doc/html/draft-madden-jose-ecdh-1pu-04#section-2.3.
func kdfWithTag(kwAlg string, z, apu, apv, tag []byte, useTag bool) []byte {
	const bitsPerByte = 8

	supPubInfo := make([]byte, 4) //nolint:gomnd
	binary.BigEndian.PutUint32(supPubInfo, uint32(kekSize*bitsPerByte))

	if useTag {
		supPubInfo = append(supPubInfo, lengthPrefix(tag)...)
	}

	reader := josecipher.NewConcatKDF(crypto.SHA256, z, lengthPrefix([]byte(kwAlg)),
		lengthPrefix(apu), lengthPrefix(apv), supPubInfo, []byte{})

	kek := make([]byte, kekSize)

	_, _ = reader.Read(kek) //nolint:errcheck // ConcatKDF's Read() never returns an error

	return kek
}

func lengthPrefix(array []byte) []byte {
	const prefixLen = 4

	arrInfo := make([]byte, prefixLen+len(array))
	binary.BigEndian.PutUint32(arrInfo, uint32(len(array)))
	copy(arrInfo[prefixLen:], array)

	return arrInfo
}

func keyWrap(kek, cek []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("create kek cipher: %w", err)
	}

	return josecipher.KeyWrap(block, cek)
}

func keyUnwrap(kek, encryptedCEK []byte) ([]byte, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("create kek cipher: %w", err)
	}

	return josecipher.KeyUnwrap(block, encryptedCEK)
}
