/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package ecdhcrypto implements the crypto SPI with ECDH-ES/ECDH-1PU key wrapping over X25519 and P-256
// and AEAD content encryption (A256GCM, XC20P, A256CBC-HS512).
package ecdhcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	josecipher "github.com/go-jose/go-jose/v3/cipher"
	"golang.org/x/crypto/chacha20poly1305"

	cryptoapi "github.com/hyperledger/aries-edge-agent-go/spi/crypto"
)

const (
	aes256KeySize    = 32
	cbcHMACKeySize   = 64
	kekSize          = aes256KeySize
	supportedKWCount = 2
)

var errUnsupportedEnc = errors.New("unsupported content encryption algorithm")

// Crypto is the default implementation of the crypto SPI.
type Crypto struct {
	kw map[string]kwSupport
}

// New creates a Crypto.
func New() *Crypto {
	kw := make(map[string]kwSupport, supportedKWCount)
	kw[cryptoapi.X25519] = &okpKWSupport{}
	kw[cryptoapi.P256] = &ecKWSupport{}

	return &Crypto{kw: kw}
}

// CEKSize returns the content encryption key size in bytes for enc.
func CEKSize(enc string) (int, error) {
	switch enc {
	case cryptoapi.A256GCM, cryptoapi.XC20P:
		return aes256KeySize, nil
	case cryptoapi.A256CBCHS512:
		return cbcHMACKeySize, nil
	default:
		return 0, fmt.Errorf("%w: %q", errUnsupportedEnc, enc)
	}
}

// NewCEK returns a random content encryption key for enc.
func NewCEK(enc string) ([]byte, error) {
	size, err := CEKSize(enc)
	if err != nil {
		return nil, err
	}

	cek := make([]byte, size)

	if _, err = rand.Read(cek); err != nil {
		return nil, fmt.Errorf("generate cek: %w", err)
	}

	return cek, nil
}

func newAEAD(enc string, cek []byte) (cipher.AEAD, error) {
	size, err := CEKSize(enc)
	if err != nil {
		return nil, err
	}

	if len(cek) != size {
		return nil, fmt.Errorf("cek size %d does not match %s", len(cek), enc)
	}

	switch enc {
	case cryptoapi.A256GCM:
		block, errBlock := aes.NewCipher(cek)
		if errBlock != nil {
			return nil, errBlock
		}

		return cipher.NewGCM(block)
	case cryptoapi.XC20P:
		return chacha20poly1305.NewX(cek)
	default:
		return josecipher.NewCBCHMAC(cek, aes.NewCipher)
	}
}

// Encrypt encrypts plaintext with cek. It returns the random iv, the ciphertext and the tag.
func (c *Crypto) Encrypt(enc string, cek, plaintext, aad []byte) ([]byte, []byte, []byte, error) {
	aead, err := newAEAD(enc, cek)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("encrypt: %w", err)
	}

	iv := make([]byte, aead.NonceSize())

	if _, err = rand.Read(iv); err != nil {
		return nil, nil, nil, fmt.Errorf("encrypt: generate iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, plaintext, aad)
	split := len(sealed) - aead.Overhead()

	return iv, sealed[:split], sealed[split:], nil
}

// Decrypt authenticates and decrypts ciphertext||tag with cek.
func (c *Crypto) Decrypt(enc string, cek, iv, ciphertext, tag, aad []byte) ([]byte, error) {
	aead, err := newAEAD(enc, cek)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("decrypt: invalid iv size %d", len(iv))
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, iv, sealed, aad)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}

	return plaintext, nil
}

// WrapKey wraps cek for recPubKey. Without WithSender it is ECDH-ES+A256KW, with WithSender and
// WithTag it is ECDH-1PU+A256KW.
func (c *Crypto) WrapKey(cek, apu, apv []byte, recPubKey *cryptoapi.PublicKey,
	opts ...cryptoapi.WrapKeyOpts) (*cryptoapi.RecipientWrappedKey, error) {
	if recPubKey == nil {
		return nil, errors.New("wrapKey: recipient public key is required")
	}

	pOpts := cryptoapi.NewOpt()

	for _, opt := range opts {
		opt(pOpts)
	}

	kw, err := c.kwSupport(recPubKey.Curve)
	if err != nil {
		return nil, fmt.Errorf("wrapKey: %w", err)
	}

	epk := pOpts.EPK()
	if epk == nil {
		epk, err = kw.generateKey()
		if err != nil {
			return nil, fmt.Errorf("wrapKey: generate ephemeral key: %w", err)
		}
	}

	z, err := kw.agree(epk.D, recPubKey)
	if err != nil {
		return nil, fmt.Errorf("wrapKey: ECDH-ES: %w", err)
	}

	alg := cryptoapi.ECDHESA256KWAlg

	if sender := pOpts.SenderPrivateKey(); sender != nil {
		if sender.PublicKey.Curve != recPubKey.Curve {
			return nil, fmt.Errorf("wrapKey: sender curve %s does not match recipient curve %s",
				sender.PublicKey.Curve, recPubKey.Curve)
		}

		zs, errZs := kw.agree(sender.D, recPubKey)
		if errZs != nil {
			return nil, fmt.Errorf("wrapKey: ECDH-1PU: %w", errZs)
		}

		z = append(z, zs...)
		alg = cryptoapi.ECDH1PUA256KWAlg
	}

	kek := kdfWithTag(alg, z, apu, apv, pOpts.Tag(), alg == cryptoapi.ECDH1PUA256KWAlg)

	wrapped, err := keyWrap(kek, cek)
	if err != nil {
		return nil, fmt.Errorf("wrapKey: %w", err)
	}

	return &cryptoapi.RecipientWrappedKey{
		KID:          recPubKey.KID,
		EncryptedCEK: wrapped,
		EPK:          epk.PublicKey,
		Alg:          alg,
		APU:          apu,
		APV:          apv,
	}, nil
}

// UnwrapKey unwraps the cek in recWK with recPrivKey. ECDH-1PU requires WithSenderPublicKey and WithTag.
func (c *Crypto) UnwrapKey(recWK *cryptoapi.RecipientWrappedKey, recPrivKey *cryptoapi.PrivateKey,
	opts ...cryptoapi.WrapKeyOpts) ([]byte, error) {
	if recWK == nil || recPrivKey == nil {
		return nil, errors.New("unwrapKey: wrapped key and recipient private key are required")
	}

	pOpts := cryptoapi.NewOpt()

	for _, opt := range opts {
		opt(pOpts)
	}

	if recWK.EPK.Curve != recPrivKey.PublicKey.Curve {
		return nil, fmt.Errorf("unwrapKey: epk curve %s does not match recipient curve %s",
			recWK.EPK.Curve, recPrivKey.PublicKey.Curve)
	}

	kw, err := c.kwSupport(recPrivKey.PublicKey.Curve)
	if err != nil {
		return nil, fmt.Errorf("unwrapKey: %w", err)
	}

	z, err := kw.agree(recPrivKey.D, &recWK.EPK)
	if err != nil {
		return nil, fmt.Errorf("unwrapKey: ECDH-ES: %w", err)
	}

	switch recWK.Alg {
	case cryptoapi.ECDHESA256KWAlg:
	case cryptoapi.ECDH1PUA256KWAlg:
		sender := pOpts.SenderPublicKey()
		if sender == nil {
			return nil, errors.New("unwrapKey: sender public key is required for ECDH-1PU")
		}

		zs, errZs := kw.agree(recPrivKey.D, sender)
		if errZs != nil {
			return nil, fmt.Errorf("unwrapKey: ECDH-1PU: %w", errZs)
		}

		z = append(z, zs...)
	default:
		return nil, fmt.Errorf("unwrapKey: unsupported key wrapping algorithm %q", recWK.Alg)
	}

	kek := kdfWithTag(recWK.Alg, z, recWK.APU, recWK.APV, pOpts.Tag(), recWK.Alg == cryptoapi.ECDH1PUA256KWAlg)

	cek, err := keyUnwrap(kek, recWK.EncryptedCEK)
	if err != nil {
		return nil, fmt.Errorf("unwrapKey: %w", err)
	}

	return cek, nil
}

func (c *Crypto) kwSupport(curve string) (kwSupport, error) {
	kw, ok := c.kw[curve]
	if !ok {
		return nil, fmt.Errorf("unsupported key agreement curve %q", curve)
	}

	return kw, nil
}
