/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package jose

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/jose/jwk/jwksupport"
	cryptoapi "github.com/hyperledger/aries-edge-agent-go/spi/crypto"
)

const (
	cekSize        = 32
	cbcHMACCEKSize = 64
)

var (
	errNoRecipientKeys = errors.New("empty recipientsPubKeys list")
	errCurveMismatch   = errors.New("recipients and sender keys must share the same curve")
)

// Encrypter interface to Encrypt/Decrypt JWE messages.
type Encrypter interface {
	// Encrypt plaintext with aad and returns a JSONWebEncryption containing the encrypted shared key.
	Encrypt(plaintext []byte) (*JSONWebEncryption, error)
}

// JWEEncrypt is responsible for encrypting a plaintext and its AAD into a protected JWE and decrypting it.
type JWEEncrypt struct {
	recipientsKeys []*cryptoapi.PublicKey
	skid           string
	senderKey      *cryptoapi.PrivateKey
	alg            string
	enc            string
	typ            string
	cty            string
	crypto         cryptoapi.Crypto
}

// NewJWEEncrypt creates a new JWEEncrypt instance to build JWE with recipientsPubKeys.
// Without a sender key it builds an anoncrypt JWE (ECDH-ES+A256KW), with a sender key and skid an
// authcrypt JWE (ECDH-1PU+A256KW). An empty enc selects XC20P for anoncrypt and A256CBC-HS512 for authcrypt.
func NewJWEEncrypt(enc, typ, cty, skid string, senderKey *cryptoapi.PrivateKey,
	recipientsPubKeys []*cryptoapi.PublicKey, crypto cryptoapi.Crypto) (*JWEEncrypt, error) {
	if len(recipientsPubKeys) == 0 {
		return nil, errNoRecipientKeys
	}

	curve := recipientsPubKeys[0].Curve

	for _, r := range recipientsPubKeys[1:] {
		if r.Curve != curve {
			return nil, fmt.Errorf("%w: %s and %s", errCurveMismatch, curve, r.Curve)
		}
	}

	alg := cryptoapi.ECDHESA256KWAlg

	if senderKey != nil {
		if skid == "" {
			return nil, errors.New("sender key id is required for authcrypt")
		}

		if senderKey.PublicKey.Curve != curve {
			return nil, fmt.Errorf("%w: sender %s, recipients %s", errCurveMismatch, senderKey.PublicKey.Curve, curve)
		}

		alg = cryptoapi.ECDH1PUA256KWAlg
	}

	if enc == "" {
		enc = cryptoapi.XC20P

		if alg == cryptoapi.ECDH1PUA256KWAlg {
			enc = cryptoapi.A256CBCHS512
		}
	}

	if alg == cryptoapi.ECDH1PUA256KWAlg && enc != cryptoapi.A256CBCHS512 {
		return nil, fmt.Errorf("authcrypt requires %s content encryption, got %s", cryptoapi.A256CBCHS512, enc)
	}

	return &JWEEncrypt{
		recipientsKeys: recipientsPubKeys,
		skid:           skid,
		senderKey:      senderKey,
		alg:            alg,
		enc:            enc,
		typ:            typ,
		cty:            cty,
		crypto:         crypto,
	}, nil
}

// Encrypt encrypts plaintext for all recipients with one shared content encryption key and one shared
// ephemeral key.
func (je *JWEEncrypt) Encrypt(plaintext []byte) (*JSONWebEncryption, error) {
	cek, err := newCEK(je.enc)
	if err != nil {
		return nil, fmt.Errorf("jweencrypt: %w", err)
	}

	epk, err := newEphemeralKey(je.recipientsKeys[0].Curve)
	if err != nil {
		return nil, fmt.Errorf("jweencrypt: %w", err)
	}

	epkJWK, err := jwksupport.JWKFromPublicKey(&epk.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("jweencrypt: %w", err)
	}

	apv := recipientsAPV(je.recipientsKeys)

	headers := Headers{
		HeaderAlgorithm:  je.alg,
		HeaderEncryption: je.enc,
		HeaderEPK:        epkJWK,
		HeaderAPV:        encode(apv),
	}

	if je.typ != "" {
		headers[HeaderType] = je.typ
	}

	if je.cty != "" {
		headers[HeaderContentType] = je.cty
	}

	var apu []byte

	if je.senderKey != nil {
		apu = []byte(je.skid)
		headers[HeaderSenderKeyID] = je.skid
		headers[HeaderAPU] = encode(apu)
	}

	jwe := &JSONWebEncryption{ProtectedHeaders: headers}

	aad, err := jwe.AAD()
	if err != nil {
		return nil, fmt.Errorf("jweencrypt: %w", err)
	}

	jwe.IV, jwe.Ciphertext, jwe.Tag, err = je.crypto.Encrypt(je.enc, cek, plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("jweencrypt: %w", err)
	}

	wrapOpts := []cryptoapi.WrapKeyOpts{cryptoapi.WithEPK(epk)}
	if je.senderKey != nil {
		wrapOpts = append(wrapOpts, cryptoapi.WithSender(je.senderKey), cryptoapi.WithTag(jwe.Tag))
	}

	for _, rec := range je.recipientsKeys {
		wk, errWrap := je.crypto.WrapKey(cek, apu, apv, rec, wrapOpts...)
		if errWrap != nil {
			return nil, fmt.Errorf("jweencrypt: failed to wrap cek for %s: %w", rec.KID, errWrap)
		}

		jwe.Recipients = append(jwe.Recipients, &Recipient{
			EncryptedKey: wk.EncryptedCEK,
			Header:       RecipientHeaders{KID: rec.KID},
		})
	}

	return jwe, nil
}

func newCEK(enc string) ([]byte, error) {
	size := cekSize
	if enc == cryptoapi.A256CBCHS512 {
		size = cbcHMACCEKSize
	}

	cek := make([]byte, size)

	if _, err := rand.Read(cek); err != nil {
		return nil, fmt.Errorf("generate cek: %w", err)
	}

	return cek, nil
}

func newEphemeralKey(curve string) (*cryptoapi.PrivateKey, error) {
	switch curve {
	case cryptoapi.X25519:
		priv, err := ecdh.X25519().GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate epk: %w", err)
		}

		return &cryptoapi.PrivateKey{
			PublicKey: cryptoapi.PublicKey{X: priv.PublicKey().Bytes(), Curve: curve, Type: cryptoapi.OKP},
			D:         priv.Bytes(),
		}, nil
	case cryptoapi.P256:
		priv, err := ecdh.P256().GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("generate epk: %w", err)
		}

		point := priv.PublicKey().Bytes()

		return &cryptoapi.PrivateKey{
			PublicKey: cryptoapi.PublicKey{X: point[1:33], Y: point[33:], Curve: curve, Type: cryptoapi.EC},
			D:         priv.Bytes(),
		}, nil
	default:
		return nil, fmt.Errorf("unsupported key agreement curve %q", curve)
	}
}

// recipientsAPV is SHA-256 over the sorted recipient kids joined with ".".
func recipientsAPV(recipients []*cryptoapi.PublicKey) []byte {
	kids := make([]string, 0, len(recipients))
	for _, r := range recipients {
		kids = append(kids, r.KID)
	}

	return kidsAPV(kids)
}

func kidsAPV(kids []string) []byte {
	sorted := append([]string(nil), kids...)
	sort.Strings(sorted)

	h := sha256.Sum256([]byte(strings.Join(sorted, ".")))

	return h[:]
}
