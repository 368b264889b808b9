/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package jose

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/jose/jwk/jwksupport"
	cryptoapi "github.com/hyperledger/aries-edge-agent-go/spi/crypto"
)

// ErrNoRecipientKey is returned when none of the supplied private keys matches a JWE recipient.
var ErrNoRecipientKey = errors.New("no private key found for any recipient")

// Decrypter interface to Decrypt JWE messages.
type Decrypter interface {
	// Decrypt a deserialized JWE, extracts the corresponding recipient key to decrypt plaintext and returns it
	Decrypt(jwe *JSONWebEncryption) ([]byte, error)
}

// JWEDecrypt is responsible for decrypting a JWE message and returns its protected plaintext.
type JWEDecrypt struct {
	crypto    cryptoapi.Crypto
	recKeys   map[string]*cryptoapi.PrivateKey
	senderKey *cryptoapi.PublicKey
}

// NewJWEDecrypt creates a new JWEDecrypt for the recipient private keys indexed by kid.
// senderKey is required for authcrypt only (anoncrypt senders are anonymous).
func NewJWEDecrypt(c cryptoapi.Crypto, recKeys map[string]*cryptoapi.PrivateKey,
	senderKey *cryptoapi.PublicKey) *JWEDecrypt {
	return &JWEDecrypt{crypto: c, recKeys: recKeys, senderKey: senderKey}
}

// Decrypt a deserialized JWE, decrypts its protected content and returns plaintext.
func (jd *JWEDecrypt) Decrypt(jwe *JSONWebEncryption) ([]byte, error) {
	alg, enc, err := validateProtectedHeaders(jwe)
	if err != nil {
		return nil, fmt.Errorf("jwedecrypt: %w", err)
	}

	epkJWK, ok := jwe.ProtectedHeaders.EPK()
	if !ok {
		return nil, errors.New("jwedecrypt: missing or invalid epk header")
	}

	epk, err := jwksupport.PublicKeyFromJWK(epkJWK, "")
	if err != nil {
		return nil, fmt.Errorf("jwedecrypt: epk: %w", err)
	}

	apv, _ := jwe.ProtectedHeaders.APV()
	if !bytes.Equal(apv, kidsAPV(jwe.RecipientKIDs())) {
		return nil, errors.New("jwedecrypt: apv does not match the recipients")
	}

	apu, _ := jwe.ProtectedHeaders.APU()

	var unwrapOpts []cryptoapi.WrapKeyOpts

	if alg == cryptoapi.ECDH1PUA256KWAlg {
		skid, _ := jwe.ProtectedHeaders.SenderKeyID()
		if jd.senderKey == nil {
			return nil, fmt.Errorf("jwedecrypt: sender key %q is required for authcrypt", skid)
		}

		if !bytes.Equal(apu, []byte(skid)) {
			return nil, errors.New("jwedecrypt: apu does not match skid")
		}

		unwrapOpts = append(unwrapOpts, cryptoapi.WithSenderPublicKey(jd.senderKey), cryptoapi.WithTag(jwe.Tag))
	}

	cek, err := jd.unwrapCEK(jwe, alg, epk, apu, apv, unwrapOpts)
	if err != nil {
		return nil, fmt.Errorf("jwedecrypt: %w", err)
	}

	aad, err := jwe.AAD()
	if err != nil {
		return nil, fmt.Errorf("jwedecrypt: %w", err)
	}

	plaintext, err := jd.crypto.Decrypt(enc, cek, jwe.IV, jwe.Ciphertext, jwe.Tag, aad)
	if err != nil {
		return nil, fmt.Errorf("jwedecrypt: %w", err)
	}

	return plaintext, nil
}

func (jd *JWEDecrypt) unwrapCEK(jwe *JSONWebEncryption, alg string, epk *cryptoapi.PublicKey, apu, apv []byte,
	opts []cryptoapi.WrapKeyOpts) ([]byte, error) {
	var lastErr error

	for _, rec := range jwe.Recipients {
		recKey, ok := jd.recKeys[rec.Header.KID]
		if !ok {
			continue
		}

		cek, err := jd.crypto.UnwrapKey(&cryptoapi.RecipientWrappedKey{
			KID:          rec.Header.KID,
			EncryptedCEK: rec.EncryptedKey,
			EPK:          *epk,
			Alg:          alg,
			APU:          apu,
			APV:          apv,
		}, recKey, opts...)
		if err == nil {
			return cek, nil
		}

		lastErr = err
	}

	if lastErr != nil {
		return nil, fmt.Errorf("failed to unwrap cek: %w", lastErr)
	}

	return nil, ErrNoRecipientKey
}

func validateProtectedHeaders(jwe *JSONWebEncryption) (string, string, error) {
	if jwe == nil || jwe.ProtectedHeaders == nil {
		return "", "", errors.New("jwe is missing protected headers")
	}

	alg, ok := jwe.ProtectedHeaders.Algorithm()
	if !ok {
		return "", "", errors.New("jwe is missing alg header")
	}

	if alg != cryptoapi.ECDHESA256KWAlg && alg != cryptoapi.ECDH1PUA256KWAlg {
		return "", "", fmt.Errorf("unsupported alg %q", alg)
	}

	enc, ok := jwe.ProtectedHeaders.Encryption()
	if !ok {
		return "", "", errors.New("jwe is missing enc header")
	}

	switch enc {
	case cryptoapi.A256GCM, cryptoapi.XC20P, cryptoapi.A256CBCHS512:
	default:
		return "", "", fmt.Errorf("unsupported enc %q", enc)
	}

	return alg, enc, nil
}
