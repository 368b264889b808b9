/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package crypto contains the Crypto interface used by the DIDComm envelope pipeline.
// Raw elliptic-curve and AEAD primitives are provided by implementations of this interface.
package crypto

// Key wrapping algorithms.
const (
	// ECDHESA256KWAlg is the anonymous key agreement with AES-256 key wrap (anoncrypt).
	ECDHESA256KWAlg = "ECDH-ES+A256KW"
	// ECDH1PUA256KWAlg is the authenticated key agreement with AES-256 key wrap (authcrypt).
	ECDH1PUA256KWAlg = "ECDH-1PU+A256KW"
)

// Content encryption algorithms.
const (
	A256GCM      = "A256GCM"
	XC20P        = "XC20P"
	A256CBCHS512 = "A256CBC-HS512"
)

// Key types and curves.
const (
	EC        = "EC"
	OKP       = "OKP"
	X25519    = "X25519"
	Ed25519   = "Ed25519"
	P256      = "P-256"
	Secp256k1 = "secp256k1"
)

// Crypto provides the cryptographic capability needed to build JWE envelopes.
type Crypto interface {
	// Encrypt encrypts plaintext with cek using the enc content encryption algorithm and aad as
	// additional authenticated data.
	// returns:
	//		iv, ciphertext and authentication tag
	//		error in case of errors
	Encrypt(enc string, cek, plaintext, aad []byte) ([]byte, []byte, []byte, error)

	// Decrypt reverses Encrypt.
	Decrypt(enc string, cek, iv, ciphertext, tag, aad []byte) ([]byte, error)

	// WrapKey wraps cek for recPubKey using apu and apv as KDF party info.
	// WithSender and WithTag switch from ECDH-ES to ECDH-1PU key wrapping (authcrypt).
	// WithEPK reuses an ephemeral key shared between several recipients.
	WrapKey(cek, apu, apv []byte, recPubKey *PublicKey, opts ...WrapKeyOpts) (*RecipientWrappedKey, error)

	// UnwrapKey unwraps the cek in recWK with the recipient private key.
	// For ECDH-1PU, WithSenderPublicKey must carry the sender public key and WithTag the content tag.
	UnwrapKey(recWK *RecipientWrappedKey, recPrivKey *PrivateKey, opts ...WrapKeyOpts) ([]byte, error)
}

// RecipientWrappedKey contains recipient key material required to unwrap CEK.
type RecipientWrappedKey struct {
	KID          string    `json:"kid,omitempty"`
	EncryptedCEK []byte    `json:"encryptedcek,omitempty"`
	EPK          PublicKey `json:"epk,omitempty"`
	Alg          string    `json:"alg,omitempty"`
	APU          []byte    `json:"apu,omitempty"`
	APV          []byte    `json:"apv,omitempty"`
}

// PublicKey is a key agreement public key. For OKP keys X holds the raw key and Y is empty.
type PublicKey struct {
	KID   string `json:"kid,omitempty"`
	X     []byte `json:"x,omitempty"`
	Y     []byte `json:"y,omitempty"`
	Curve string `json:"curve,omitempty"`
	Type  string `json:"type,omitempty"`
}

// PrivateKey is a key agreement private key.
type PrivateKey struct {
	PublicKey PublicKey `json:"pubKey,omitempty"`
	D         []byte    `json:"d,omitempty"`
}

type wrapKeyOpts struct {
	senderPriv *PrivateKey
	senderPub  *PublicKey
	tag        []byte
	epk        *PrivateKey
}

// WrapKeyOpts are the crypto.Wrap/UnwrapKey options.
type WrapKeyOpts func(opts *wrapKeyOpts)

// NewOpt creates a new empty wrap key option.
// Not to be used directly. It's intended for implementations of Crypto interface.
func NewOpt() *wrapKeyOpts { //nolint: revive
	return &wrapKeyOpts{}
}

// SenderPrivateKey gets the sender private key set by WithSender (WrapKey).
func (pk *wrapKeyOpts) SenderPrivateKey() *PrivateKey {
	return pk.senderPriv
}

// SenderPublicKey gets the sender public key set by WithSenderPublicKey (UnwrapKey).
func (pk *wrapKeyOpts) SenderPublicKey() *PublicKey {
	return pk.senderPub
}

// Tag gets the content authentication tag.
func (pk *wrapKeyOpts) Tag() []byte {
	return pk.tag
}

// EPK gets the shared ephemeral private key.
func (pk *wrapKeyOpts) EPK() *PrivateKey {
	return pk.epk
}

// WithSender sets the sender private key for ECDH-1PU key wrapping.
func WithSender(senderKey *PrivateKey) WrapKeyOpts {
	return func(opts *wrapKeyOpts) {
		opts.senderPriv = senderKey
	}
}

// WithSenderPublicKey sets the sender public key for ECDH-1PU key unwrapping.
func WithSenderPublicKey(senderKey *PublicKey) WrapKeyOpts {
	return func(opts *wrapKeyOpts) {
		opts.senderPub = senderKey
	}
}

// WithTag sets the content authentication tag used by ECDH-1PU.
func WithTag(tag []byte) WrapKeyOpts {
	return func(opts *wrapKeyOpts) {
		opts.tag = tag
	}
}

// WithEPK sets the ephemeral key to use instead of generating a new one.
func WithEPK(epk *PrivateKey) WrapKeyOpts {
	return func(opts *wrapKeyOpts) {
		opts.epk = epk
	}
}
