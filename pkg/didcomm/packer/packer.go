/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package packer packs DIDComm V2 messages into plaintext, signed (JWS) or encrypted (JWE) envelopes and
// unpacks them layer by layer. Keys come from DID documents and the secret resolver.
package packer

import (
	"errors"
	"fmt"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	vdrapi "github.com/hyperledger/aries-edge-agent-go/pkg/vdr/api"
	cryptoapi "github.com/hyperledger/aries-edge-agent-go/spi/crypto"
	"github.com/hyperledger/aries-edge-agent-go/spi/secret"
)

var logger = log.New("edge-agent/didcomm/packer")

var (
	// ErrNoDIDReceiverSet is returned when an encrypted message has no recipients.
	ErrNoDIDReceiverSet = errors.New("no DID receiver set")
	// ErrNoValidServiceFound is returned when a required DIDComm service is missing from the recipient document.
	ErrNoValidServiceFound = errors.New("no valid DIDComm service found")
	// ErrNoCompatibleKeyFound is returned when no usable key pair exists between sender and recipients, or
	// when no secret is known for any recipient of an envelope.
	ErrNoCompatibleKeyFound = errors.New("no compatible key found")
	// ErrUnpackFailed is matched by every unpack error.
	ErrUnpackFailed = errors.New("unpack failed")
	// ErrSenderMismatch is returned when the envelope sender differs from the message from header.
	ErrSenderMismatch = errors.New("envelope sender does not match the message sender")
	// ErrUnauthenticatedSKID is returned when a sender key id is carried by a JWE whose key agreement does
	// not bind the sender key (anything but ECDH-1PU+A256KW).
	ErrUnauthenticatedSKID = errors.New("sender key id without authenticated key agreement")
)

// Provider supplies the collaborators of the packer.
type Provider interface {
	VDRegistry() vdrapi.Registry
	SecretResolver() secret.Resolver
	Crypto() cryptoapi.Crypto
}

// Packer packs and unpacks DIDComm messages.
type Packer struct {
	vdr     vdrapi.Registry
	secrets secret.Resolver
	crypto  cryptoapi.Crypto
}

// New creates a Packer.
func New(prov Provider) *Packer {
	return &Packer{
		vdr:     prov.VDRegistry(),
		secrets: prov.SecretResolver(),
		crypto:  prov.Crypto(),
	}
}

// PackResult is a packed message with the keys used to pack it.
type PackResult struct {
	Packed  []byte
	FromKID string
	ToKIDs  []string
	// SignFromKID is the signing key of a signed (or signed then encrypted) message.
	SignFromKID string
	// Service is the first DIDComm service of the first recipient, if any.
	Service *did.Service
}

// UnpackMetadata describes the layers an envelope was wrapped in.
type UnpackMetadata struct {
	Encrypted        bool
	Authenticated    bool
	AnonymousSender  bool
	NonRepudiation   bool
	EncryptedFromKID string
	EncryptedToKIDs  []string
	SignFrom         string
	EncAlgAuth       string
	EncAlgAnon       string
	Envelope         []byte
}

// UnpackError is returned by Unpack. It matches ErrUnpackFailed and unwraps to its cause.
type UnpackError struct {
	Expected string
	Actual   string
	Err      error
}

func (e *UnpackError) Error() string {
	if e.Expected != "" && e.Expected != e.Actual {
		return fmt.Sprintf("unpack failed: expected %s, got %s: %v", e.Expected, e.Actual, e.Err)
	}

	return fmt.Sprintf("unpack failed: %s: %v", e.Actual, e.Err)
}

// Unwrap returns the cause.
func (e *UnpackError) Unwrap() error {
	return e.Err
}

// Is matches ErrUnpackFailed.
func (e *UnpackError) Is(target error) bool {
	return target == ErrUnpackFailed //nolint:errorlint
}

type packOpts struct {
	signFrom        bool
	serviceRequired bool
	enc             string
}

// PackOption configures Pack.
type PackOption func(opts *packOpts)

// WithSignFrom signs the message with the sender authentication key before encrypting it.
func WithSignFrom() PackOption {
	return func(opts *packOpts) {
		opts.signFrom = true
	}
}

// WithServiceRequired fails packing with ErrNoValidServiceFound when the recipient has no DIDComm service.
func WithServiceRequired() PackOption {
	return func(opts *packOpts) {
		opts.serviceRequired = true
	}
}

// WithAnoncryptEnc sets the content encryption of anoncrypt envelopes (XC20P by default).
func WithAnoncryptEnc(enc string) PackOption {
	return func(opts *packOpts) {
		opts.enc = enc
	}
}
