/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package peer implements the did:peer method for numalgo 0 (inception key) and numalgo 2 (multiple
// inception keys and services). DIDs and documents are pure functions of the key material.
package peer

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/util/fingerprint"
)

const (
	// DIDMethod is the peer did method name: https://identity.foundation/peer-did-method-spec/#method-name.
	DIDMethod = "peer"

	peerPrefix = "did:peer:"

	numalgo0 = '0'
	numalgo2 = '2'

	keySize = 32
)

// Purpose codes of numalgo 2 segments.
const (
	purposeAssertion     = 'A'
	purposeEncryption    = 'E'
	purposeVerification  = 'V'
	purposeInvocation    = 'I'
	purposeDelegation    = 'D'
	purposeService       = 'S'
	segmentSeparator     = "."
	multibaseBase58Chars = `[1-9a-km-zA-HJ-NP-Z]`
)

var (
	// ErrInvalidPeerDIDSyntax is returned when a DID matches neither the numalgo 0 nor the numalgo 2 shape.
	ErrInvalidPeerDIDSyntax = errors.New("invalid peer DID syntax")
	// ErrUnsupportedMulticodec is returned for keys of an unsupported multicodec type.
	ErrUnsupportedMulticodec = fingerprint.ErrUnsupportedMulticodec
	// ErrInvalidServiceEncoding is returned for a malformed service block.
	ErrInvalidServiceEncoding = errors.New("invalid peer DID service encoding")
	// ErrUnsupportedNumalgo is returned, together with ErrInvalidPeerDIDSyntax, for numalgo 1 DIDs.
	ErrUnsupportedNumalgo = errors.New("unsupported peer DID numalgo")
)

//nolint:gochecknoglobals
var (
	numalgo0Regex = regexp.MustCompile(`^did:peer:0z` + multibaseBase58Chars + `{46,47}$`)
	numalgo2Regex = regexp.MustCompile(`^did:peer:2((\.[AEVID]z` + multibaseBase58Chars + `{46,47})+(\.S[0-9a-zA-Z_=-]*)*)$`)
)

// KeyType is the curve of a peer DID key.
type KeyType string

// Supported key types.
const (
	Ed25519 KeyType = "Ed25519"
	X25519  KeyType = "X25519"
)

// Key is a raw public key with its curve.
type Key struct {
	Type  KeyType
	Value []byte
}

func (k Key) multicodec() (uint64, error) {
	if len(k.Value) != keySize {
		return 0, fmt.Errorf("invalid %s key length %d", k.Type, len(k.Value))
	}

	switch k.Type {
	case Ed25519:
		return fingerprint.ED25519PubKeyMultiCodec, nil
	case X25519:
		return fingerprint.X25519PubKeyMultiCodec, nil
	default:
		return 0, fmt.Errorf("%w: key type %q", ErrUnsupportedMulticodec, k.Type)
	}
}

func (k Key) fingerprint() (string, error) {
	code, err := k.multicodec()
	if err != nil {
		return "", err
	}

	return fingerprint.KeyFingerprint(code, k.Value), nil
}

// Create builds a numalgo 2 peer DID: agreement keys first (purpose E), then authentication keys
// (purpose V), both in input order, then one S segment per service.
func Create(authKeys, agreementKeys []Key, services []did.Service) (*did.DID, error) {
	if len(authKeys) == 0 && len(agreementKeys) == 0 {
		return nil, errors.New("create peer DID: at least one key is required")
	}

	var sb strings.Builder

	sb.WriteString(peerPrefix)
	sb.WriteByte(numalgo2)

	for _, group := range []struct {
		purpose byte
		keys    []Key
		want    KeyType
	}{
		{purpose: purposeEncryption, keys: agreementKeys, want: X25519},
		{purpose: purposeVerification, keys: authKeys, want: Ed25519},
	} {
		for _, k := range group.keys {
			if k.Type != group.want {
				return nil, fmt.Errorf("create peer DID: %s key cannot be used for purpose %c", k.Type, group.purpose)
			}

			fp, err := k.fingerprint()
			if err != nil {
				return nil, fmt.Errorf("create peer DID: %w", err)
			}

			sb.WriteString(segmentSeparator)
			sb.WriteByte(group.purpose)
			sb.WriteString(fp)
		}
	}

	for i := range services {
		encoded, err := encodeService(&services[i])
		if err != nil {
			return nil, fmt.Errorf("create peer DID: %w", err)
		}

		sb.WriteString(segmentSeparator)
		sb.WriteByte(purposeService)
		sb.WriteString(encoded)
	}

	return did.Parse(sb.String())
}

// CreateNumalgo0 builds a numalgo 0 peer DID from a single Ed25519 inception key.
func CreateNumalgo0(inceptionKey Key) (*did.DID, error) {
	if inceptionKey.Type != Ed25519 {
		return nil, fmt.Errorf("create peer DID: numalgo 0 requires an Ed25519 inception key, got %s",
			inceptionKey.Type)
	}

	fp, err := inceptionKey.fingerprint()
	if err != nil {
		return nil, fmt.Errorf("create peer DID: %w", err)
	}

	return did.Parse(peerPrefix + string(numalgo0) + fp)
}
