/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package prism implements the ledger-anchored did:prism method. Long-form DIDs embed their creation
// operation and resolve offline; short-form DIDs need a ledger lookup.
package prism

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
)

// DIDMethod is the prism did method name.
const DIDMethod = "prism"

var (
	// ErrInvalidLongFormDID is returned for long-form DIDs that are malformed or whose state hash does
	// not match the embedded operation.
	ErrInvalidLongFormDID = errors.New("invalid long-form prism DID")
	// ErrLedgerUnavailable is returned when a short-form DID is resolved without a ledger.
	ErrLedgerUnavailable = errors.New("prism ledger unavailable")
)

// LongFormDID is a prism DID carrying its encoded creation operation.
type LongFormDID struct {
	StateHash             string
	EncodedOperationState string
	Operation             *AtalaOperation
}

// ShortForm returns the canonical did:prism:<stateHash> of the DID.
func (l *LongFormDID) ShortForm() string {
	return "did:" + DIDMethod + ":" + l.StateHash
}

// String returns did:prism:<stateHash>:<encodedOperationState>.
func (l *LongFormDID) String() string {
	return l.ShortForm() + ":" + l.EncodedOperationState
}

// StateHash returns the lowercase hex SHA-256 of the encoded operation bytes.
func StateHash(operation []byte) string {
	h := sha256.Sum256(operation)

	return hex.EncodeToString(h[:])
}

// ParseLongForm splits a long-form DID into its state hash and operation and checks that the hash
// matches the operation.
func ParseLongForm(prismDID string) (*LongFormDID, error) {
	parsed, err := did.Parse(prismDID)
	if err != nil {
		return nil, err
	}

	if parsed.Method != DIDMethod {
		return nil, fmt.Errorf("%w: method %q", ErrInvalidLongFormDID, parsed.Method)
	}

	sections := strings.Split(parsed.MethodSpecificID, ":")
	if len(sections) != 2 { //nolint:gomnd
		return nil, fmt.Errorf("%w: expected 2 sections, got %d", ErrInvalidLongFormDID, len(sections))
	}

	opBytes, err := base64.RawURLEncoding.DecodeString(sections[1])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLongFormDID, err.Error())
	}

	if StateHash(opBytes) != sections[0] {
		return nil, fmt.Errorf("%w: state hash does not match the encoded operation", ErrInvalidLongFormDID)
	}

	op, err := UnmarshalOperation(opBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidLongFormDID, err.Error())
	}

	return &LongFormDID{StateHash: sections[0], EncodedOperationState: sections[1], Operation: op}, nil
}

type createOpts struct {
	keys     []PublicKey
	services []did.Service
	context  []string
}

// CreateOption adds content to a new prism DID.
type CreateOption func(opts *createOpts)

func withKey(usage Usage, id string, pub *btcec.PublicKey) CreateOption {
	return func(opts *createOpts) {
		if id == "" {
			n := 0

			for _, k := range opts.keys {
				if k.Usage == usage {
					n++
				}
			}

			id = usage.DefaultID(n)
		}

		opts.keys = append(opts.keys, PublicKey{
			ID:                  id,
			Usage:               usage,
			CompressedECKeyData: &CompressedECKeyData{Curve: Secp256k1, Data: pub.SerializeCompressed()},
		})
	}
}

// WithAuthenticationKey adds an authentication key; an empty id picks the default one.
func WithAuthenticationKey(id string, pub *btcec.PublicKey) CreateOption {
	return withKey(AuthenticationKey, id, pub)
}

// WithAgreementKey adds a key agreement key.
func WithAgreementKey(id string, pub *btcec.PublicKey) CreateOption {
	return withKey(KeyAgreementKey, id, pub)
}

// WithIssuingKey adds an issuing (assertion) key.
func WithIssuingKey(id string, pub *btcec.PublicKey) CreateOption {
	return withKey(IssuingKey, id, pub)
}

// WithService adds a service.
func WithService(s did.Service) CreateOption {
	return func(opts *createOpts) {
		opts.services = append(opts.services, s)
	}
}

// WithContext adds a JSON-LD context to the document.
func WithContext(ctx string) CreateOption {
	return func(opts *createOpts) {
		opts.context = append(opts.context, ctx)
	}
}

// CreateLongForm builds a create operation around a secp256k1 master key and returns its long-form DID.
func CreateLongForm(masterKey *btcec.PublicKey, opts ...CreateOption) (*LongFormDID, error) {
	if masterKey == nil {
		return nil, errors.New("create prism DID: master key is required")
	}

	o := &createOpts{}
	withKey(MasterKey, "", masterKey)(o)

	for _, opt := range opts {
		opt(o)
	}

	services := make([]Service, 0, len(o.services))

	for i := range o.services {
		s, err := encodeService(&o.services[i])
		if err != nil {
			return nil, fmt.Errorf("create prism DID: %w", err)
		}

		services = append(services, *s)
	}

	op := &AtalaOperation{CreateDID: &CreateDID{PublicKeys: o.keys, Services: services, Context: o.context}}

	opBytes, err := op.Marshal()
	if err != nil {
		return nil, fmt.Errorf("create prism DID: %w", err)
	}

	return &LongFormDID{
		StateHash:             StateHash(opBytes),
		EncodedOperationState: base64.RawURLEncoding.EncodeToString(opBytes),
		Operation:             op,
	}, nil
}

// encodeService keeps single values as plain strings and falls back to JSON otherwise.
func encodeService(s *did.Service) (*Service, error) {
	out := &Service{ID: s.ID}

	if len(s.Type) == 1 {
		out.Type = s.Type[0]
	} else {
		b, err := json.Marshal(s.Type)
		if err != nil {
			return nil, err
		}

		out.Type = string(b)
	}

	switch {
	case len(s.ServiceEndpoint) == 1 && len(s.ServiceEndpoint[0].Accept) == 0 &&
		len(s.ServiceEndpoint[0].RoutingKeys) == 0:
		out.ServiceEndpoint = s.ServiceEndpoint[0].URI
	case len(s.ServiceEndpoint) == 1:
		b, err := json.Marshal(s.ServiceEndpoint[0])
		if err != nil {
			return nil, err
		}

		out.ServiceEndpoint = string(b)
	default:
		b, err := json.Marshal(s.ServiceEndpoint)
		if err != nil {
			return nil, err
		}

		out.ServiceEndpoint = string(b)
	}

	return out, nil
}
