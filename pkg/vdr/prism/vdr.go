/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package prism

import (
	"context"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	vdrapi "github.com/hyperledger/aries-edge-agent-go/pkg/vdr/api"
)

// Create options understood by VDR.Create.
const (
	// MasterKeyOpt carries the *btcec.PublicKey master key.
	MasterKeyOpt = "masterKey"
	// CreateOptionsOpt carries additional []CreateOption.
	CreateOptionsOpt = "createOptions"
)

var logger = log.New("edge-agent/vdr/prism")

// LedgerLookup fetches the encoded creation operation of a published short-form DID.
type LedgerLookup interface {
	GetOperation(ctx context.Context, shortDID string) ([]byte, error)
}

// VDR implements the prism did method.
type VDR struct {
	ledger LedgerLookup
}

// Option configures the prism VDR.
type Option func(v *VDR)

// WithLedger sets the ledger used to resolve short-form DIDs.
func WithLedger(l LedgerLookup) Option {
	return func(v *VDR) {
		v.ledger = l
	}
}

// New returns a new prism VDR.
func New(opts ...Option) *VDR {
	v := &VDR{}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Accept did method.
func (v *VDR) Accept(method string) bool {
	return method == DIDMethod
}

// Read resolves long-form DIDs offline and short-form DIDs through the ledger.
func (v *VDR) Read(ctx context.Context, prismDID string) (*did.Doc, error) {
	parsed, err := did.Parse(prismDID)
	if err != nil {
		return nil, err
	}

	if strings.Contains(parsed.MethodSpecificID, ":") {
		longForm, errParse := ParseLongForm(prismDID)
		if errParse != nil {
			return nil, errParse
		}

		return Document(prismDID, longForm.Operation)
	}

	if v.ledger == nil {
		return nil, fmt.Errorf("%w: cannot resolve short-form DID %s", ErrLedgerUnavailable, prismDID)
	}

	opBytes, err := v.ledger.GetOperation(ctx, prismDID)
	if err != nil {
		return nil, fmt.Errorf("prism vdr read: %w", err)
	}

	if StateHash(opBytes) != parsed.MethodSpecificID {
		return nil, fmt.Errorf("prism vdr read: ledger operation does not match %s", prismDID)
	}

	op, err := UnmarshalOperation(opBytes)
	if err != nil {
		return nil, fmt.Errorf("prism vdr read: %w", err)
	}

	logger.Debugf("resolved %s from the ledger", prismDID)

	return Document(prismDID, op)
}

// Create builds a long-form DID from MasterKeyOpt and CreateOptionsOpt and returns its document.
func (v *VDR) Create(_ context.Context, opts ...vdrapi.DIDMethodOption) (*did.Doc, error) {
	o := vdrapi.ApplyOptions(opts...)

	master, ok := o.Values[MasterKeyOpt].(*btcec.PublicKey)
	if !ok {
		return nil, fmt.Errorf("prism vdr create: option %s must be a *btcec.PublicKey", MasterKeyOpt)
	}

	var createOpts []CreateOption

	if raw, found := o.Values[CreateOptionsOpt]; found {
		createOpts, ok = raw.([]CreateOption)
		if !ok {
			return nil, fmt.Errorf("prism vdr create: option %s must be []prism.CreateOption", CreateOptionsOpt)
		}
	}

	longForm, err := CreateLongForm(master, createOpts...)
	if err != nil {
		return nil, err
	}

	return Document(longForm.String(), longForm.Operation)
}

// Close frees resources.
func (v *VDR) Close() error {
	return nil
}
