/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package peer

import (
	"context"
	"fmt"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	vdrapi "github.com/hyperledger/aries-edge-agent-go/pkg/vdr/api"
)

// Create options understood by VDR.Create.
const (
	// AuthKeysOpt carries the []Key authentication keys.
	AuthKeysOpt = "authKeys"
	// AgreementKeysOpt carries the []Key key agreement keys.
	AgreementKeysOpt = "agreementKeys"
	// ServicesOpt carries the []did.Service services.
	ServicesOpt = "services"
	// MaterialFormatOpt carries the VerificationMaterialFormat of the returned document.
	MaterialFormatOpt = "materialFormat"
)

var logger = log.New("edge-agent/vdr/peer")

// VDR implements the peer did method.
type VDR struct {
	format VerificationMaterialFormat
}

// Option configures the peer VDR.
type Option func(v *VDR)

// WithMaterialFormat sets the key representation of documents returned by Read.
func WithMaterialFormat(format VerificationMaterialFormat) Option {
	return func(v *VDR) {
		v.format = format
	}
}

// New returns a new peer VDR.
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

// Read resolves a peer DID. Peer DIDs are self-certifying, nothing is fetched.
func (v *VDR) Read(_ context.Context, peerDID string) (*did.Doc, error) {
	doc, err := Resolve(peerDID, WithVerificationMaterialFormat(v.format))
	if err != nil {
		return nil, fmt.Errorf("peer vdr read: %w", err)
	}

	return doc, nil
}

// Create builds a numalgo 2 peer DID from the AuthKeysOpt, AgreementKeysOpt and ServicesOpt options
// and returns its document.
func (v *VDR) Create(_ context.Context, opts ...vdrapi.DIDMethodOption) (*did.Doc, error) {
	o := vdrapi.ApplyOptions(opts...)

	authKeys, err := optionValue[[]Key](o, AuthKeysOpt)
	if err != nil {
		return nil, err
	}

	agreementKeys, err := optionValue[[]Key](o, AgreementKeysOpt)
	if err != nil {
		return nil, err
	}

	services, err := optionValue[[]did.Service](o, ServicesOpt)
	if err != nil {
		return nil, err
	}

	format := v.format
	if f, ok := o.Values[MaterialFormatOpt].(VerificationMaterialFormat); ok {
		format = f
	}

	peerDID, err := Create(authKeys, agreementKeys, services)
	if err != nil {
		return nil, err
	}

	logger.Debugf("created peer DID %s", peerDID.String())

	return Resolve(peerDID.String(), WithVerificationMaterialFormat(format))
}

// Close frees resources.
func (v *VDR) Close() error {
	return nil
}

func optionValue[T any](o *vdrapi.DIDMethodOpts, name string) (T, error) {
	var zero T

	raw, ok := o.Values[name]
	if !ok || raw == nil {
		return zero, nil
	}

	value, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("peer vdr create: option %s has type %T, want %T", name, raw, zero)
	}

	return value, nil
}
