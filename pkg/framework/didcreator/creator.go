/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package didcreator creates numalgo 2 peer DIDs backed by freshly generated keys whose secrets are kept by
// the agent.
package didcreator

import (
	"context"
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	"github.com/hyperledger/aries-edge-agent-go/pkg/secret"
	"github.com/hyperledger/aries-edge-agent-go/pkg/vdr/peer"
	spisecret "github.com/hyperledger/aries-edge-agent-go/spi/secret"
)

var logger = log.New("edge-agent/didcreator")

// SecretStore keeps private keys.
type SecretStore interface {
	Add(secrets ...*spisecret.Secret) error
}

// PeerDIDStore records the DIDs the agent owns.
type PeerDIDStore interface {
	StorePeerDID(id, alias string) error
}

// provider contains dependencies for the did creator.
type provider interface {
	SecretStore() SecretStore
	PeerDIDStore() PeerDIDStore
}

// Creator creates peer DIDs.
type Creator interface {
	Create(ctx context.Context, opts ...DocOpt) (*did.Doc, error)
}

// Option configures the did creator.
type Option func(opts *DIDCreator)

// DIDCreator implements creation of new dids.
type DIDCreator struct {
	secrets  SecretStore
	store    PeerDIDStore
	services []did.Service
}

// New return new instance of did creator.
func New(p provider, opts ...Option) *DIDCreator {
	creator := &DIDCreator{secrets: p.SecretStore(), store: p.PeerDIDStore()}

	for _, option := range opts {
		option(creator)
	}

	return creator
}

// WithCreatorService adds a service to every DID created without explicit services.
func WithCreatorService(svc did.Service) Option {
	return func(opts *DIDCreator) {
		opts.services = append(opts.services, svc)
	}
}

type createOpts struct {
	services    []did.Service
	servicesSet bool
	alias       string
}

// DocOpt configures one Create call.
type DocOpt func(opts *createOpts)

// WithService sets the services of the new DID, replacing the creator defaults. Without arguments the DID
// has no service.
func WithService(svc ...did.Service) DocOpt {
	return func(opts *createOpts) {
		opts.services = append(opts.services, svc...)
		opts.servicesSet = true
	}
}

// WithAlias names the new DID in the agent store.
func WithAlias(alias string) DocOpt {
	return func(opts *createOpts) {
		opts.alias = alias
	}
}

// Create generates an X25519 agreement key and an Ed25519 authentication key, stores their secrets and
// returns the resolved document of the new peer DID.
func (dc *DIDCreator) Create(_ context.Context, opts ...DocOpt) (*did.Doc, error) {
	docOpts := &createOpts{}

	for _, opt := range opts {
		opt(docOpts)
	}

	if !docOpts.servicesSet {
		docOpts.services = dc.services
	}

	edPub, edPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create DID: %w", err)
	}

	xPriv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create DID: %w", err)
	}

	peerDID, err := peer.Create(
		[]peer.Key{{Type: peer.Ed25519, Value: edPub}},
		[]peer.Key{{Type: peer.X25519, Value: xPriv.PublicKey().Bytes()}},
		docOpts.services)
	if err != nil {
		return nil, fmt.Errorf("failed to create DID: %w", err)
	}

	doc, err := peer.Resolve(peerDID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to resolve created DID: %w", err)
	}

	secrets, err := keySecrets(doc, xPriv, edPriv)
	if err != nil {
		return nil, err
	}

	if err = dc.secrets.Add(secrets...); err != nil {
		return nil, fmt.Errorf("failed to store DID secrets: %w", err)
	}

	if err = dc.store.StorePeerDID(doc.ID, docOpts.alias); err != nil {
		return nil, fmt.Errorf("failed to store DID: %w", err)
	}

	logger.Debugf("created peer DID %s", doc.ID)

	return doc, nil
}

func keySecrets(doc *did.Doc, agreement *ecdh.PrivateKey, auth ed25519.PrivateKey) ([]*spisecret.Secret, error) {
	agreementVMs, err := doc.KeyAgreementMethods()
	if err != nil || len(agreementVMs) != 1 {
		return nil, fmt.Errorf("created DID has no single key agreement method: %v", err)
	}

	authVMs, err := doc.AuthenticationMethods()
	if err != nil || len(authVMs) != 1 {
		return nil, fmt.Errorf("created DID has no single authentication method: %v", err)
	}

	agreementSecret, err := secret.NewSecret(did.ResolveReference(doc.ID, agreementVMs[0].ID), agreement)
	if err != nil {
		return nil, err
	}

	authSecret, err := secret.NewSecret(did.ResolveReference(doc.ID, authVMs[0].ID), auth)
	if err != nil {
		return nil, err
	}

	return []*spisecret.Secret{agreementSecret, authSecret}, nil
}
