/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package secret provides secret resolvers: a storage-backed store and a resolver chain.
package secret

import (
	"context"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-edge-agent-go/component/log"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/jose/jwk"
	spisecret "github.com/hyperledger/aries-edge-agent-go/spi/secret"
	"github.com/hyperledger/aries-edge-agent-go/spi/storage"
)

// StoreName is the name of the storage namespace holding secrets.
const StoreName = "secrets"

var logger = log.New("edge-agent/secret")

// ErrNotPrivate is returned when a secret is built from a public key.
var ErrNotPrivate = errors.New("secret key material must be private")

// NewSecret builds a secret for kid from an ed25519.PrivateKey, an X25519 *ecdh.PrivateKey or a
// P-256 *ecdsa.PrivateKey.
func NewSecret(kid string, privateKey interface{}) (*spisecret.Secret, error) {
	switch privateKey.(type) {
	case ed25519.PrivateKey, *ecdh.PrivateKey, *ecdsa.PrivateKey:
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotPrivate, privateKey)
	}

	j, err := jwk.New(privateKey)
	if err != nil {
		return nil, fmt.Errorf("new secret %s: %w", kid, err)
	}

	j.KeyID = kid

	return &spisecret.Secret{ID: kid, Type: spisecret.TypeJSONWebKey2020, JWK: j}, nil
}

// Store persists secrets in a storage provider. It implements spisecret.Resolver.
type Store struct {
	store storage.Store
}

// NewStore opens the secrets namespace of p.
func NewStore(p storage.Provider) (*Store, error) {
	s, err := p.OpenStore(StoreName)
	if err != nil {
		return nil, fmt.Errorf("open secrets store: %w", err)
	}

	return &Store{store: s}, nil
}

// Add stores secrets, replacing secrets with the same id.
func (s *Store) Add(secrets ...*spisecret.Secret) error {
	for _, sec := range secrets {
		if sec == nil || sec.JWK == nil || !sec.JWK.IsPrivate() {
			return ErrNotPrivate
		}

		b, err := json.Marshal(sec)
		if err != nil {
			return fmt.Errorf("marshal secret %s: %w", sec.ID, err)
		}

		if err = s.store.Put(sec.ID, b, storage.Tag{Name: "type", Value: sec.Type}); err != nil {
			return fmt.Errorf("put secret %s: %w", sec.ID, err)
		}
	}

	return nil
}

// FindSecrets returns the stored secrets for kids.
func (s *Store) FindSecrets(_ context.Context, kids []string) ([]spisecret.Secret, error) {
	var found []spisecret.Secret

	for _, kid := range kids {
		b, err := s.store.Get(kid)
		if errors.Is(err, storage.ErrDataNotFound) {
			continue
		}

		if err != nil {
			return nil, fmt.Errorf("get secret %s: %w", kid, err)
		}

		var sec spisecret.Secret

		if err = json.Unmarshal(b, &sec); err != nil {
			return nil, fmt.Errorf("parse secret %s: %w", kid, err)
		}

		found = append(found, sec)
	}

	return found, nil
}

// MultiResolver consults resolvers in order; the first resolver knowing a kid wins.
type MultiResolver struct {
	resolvers []spisecret.Resolver
}

// NewMultiResolver creates a MultiResolver.
func NewMultiResolver(resolvers ...spisecret.Resolver) *MultiResolver {
	return &MultiResolver{resolvers: resolvers}
}

// FindSecrets returns at most one secret per kid, in kids order.
func (m *MultiResolver) FindSecrets(ctx context.Context, kids []string) ([]spisecret.Secret, error) {
	byKID := make(map[string]spisecret.Secret, len(kids))
	pending := append([]string(nil), kids...)

	for _, r := range m.resolvers {
		if len(pending) == 0 {
			break
		}

		secrets, err := r.FindSecrets(ctx, pending)
		if err != nil {
			return nil, err
		}

		for _, sec := range secrets {
			if _, ok := byKID[sec.ID]; !ok {
				byKID[sec.ID] = sec
			}
		}

		pending = pending[:0:0]

		for _, kid := range kids {
			if _, ok := byKID[kid]; !ok {
				pending = append(pending, kid)
			}
		}
	}

	if len(pending) > 0 {
		logger.Debugf("no secret found for %d of %d kids", len(pending), len(kids))
	}

	found := make([]spisecret.Secret, 0, len(byKID))

	for _, kid := range kids {
		if sec, ok := byKID[kid]; ok {
			found = append(found, sec)
			delete(byKID, kid)
		}
	}

	return found, nil
}
