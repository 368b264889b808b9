/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package packer

import (
	"context"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/jose/jwk/jwksupport"
	cryptoapi "github.com/hyperledger/aries-edge-agent-go/spi/crypto"
	"github.com/hyperledger/aries-edge-agent-go/spi/secret"
)

// agreementKeys returns the key agreement keys of a DID, or the single key a DID URL points to.
func (p *Packer) agreementKeys(ctx context.Context, ref string) ([]*cryptoapi.PublicKey, *did.Doc, error) {
	doc, err := p.vdr.Resolve(ctx, did.DIDFromReference(ref))
	if err != nil {
		return nil, nil, fmt.Errorf("resolve %s: %w", ref, err)
	}

	vms, err := doc.KeyAgreementMethods()
	if err != nil {
		return nil, nil, err
	}

	var keys []*cryptoapi.PublicKey

	for i := range vms {
		kid := did.ResolveReference(doc.ID, vms[i].ID)
		if ref != did.DIDFromReference(ref) && kid != ref {
			continue
		}

		j, errJWK := vms[i].JWK()
		if errJWK != nil {
			logger.Debugf("skipping key agreement method %s: %v", kid, errJWK)

			continue
		}

		pub, errPub := jwksupport.PublicKeyFromJWK(j, kid)
		if errPub != nil {
			logger.Debugf("skipping key agreement method %s: %v", kid, errPub)

			continue
		}

		keys = append(keys, pub)
	}

	return keys, doc, nil
}

// senderAgreementKeys returns the private key agreement keys of from that have a secret, in document order.
func (p *Packer) senderAgreementKeys(ctx context.Context, from string) ([]*cryptoapi.PrivateKey, error) {
	pubs, _, err := p.agreementKeys(ctx, from)
	if err != nil {
		return nil, err
	}

	kids := make([]string, 0, len(pubs))
	for _, pub := range pubs {
		kids = append(kids, pub.KID)
	}

	secrets, err := p.secrets.FindSecrets(ctx, kids)
	if err != nil {
		return nil, fmt.Errorf("find sender secrets: %w", err)
	}

	var keys []*cryptoapi.PrivateKey

	for _, kid := range kids {
		i := slices.IndexFunc(secrets, func(s secret.Secret) bool { return s.ID == kid })
		if i < 0 || secrets[i].JWK == nil {
			continue
		}

		priv, errPriv := jwksupport.PrivateKeyFromJWK(secrets[i].JWK, kid)
		if errPriv != nil {
			logger.Debugf("skipping sender secret %s: %v", kid, errPriv)

			continue
		}

		keys = append(keys, priv)
	}

	return keys, nil
}

// matchCurve picks, for every recipient, all its keys on curve. It fails when a recipient has none.
func matchCurve(curve string, recipients [][]*cryptoapi.PublicKey) ([]*cryptoapi.PublicKey, bool) {
	var selected []*cryptoapi.PublicKey

	for _, keys := range recipients {
		n := len(selected)

		for _, k := range keys {
			if k.Curve == curve {
				selected = append(selected, k)
			}
		}

		if len(selected) == n {
			return nil, false
		}
	}

	return selected, true
}

// selectAuthcryptKeys picks the first sender key whose curve every recipient supports.
func selectAuthcryptKeys(senders []*cryptoapi.PrivateKey,
	recipients [][]*cryptoapi.PublicKey) (*cryptoapi.PrivateKey, []*cryptoapi.PublicKey, error) {
	for _, sender := range senders {
		if selected, ok := matchCurve(sender.PublicKey.Curve, recipients); ok {
			return sender, selected, nil
		}
	}

	return nil, nil, fmt.Errorf("%w: no sender key agreement key shares a curve with all recipients",
		ErrNoCompatibleKeyFound)
}

// selectAnoncryptKeys picks the first curve of the first recipient that every recipient supports.
func selectAnoncryptKeys(recipients [][]*cryptoapi.PublicKey) ([]*cryptoapi.PublicKey, error) {
	if len(recipients) > 0 {
		var tried []string

		for _, k := range recipients[0] {
			if slices.Contains(tried, k.Curve) {
				continue
			}

			tried = append(tried, k.Curve)

			if selected, ok := matchCurve(k.Curve, recipients); ok {
				return selected, nil
			}
		}
	}

	return nil, fmt.Errorf("%w: recipients share no key agreement curve", ErrNoCompatibleKeyFound)
}
