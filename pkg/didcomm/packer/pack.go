/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package packer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/did"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/jose"
	cryptoapi "github.com/hyperledger/aries-edge-agent-go/spi/crypto"
)

// Pack packs msg as mediaType. An encrypted message with a from header is authcrypted, one without is
// anoncrypted.
func (p *Packer) Pack(ctx context.Context, msg *message.Message, mediaType string,
	opts ...PackOption) (*PackResult, error) {
	o := &packOpts{}

	for _, opt := range opts {
		opt(o)
	}

	if err := msg.Validate(); err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}

	plaintext, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}

	switch mediaType {
	case message.MediaTypePlain:
		return &PackResult{Packed: plaintext}, nil
	case message.MediaTypeSigned:
		signed, kid, errSign := p.sign(ctx, msg.From, plaintext)
		if errSign != nil {
			return nil, fmt.Errorf("pack: %w", errSign)
		}

		return &PackResult{Packed: signed, SignFromKID: kid}, nil
	case message.MediaTypeEncrypted:
		return p.packEncrypted(ctx, msg, plaintext, o)
	default:
		return nil, fmt.Errorf("pack: unsupported media type %q", mediaType)
	}
}

func (p *Packer) packEncrypted(ctx context.Context, msg *message.Message, plaintext []byte,
	o *packOpts) (*PackResult, error) {
	if len(msg.To) == 0 {
		return nil, fmt.Errorf("pack: %w", ErrNoDIDReceiverSet)
	}

	result := &PackResult{}
	payload, cty := plaintext, message.MediaTypePlain

	if o.signFrom {
		signed, kid, err := p.sign(ctx, msg.From, plaintext)
		if err != nil {
			return nil, fmt.Errorf("pack: %w", err)
		}

		payload, cty, result.SignFromKID = signed, message.MediaTypeSigned, kid
	}

	recipients := make([][]*cryptoapi.PublicKey, 0, len(msg.To))

	for i, to := range msg.To {
		keys, doc, err := p.agreementKeys(ctx, to)
		if err != nil {
			return nil, fmt.Errorf("pack: %w", err)
		}

		if len(keys) == 0 {
			return nil, fmt.Errorf("pack: %w: %s has no usable key agreement key", ErrNoCompatibleKeyFound, to)
		}

		recipients = append(recipients, keys)

		if i == 0 {
			if services := doc.DIDCommServices(); len(services) > 0 {
				result.Service = &services[0]
			}
		}
	}

	if result.Service == nil && o.serviceRequired {
		return nil, fmt.Errorf("pack: %w: %s", ErrNoValidServiceFound, msg.To[0])
	}

	var (
		sender   *cryptoapi.PrivateKey
		selected []*cryptoapi.PublicKey
		err      error
	)

	if msg.From != "" {
		senders, errSenders := p.senderAgreementKeys(ctx, msg.From)
		if errSenders != nil {
			return nil, fmt.Errorf("pack: %w", errSenders)
		}

		sender, selected, err = selectAuthcryptKeys(senders, recipients)
	} else {
		selected, err = selectAnoncryptKeys(recipients)
	}

	if err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}

	packed, err := p.encrypt(payload, cty, sender, selected, o.enc)
	if err != nil {
		return nil, fmt.Errorf("pack: %w", err)
	}

	result.Packed = packed

	if sender != nil {
		result.FromKID = sender.PublicKey.KID
	}

	for _, k := range selected {
		result.ToKIDs = append(result.ToKIDs, k.KID)
	}

	return result, nil
}

// encrypt builds an authcrypt JWE when sender is set and an anoncrypt JWE otherwise.
func (p *Packer) encrypt(payload []byte, cty string, sender *cryptoapi.PrivateKey,
	recipients []*cryptoapi.PublicKey, anonEnc string) ([]byte, error) {
	var (
		skid string
		enc  = anonEnc
	)

	if sender != nil {
		skid, enc = sender.PublicKey.KID, cryptoapi.A256CBCHS512
	}

	encrypter, err := jose.NewJWEEncrypt(enc, message.MediaTypeEncrypted, cty, skid, sender, recipients, p.crypto)
	if err != nil {
		return nil, err
	}

	jwe, err := encrypter.Encrypt(payload)
	if err != nil {
		return nil, err
	}

	serialized, err := jwe.FullSerialize()
	if err != nil {
		return nil, err
	}

	return []byte(serialized), nil
}

// AnonEncrypt wraps an envelope for recipient keys only, as used for forward messages.
func (p *Packer) AnonEncrypt(ctx context.Context, payload []byte, cty string, to ...string) ([]byte, error) {
	recipients := make([][]*cryptoapi.PublicKey, 0, len(to))

	for _, ref := range to {
		keys, _, err := p.agreementKeys(ctx, ref)
		if err != nil {
			return nil, err
		}

		recipients = append(recipients, keys)
	}

	selected, err := selectAnoncryptKeys(recipients)
	if err != nil {
		return nil, err
	}

	return p.encrypt(payload, cty, nil, selected, "")
}

// sign signs payload with the first authentication key of from that has a secret.
func (p *Packer) sign(ctx context.Context, from string, payload []byte) ([]byte, string, error) {
	if from == "" {
		return nil, "", errors.New("signing requires a from header")
	}

	doc, err := p.vdr.Resolve(ctx, did.DIDFromReference(from))
	if err != nil {
		return nil, "", fmt.Errorf("resolve %s: %w", from, err)
	}

	vms, err := doc.AuthenticationMethods()
	if err != nil {
		return nil, "", err
	}

	kids := make([]string, 0, len(vms))
	for i := range vms {
		kids = append(kids, did.ResolveReference(doc.ID, vms[i].ID))
	}

	secrets, err := p.secrets.FindSecrets(ctx, kids)
	if err != nil {
		return nil, "", fmt.Errorf("find signing secrets: %w", err)
	}

	for _, s := range secrets {
		if s.JWK == nil {
			continue
		}

		signed, errSign := jose.SignJWS(payload, message.MediaTypeSigned, s.ID, s.JWK.Key)
		if errSign != nil {
			logger.Debugf("cannot sign with %s: %v", s.ID, errSign)

			continue
		}

		return []byte(signed), s.ID, nil
	}

	return nil, "", fmt.Errorf("%w: no authentication secret for %s", ErrNoCompatibleKeyFound, from)
}
