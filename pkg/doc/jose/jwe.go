/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package jose

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	errEmptyCiphertext = errors.New("ciphertext cannot be empty")
	errNoRecipients    = errors.New("jwe has no recipients")
)

// JSONWebEncryption represents a JWE as defined in https://tools.ietf.org/html/rfc7516.
// Binary members hold raw (decoded) bytes.
type JSONWebEncryption struct {
	ProtectedHeaders Headers
	Recipients       []*Recipient
	IV               []byte
	Ciphertext       []byte
	Tag              []byte

	// protected is the exact base64url protected header, the content AAD.
	protected string
}

// Recipient is a recipient of a JWE including the shared encryption key.
type Recipient struct {
	EncryptedKey []byte
	Header       RecipientHeaders
}

// RecipientHeaders are the recipient headers.
type RecipientHeaders struct {
	KID string `json:"kid,omitempty"`
}

type rawRecipient struct {
	EncryptedKey string           `json:"encrypted_key"`
	Header       RecipientHeaders `json:"header"`
}

// rawJSONWebEncryption represents a RAW JWE that is used for serialization/deserialization.
type rawJSONWebEncryption struct {
	ProtectedHeaders string         `json:"protected"`
	Recipients       []rawRecipient `json:"recipients"`
	IV               string         `json:"iv"`
	Ciphertext       string         `json:"ciphertext"`
	Tag              string         `json:"tag"`
}

// RecipientKIDs returns the kid of each recipient in order.
func (e *JSONWebEncryption) RecipientKIDs() []string {
	kids := make([]string, 0, len(e.Recipients))

	for _, r := range e.Recipients {
		kids = append(kids, r.Header.KID)
	}

	return kids
}

// AAD returns the additional authenticated data of the content encryption, the ASCII base64url protected
// header.
func (e *JSONWebEncryption) AAD() ([]byte, error) {
	if e.protected != "" {
		return []byte(e.protected), nil
	}

	protected, err := encodeProtected(e.ProtectedHeaders)
	if err != nil {
		return nil, err
	}

	e.protected = protected

	return []byte(protected), nil
}

// FullSerialize serializes the JWE into the general JSON serialization
// (https://tools.ietf.org/html/rfc7516#section-7.2.1).
func (e *JSONWebEncryption) FullSerialize() (string, error) {
	if len(e.Ciphertext) == 0 {
		return "", errEmptyCiphertext
	}

	if len(e.Recipients) == 0 {
		return "", errNoRecipients
	}

	aad, err := e.AAD()
	if err != nil {
		return "", err
	}

	recipients := make([]rawRecipient, 0, len(e.Recipients))

	for _, r := range e.Recipients {
		recipients = append(recipients, rawRecipient{
			EncryptedKey: encode(r.EncryptedKey),
			Header:       r.Header,
		})
	}

	serialized, err := json.Marshal(rawJSONWebEncryption{
		ProtectedHeaders: string(aad),
		Recipients:       recipients,
		IV:               encode(e.IV),
		Ciphertext:       encode(e.Ciphertext),
		Tag:              encode(e.Tag),
	})
	if err != nil {
		return "", err
	}

	return string(serialized), nil
}

// Deserialize parses a JWE in general JSON serialization.
func Deserialize(serialized string) (*JSONWebEncryption, error) {
	if !strings.HasPrefix(strings.TrimSpace(serialized), "{") {
		return nil, errors.New("only the JSON serialization is supported")
	}

	var raw rawJSONWebEncryption

	if err := json.Unmarshal([]byte(serialized), &raw); err != nil {
		return nil, fmt.Errorf("parse jwe: %w", err)
	}

	if len(raw.Recipients) == 0 {
		return nil, errNoRecipients
	}

	protectedJSON, err := decode(raw.ProtectedHeaders)
	if err != nil {
		return nil, fmt.Errorf("decode protected headers: %w", err)
	}

	var headers Headers

	if err = json.Unmarshal(protectedJSON, &headers); err != nil {
		return nil, fmt.Errorf("parse protected headers: %w", err)
	}

	jwe := &JSONWebEncryption{ProtectedHeaders: headers, protected: raw.ProtectedHeaders}

	for i, r := range raw.Recipients {
		ek, errKey := decode(r.EncryptedKey)
		if errKey != nil {
			return nil, fmt.Errorf("decode encrypted_key of recipient %d: %w", i, errKey)
		}

		jwe.Recipients = append(jwe.Recipients, &Recipient{EncryptedKey: ek, Header: r.Header})
	}

	if jwe.IV, err = decode(raw.IV); err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}

	if jwe.Ciphertext, err = decode(raw.Ciphertext); err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	if len(jwe.Ciphertext) == 0 {
		return nil, errEmptyCiphertext
	}

	if jwe.Tag, err = decode(raw.Tag); err != nil {
		return nil, fmt.Errorf("decode tag: %w", err)
	}

	return jwe, nil
}

func encodeProtected(h Headers) (string, error) {
	protectedJSON, err := json.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("marshal protected headers: %w", err)
	}

	return encode(protectedJSON), nil
}

func encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}

func decode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
}
