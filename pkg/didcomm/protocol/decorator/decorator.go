/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package decorator

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoAttachmentContents is returned when attachment data carries neither JSON nor base64 content.
var ErrNoAttachmentContents = errors.New("no contents in this attachment")

// AttachmentV2 is a DIDComm V2 message attachment
// https://identity.foundation/didcomm-messaging/spec/#attachments
type AttachmentV2 struct {
	// ID is a JSON-LD construct that uniquely identifies attached content within the scope of a given message.
	ID string `json:"id,omitempty"`
	// Description is an optional human-readable description of the content.
	Description string `json:"description,omitempty"`
	// FileName is a hint about the name that might be used if this attachment is persisted as a file.
	FileName string `json:"filename,omitempty"`
	// MediaType describes the MIME type of the attached content.
	MediaType string `json:"media_type,omitempty"`
	// LastModTime is the unix time the content was last modified.
	LastModTime int64 `json:"lastmod_time,omitempty"`
	// ByteCount is an optional, and mostly relevant when content is included by reference instead of by value.
	ByteCount int64 `json:"byte_count,omitempty"`
	// Format describes the format of the attachment if the media_type is not sufficient.
	Format string `json:"format,omitempty"`
	// Data is a JSON object that gives access to the actual content of the attachment.
	Data AttachmentData `json:"data"`
}

// AttachmentData contains attachment payload: exactly one of Base64, JSON or Links (with Hash).
type AttachmentData struct {
	// JWS is a JSON Web Signature over the content of the attachment.
	JWS json.RawMessage `json:"jws,omitempty"`
	// Hash is the hash of the content, mandatory with Links.
	Hash string `json:"hash,omitempty"`
	// Links is a list of zero or more locations at which the content may be fetched.
	Links []string `json:"links,omitempty"`
	// Base64 encoded data, when representing arbitrary content inline instead of via links.
	Base64 string `json:"base64,omitempty"`
	// JSON is a directly embedded JSON data, when representing content inline instead of via links.
	JSON interface{} `json:"json,omitempty"`
}

// Fetch returns the inline content of the attachment.
func (d *AttachmentData) Fetch() ([]byte, error) {
	if d.JSON != nil {
		bits, err := json.Marshal(d.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal json contents : %w", err)
		}

		return bits, nil
	}

	if d.Base64 != "" {
		bits, err := base64.StdEncoding.DecodeString(d.Base64)
		if err != nil {
			bits, err = base64.RawURLEncoding.DecodeString(strings.TrimRight(d.Base64, "="))
		}

		if err != nil {
			return nil, fmt.Errorf("failed to base64 decode attachment contents : %w", err)
		}

		return bits, nil
	}

	return nil, ErrNoAttachmentContents
}

// Thread thread data
type Thread struct {
	ID  string `json:"thid,omitempty"`
	PID string `json:"pthid,omitempty"`
}
