/*
Copyright Scoir Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package messagepickup

import (
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/message"
	"github.com/hyperledger/aries-edge-agent-go/pkg/didcomm/packer"
)

const (
	// Spec defines the protocol spec.
	Spec = "https://didcomm.org/messagepickup/3.0/"
	// StatusRequestMsgType asks the mediator how many messages are queued.
	StatusRequestMsgType = Spec + "status-request"
	// StatusMsgType reports the queue status.
	StatusMsgType = Spec + "status"
	// DeliveryRequestMsgType asks the mediator to deliver queued messages.
	DeliveryRequestMsgType = Spec + "delivery-request"
	// DeliveryMsgType carries queued messages as attachments.
	DeliveryMsgType = Spec + "delivery"
	// MessagesReceivedMsgType acknowledges delivered messages so the mediator can drop them.
	MessagesReceivedMsgType = Spec + "messages-received"
)

// StatusRequest is the status-request body.
type StatusRequest struct {
	RecipientDID string `json:"recipient_did,omitempty"`
}

// Status is the status body.
type Status struct {
	RecipientDID      string `json:"recipient_did,omitempty"`
	MessageCount      int    `json:"message_count"`
	LongestWaitedSecs int    `json:"longest_waited_seconds,omitempty"`
	NewestReceivedAt  int64  `json:"newest_received_time,omitempty"`
	OldestReceivedAt  int64  `json:"oldest_received_time,omitempty"`
	TotalBytes        int    `json:"total_bytes,omitempty"`
	LiveDelivery      bool   `json:"live_delivery,omitempty"`
}

// DeliveryRequest is the delivery-request body.
type DeliveryRequest struct {
	Limit        int    `json:"limit"`
	RecipientDID string `json:"recipient_did,omitempty"`
}

// MessagesReceived is the messages-received body.
type MessagesReceived struct {
	MessageIDList []string `json:"message_id_list"`
}

// Delivered is one message picked up from the mediator. Err is set when the attachment could not be
// unpacked; the other attachments of the batch are unaffected.
type Delivered struct {
	AttachmentID string
	Message      *message.Message
	Metadata     *packer.UnpackMetadata
	Err          error
}
