/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package mediator

const (
	// Coordinate defines the mediator coordination protocol name.
	Coordinate = "coordinatemediation"
	// Spec defines the mediator coordination spec.
	Spec = "https://didcomm.org/coordinate-mediation/2.0/"
	// MediateRequestMsgType defines the mediate-request message type.
	MediateRequestMsgType = Spec + "mediate-request"
	// MediateGrantMsgType defines the mediate-grant message type.
	MediateGrantMsgType = Spec + "mediate-grant"
	// MediateDenyMsgType defines the mediate-deny message type.
	MediateDenyMsgType = Spec + "mediate-deny"
	// KeylistUpdateMsgType defines the keylist-update message type.
	KeylistUpdateMsgType = Spec + "keylist-update"
	// KeylistUpdateResponseMsgType defines the keylist-update-response message type.
	KeylistUpdateResponseMsgType = Spec + "keylist-update-response"

	// ForwardMsgType defines the routing forward message type.
	ForwardMsgType = "https://didcomm.org/routing/2.0/forward"
)

// Keylist update actions and results.
const (
	ActionAdd    = "add"
	ActionRemove = "remove"

	ResultSuccess     = "success"
	ResultNoChange    = "no_change"
	ResultClientError = "client_error"
	ResultServerError = "server_error"
)

// Grant is the body of mediate-grant.
type Grant struct {
	RoutingDID string `json:"routing_did"`
}

// KeylistUpdate is the body of keylist-update.
type KeylistUpdate struct {
	Updates []Update `json:"updates"`
}

// Update adds or removes one recipient DID.
type Update struct {
	RecipientDID string `json:"recipient_did"`
	Action       string `json:"action"`
}

// KeylistUpdateResponse is the body of keylist-update-response.
type KeylistUpdateResponse struct {
	Updated []UpdateResponse `json:"updated"`
}

// UpdateResponse reports the result of one Update.
type UpdateResponse struct {
	RecipientDID string `json:"recipient_did"`
	Action       string `json:"action"`
	Result       string `json:"result"`
}

// Forward is the body of a routing forward message.
type Forward struct {
	Next string `json:"next"`
}
