/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package connection

const (
	// Spec defines the connection protocol spec.
	Spec = "https://atalaprism.io/mercury/connections/1.0/"
	// RequestMsgType is the type of the connection request sent by the invitee.
	RequestMsgType = Spec + "request"
	// ResponseMsgType is the type of the connection response sent by the inviter.
	ResponseMsgType = Spec + "response"
)

// Body is the body of requests and responses.
type Body struct {
	GoalCode string   `json:"goal_code,omitempty"`
	Goal     string   `json:"goal,omitempty"`
	Accept   []string `json:"accept,omitempty"`
}
