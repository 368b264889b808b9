/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package edgeagent is an edge agent SDK core for DID resolution and DIDComm v2 messaging.
//
// # Packages for end developer usage
//
// pkg/framework/agent: The agent facade. It wires the resolver registry, the pack/unpack pipeline,
// the mediator, pickup, connection and basic message protocols over a storage provider.
//
// pkg/doc/did: DID and DID URL parsing and the DID document model.
//
// pkg/vdr/peer: did:peer numalgo 0 and 2 creation and resolution.
//
// pkg/vdr/prism: did:prism long form creation and resolution, short form through a ledger lookup.
//
// pkg/didcomm/packer: DIDComm v2 plaintext, signed, anoncrypt and authcrypt envelopes.
//
// pkg/didcomm/protocol/outofband: out-of-band invitations and their URL form.
package edgeagent
