/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package did holds the DID and DID URL value types, their parsing grammar and the DID document model.
package did

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/jose/jwk"
	"github.com/hyperledger/aries-edge-agent-go/pkg/doc/util/fingerprint"
)

const (
	// ContextV1 of the DID document.
	ContextV1 = "https://www.w3.org/ns/did/v1"

	// DIDCommMessagingServiceType is the DIDComm v2 service type.
	DIDCommMessagingServiceType = "DIDCommMessaging"

	jsonldType           = "type"
	jsonldID             = "id"
	jsonldController     = "controller"
	jsonldServicePoint   = "serviceEndpoint"
	jsonldPublicKeyJwk   = "publicKeyJwk"
	jsonldPublicKeyMbase = "publicKeyMultibase"
	jsonldURI            = "uri"
	jsonldAccept         = "accept"
	jsonldRoutingKeys    = "routingKeys"
)

// ErrVerificationMethodNotFound is returned when a verification relationship references a key the
// document does not contain.
var ErrVerificationMethodNotFound = errors.New("verification method not found")

// Doc DID Document definition.
type Doc struct {
	Context              []string
	ID                   string
	VerificationMethod   []VerificationMethod
	Authentication       []Verification
	AssertionMethod      []Verification
	KeyAgreement         []Verification
	CapabilityInvocation []Verification
	CapabilityDelegation []Verification
	Service              []Service
}

// VerificationMethod DID doc verification method. Material is either a JWK or a multibase value.
type VerificationMethod struct {
	ID                 string
	Type               string
	Controller         string
	JSONWebKey         *jwk.JWK
	PublicKeyMultibase string
}

// Verification is a verification relationship entry: a reference to a verification method of the
// document, or an embedded verification method.
type Verification struct {
	VerificationMethod VerificationMethod
	Embedded           bool
}

// NewReferencedVerification creates a verification relationship that references vm by id.
func NewReferencedVerification(vm *VerificationMethod) Verification {
	return Verification{VerificationMethod: VerificationMethod{ID: vm.ID}}
}

// NewEmbeddedVerification creates a verification relationship embedding vm.
func NewEmbeddedVerification(vm *VerificationMethod) Verification {
	return Verification{VerificationMethod: *vm, Embedded: true}
}

// Service DID doc service.
type Service struct {
	ID              string
	Type            []string
	ServiceEndpoint []ServiceEndpoint
}

// ServiceEndpoint is a DIDComm v2 endpoint.
type ServiceEndpoint struct {
	URI         string   `json:"uri"`
	Accept      []string `json:"accept,omitempty"`
	RoutingKeys []string `json:"routingKeys,omitempty"`
}

// HasType reports whether the service has type t.
func (s *Service) HasType(t string) bool {
	for _, st := range s.Type {
		if st == t {
			return true
		}
	}

	return false
}

type rawDoc struct {
	Context              interface{}              `json:"@context,omitempty"`
	ID                   string                   `json:"id,omitempty"`
	VerificationMethod   []map[string]interface{} `json:"verificationMethod,omitempty"`
	Authentication       []interface{}            `json:"authentication,omitempty"`
	AssertionMethod      []interface{}            `json:"assertionMethod,omitempty"`
	KeyAgreement         []interface{}            `json:"keyAgreement,omitempty"`
	CapabilityInvocation []interface{}            `json:"capabilityInvocation,omitempty"`
	CapabilityDelegation []interface{}            `json:"capabilityDelegation,omitempty"`
	Service              []map[string]interface{} `json:"service,omitempty"`
}

// ParseDocument creates an instance of DIDDocument by reading a JSON document from bytes.
func ParseDocument(data []byte) (*Doc, error) {
	raw := &rawDoc{}

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return nil, fmt.Errorf("JSON marshalling of did doc bytes failed: %w", err)
	} else if raw == nil {
		return nil, errors.New("document payload is not provided")
	}

	if _, err = Parse(raw.ID); err != nil {
		return nil, fmt.Errorf("invalid document id: %w", err)
	}

	doc := &Doc{Context: parseContext(raw.Context), ID: raw.ID}

	doc.VerificationMethod, err = populateVerificationMethods(raw.ID, raw.VerificationMethod)
	if err != nil {
		return nil, fmt.Errorf("populate verification methods failed: %w", err)
	}

	relationships := []struct {
		target *[]Verification
		raw    []interface{}
	}{
		{&doc.Authentication, raw.Authentication},
		{&doc.AssertionMethod, raw.AssertionMethod},
		{&doc.KeyAgreement, raw.KeyAgreement},
		{&doc.CapabilityInvocation, raw.CapabilityInvocation},
		{&doc.CapabilityDelegation, raw.CapabilityDelegation},
	}

	for _, rel := range relationships {
		*rel.target, err = populateVerifications(raw.ID, rel.raw)
		if err != nil {
			return nil, fmt.Errorf("populate verification relationship failed: %w", err)
		}
	}

	doc.Service, err = populateServices(raw.ID, raw.Service)
	if err != nil {
		return nil, fmt.Errorf("populate services failed: %w", err)
	}

	return doc, nil
}

func parseContext(context interface{}) []string {
	switch ctx := context.(type) {
	case string:
		return []string{ctx}
	case []interface{}:
		return stringArray(ctx)
	default:
		return []string{ContextV1}
	}
}

func populateVerificationMethods(docID string, rawVMs []map[string]interface{}) ([]VerificationMethod, error) {
	vms := make([]VerificationMethod, 0, len(rawVMs))

	for _, rawVM := range rawVMs {
		vm, err := populateVerificationMethod(docID, rawVM)
		if err != nil {
			return nil, err
		}

		vms = append(vms, *vm)
	}

	return vms, nil
}

func populateVerificationMethod(docID string, rawVM map[string]interface{}) (*VerificationMethod, error) {
	vm := &VerificationMethod{
		ID:                 ResolveReference(docID, stringEntry(rawVM[jsonldID])),
		Type:               stringEntry(rawVM[jsonldType]),
		Controller:         stringEntry(rawVM[jsonldController]),
		PublicKeyMultibase: stringEntry(rawVM[jsonldPublicKeyMbase]),
	}

	if vm.Controller == "" {
		vm.Controller = docID
	}

	if jwkMap := mapEntry(rawVM[jsonldPublicKeyJwk]); jwkMap != nil {
		jwkBytes, err := json.Marshal(jwkMap)
		if err != nil {
			return nil, fmt.Errorf("marshal publicKeyJwk: %w", err)
		}

		vm.JSONWebKey = &jwk.JWK{}

		if err = vm.JSONWebKey.UnmarshalJSON(jwkBytes); err != nil {
			return nil, fmt.Errorf("verification method %s: %w", vm.ID, err)
		}
	}

	if vm.JSONWebKey == nil && vm.PublicKeyMultibase == "" {
		return nil, fmt.Errorf("verification method %s has no supported key material", vm.ID)
	}

	return vm, nil
}

func populateVerifications(docID string, rawVerifications []interface{}) ([]Verification, error) {
	verifications := make([]Verification, 0, len(rawVerifications))

	for _, rawVerification := range rawVerifications {
		switch v := rawVerification.(type) {
		case string:
			verifications = append(verifications, Verification{
				VerificationMethod: VerificationMethod{ID: ResolveReference(docID, v)},
			})
		case map[string]interface{}:
			vm, err := populateVerificationMethod(docID, v)
			if err != nil {
				return nil, err
			}

			verifications = append(verifications, NewEmbeddedVerification(vm))
		default:
			return nil, fmt.Errorf("verification relationship entry of type %T", rawVerification)
		}
	}

	return verifications, nil
}

func populateServices(docID string, rawServices []map[string]interface{}) ([]Service, error) {
	services := make([]Service, 0, len(rawServices))

	for _, rawService := range rawServices {
		endpoints, err := populateServiceEndpoints(rawService[jsonldServicePoint])
		if err != nil {
			return nil, fmt.Errorf("service %v: %w", rawService[jsonldID], err)
		}

		services = append(services, Service{
			ID:              ResolveReference(docID, stringEntry(rawService[jsonldID])),
			Type:            stringOrArray(rawService[jsonldType]),
			ServiceEndpoint: endpoints,
		})
	}

	return services, nil
}

func populateServiceEndpoints(raw interface{}) ([]ServiceEndpoint, error) {
	switch ep := raw.(type) {
	case string:
		return []ServiceEndpoint{{URI: ep}}, nil
	case map[string]interface{}:
		return []ServiceEndpoint{{
			URI:         stringEntry(ep[jsonldURI]),
			Accept:      stringArray(ep[jsonldAccept]),
			RoutingKeys: stringArray(ep[jsonldRoutingKeys]),
		}}, nil
	case []interface{}:
		var endpoints []ServiceEndpoint

		for _, e := range ep {
			parsed, err := populateServiceEndpoints(e)
			if err != nil {
				return nil, err
			}

			endpoints = append(endpoints, parsed...)
		}

		return endpoints, nil
	default:
		return nil, fmt.Errorf("unsupported serviceEndpoint of type %T", raw)
	}
}

func stringEntry(entry interface{}) string {
	s, _ := entry.(string) //nolint:errcheck

	return s
}

func stringArray(entry interface{}) []string {
	entries, ok := entry.([]interface{})
	if !ok {
		return nil
	}

	var result []string

	for _, e := range entries {
		if s, ok := e.(string); ok {
			result = append(result, s)
		}
	}

	return result
}

func stringOrArray(entry interface{}) []string {
	if s, ok := entry.(string); ok {
		return []string{s}
	}

	return stringArray(entry)
}

func mapEntry(entry interface{}) map[string]interface{} {
	result, _ := entry.(map[string]interface{}) //nolint:errcheck

	return result
}

// JSONBytes converts document to json bytes.
func (doc *Doc) JSONBytes() ([]byte, error) {
	context := doc.Context
	if len(context) == 0 {
		context = []string{ContextV1}
	}

	raw := &rawDoc{
		Context:              context,
		ID:                   doc.ID,
		VerificationMethod:   populateRawVerificationMethods(doc.VerificationMethod),
		Authentication:       populateRawVerifications(doc.Authentication),
		AssertionMethod:      populateRawVerifications(doc.AssertionMethod),
		KeyAgreement:         populateRawVerifications(doc.KeyAgreement),
		CapabilityInvocation: populateRawVerifications(doc.CapabilityInvocation),
		CapabilityDelegation: populateRawVerifications(doc.CapabilityDelegation),
		Service:              populateRawServices(doc.Service),
	}

	byteDoc, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("JSON unmarshalling of document failed: %w", err)
	}

	return byteDoc, nil
}

func populateRawVerificationMethods(vms []VerificationMethod) []map[string]interface{} {
	rawVMs := make([]map[string]interface{}, 0, len(vms))

	for i := range vms {
		rawVMs = append(rawVMs, populateRawVerificationMethod(&vms[i]))
	}

	return rawVMs
}

func populateRawVerificationMethod(vm *VerificationMethod) map[string]interface{} {
	rawVM := map[string]interface{}{
		jsonldID:         vm.ID,
		jsonldType:       vm.Type,
		jsonldController: vm.Controller,
	}

	if vm.JSONWebKey != nil {
		rawVM[jsonldPublicKeyJwk] = vm.JSONWebKey
	}

	if vm.PublicKeyMultibase != "" {
		rawVM[jsonldPublicKeyMbase] = vm.PublicKeyMultibase
	}

	return rawVM
}

func populateRawVerifications(verifications []Verification) []interface{} {
	rawVerifications := make([]interface{}, 0, len(verifications))

	for i := range verifications {
		if verifications[i].Embedded {
			rawVerifications = append(rawVerifications,
				populateRawVerificationMethod(&verifications[i].VerificationMethod))

			continue
		}

		rawVerifications = append(rawVerifications, verifications[i].VerificationMethod.ID)
	}

	return rawVerifications
}

func populateRawServices(services []Service) []map[string]interface{} {
	rawServices := make([]map[string]interface{}, 0, len(services))

	for _, s := range services {
		rawService := map[string]interface{}{jsonldID: s.ID}

		if len(s.Type) == 1 {
			rawService[jsonldType] = s.Type[0]
		} else {
			rawService[jsonldType] = s.Type
		}

		if len(s.ServiceEndpoint) == 1 {
			rawService[jsonldServicePoint] = s.ServiceEndpoint[0]
		} else {
			rawService[jsonldServicePoint] = s.ServiceEndpoint
		}

		rawServices = append(rawServices, rawService)
	}

	return rawServices
}

// VerificationMethodByID finds a verification method by absolute or document relative id.
// Embedded verification methods are searched too.
func (doc *Doc) VerificationMethodByID(id string) (*VerificationMethod, bool) {
	id = ResolveReference(doc.ID, id)

	for i := range doc.VerificationMethod {
		if doc.VerificationMethod[i].ID == id {
			return &doc.VerificationMethod[i], true
		}
	}

	for _, rel := range [][]Verification{
		doc.Authentication, doc.AssertionMethod, doc.KeyAgreement,
		doc.CapabilityInvocation, doc.CapabilityDelegation,
	} {
		for i := range rel {
			if rel[i].Embedded && rel[i].VerificationMethod.ID == id {
				return &rel[i].VerificationMethod, true
			}
		}
	}

	return nil, false
}

// AuthenticationMethods dereferences the authentication relationship.
func (doc *Doc) AuthenticationMethods() ([]VerificationMethod, error) {
	return doc.dereference(doc.Authentication)
}

// KeyAgreementMethods dereferences the keyAgreement relationship.
func (doc *Doc) KeyAgreementMethods() ([]VerificationMethod, error) {
	return doc.dereference(doc.KeyAgreement)
}

func (doc *Doc) dereference(verifications []Verification) ([]VerificationMethod, error) {
	vms := make([]VerificationMethod, 0, len(verifications))

	for i := range verifications {
		if verifications[i].Embedded {
			vms = append(vms, verifications[i].VerificationMethod)

			continue
		}

		vm, ok := doc.VerificationMethodByID(verifications[i].VerificationMethod.ID)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrVerificationMethodNotFound, verifications[i].VerificationMethod.ID)
		}

		vms = append(vms, *vm)
	}

	return vms, nil
}

// Validate checks that every verification relationship resolves within the document.
func (doc *Doc) Validate() error {
	for _, rel := range [][]Verification{
		doc.Authentication, doc.AssertionMethod, doc.KeyAgreement,
		doc.CapabilityInvocation, doc.CapabilityDelegation,
	} {
		if _, err := doc.dereference(rel); err != nil {
			return err
		}
	}

	return nil
}

// DIDCommServices returns the DIDCommMessaging services of the document.
func (doc *Doc) DIDCommServices() []Service {
	var services []Service

	for _, s := range doc.Service {
		if s.HasType(DIDCommMessagingServiceType) {
			services = append(services, s)
		}
	}

	return services
}

// JWK returns the verification method key material as a JWK, decoding multibase material if needed.
func (vm *VerificationMethod) JWK() (*jwk.JWK, error) {
	if vm.JSONWebKey != nil {
		return vm.JSONWebKey, nil
	}

	if vm.PublicKeyMultibase == "" {
		return nil, fmt.Errorf("verification method %s has no key material", vm.ID)
	}

	return fingerprint.JWKFromFingerprint(vm.PublicKeyMultibase)
}

// Fragment returns the fragment of the verification method id.
func (vm *VerificationMethod) Fragment() string {
	if i := strings.LastIndex(vm.ID, "#"); i >= 0 {
		return vm.ID[i+1:]
	}

	return ""
}

// DocOption provides DID Doc options.
type DocOption func(opts *Doc)

// WithVerificationMethod sets the verification methods of the document.
func WithVerificationMethod(vms []VerificationMethod) DocOption {
	return func(opts *Doc) {
		opts.VerificationMethod = vms
	}
}

// WithAuthentication sets the authentication relationship.
func WithAuthentication(auth []Verification) DocOption {
	return func(opts *Doc) {
		opts.Authentication = auth
	}
}

// WithKeyAgreement sets the keyAgreement relationship.
func WithKeyAgreement(ka []Verification) DocOption {
	return func(opts *Doc) {
		opts.KeyAgreement = ka
	}
}

// WithAssertionMethod sets the assertionMethod relationship.
func WithAssertionMethod(am []Verification) DocOption {
	return func(opts *Doc) {
		opts.AssertionMethod = am
	}
}

// WithCapabilityInvocation sets the capabilityInvocation relationship.
func WithCapabilityInvocation(ci []Verification) DocOption {
	return func(opts *Doc) {
		opts.CapabilityInvocation = ci
	}
}

// WithCapabilityDelegation sets the capabilityDelegation relationship.
func WithCapabilityDelegation(cd []Verification) DocOption {
	return func(opts *Doc) {
		opts.CapabilityDelegation = cd
	}
}

// WithService sets the services of the document.
func WithService(svc []Service) DocOption {
	return func(opts *Doc) {
		opts.Service = svc
	}
}

// BuildDoc creates the DID Doc from options.
func BuildDoc(id string, opts ...DocOption) *Doc {
	doc := &Doc{Context: []string{ContextV1}, ID: id}

	for _, opt := range opts {
		opt(doc)
	}

	return doc
}
