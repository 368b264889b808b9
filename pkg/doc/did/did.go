/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package did

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const (
	// Scheme is the only DID scheme.
	Scheme = "did"

	idchar = `(?:[A-Za-z0-9._-]|%[0-9A-Fa-f]{2})`
)

//nolint:gochecknoglobals
var (
	didRegex      = regexp.MustCompile(`^did:([a-z0-9]+):(` + idchar + `+(?::` + idchar + `+)*)$`)
	pathRegex     = regexp.MustCompile(`^(?:/(?:[A-Za-z0-9._~!$&'()*+,;=:@-]|%[0-9A-Fa-f]{2})*)*$`)
	fragmentRegex = regexp.MustCompile(`^(?:[A-Za-z0-9._~!$&'()*+,;=:@/?-]|%[0-9A-Fa-f]{2})*$`)
)

// ErrInvalidDIDSyntax is returned for strings that do not follow the generic DID (URL) syntax.
var ErrInvalidDIDSyntax = errors.New("invalid DID syntax")

// DID is parsed according to the generic syntax: https://w3c.github.io/did-core/#generic-did-syntax
type DID struct {
	Scheme           string // Scheme is always "did"
	Method           string // Method is the specific DID methods
	MethodSpecificID string // MethodSpecificID is the unique ID computed or assigned by the DID method
}

// String returns a string representation of this DID.
func (d *DID) String() string {
	return fmt.Sprintf("%s:%s:%s", d.Scheme, d.Method, d.MethodSpecificID)
}

// Parse parses the string according to the generic DID syntax.
// The method name is [a-z0-9]+ and the method specific id is a list of colon separated segments of
// [A-Za-z0-9._-] or percent escapes, of which only the last must be non-empty.
func Parse(did string) (*DID, error) {
	m := didRegex.FindStringSubmatch(did)
	if m == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDIDSyntax, did)
	}

	return &DID{Scheme: Scheme, Method: m[1], MethodSpecificID: m[2]}, nil
}

// DIDURL holds a DID URL: a DID plus optional path, query and fragment.
type DIDURL struct {
	DID
	Path     string
	Queries  map[string][]string
	Fragment string
}

// ParseDIDURL parses a DID URL string: did ["/" path] ["?" query] ["#" fragment].
func ParseDIDURL(didURL string) (*DIDURL, error) {
	didPart, rest := didURL, ""
	if split := strings.IndexAny(didURL, "/?#"); split >= 0 {
		didPart, rest = didURL[:split], didURL[split:]
	}

	d, err := Parse(didPart)
	if err != nil {
		return nil, err
	}

	u := &DIDURL{DID: *d, Queries: map[string][]string{}}

	if i := strings.Index(rest, "#"); i >= 0 {
		u.Fragment = rest[i+1:]
		rest = rest[:i]

		if !fragmentRegex.MatchString(u.Fragment) {
			return nil, fmt.Errorf("%w: invalid fragment in %q", ErrInvalidDIDSyntax, didURL)
		}
	}

	if i := strings.Index(rest, "?"); i >= 0 {
		q, errQuery := url.ParseQuery(rest[i+1:])
		if errQuery != nil {
			return nil, fmt.Errorf("%w: invalid query in %q: %s", ErrInvalidDIDSyntax, didURL, errQuery.Error())
		}

		u.Queries = q
		rest = rest[:i]
	}

	if !pathRegex.MatchString(rest) {
		return nil, fmt.Errorf("%w: invalid path in %q", ErrInvalidDIDSyntax, didURL)
	}

	u.Path = rest

	return u, nil
}

// String renders the DID URL. Query parameters are rendered in key order.
func (u *DIDURL) String() string {
	var sb strings.Builder

	sb.WriteString(u.DID.String())
	sb.WriteString(u.Path)

	if len(u.Queries) > 0 {
		sb.WriteString("?")
		sb.WriteString(url.Values(u.Queries).Encode())
	}

	if u.Fragment != "" {
		sb.WriteString("#")
		sb.WriteString(u.Fragment)
	}

	return sb.String()
}

// ResolveReference returns the absolute form of ref, which is either an absolute DID URL or a
// relative reference ("#key-1", "?service=x") against the DID base.
func ResolveReference(base, ref string) string {
	if strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "?") || strings.HasPrefix(ref, "/") {
		return base + ref
	}

	return ref
}

// DIDFromReference returns the DID part of a DID URL.
func DIDFromReference(ref string) string {
	if i := strings.IndexAny(ref, "/?#"); i >= 0 {
		return ref[:i]
	}

	return ref
}
