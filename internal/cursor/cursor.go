// Package cursor encodes pagination positions as opaque URL-safe tokens.
//
// A token is the unpadded URL-safe base64 encoding of a JSON document. Decoding never fails
// loudly: anything that is not a well-formed token means "no cursor", so a damaged link simply
// starts again from the first page.
package cursor

import (
	"encoding/base64"
	"encoding/json"
)

// Position is the last-seen sort position of a listing.
//
// Posts use {Created, Slug}; tags use {Created: label, Name}.
type Position struct {
	Created string `json:"created"`
	Slug    string `json:"slug,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Valid reports whether p carries a sort value and exactly one identity.
func (p Position) Valid() bool {
	if p.Created == "" {
		return false
	}
	return (p.Slug != "") != (p.Name != "")
}

// Encode returns the token for v. Empty values (nil, empty maps) encode to "".
func Encode(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	switch string(data) {
	case "null", "{}", `""`:
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

// Decode fills v from token and reports whether it succeeded.
// Padded tokens are accepted.
func Decode(token string, v any) bool {
	if token == "" {
		return false
	}
	data, err := base64.RawURLEncoding.DecodeString(trimPadding(token))
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

// EncodePosition returns the token for a single position, or "" for nil.
func EncodePosition(p *Position) string {
	if p == nil {
		return ""
	}
	return Encode(p)
}

// DecodePosition returns the position in token, or nil when token is not a valid position.
func DecodePosition(token string) *Position {
	var p Position
	if !Decode(token, &p) || !p.Valid() {
		return nil
	}
	return &p
}

func trimPadding(s string) string {
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	return s
}
