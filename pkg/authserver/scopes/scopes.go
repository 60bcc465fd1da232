// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package scopes implements OAuth 2.0 scope sets and the allow-list check
// applied to authorization requests.
package scopes

import (
	"encoding/json"
	"maps"
	"slices"
	"strings"
)

// ReadUserIDPTokens grants access to the caller's stored provider tokens.
const ReadUserIDPTokens = "read:user_idp_tokens"

// Set is an unordered set of scope values.
type Set map[string]struct{}

// New returns a set holding the given scopes. Empty values are dropped.
func New(values ...string) Set {
	s := make(Set, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		s[v] = struct{}{}
	}
	return s
}

// Parse splits a space-delimited scope parameter (RFC 6749 Section 3.3).
// An empty string yields an empty set.
func Parse(raw string) Set {
	return New(strings.Fields(raw)...)
}

// Contains reports whether scope is in the set.
func (s Set) Contains(scope string) bool {
	_, ok := s[scope]
	return ok
}

// IsSubsetOf reports whether every scope in s is also in allowed.
// The empty set is a subset of every set.
func (s Set) IsSubsetOf(allowed Set) bool {
	for v := range s {
		if !allowed.Contains(v) {
			return false
		}
	}
	return true
}

// Sorted returns the scopes in lexical order.
func (s Set) Sorted() []string {
	return slices.Sorted(maps.Keys(s))
}

// String returns the space-joined, sorted form used on the wire and in storage.
func (s Set) String() string {
	return strings.Join(s.Sorted(), " ")
}

// MarshalJSON encodes the set as a sorted JSON array.
func (s Set) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Sorted())
}

// UnmarshalJSON decodes a JSON array of scopes.
func (s *Set) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*s = New(values...)
	return nil
}

// Validate reports whether requested is allowed, returning the scopes that are not.
func Validate(requested, allowed Set) (ok bool, disallowed []string) {
	for _, v := range requested.Sorted() {
		if !allowed.Contains(v) {
			disallowed = append(disallowed, v)
		}
	}
	return len(disallowed) == 0, disallowed
}
