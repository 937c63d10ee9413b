// Copyright 2026 The CMSKit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package permission implements the sparse permission map shared by users
// and roles: permission key -> bool, where true is a grant, false is a
// tracked explicit deny, and an absent key inherits from elsewhere.
package permission

import (
	"sort"
	"strings"
)

// Set maps permission keys to grant (true) or explicit deny (false).
// Keys are dotted capability names such as "models.page.edit"; a key may
// contain "*" as a wildcard segment.
type Set map[string]bool

// Grant marks the permission as allowed.
func (s Set) Grant(key string) {
	s[key] = true
}

// Deny marks the permission as explicitly denied. The key stays in the
// map so the deny remains visible to administrative tooling.
func (s Set) Deny(key string) {
	s[key] = false
}

// Forget drops the key entirely, returning it to inherited resolution.
func (s Set) Forget(key string) {
	delete(s, key)
}

// Allows reports whether the requested permission resolves true in this
// set. An exact entry for the request decides on its own; otherwise a
// stored wildcard key matching the request (or a stored key matching a
// wildcard request) resolves it, with an explicit false winning over any
// wildcard grant.
func (s Set) Allows(requested string) bool {
	if granted, ok := s[requested]; ok {
		return granted
	}

	allowed := false
	for key, granted := range s {
		if Match(key, requested) || Match(requested, key) {
			if !granted {
				return false
			}
			allowed = true
		}
	}
	return allowed
}

// AllowsAll reports whether every requested permission resolves true.
// An empty request list resolves true.
func (s Set) AllowsAll(requested ...string) bool {
	for _, key := range requested {
		if !s.Allows(key) {
			return false
		}
	}
	return true
}

// AllowsAny reports whether at least one requested permission resolves true.
func (s Set) AllowsAny(requested ...string) bool {
	for _, key := range requested {
		if s.Allows(key) {
			return true
		}
	}
	return false
}

// TruthyKeys returns the keys whose value is true, sorted ascending.
// Explicit denies are excluded, never negated.
func (s Set) TruthyKeys() []string {
	keys := make([]string, 0, len(s))
	for key, granted := range s {
		if granted {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Merge returns a new set with the receiver's entries overridden by the
// other set's entries. Used to layer user-level permissions over role
// permissions for access checks.
func (s Set) Merge(over Set) Set {
	merged := make(Set, len(s)+len(over))
	for key, granted := range s {
		merged[key] = granted
	}
	for key, granted := range over {
		merged[key] = granted
	}
	return merged
}

// Clone returns a shallow copy of the set.
func (s Set) Clone() Set {
	cloned := make(Set, len(s))
	for key, granted := range s {
		cloned[key] = granted
	}
	return cloned
}

// Match reports whether value matches pattern, where "*" in the pattern
// matches any run of characters. Exact strings match themselves.
func Match(pattern, value string) bool {
	if pattern == value {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}

	parts := strings.Split(pattern, "*")

	// Anchor the first and last literal parts, scan the middle ones.
	if !strings.HasPrefix(value, parts[0]) {
		return false
	}
	value = value[len(parts[0]):]

	last := parts[len(parts)-1]
	if !strings.HasSuffix(value, last) {
		return false
	}
	value = value[:len(value)-len(last)]

	for _, part := range parts[1 : len(parts)-1] {
		idx := strings.Index(value, part)
		if idx < 0 {
			return false
		}
		value = value[idx+len(part):]
	}
	return true
}

// Union returns the sorted, deduplicated union of truthy keys across the
// given sets. This is the authoritative effective-permission listing: a
// false anywhere never suppresses a true granted elsewhere.
func Union(sets ...Set) []string {
	seen := make(map[string]struct{})
	for _, s := range sets {
		for key, granted := range s {
			if granted {
				seen[key] = struct{}{}
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
