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

package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_GrantDenyForget(t *testing.T) {
	s := Set{}

	s.Grant("models.page.edit")
	assert.True(t, s.Allows("models.page.edit"))

	s.Deny("models.page.edit")
	assert.False(t, s.Allows("models.page.edit"))

	// Deny is tracked, not removed
	_, present := s["models.page.edit"]
	assert.True(t, present)

	s.Forget("models.page.edit")
	_, present = s["models.page.edit"]
	assert.False(t, present)
	assert.False(t, s.Allows("models.page.edit"))
}

func TestSet_AllowsWildcard(t *testing.T) {
	tests := []struct {
		name      string
		set       Set
		requested string
		want      bool
	}{
		{
			name:      "exact grant",
			set:       Set{"models.page.edit": true},
			requested: "models.page.edit",
			want:      true,
		},
		{
			name:      "stored wildcard matches request",
			set:       Set{"models.page.*": true},
			requested: "models.page.edit",
			want:      true,
		},
		{
			name:      "requested wildcard matches stored key",
			set:       Set{"models.page.edit": true},
			requested: "models.page.*",
			want:      true,
		},
		{
			name:      "global wildcard",
			set:       Set{"*": true},
			requested: "anything.at.all",
			want:      true,
		},
		{
			name:      "explicit deny wins over wildcard grant",
			set:       Set{"models.*": true, "models.page.delete": false},
			requested: "models.page.delete",
			want:      false,
		},
		{
			name:      "exact grant wins over wildcard deny",
			set:       Set{"models.page.edit": true, "models.*": false},
			requested: "models.page.edit",
			want:      true,
		},
		{
			name:      "unrelated key",
			set:       Set{"models.page.edit": true},
			requested: "models.post.edit",
			want:      false,
		},
		{
			name:      "empty set",
			set:       Set{},
			requested: "models.page.edit",
			want:      false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.set.Allows(tt.requested))
		})
	}
}

func TestSet_AllowsExactEntryIsDeterministic(t *testing.T) {
	// The exact entry must decide before any wildcard is consulted,
	// independent of map iteration order. Fresh maps each round so the
	// runtime cannot reuse one ordering.
	for i := 0; i < 500; i++ {
		grant := Set{"x.y": true, "x.*": false}
		require.True(t, grant.Allows("x.y"))

		deny := Set{"x.y": false, "x.*": true}
		require.False(t, deny.Allows("x.y"))
	}
}

func TestSet_AllowsAllAndAny(t *testing.T) {
	s := Set{"a.one": true, "a.two": true, "a.three": false}

	assert.True(t, s.AllowsAll("a.one", "a.two"))
	assert.False(t, s.AllowsAll("a.one", "a.three"))
	assert.True(t, s.AllowsAll())

	assert.True(t, s.AllowsAny("a.three", "a.two"))
	assert.False(t, s.AllowsAny("a.three", "b.missing"))
	assert.False(t, s.AllowsAny())
}

func TestSet_TruthyKeysSorted(t *testing.T) {
	s := Set{"z.last": true, "a.first": true, "m.denied": false}

	require.Equal(t, []string{"a.first", "z.last"}, s.TruthyKeys())
}

func TestSet_MergeOverride(t *testing.T) {
	role := Set{"x.present": false, "x.other": true}
	own := Set{"x.present": true}

	merged := role.Merge(own)
	assert.True(t, merged.Allows("x.present"))
	assert.True(t, merged.Allows("x.other"))

	// Merge does not mutate its inputs
	assert.False(t, role.Allows("x.present"))
	assert.False(t, own.Allows("x.other"))
}

func TestUnion_TruthyOnly(t *testing.T) {
	own := Set{"x.present": true}
	role := Set{"x.present": false, "x.other": true}

	// An explicit false on the role does not suppress the user's own grant.
	assert.Equal(t, []string{"x.other", "x.present"}, Union(own, role))
}

func TestUnion_Dedupes(t *testing.T) {
	a := Set{"shared": true, "only.a": true}
	b := Set{"shared": true, "only.b": true}

	assert.Equal(t, []string{"only.a", "only.b", "shared"}, Union(a, b))
}

func TestMatch(t *testing.T) {
	assert.True(t, Match("a.b", "a.b"))
	assert.True(t, Match("a.*", "a.b.c"))
	assert.True(t, Match("*.edit", "models.page.edit"))
	assert.True(t, Match("a.*.c", "a.b.c"))
	assert.False(t, Match("a.*.c", "a.b.d"))
	assert.False(t, Match("a.b", "a.b.c"))
}
