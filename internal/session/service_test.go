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

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	sessions map[string]*Session
}

func newMemRepo() *memRepo {
	return &memRepo{sessions: make(map[string]*Session)}
}

func (r *memRepo) Create(_ context.Context, sess *Session) error {
	r.sessions[sess.ID] = sess
	return nil
}

func (r *memRepo) Get(_ context.Context, sessionID string) (*Session, error) {
	sess, ok := r.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

func (r *memRepo) Update(_ context.Context, sess *Session) error {
	if _, ok := r.sessions[sess.ID]; !ok {
		return ErrSessionNotFound
	}
	r.sessions[sess.ID] = sess
	return nil
}

func (r *memRepo) Delete(_ context.Context, sessionID string) error {
	delete(r.sessions, sessionID)
	return nil
}

func (r *memRepo) DeleteByUserID(_ context.Context, userID string) error {
	for id, sess := range r.sessions {
		if sess.UserID == userID {
			delete(r.sessions, id)
		}
	}
	return nil
}

func TestStartLifetimeByRemember(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, 30*24*time.Hour, 2*time.Hour)
	ctx := context.Background()

	short, err := svc.Start(ctx, "u1", false, Meta{IPAddress: "127.0.0.1"})
	require.NoError(t, err)
	long, err := svc.Start(ctx, "u1", true, Meta{})
	require.NoError(t, err)

	assert.False(t, short.Remember)
	assert.True(t, long.Remember)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), short.ExpiresAt, time.Minute)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), long.ExpiresAt, time.Minute)
	assert.Equal(t, "127.0.0.1", short.IPAddress)
}

func TestGetExpiredSessionIsDeleted(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, 30*24*time.Hour, 2*time.Hour)
	ctx := context.Background()

	sess, err := svc.Start(ctx, "u1", false, Meta{})
	require.NoError(t, err)

	sess.ExpiresAt = time.Now().Add(-time.Minute)

	_, err = svc.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionExpired)

	// A second lookup finds nothing at all.
	_, err = svc.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRefreshSlidesLastSeen(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, 30*24*time.Hour, 2*time.Hour)
	ctx := context.Background()

	sess, err := svc.Start(ctx, "u1", false, Meta{})
	require.NoError(t, err)

	before := sess.LastSeenAt
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, svc.Refresh(ctx, sess.ID))
	assert.True(t, repo.sessions[sess.ID].LastSeenAt.After(before))

	assert.ErrorIs(t, svc.Refresh(ctx, "missing"), ErrSessionNotFound)
}

func TestEndAndEndAll(t *testing.T) {
	repo := newMemRepo()
	svc := NewService(repo, 30*24*time.Hour, 2*time.Hour)
	ctx := context.Background()

	a, err := svc.Start(ctx, "u1", false, Meta{})
	require.NoError(t, err)
	_, err = svc.Start(ctx, "u1", true, Meta{})
	require.NoError(t, err)
	other, err := svc.Start(ctx, "u2", false, Meta{})
	require.NoError(t, err)

	require.NoError(t, svc.End(ctx, a.ID))
	_, err = svc.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, svc.EndAll(ctx, "u1"))
	assert.Len(t, repo.sessions, 1)

	got, err := svc.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "u2", got.UserID)
}
