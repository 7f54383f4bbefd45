package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticVerify(t *testing.T) {
	s := Static{Username: "admin", Password: "s3cret"}
	ctx := context.Background()

	user, err := s.Verify(ctx, Credentials{Username: " admin ", Password: "s3cret"})
	require.NoError(t, err)
	assert.Equal(t, "admin", user)

	_, err = s.Verify(ctx, Credentials{Username: "admin", Password: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = s.Verify(ctx, Credentials{Username: "root", Password: "s3cret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// No password configured means nobody can log in.
	_, err = Static{Username: "admin"}.Verify(ctx, Credentials{Username: "admin"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSessionsLifecycle(t *testing.T) {
	sessions := NewSessions(Static{Username: "admin", Password: "pw"}, 8, time.Hour)
	ctx := context.Background()

	_, err := sessions.Login(ctx, Credentials{Username: "admin", Password: "nope"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Zero(t, sessions.Len())

	sess, err := sessions.Login(ctx, Credentials{Username: "admin", Password: "pw"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, "admin", sess.Username)

	got, ok := sessions.Lookup(sess.Token)
	require.True(t, ok)
	assert.Equal(t, sess, got)

	_, ok = sessions.Lookup("")
	assert.False(t, ok)
	_, ok = sessions.Lookup("not-a-token")
	assert.False(t, ok)

	assert.True(t, sessions.Logout(sess.Token))
	_, ok = sessions.Lookup(sess.Token)
	assert.False(t, ok)
}

func TestSessionsExpire(t *testing.T) {
	sessions := NewSessions(Static{Username: "admin", Password: "pw"}, 8, time.Hour)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	sessions.now = func() time.Time { return now }

	sess, err := sessions.Login(context.Background(), Credentials{Username: "admin", Password: "pw"})
	require.NoError(t, err)

	now = now.Add(2 * time.Hour)
	_, ok := sessions.Lookup(sess.Token)
	assert.False(t, ok)
}

func TestSessionsEvictOldest(t *testing.T) {
	sessions := NewSessions(Static{Username: "admin", Password: "pw"}, 2, time.Hour)
	ctx := context.Background()
	creds := Credentials{Username: "admin", Password: "pw"}

	first, _ := sessions.Login(ctx, creds)
	_, _ = sessions.Login(ctx, creds)
	_, _ = sessions.Login(ctx, creds)

	assert.Equal(t, 2, sessions.Len())
	_, ok := sessions.Lookup(first.Token)
	assert.False(t, ok)
}
