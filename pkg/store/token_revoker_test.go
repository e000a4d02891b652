package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestMemoryTokenRevokerUserCutoffMonotonic(t *testing.T) {
	assertCutoffMonotonic(t, NewMemoryTokenRevoker())
}

func TestRedisTokenRevokerUserCutoffMonotonic(t *testing.T) {
	assertCutoffMonotonic(t, newRedisRevoker(t))
}

func TestRedisTokenRevokerRevokesJTI(t *testing.T) {
	r := newRedisRevoker(t)
	if err := r.Revoke("jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked("jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v err=%v", revoked, err)
	}
	revoked, err = r.IsRevoked("jti-2")
	if err != nil || revoked {
		t.Fatalf("expected not revoked, got %v err=%v", revoked, err)
	}
	cutoff, err := r.RevokedAfter("nobody")
	if err != nil || !cutoff.IsZero() {
		t.Fatalf("expected zero cutoff, got %v err=%v", cutoff, err)
	}
}

func TestMemoryTokenRevokerExpires(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if err := r.Revoke("short", 10*time.Millisecond); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	revoked, err := r.IsRevoked("short")
	if err != nil || revoked {
		t.Fatalf("expected expired revocation, got %v err=%v", revoked, err)
	}
}

func assertCutoffMonotonic(t *testing.T, r TokenRevoker) {
	t.Helper()
	first := time.Now().UTC().Add(-time.Minute)
	second := time.Now().UTC()

	if err := r.RevokeUser("user-1", first); err != nil {
		t.Fatalf("revoke user first: %v", err)
	}
	if err := r.RevokeUser("user-1", first.Add(-time.Minute)); err != nil {
		t.Fatalf("revoke user older cutoff: %v", err)
	}
	got, err := r.RevokedAfter("user-1")
	if err != nil {
		t.Fatalf("revoked after first: %v", err)
	}
	if !got.Equal(first) {
		t.Fatalf("expected first cutoff to be kept, got %v", got)
	}

	if err := r.RevokeUser("user-1", second); err != nil {
		t.Fatalf("revoke user second: %v", err)
	}
	got, err = r.RevokedAfter("user-1")
	if err != nil {
		t.Fatalf("revoked after second: %v", err)
	}
	if !got.Equal(second) {
		t.Fatalf("expected newest cutoff, got %v", got)
	}
}

func newRedisRevoker(t *testing.T) *RedisTokenRevoker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisTokenRevoker(client, time.Hour)
}
