package otp

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	store, err := NewStore("redis://"+s.Addr(), 10*time.Minute)
	if err != nil {
		t.Fatalf("failed to create otp store: %v", err)
	}
	return store, s
}

func TestGenerateCodeShape(t *testing.T) {
	for range 20 {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode() error = %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("code %q is not 6 digits", code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("code %q contains non-digit", code)
			}
		}
	}
}

func TestConsumeCodeOneTime(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()
	defer s.Close()
	ctx := context.Background()

	if err := store.SaveCode(ctx, "admin@example.com", "123456"); err != nil {
		t.Fatalf("SaveCode() error = %v", err)
	}

	ok, err := store.ConsumeCode(ctx, "admin@example.com", "654321")
	if err != nil || ok {
		t.Fatalf("wrong code accepted: ok=%v err=%v", ok, err)
	}

	ok, err = store.ConsumeCode(ctx, "admin@example.com", "123456")
	if err != nil || !ok {
		t.Fatalf("right code rejected: ok=%v err=%v", ok, err)
	}

	// One-time: the same code must not work twice.
	ok, err = store.ConsumeCode(ctx, "admin@example.com", "123456")
	if err != nil || ok {
		t.Fatalf("code accepted twice: ok=%v err=%v", ok, err)
	}
}

func TestConsumeCodeExpires(t *testing.T) {
	s := miniredis.RunT(t)
	defer s.Close()
	store, err := NewStore("redis://"+s.Addr(), time.Minute)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	if err := store.SaveCode(ctx, "admin@example.com", "123456"); err != nil {
		t.Fatalf("SaveCode() error = %v", err)
	}
	s.FastForward(2 * time.Minute)

	ok, err := store.ConsumeCode(ctx, "admin@example.com", "123456")
	if err != nil || ok {
		t.Fatalf("expired code accepted: ok=%v err=%v", ok, err)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store, s := setupTestStore(t)
	defer store.Close()
	defer s.Close()
	ctx := context.Background()

	if err := store.SaveSession(ctx, "jti-1", "admin@example.com", time.Hour); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	active, err := store.SessionActive(ctx, "jti-1")
	if err != nil || !active {
		t.Fatalf("session should be active: active=%v err=%v", active, err)
	}

	if err := store.RevokeSession(ctx, "jti-1"); err != nil {
		t.Fatalf("RevokeSession() error = %v", err)
	}
	active, err = store.SessionActive(ctx, "jti-1")
	if err != nil || active {
		t.Fatalf("revoked session still active: active=%v err=%v", active, err)
	}

	active, err = store.SessionActive(ctx, "never-issued")
	if err != nil || active {
		t.Fatalf("unknown session reported active: active=%v err=%v", active, err)
	}
}
