package main

import (
	"strings"
	"testing"
)

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	return NewAuth(openTestDB(t))
}

func TestRegisterAndLogin(t *testing.T) {
	a := newTestAuth(t)

	id, token, err := a.Register("alice", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if id == 0 || token == "" {
		t.Fatalf("id = %d token = %q", id, token)
	}

	gotID, gotUser, err := a.ValidateToken(token)
	if err != nil {
		t.Fatal(err)
	}
	if gotID != id || gotUser != "alice" {
		t.Errorf("token claims = (%d, %q)", gotID, gotUser)
	}

	loginID, loginToken, err := a.Login("alice", "hunter2", "1.2.3.4")
	if err != nil {
		t.Fatal(err)
	}
	if loginID != id || loginToken == "" {
		t.Errorf("login id = %d", loginID)
	}

	if _, _, err := a.Login("alice", "wrong", "1.2.3.4"); err == nil {
		t.Error("wrong password accepted")
	}
	if _, _, err := a.Login("nobody", "hunter2", "1.2.3.4"); err == nil {
		t.Error("unknown user accepted")
	}
}

func TestRegisterValidation(t *testing.T) {
	a := newTestAuth(t)
	if _, _, err := a.Register("x", "hunter2"); err == nil {
		t.Error("too-short username accepted")
	}
	if _, _, err := a.Register(strings.Repeat("a", 20), "hunter2"); err == nil {
		t.Error("too-long username accepted")
	}
	if _, _, err := a.Register("alice", "abc"); err == nil {
		t.Error("too-short password accepted")
	}
	if _, _, err := a.Register("alice", "hunter2"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := a.Register("alice", "hunter2"); err == nil {
		t.Error("duplicate registration accepted")
	}
}

func TestGuestAccounts(t *testing.T) {
	a := newTestAuth(t)
	id, name, token, err := a.Guest()
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(name, "Guest_") {
		t.Errorf("guest name = %q", name)
	}
	gotID, gotUser, err := a.ValidateToken(token)
	if err != nil || gotID != id || gotUser != name {
		t.Errorf("guest token claims = (%d, %q) err = %v", gotID, gotUser, err)
	}
	// Guest accounts cannot log in with a password.
	if _, _, err := a.Login(name, "", "1.2.3.4"); err == nil {
		t.Error("password login on a guest account accepted")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	a := newTestAuth(t)
	if _, _, err := a.ValidateToken("not.a.token"); err == nil {
		t.Error("garbage token accepted")
	}
	other := newTestAuth(t)
	_, token, err := other.Register("bob", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	// Signed with a different secret.
	if _, _, err := a.ValidateToken(token); err == nil {
		t.Error("foreign-secret token accepted")
	}
}

func TestLoginRateLimit(t *testing.T) {
	a := newTestAuth(t)
	for i := 0; i < maxLoginAttempts; i++ {
		a.Login("ghost", "pw", "9.9.9.9")
	}
	_, _, err := a.Login("ghost", "pw", "9.9.9.9")
	if err == nil || !strings.Contains(err.Error(), "too many") {
		t.Errorf("rate limit not enforced: %v", err)
	}
	// A different IP is unaffected.
	if _, _, err := a.Login("ghost", "pw", "8.8.8.8"); err == nil || strings.Contains(err.Error(), "too many") {
		t.Errorf("unrelated ip throttled: %v", err)
	}
}

func TestSecretPersistsAcrossRestarts(t *testing.T) {
	db := openTestDB(t)
	a1 := NewAuth(db)
	id, token, err := a1.Register("alice", "hunter2")
	if err != nil {
		t.Fatal(err)
	}

	a2 := NewAuth(db)
	gotID, _, err := a2.ValidateToken(token)
	if err != nil || gotID != id {
		t.Errorf("token invalid after restart: id = %d err = %v", gotID, err)
	}
}
