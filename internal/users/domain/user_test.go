package domain

import (
	"testing"
	"time"
)

func TestSetAndCheckPassword(t *testing.T) {
	u := &User{}
	if err := u.SetPassword("short"); err == nil {
		t.Fatal("expected error for short password")
	}
	if err := u.SetPassword("correct-horse"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}
	if u.Password == "correct-horse" {
		t.Fatal("password stored in plain text")
	}
	if !u.CheckPassword("correct-horse") {
		t.Fatal("correct password rejected")
	}
	if u.CheckPassword("wrong") {
		t.Fatal("wrong password accepted")
	}
}

func TestChangedPasswordAfter(t *testing.T) {
	u := &User{}
	issued := time.Now().UTC()
	if u.ChangedPasswordAfter(issued) {
		t.Fatal("zero change time must not invalidate tokens")
	}
	u.PasswordChangedAt = issued.Add(time.Minute)
	if !u.ChangedPasswordAfter(issued) {
		t.Fatal("later change must invalidate earlier token")
	}
	if u.ChangedPasswordAfter(issued.Add(2 * time.Minute)) {
		t.Fatal("earlier change must not invalidate later token")
	}
}

func TestCreatePasswordResetToken(t *testing.T) {
	u := &User{}
	token, err := u.CreatePasswordResetToken()
	if err != nil {
		t.Fatalf("CreatePasswordResetToken: %v", err)
	}
	if token == "" || u.PasswordResetToken == "" {
		t.Fatal("token or hash missing")
	}
	if u.PasswordResetToken == token {
		t.Fatal("plain token must not be stored")
	}
	if HashToken(token) != u.PasswordResetToken {
		t.Fatal("stored hash does not match token")
	}
	if !u.PasswordResetExpires.After(time.Now()) {
		t.Fatal("expiry not in the future")
	}
}

func TestInvitationExpired(t *testing.T) {
	now := time.Now().UTC()
	inv := &Invitation{ExpiresAt: now.Add(InvitationValidity)}
	if inv.Expired(now) {
		t.Fatal("fresh invitation reported expired")
	}
	if !inv.Expired(now.Add(InvitationValidity + time.Second)) {
		t.Fatal("stale invitation reported valid")
	}
}
