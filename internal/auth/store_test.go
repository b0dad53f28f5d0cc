package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"pkt.systems/querydesk/schema"
)

func TestDirectoryRejectsInvalidUsername(t *testing.T) {
	_, err := NewDirectory([]schema.User{{Username: "Admin"}})
	if err == nil {
		t.Fatalf("expected invalid username error")
	}
}

func TestDirectoryRejectsDuplicates(t *testing.T) {
	_, err := NewDirectory([]schema.User{{Username: "pm"}, {Username: "pm"}})
	if err == nil {
		t.Fatalf("expected duplicate user error")
	}
}

func TestDirectoryRejectsMalformedHash(t *testing.T) {
	_, err := NewDirectory([]schema.User{{Username: "admin", PasswordHash: "not-a-hash"}})
	if err == nil {
		t.Fatalf("expected invalid hash error")
	}
}

func TestDirectoryLookupAndList(t *testing.T) {
	dir, err := NewDirectory([]schema.User{
		{Username: "test1", Role: "Tester", Key: "Test1"},
		{Username: "admin", Role: "Admin", Key: "Admin"},
	})
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	user, ok := dir.Lookup("admin")
	if !ok || user.Role != "Admin" {
		t.Fatalf("unexpected lookup result %+v %v", user, ok)
	}
	if _, ok := dir.Lookup("nobody"); ok {
		t.Fatalf("expected missing user")
	}
	list := dir.List()
	if len(list) != 2 || list[0].Username != "admin" || list[1].Username != "test1" {
		t.Fatalf("expected sorted users, got %+v", list)
	}
}

func TestDirectoryAuthenticate(t *testing.T) {
	hash, err := HashPassword("2025DEVChallenge", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	dir, err := NewDirectory([]schema.User{
		{Username: "admin", PasswordHash: hash},
		{Username: "dev1"},
	})
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	if err := dir.Authenticate("admin", "2025DEVChallenge", ""); err != nil {
		t.Fatalf("expected auth ok: %v", err)
	}
	if err := dir.Authenticate("admin", "wrong", ""); !errors.Is(err, schema.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if err := dir.Authenticate("nobody", "2025DEVChallenge", ""); !errors.Is(err, schema.ErrInvalidCredentials) {
		t.Fatalf("expected invalid credentials for unknown user, got %v", err)
	}
	if err := dir.Authenticate("dev1", "", ""); !errors.Is(err, schema.ErrInvalidCredentials) {
		t.Fatalf("expected users without a hash to be locked, got %v", err)
	}
}

func TestDirectoryAuthenticateTOTP(t *testing.T) {
	hash, err := HashPassword("secret-pass", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	key, err := totp.Generate(totp.GenerateOpts{Issuer: "querydesk", AccountName: "admin"})
	if err != nil {
		t.Fatalf("totp generate: %v", err)
	}
	dir, err := NewDirectory([]schema.User{{Username: "admin", PasswordHash: hash, TOTPSecret: key.Secret()}})
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	code, err := totp.GenerateCode(key.Secret(), time.Now())
	if err != nil {
		t.Fatalf("totp code: %v", err)
	}
	if err := dir.Authenticate("admin", "secret-pass", code); err != nil {
		t.Fatalf("expected auth ok: %v", err)
	}
	if err := dir.Authenticate("admin", "secret-pass", "000000x"); !errors.Is(err, schema.ErrInvalidTOTP) {
		t.Fatalf("expected invalid totp, got %v", err)
	}
}

func TestHashPasswordRejectsEmpty(t *testing.T) {
	if _, err := HashPassword("  ", bcrypt.MinCost); err == nil {
		t.Fatalf("expected error for empty password")
	}
}
