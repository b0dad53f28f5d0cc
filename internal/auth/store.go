package auth

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"pkt.systems/pslog"
	"pkt.systems/querydesk/schema"
)

// Directory is the static, read-only user table. It is built once at start
// and safe for concurrent use without locking.
type Directory struct {
	users map[schema.UserID]schema.User
	order []schema.UserID
	log   pslog.Logger
}

// NewDirectory builds a directory from user records.
func NewDirectory(users []schema.User) (*Directory, error) {
	return NewDirectoryWithLogger(users, nil)
}

// NewDirectoryWithLogger builds a directory with logging.
func NewDirectoryWithLogger(users []schema.User, logger pslog.Logger) (*Directory, error) {
	dir := &Directory{
		users: make(map[schema.UserID]schema.User, len(users)),
		log:   logger,
	}
	for _, user := range users {
		if err := schema.ValidateUserID(user.Username); err != nil {
			return nil, fmt.Errorf("user %q: %w", user.Username, err)
		}
		if _, ok := dir.users[user.Username]; ok {
			return nil, fmt.Errorf("user %q: duplicate entry", user.Username)
		}
		if hash := strings.TrimSpace(user.PasswordHash); hash != "" {
			if _, err := bcrypt.Cost([]byte(hash)); err != nil {
				return nil, fmt.Errorf("user %q: invalid password hash: %w", user.Username, err)
			}
		}
		dir.users[user.Username] = user
		dir.order = append(dir.order, user.Username)
	}
	sort.Slice(dir.order, func(i, j int) bool { return dir.order[i] < dir.order[j] })
	if dir.log != nil {
		dir.log.Debug("user directory loaded", "users", len(dir.order))
	}
	return dir, nil
}

// Lookup returns the user record for id.
func (d *Directory) Lookup(id schema.UserID) (schema.User, bool) {
	if d == nil {
		return schema.User{}, false
	}
	user, ok := d.users[id]
	return user, ok
}

// List returns all users sorted by username.
func (d *Directory) List() []schema.User {
	if d == nil {
		return nil
	}
	out := make([]schema.User, 0, len(d.order))
	for _, id := range d.order {
		out = append(out, d.users[id])
	}
	return out
}

// Authenticate verifies username, password, and totp. Users without a
// password hash cannot log in; the totp code is only checked for users
// enrolled with a secret.
func (d *Directory) Authenticate(username, password, totpCode string) error {
	user, ok := d.Lookup(schema.UserID(username))
	if !ok {
		d.warn("auth failed", username, schema.ErrUserNotFound)
		return schema.ErrInvalidCredentials
	}
	if strings.TrimSpace(user.PasswordHash) == "" {
		d.warn("auth failed", username, errors.New("password not set"))
		return schema.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		d.warn("auth failed", username, err)
		return schema.ErrInvalidCredentials
	}
	if strings.TrimSpace(user.TOTPSecret) != "" && !totp.Validate(strings.TrimSpace(totpCode), user.TOTPSecret) {
		d.warn("auth failed", username, schema.ErrInvalidTOTP)
		return schema.ErrInvalidTOTP
	}
	if d.log != nil {
		d.log.Debug("auth ok", "user", username)
	}
	return nil
}

func (d *Directory) warn(msg, username string, err error) {
	if d == nil || d.log == nil {
		return
	}
	d.log.Warn(msg, "user", username, "err", err)
}

// HashPassword returns a bcrypt hash suitable for a user entry.
func HashPassword(password string, cost int) (string, error) {
	if strings.TrimSpace(password) == "" {
		return "", errors.New("password is required")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
