package schema

// UserID identifies a user in the static directory.
type UserID string

// RequestID identifies one pipeline invocation.
type RequestID string

// User is a static directory entry loaded at start.
type User struct {
	Username     UserID
	Name         string
	Email        string
	Role         string
	Key          string
	PasswordHash string
	TOTPSecret   string
}

// PolicySubject is the public identity synchronized to a policy engine.
// It never carries credentials or role.
type PolicySubject struct {
	Key   string `json:"key"`
	Email string `json:"email,omitempty"`
}

// Subject returns the policy identity for the user.
func (u User) Subject() PolicySubject {
	key := u.Key
	if key == "" {
		key = string(u.Username)
	}
	return PolicySubject{Key: key, Email: u.Email}
}

// PublicUser is the credential-free view of a user returned to clients.
type PublicUser struct {
	Username UserID `json:"username"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Role     string `json:"role,omitempty"`
}

// Public strips credentials from the user record.
func (u User) Public() PublicUser {
	return PublicUser{Username: u.Username, Name: u.Name, Email: u.Email, Role: u.Role}
}
