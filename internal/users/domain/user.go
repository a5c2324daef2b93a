// Package domain holds the user account aggregate.
package domain

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"golang.org/x/crypto/bcrypt"

	"freight-cloud/internal/apperror"
	"freight-cloud/internal/auth"
)

const bcryptCost = 12

// PasswordResetValidity bounds how long a reset link works.
const PasswordResetValidity = 10 * time.Minute

// Status is the account state.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// User is one account, always belonging to a company.
type User struct {
	ID                   bson.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	Name                 string        `bson:"name" json:"name"`
	Surname              string        `bson:"surname" json:"surname"`
	Email                string        `bson:"email" json:"email"`
	Password             string        `bson:"password" json:"-"`
	Role                 auth.Role     `bson:"role" json:"role"`
	Status               Status        `bson:"status" json:"status"`
	Company              bson.ObjectID `bson:"company,omitempty" json:"company,omitempty"`
	PasswordChangedAt    time.Time     `bson:"password_changed_at,omitempty" json:"-"`
	PasswordResetToken   string        `bson:"password_reset_token,omitempty" json:"-"`
	PasswordResetExpires time.Time     `bson:"password_reset_expires,omitempty" json:"-"`
	CreatedAt            time.Time     `bson:"created_at" json:"created_at"`
}

// SetPassword hashes and stores a new password.
func (u *User) SetPassword(plain string) error {
	if len(plain) < 8 {
		return apperror.New(apperror.KindValidation, "users: password too short")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	u.PasswordChangedAt = time.Now().UTC()
	return nil
}

// CheckPassword compares a candidate against the stored hash.
func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(plain)) == nil
}

// ChangedPasswordAfter reports whether the password changed after the
// given token issue time, invalidating older tokens.
func (u *User) ChangedPasswordAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt.IsZero() || issuedAt.IsZero() {
		return false
	}
	return u.PasswordChangedAt.After(issuedAt)
}

// CreatePasswordResetToken generates a reset token, storing only its
// hash. The plain token goes into the emailed link.
func (u *User) CreatePasswordResetToken() (string, error) {
	token, err := RandomToken()
	if err != nil {
		return "", err
	}
	u.PasswordResetToken = HashToken(token)
	u.PasswordResetExpires = time.Now().UTC().Add(PasswordResetValidity)
	return token, nil
}

// RandomToken returns a 32-byte random token in hex.
func RandomToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}

// HashToken is the stored form of a plain token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
