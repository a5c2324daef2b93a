package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"freight-cloud/internal/auth"
)

// InvitationValidity bounds how long an invite link works.
const InvitationValidity = 12 * time.Hour

// Invitation is a pending account offer. Only its token hash is
// stored; the plain token travels in the emailed link.
// senderInformation holds the inviting user's id; the invitation list
// pipeline resolves it to that user's company for scoping.
type Invitation struct {
	ID                bson.ObjectID `bson:"_id,omitempty" json:"_id,omitempty"`
	Email             string        `bson:"email" json:"email"`
	ConfirmEmail      string        `bson:"confirm_email" json:"confirm_email"`
	Role              auth.Role     `bson:"role" json:"role"`
	TokenHash         string        `bson:"token_hash" json:"-"`
	ExpiresAt         time.Time     `bson:"expires_at" json:"expires_at"`
	IsEmailAcquired   bool          `bson:"is_email_acquired" json:"is_email_acquired"`
	IsUserRegistered  bool          `bson:"is_user_registered" json:"is_user_registered"`
	Company           bson.ObjectID `bson:"company" json:"company"`
	SenderInformation bson.ObjectID `bson:"senderInformation" json:"senderInformation"`
	CreatedAt         time.Time     `bson:"created_at" json:"created_at"`
}

// Expired reports whether the invitation is past its validity window.
func (inv *Invitation) Expired(now time.Time) bool {
	return now.After(inv.ExpiresAt)
}
