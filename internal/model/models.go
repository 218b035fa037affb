package model

import (
	"context"
	"errors"
	"time"
)

// ErrIdentityNotFound is returned by repositories when no record exists
// for the given key.
var ErrIdentityNotFound = errors.New("identity not found")

// -------------------- COLLEGE IDENTITY --------------------
type CollegeIdentity struct {
	Bucket         int       `json:"-" db:"bucket"`
	SrNo           string    `json:"sr_no" db:"sr_no"`
	Name           string    `json:"name" db:"name"`
	Email          string    `json:"email,omitempty" db:"email"`
	Department     string    `json:"department,omitempty" db:"department"`
	CredentialHash string    `json:"-" db:"credential_hash"` // never serialized
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}

// -------------------- GUEST IDENTITY --------------------
// A guest is keyed by mobile number. An empty OTPHash means no challenge
// is pending; at most one challenge is active per mobile at any time.
type GuestIdentity struct {
	Bucket            int       `json:"-" db:"bucket"`
	Mobile            string    `json:"mobile" db:"mobile"`
	OTPHash           string    `json:"-" db:"otp_hash"` // never serialized
	OTPExpiresAt      time.Time `json:"-" db:"otp_expires_at"`
	AttemptsRemaining int       `json:"-" db:"attempts_remaining"`
	LastIssuedAt      time.Time `json:"-" db:"last_issued_at"`
	Verified          bool      `json:"verified" db:"verified"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// GuestChallenge is the set of challenge fields written atomically on
// issuance, verification, and rollback.
type GuestChallenge struct {
	OTPHash           string
	OTPExpiresAt      time.Time
	AttemptsRemaining int
	LastIssuedAt      time.Time
	Verified          bool
}

// -------------------- REPOSITORY INTERFACES --------------------

// CollegeRepository defines store operations for college identities.
type CollegeRepository interface {
	// CreateCollege inserts a new record if the serial number is free.
	// Returns false when a record with the same sr_no already exists.
	CreateCollege(ctx context.Context, identity *CollegeIdentity) (bool, error)
	GetCollegeBySrNo(ctx context.Context, srNo string) (*CollegeIdentity, error)
}

// GuestRepository defines store operations for guest identities. All
// mutations are compare-and-set on the currently stored otp_hash so that
// concurrent issuance and verification for the same mobile serialize at
// the store.
type GuestRepository interface {
	GetGuestByMobile(ctx context.Context, mobile string) (*GuestIdentity, error)
	// InsertGuest inserts a new record if the mobile is free. Returns
	// false when a record already exists.
	InsertGuest(ctx context.Context, identity *GuestIdentity) (bool, error)
	// UpdateChallenge replaces the challenge fields if otp_hash still
	// equals expectedHash. Returns false when the record changed underneath.
	UpdateChallenge(ctx context.Context, mobile, expectedHash string, challenge GuestChallenge) (bool, error)
	// ConsumeAttempt sets attempts_remaining to remaining if otp_hash and
	// the prior attempt count still match.
	ConsumeAttempt(ctx context.Context, mobile, expectedHash string, expectedRemaining, remaining int) (bool, error)
	// MarkVerified flips the identity to verified and clears the challenge
	// if otp_hash and attempts_remaining still match.
	MarkVerified(ctx context.Context, mobile, expectedHash string, expectedRemaining int) (bool, error)
}

// -------------------- CACHE INTERFACES --------------------

// CooldownCache is the fast-path gate in front of the resend cooldown.
// The stored last_issued_at remains authoritative.
type CooldownCache interface {
	MarkIssued(ctx context.Context, mobile string, ttl time.Duration) error
	InCooldown(ctx context.Context, mobile string) (bool, error)
	Clear(ctx context.Context, mobile string) error
}

// -------------------- DELIVERY CHANNEL --------------------

// CodeSender dispatches a plaintext one-time code to the guest's phone.
// This is the only place the raw code leaves the process.
type CodeSender interface {
	SendCode(ctx context.Context, mobile, code string) error
}
