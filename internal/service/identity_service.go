package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lostfound-api/internal/audit"
	"lostfound-api/internal/config"
	"lostfound-api/internal/model"
	"lostfound-api/internal/util"
)

// Failure taxonomy. Handlers map these onto HTTP status codes; callers
// match with errors.Is.
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrDuplicateIdentity   = errors.New("identity already registered")
	ErrNotFound            = errors.New("identity not found")
	ErrNoActiveChallenge   = errors.New("no active challenge")
	ErrOTPExpired          = errors.New("challenge expired")
	ErrOTPMismatch         = errors.New("code mismatch")
	ErrOTPAttemptsExceeded = errors.New("attempt budget exhausted")
	ErrResendTooSoon       = errors.New("resend cooldown active")
	ErrInvalidCredential   = errors.New("credential mismatch")
	ErrStoreUnavailable    = errors.New("identity store unavailable")
	ErrDeliveryFailed      = errors.New("code delivery failed")
)

const (
	kindCollege = "college"
	kindGuest   = "guest"

	minCredentialLength = 8

	// Bound on re-reads when a conditional write loses to a concurrent
	// writer. Past this the caller retries.
	casRetryLimit = 2
)

// Hasher is the subset of the hashing package the engine needs.
type Hasher interface {
	HashCredential(password string) (string, error)
	HashOTP(code string) (string, error)
	VerifyCredential(password, encoded string) (bool, error)
	VerifyOTP(code, encoded string) (bool, error)
}

// CodeGenerator produces one-time codes.
type CodeGenerator interface {
	Code() (string, error)
	Length() int
}

// Recorder receives audit events. A nil recorder drops them.
type Recorder interface {
	Record(eventType, identityKind, keyHash, outcome string)
}

// IdentityService is the registration and verification engine. All
// state transitions go through conditional writes on the repositories,
// so concurrent requests for the same identity serialize at the store.
type IdentityService struct {
	colleges  model.CollegeRepository
	guests    model.GuestRepository
	cooldown  model.CooldownCache
	sender    model.CodeSender
	hasher    Hasher
	generator CodeGenerator
	recorder  Recorder
	otpConfig config.OTPConfig

	now func() time.Time
}

func NewIdentityService(
	colleges model.CollegeRepository,
	guests model.GuestRepository,
	cooldown model.CooldownCache,
	sender model.CodeSender,
	hasher Hasher,
	generator CodeGenerator,
	recorder Recorder,
	otpConfig config.OTPConfig,
) *IdentityService {
	return &IdentityService{
		colleges:  colleges,
		guests:    guests,
		cooldown:  cooldown,
		sender:    sender,
		hasher:    hasher,
		generator: generator,
		recorder:  recorder,
		otpConfig: otpConfig,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type RegisterCollegeInput struct {
	SrNo       string
	Name       string
	Email      string
	Department string
	Credential string
}

// RegisterCollege registers a college identity. Duplicate detection and
// insertion are a single conditional write, so two concurrent requests
// for the same serial number produce exactly one record.
func (s *IdentityService) RegisterCollege(ctx context.Context, input RegisterCollegeInput) (*model.CollegeIdentity, error) {
	srNo := strings.TrimSpace(input.SrNo)
	name := strings.TrimSpace(input.Name)

	if srNo == "" {
		return nil, fmt.Errorf("%w: serial number is required", ErrInvalidInput)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if len(input.Credential) < minCredentialLength {
		return nil, fmt.Errorf("%w: credential must be at least %d characters", ErrInvalidInput, minCredentialLength)
	}

	credentialHash, err := s.hasher.HashCredential(input.Credential)
	if err != nil {
		return nil, fmt.Errorf("failed to hash credential: %w", err)
	}

	identity := &model.CollegeIdentity{
		SrNo:           srNo,
		Name:           name,
		Email:          strings.TrimSpace(input.Email),
		Department:     strings.TrimSpace(input.Department),
		CredentialHash: credentialHash,
		CreatedAt:      s.now(),
	}

	applied, err := s.colleges.CreateCollege(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !applied {
		return nil, ErrDuplicateIdentity
	}

	s.record(audit.EventIdentityRegistered, kindCollege, srNo, "success")
	return identity, nil
}

// VerifyCollege checks a credential against the stored hash with a
// constant-time comparison. Any submitted string that does not match,
// the empty string included, is a credential mismatch rather than a
// malformed request.
func (s *IdentityService) VerifyCollege(ctx context.Context, srNo, credential string) (*model.CollegeIdentity, error) {
	srNo = strings.TrimSpace(srNo)
	if srNo == "" {
		return nil, fmt.Errorf("%w: serial number is required", ErrInvalidInput)
	}

	identity, err := s.colleges.GetCollegeBySrNo(ctx, srNo)
	if err != nil {
		if errors.Is(err, model.ErrIdentityNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	match, err := s.hasher.VerifyCredential(credential, identity.CredentialHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !match {
		return nil, ErrInvalidCredential
	}

	return identity, nil
}

// SendGuestOTP issues a fresh challenge for the mobile and dispatches
// the code. Re-issuance is always allowed outside the cooldown window
// and resets any verified state. The raw code goes to the sender and
// nowhere else.
func (s *IdentityService) SendGuestOTP(ctx context.Context, rawMobile string) error {
	mobile, err := util.NormalizePhone(rawMobile)
	if err != nil {
		return fmt.Errorf("%w: mobile must be a valid phone number", ErrInvalidInput)
	}

	// Fast-path cooldown gate. The stored last_issued_at below is the
	// authoritative check.
	if s.cooldown != nil {
		inCooldown, err := s.cooldown.InCooldown(ctx, mobile)
		if err != nil {
			util.Warn("Cooldown cache unavailable",
				zap.String("key_hash", util.KeyHash(mobile)),
				zap.Error(err))
		} else if inCooldown {
			return ErrResendTooSoon
		}
	}

	code, err := s.generator.Code()
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}
	codeHash, err := s.hasher.HashOTP(code)
	if err != nil {
		return fmt.Errorf("failed to hash code: %w", err)
	}

	now := s.now()
	challenge := model.GuestChallenge{
		OTPHash:           codeHash,
		OTPExpiresAt:      now.Add(s.otpConfig.TTL),
		AttemptsRemaining: s.otpConfig.MaxAttempts,
		LastIssuedAt:      now,
		Verified:          false,
	}

	// rollback restores the record when delivery fails after the
	// challenge was persisted.
	var rollback model.GuestChallenge

	guest, err := s.guests.GetGuestByMobile(ctx, mobile)
	switch {
	case err == nil:
		if !guest.LastIssuedAt.IsZero() && now.Sub(guest.LastIssuedAt) < s.otpConfig.ResendCooldown {
			return ErrResendTooSoon
		}
		applied, err := s.guests.UpdateChallenge(ctx, mobile, guest.OTPHash, challenge)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !applied {
			// A concurrent issuance won the conditional write, which
			// means a challenge was just created for this mobile.
			return ErrResendTooSoon
		}
		rollback = model.GuestChallenge{
			OTPHash:           guest.OTPHash,
			OTPExpiresAt:      guest.OTPExpiresAt,
			AttemptsRemaining: guest.AttemptsRemaining,
			LastIssuedAt:      guest.LastIssuedAt,
			Verified:          guest.Verified,
		}

	case errors.Is(err, model.ErrIdentityNotFound):
		newGuest := &model.GuestIdentity{
			Mobile:            mobile,
			OTPHash:           challenge.OTPHash,
			OTPExpiresAt:      challenge.OTPExpiresAt,
			AttemptsRemaining: challenge.AttemptsRemaining,
			LastIssuedAt:      challenge.LastIssuedAt,
			Verified:          false,
			CreatedAt:         now,
		}
		applied, err := s.guests.InsertGuest(ctx, newGuest)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !applied {
			return ErrResendTooSoon
		}
		s.record(audit.EventIdentityRegistered, kindGuest, mobile, "success")
		rollback = model.GuestChallenge{}

	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if s.cooldown != nil {
		if err := s.cooldown.MarkIssued(ctx, mobile, s.otpConfig.ResendCooldown); err != nil {
			util.Warn("Failed to mark cooldown",
				zap.String("key_hash", util.KeyHash(mobile)),
				zap.Error(err))
		}
	}

	if err := s.sender.SendCode(ctx, mobile, code); err != nil {
		// Best-effort rollback so the guest is not stuck holding a
		// challenge they never received.
		if _, rbErr := s.guests.UpdateChallenge(ctx, mobile, codeHash, rollback); rbErr != nil {
			util.Warn("Failed to roll back undelivered challenge",
				zap.String("key_hash", util.KeyHash(mobile)),
				zap.Error(rbErr))
		}
		if s.cooldown != nil {
			_ = s.cooldown.Clear(ctx, mobile)
		}
		s.record(audit.EventOTPIssued, kindGuest, mobile, "delivery_failed")
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	s.record(audit.EventOTPIssued, kindGuest, mobile, "success")
	return nil
}

// VerifyGuestOTP runs the challenge state machine: missing identity,
// missing challenge, exhausted budget, lazy expiry, then a conditional
// verify-or-decrement. At most one concurrent verifier can succeed for
// a given challenge.
func (s *IdentityService) VerifyGuestOTP(ctx context.Context, rawMobile, code string) (*model.GuestIdentity, error) {
	mobile, err := util.NormalizePhone(rawMobile)
	if err != nil {
		return nil, fmt.Errorf("%w: mobile must be a valid phone number", ErrInvalidInput)
	}
	if !validCode(code, s.generator.Length()) {
		return nil, fmt.Errorf("%w: code must be %d digits", ErrInvalidInput, s.generator.Length())
	}

	for attempt := 0; attempt <= casRetryLimit; attempt++ {
		guest, err := s.guests.GetGuestByMobile(ctx, mobile)
		if err != nil {
			if errors.Is(err, model.ErrIdentityNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		if guest.OTPHash == "" {
			return nil, ErrNoActiveChallenge
		}

		if s.now().After(guest.OTPExpiresAt) {
			// Lazy expiry: clear the stale challenge so later requests
			// see no-challenge instead of expired.
			expired := model.GuestChallenge{
				LastIssuedAt: guest.LastIssuedAt,
				Verified:     guest.Verified,
			}
			if _, clearErr := s.guests.UpdateChallenge(ctx, mobile, guest.OTPHash, expired); clearErr != nil {
				util.Warn("Failed to clear expired challenge",
					zap.String("key_hash", util.KeyHash(mobile)),
					zap.Error(clearErr))
			}
			return nil, ErrOTPExpired
		}

		if guest.AttemptsRemaining <= 0 {
			return nil, ErrOTPAttemptsExceeded
		}

		match, err := s.hasher.VerifyOTP(code, guest.OTPHash)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}

		if match {
			applied, err := s.guests.MarkVerified(ctx, mobile, guest.OTPHash, guest.AttemptsRemaining)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
			}
			if !applied {
				// Lost to a concurrent writer; re-read and re-decide.
				continue
			}
			guest.Verified = true
			guest.OTPHash = ""
			guest.AttemptsRemaining = 0
			s.record(audit.EventOTPVerified, kindGuest, mobile, "success")
			return guest, nil
		}

		remaining := guest.AttemptsRemaining - 1
		applied, err := s.guests.ConsumeAttempt(ctx, mobile, guest.OTPHash, guest.AttemptsRemaining, remaining)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		if !applied {
			continue
		}

		if remaining == 0 {
			s.record(audit.EventOTPLocked, kindGuest, mobile, "locked")
			return nil, ErrOTPAttemptsExceeded
		}
		return nil, ErrOTPMismatch
	}

	return nil, fmt.Errorf("%w: conflicting concurrent verification", ErrStoreUnavailable)
}

// VerifyGuest reports the current verification state of a guest.
func (s *IdentityService) VerifyGuest(ctx context.Context, rawMobile string) (*model.GuestIdentity, error) {
	mobile, err := util.NormalizePhone(rawMobile)
	if err != nil {
		return nil, fmt.Errorf("%w: mobile must be a valid phone number", ErrInvalidInput)
	}

	guest, err := s.guests.GetGuestByMobile(ctx, mobile)
	if err != nil {
		if errors.Is(err, model.ErrIdentityNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return guest, nil
}

func (s *IdentityService) record(eventType, identityKind, key, outcome string) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(eventType, identityKind, util.KeyHash(key), outcome)
}

func validCode(code string, length int) bool {
	if len(code) != length {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
