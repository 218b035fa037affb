package scylla

import (
	"context"
	"fmt"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"lostfound-api/internal/bucketing"
	"lostfound-api/internal/model"
	"lostfound-api/internal/util"
)

type GuestRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewGuestRepository(client *ScyllaClient, buckets *bucketing.Manager) *GuestRepository {
	return &GuestRepository{
		client:  client,
		buckets: buckets,
	}
}

func (r *GuestRepository) GetGuestByMobile(ctx context.Context, mobile string) (*model.GuestIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	bucket := r.buckets.IdentityBucket(mobile)
	identity := &model.GuestIdentity{}

	query := r.client.Prepared.GetGuestByMobile.Bind(bucket, mobile).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&identity.Bucket, &identity.Mobile, &identity.OTPHash,
		&identity.OTPExpiresAt, &identity.AttemptsRemaining,
		&identity.LastIssuedAt, &identity.Verified, &identity.CreatedAt,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, model.ErrIdentityNotFound
		}
		util.Error("Failed to get guest identity",
			zap.String("key_hash", util.KeyHash(mobile)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get guest identity: %w", err)
	}

	return identity, nil
}

// InsertGuest inserts the identity with a conditional write. Returns
// false without error when the mobile is already registered.
func (r *GuestRepository) InsertGuest(ctx context.Context, identity *model.GuestIdentity) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	identity.Bucket = r.buckets.IdentityBucket(identity.Mobile)
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}

	query := r.client.Prepared.InsertGuest.Bind(
		identity.Bucket, identity.Mobile, identity.OTPHash,
		identity.OTPExpiresAt, identity.AttemptsRemaining,
		identity.LastIssuedAt, identity.Verified, identity.CreatedAt,
	).WithContext(ctx)

	previous := make(map[string]interface{})
	applied, err := query.MapScanCAS(previous)
	if err != nil {
		util.Error("Failed to insert guest identity",
			zap.String("key_hash", util.KeyHash(identity.Mobile)),
			zap.Error(err))
		return false, fmt.Errorf("failed to insert guest identity: %w", err)
	}

	return applied, nil
}

// UpdateChallenge replaces the challenge fields if the stored otp_hash
// still equals expectedHash. A false return means a concurrent writer
// got there first.
func (r *GuestRepository) UpdateChallenge(ctx context.Context, mobile, expectedHash string, challenge model.GuestChallenge) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	bucket := r.buckets.IdentityBucket(mobile)

	query := r.client.Prepared.UpdateChallenge.Bind(
		challenge.OTPHash, challenge.OTPExpiresAt, challenge.AttemptsRemaining,
		challenge.LastIssuedAt, challenge.Verified,
		bucket, mobile, expectedHash,
	).WithContext(ctx)

	previous := make(map[string]interface{})
	applied, err := query.MapScanCAS(previous)
	if err != nil {
		util.Error("Failed to update guest challenge",
			zap.String("key_hash", util.KeyHash(mobile)),
			zap.Error(err))
		return false, fmt.Errorf("failed to update guest challenge: %w", err)
	}

	return applied, nil
}

// ConsumeAttempt decrements the attempt budget if both the challenge
// hash and the prior attempt count still match.
func (r *GuestRepository) ConsumeAttempt(ctx context.Context, mobile, expectedHash string, expectedRemaining, remaining int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	bucket := r.buckets.IdentityBucket(mobile)

	query := r.client.Prepared.ConsumeAttempt.Bind(
		remaining, bucket, mobile, expectedHash, expectedRemaining,
	).WithContext(ctx)

	previous := make(map[string]interface{})
	applied, err := query.MapScanCAS(previous)
	if err != nil {
		util.Error("Failed to consume guest attempt",
			zap.String("key_hash", util.KeyHash(mobile)),
			zap.Error(err))
		return false, fmt.Errorf("failed to consume guest attempt: %w", err)
	}

	return applied, nil
}

// MarkVerified flips the identity to verified and clears the challenge.
// The double condition guarantees at most one verifier wins.
func (r *GuestRepository) MarkVerified(ctx context.Context, mobile, expectedHash string, expectedRemaining int) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	bucket := r.buckets.IdentityBucket(mobile)

	query := r.client.Prepared.MarkVerified.Bind(
		bucket, mobile, expectedHash, expectedRemaining,
	).WithContext(ctx)

	previous := make(map[string]interface{})
	applied, err := query.MapScanCAS(previous)
	if err != nil {
		util.Error("Failed to mark guest verified",
			zap.String("key_hash", util.KeyHash(mobile)),
			zap.Error(err))
		return false, fmt.Errorf("failed to mark guest verified: %w", err)
	}

	if applied {
		util.Info("Guest identity verified",
			zap.String("key_hash", util.KeyHash(mobile)))
	}
	return applied, nil
}
