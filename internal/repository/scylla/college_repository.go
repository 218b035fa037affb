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

type CollegeRepository struct {
	client  *ScyllaClient
	buckets *bucketing.Manager
}

func NewCollegeRepository(client *ScyllaClient, buckets *bucketing.Manager) *CollegeRepository {
	return &CollegeRepository{
		client:  client,
		buckets: buckets,
	}
}

// CreateCollege inserts the identity with a conditional write. Returns
// false without error when the serial number is already registered.
func (r *CollegeRepository) CreateCollege(ctx context.Context, identity *model.CollegeIdentity) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	identity.Bucket = r.buckets.IdentityBucket(identity.SrNo)
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now().UTC()
	}

	query := r.client.Prepared.CreateCollege.Bind(
		identity.Bucket, identity.SrNo, identity.Name, identity.Email,
		identity.Department, identity.CredentialHash, identity.CreatedAt,
	).WithContext(ctx)

	previous := make(map[string]interface{})
	applied, err := query.MapScanCAS(previous)
	if err != nil {
		util.Error("Failed to create college identity",
			zap.String("key_hash", util.KeyHash(identity.SrNo)),
			zap.Error(err))
		return false, fmt.Errorf("failed to create college identity: %w", err)
	}

	if applied {
		util.Info("College identity created",
			zap.String("key_hash", util.KeyHash(identity.SrNo)))
	}
	return applied, nil
}

func (r *CollegeRepository) GetCollegeBySrNo(ctx context.Context, srNo string) (*model.CollegeIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	bucket := r.buckets.IdentityBucket(srNo)
	identity := &model.CollegeIdentity{}

	query := r.client.Prepared.GetCollegeBySrNo.Bind(bucket, srNo).WithContext(ctx)

	err := r.client.ScanWithRetry(query,
		&identity.Bucket, &identity.SrNo, &identity.Name, &identity.Email,
		&identity.Department, &identity.CredentialHash, &identity.CreatedAt,
	)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, model.ErrIdentityNotFound
		}
		util.Error("Failed to get college identity",
			zap.String("key_hash", util.KeyHash(srNo)),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get college identity: %w", err)
	}

	return identity, nil
}
