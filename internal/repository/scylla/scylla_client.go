package scylla

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gocql/gocql"
	"go.uber.org/zap"

	"lostfound-api/internal/config"
	"lostfound-api/internal/util"
)

// PreparedStatements holds prepared statements that are actually used by the repositories
type PreparedStatements struct {
	CreateCollege    *gocql.Query
	GetCollegeBySrNo *gocql.Query
	InsertGuest      *gocql.Query
	GetGuestByMobile *gocql.Query
	UpdateChallenge  *gocql.Query
	ConsumeAttempt   *gocql.Query
	MarkVerified     *gocql.Query
}

type ScyllaClient struct {
	Session      *gocql.Session
	config       *config.ScyllaConfig
	Prepared     *PreparedStatements
	prepareMutex sync.RWMutex
	isPrepared   bool
}

func NewScyllaClient(cfg *config.Config) (*ScyllaClient, error) {
	scyllaConfig := cfg.Scylla

	cluster := gocql.NewCluster(scyllaConfig.Nodes...)
	cluster.Keyspace = scyllaConfig.Keyspace
	cluster.Consistency = gocql.LocalQuorum
	cluster.Timeout = 10 * time.Second
	cluster.ConnectTimeout = 10 * time.Second
	cluster.NumConns = 4
	cluster.SocketKeepalive = 30 * time.Second
	cluster.MaxPreparedStmts = 1000
	cluster.MaxRoutingKeyInfo = 1000
	cluster.PageSize = 1000
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		Min:        time.Second,
		Max:        10 * time.Second,
		NumRetries: 3,
	}

	if scyllaConfig.Username != "" && scyllaConfig.Password != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: scyllaConfig.Username,
			Password: scyllaConfig.Password,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create scylla session: %w", err)
	}

	client := &ScyllaClient{
		Session: session,
		config:  &scyllaConfig,
	}

	if err := client.prepareStatements(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	util.Info("ScyllaDB client initialized with prepared statements",
		zap.Strings("nodes", scyllaConfig.Nodes),
		zap.String("keyspace", scyllaConfig.Keyspace))

	return client, nil
}

func (s *ScyllaClient) prepareStatements() error {
	s.prepareMutex.Lock()
	defer s.prepareMutex.Unlock()

	if s.isPrepared {
		return nil
	}

	prepared := &PreparedStatements{}

	// Conditional insert keeps registration first-writer-wins.
	prepared.CreateCollege = s.Session.Query(`
        INSERT INTO college_users (
            bucket, sr_no, name, email, department, credential_hash, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`)

	prepared.GetCollegeBySrNo = s.Session.Query(`
        SELECT bucket, sr_no, name, email, department, credential_hash, created_at
        FROM college_users WHERE bucket = ? AND sr_no = ?`)

	prepared.InsertGuest = s.Session.Query(`
        INSERT INTO guest_users (
            bucket, mobile, otp_hash, otp_expires_at, attempts_remaining,
            last_issued_at, verified, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?) IF NOT EXISTS`)

	prepared.GetGuestByMobile = s.Session.Query(`
        SELECT bucket, mobile, otp_hash, otp_expires_at, attempts_remaining,
            last_issued_at, verified, created_at
        FROM guest_users WHERE bucket = ? AND mobile = ?`)

	// Challenge mutations are guarded by the stored otp_hash so that
	// concurrent writers for the same mobile serialize at the store.
	prepared.UpdateChallenge = s.Session.Query(`
        UPDATE guest_users SET otp_hash = ?, otp_expires_at = ?,
            attempts_remaining = ?, last_issued_at = ?, verified = ?
        WHERE bucket = ? AND mobile = ? IF otp_hash = ?`)

	prepared.ConsumeAttempt = s.Session.Query(`
        UPDATE guest_users SET attempts_remaining = ?
        WHERE bucket = ? AND mobile = ?
        IF otp_hash = ? AND attempts_remaining = ?`)

	prepared.MarkVerified = s.Session.Query(`
        UPDATE guest_users SET verified = true, otp_hash = '', attempts_remaining = 0
        WHERE bucket = ? AND mobile = ?
        IF otp_hash = ? AND attempts_remaining = ?`)

	s.Prepared = prepared
	s.isPrepared = true

	util.Info("ScyllaDB prepared statements created successfully")
	return nil
}

func (s *ScyllaClient) Close() {
	if s.Session != nil {
		s.Session.Close()
		util.Info("ScyllaDB client closed")
	}
}

func (s *ScyllaClient) Query(stmt string, values ...interface{}) *gocql.Query {
	return s.Session.Query(stmt, values...)
}

func (s *ScyllaClient) HealthCheck() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var clusterName string
	err := s.Session.Query(`SELECT cluster_name FROM system.local`).WithContext(ctx).Scan(&clusterName)
	if err != nil {
		return fmt.Errorf("scylla health check failed: %w", err)
	}

	util.Debug("ScyllaDB health check passed", zap.String("cluster_name", clusterName))
	return nil
}

func (s *ScyllaClient) ExecuteWithRetry(query *gocql.Query, maxRetries int) error {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := query.Exec(); err != nil {
			lastErr = err
			if i < maxRetries {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}

func (s *ScyllaClient) ScanWithRetry(query *gocql.Query, dest ...interface{}) error {
	var lastErr error
	for i := 0; i < 3; i++ {
		if err := query.Scan(dest...); err != nil {
			lastErr = err
			if i < 2 {
				time.Sleep(time.Duration(i+1) * 100 * time.Millisecond)
				continue
			}
		} else {
			return nil
		}
	}
	return lastErr
}
