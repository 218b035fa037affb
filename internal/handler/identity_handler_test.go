package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lostfound-api/internal/config"
	"lostfound-api/internal/hashing"
	"lostfound-api/internal/model"
	"lostfound-api/internal/otp"
	"lostfound-api/internal/service"
)

type memCollegeRepo struct {
	mu      sync.Mutex
	records map[string]model.CollegeIdentity
}

func (m *memCollegeRepo) CreateCollege(ctx context.Context, identity *model.CollegeIdentity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[identity.SrNo]; exists {
		return false, nil
	}
	m.records[identity.SrNo] = *identity
	return true, nil
}

func (m *memCollegeRepo) GetCollegeBySrNo(ctx context.Context, srNo string) (*model.CollegeIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.records[srNo]
	if !exists {
		return nil, model.ErrIdentityNotFound
	}
	copy := record
	return &copy, nil
}

type memGuestRepo struct {
	mu      sync.Mutex
	records map[string]model.GuestIdentity
}

func (m *memGuestRepo) GetGuestByMobile(ctx context.Context, mobile string) (*model.GuestIdentity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.records[mobile]
	if !exists {
		return nil, model.ErrIdentityNotFound
	}
	copy := record
	return &copy, nil
}

func (m *memGuestRepo) InsertGuest(ctx context.Context, identity *model.GuestIdentity) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.records[identity.Mobile]; exists {
		return false, nil
	}
	m.records[identity.Mobile] = *identity
	return true, nil
}

func (m *memGuestRepo) UpdateChallenge(ctx context.Context, mobile, expectedHash string, challenge model.GuestChallenge) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.records[mobile]
	if !exists || record.OTPHash != expectedHash {
		return false, nil
	}
	record.OTPHash = challenge.OTPHash
	record.OTPExpiresAt = challenge.OTPExpiresAt
	record.AttemptsRemaining = challenge.AttemptsRemaining
	record.LastIssuedAt = challenge.LastIssuedAt
	record.Verified = challenge.Verified
	m.records[mobile] = record
	return true, nil
}

func (m *memGuestRepo) ConsumeAttempt(ctx context.Context, mobile, expectedHash string, expectedRemaining, remaining int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.records[mobile]
	if !exists || record.OTPHash != expectedHash || record.AttemptsRemaining != expectedRemaining {
		return false, nil
	}
	record.AttemptsRemaining = remaining
	m.records[mobile] = record
	return true, nil
}

func (m *memGuestRepo) MarkVerified(ctx context.Context, mobile, expectedHash string, expectedRemaining int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, exists := m.records[mobile]
	if !exists || record.OTPHash != expectedHash || record.AttemptsRemaining != expectedRemaining {
		return false, nil
	}
	record.Verified = true
	record.OTPHash = ""
	record.AttemptsRemaining = 0
	m.records[mobile] = record
	return true, nil
}

type memSender struct {
	mu       sync.Mutex
	lastCode string
}

func (m *memSender) SendCode(ctx context.Context, mobile, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastCode = code
	return nil
}

func (m *memSender) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCode
}

func newTestServer(t *testing.T) (http.Handler, *memSender) {
	t.Helper()

	hasher := hashing.NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	})
	sender := &memSender{}

	svc := service.NewIdentityService(
		&memCollegeRepo{records: make(map[string]model.CollegeIdentity)},
		&memGuestRepo{records: make(map[string]model.GuestIdentity)},
		nil,
		sender,
		hasher,
		otp.NewGenerator(6),
		nil,
		config.OTPConfig{Length: 6, TTL: 5 * time.Minute, MaxAttempts: 3, ResendCooldown: 45 * time.Second},
	)

	return NewRouter(NewIdentityHandler(svc)), sender
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return rec, resp
}

func TestRegisterCollegeEndpoint(t *testing.T) {
	router, _ := newTestServer(t)

	body := map[string]string{
		"sr_no":      "CS-2023-0042",
		"name":       "Asha Verma",
		"email":      "asha@example.edu",
		"credential": "hunter2hunter2",
	}

	t.Run("created", func(t *testing.T) {
		rec, resp := doJSON(t, router, http.MethodPost, "/api/register/college", body)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.True(t, resp.Success)
		assert.NotContains(t, rec.Body.String(), "hunter2hunter2")
		assert.NotContains(t, rec.Body.String(), "credential_hash")
	})

	t.Run("duplicate", func(t *testing.T) {
		rec, resp := doJSON(t, router, http.MethodPost, "/api/register/college", body)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "DUPLICATE_IDENTITY", resp.Error)
	})

	t.Run("validation failure", func(t *testing.T) {
		rec, resp := doJSON(t, router, http.MethodPost, "/api/register/college", map[string]string{
			"sr_no": "CS-1", "name": "Short", "credential": "short",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "INVALID_INPUT", resp.Error)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/register/college", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGuestOTPEndpoints(t *testing.T) {
	router, sender := newTestServer(t)
	mobile := "+14155551234"

	t.Run("send otp", func(t *testing.T) {
		rec, resp := doJSON(t, router, http.MethodPost, "/api/register/guest/send-otp", map[string]string{
			"mobile": mobile,
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
		// The code never appears in the response.
		assert.NotContains(t, rec.Body.String(), sender.last())
	})

	t.Run("resend throttled", func(t *testing.T) {
		rec, resp := doJSON(t, router, http.MethodPost, "/api/register/guest/send-otp", map[string]string{
			"mobile": mobile,
		})
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "RESEND_TOO_SOON", resp.Error)
	})

	t.Run("wrong code", func(t *testing.T) {
		wrongCode := "000000"
		if sender.last() == wrongCode {
			wrongCode = "000001"
		}
		rec, resp := doJSON(t, router, http.MethodPost, "/api/register/guest/verify-otp", map[string]string{
			"mobile": mobile, "code": wrongCode,
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "OTP_MISMATCH", resp.Error)
	})

	t.Run("correct code", func(t *testing.T) {
		rec, resp := doJSON(t, router, http.MethodPost, "/api/register/guest/verify-otp", map[string]string{
			"mobile": mobile, "code": sender.last(),
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
	})

	t.Run("replay reports missing challenge", func(t *testing.T) {
		rec, resp := doJSON(t, router, http.MethodPost, "/api/register/guest/verify-otp", map[string]string{
			"mobile": mobile, "code": sender.last(),
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NO_ACTIVE_CHALLENGE", resp.Error)
	})

	t.Run("unknown mobile", func(t *testing.T) {
		rec, resp := doJSON(t, router, http.MethodPost, "/api/register/guest/verify-otp", map[string]string{
			"mobile": "+19998887766", "code": "123456",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", resp.Error)
	})

	t.Run("verify guest state", func(t *testing.T) {
		rec, resp := doJSON(t, router, http.MethodPost, "/api/verify/guest", map[string]string{
			"mobile": mobile,
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
	})
}

func TestVerifyCollegeEndpoint(t *testing.T) {
	router, _ := newTestServer(t)

	_, _ = doJSON(t, router, http.MethodPost, "/api/register/college", map[string]string{
		"sr_no": "CS-2023-0042", "name": "Asha Verma", "credential": "hunter2hunter2",
	})

	t.Run("correct credential", func(t *testing.T) {
		rec, _ := doJSON(t, router, http.MethodPost, "/api/verify/college", map[string]string{
			"sr_no": "CS-2023-0042", "credential": "hunter2hunter2",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("wrong credential", func(t *testing.T) {
		rec, resp := doJSON(t, router, http.MethodPost, "/api/verify/college", map[string]string{
			"sr_no": "CS-2023-0042", "credential": "wrong credential",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "INVALID_CREDENTIAL", resp.Error)
	})

	t.Run("empty credential", func(t *testing.T) {
		rec, resp := doJSON(t, router, http.MethodPost, "/api/verify/college", map[string]string{
			"sr_no": "CS-2023-0042",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "INVALID_CREDENTIAL", resp.Error)
	})

	t.Run("unknown serial", func(t *testing.T) {
		rec, resp := doJSON(t, router, http.MethodPost, "/api/verify/college", map[string]string{
			"sr_no": "CS-0000-0000", "credential": "hunter2hunter2",
		})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "NOT_FOUND", resp.Error)
	})
}

func TestHealthEndpoint(t *testing.T) {
	router, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}
