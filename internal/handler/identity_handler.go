package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"lostfound-api/internal/service"
	"lostfound-api/internal/util"

	"github.com/go-chi/chi/v5"
)

// IdentityHandler handles HTTP requests for registration and verification
type IdentityHandler struct {
	identityService *service.IdentityService
	validate        *validator.Validate
}

func NewIdentityHandler(identityService *service.IdentityService) *IdentityHandler {
	return &IdentityHandler{
		identityService: identityService,
		validate:        validator.New(),
	}
}

// Response represents a standard API response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func successResponse(data interface{}, message string) Response {
	return Response{
		Success: true,
		Data:    data,
		Message: message,
	}
}

func errorResponse(code, message string) Response {
	return Response{
		Success: false,
		Error:   code,
		Message: message,
	}
}

// -------------------- REQUEST DTOS --------------------

type registerCollegeRequest struct {
	SrNo       string `json:"sr_no" validate:"required"`
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"omitempty,email"`
	Department string `json:"department" validate:"omitempty,max=100"`
	Credential string `json:"credential" validate:"required,min=8,max=128"`
}

type sendOTPRequest struct {
	Mobile string `json:"mobile" validate:"required"`
}

type verifyOTPRequest struct {
	Mobile string `json:"mobile" validate:"required"`
	Code   string `json:"code" validate:"required,numeric"`
}

// Credential is deliberately unvalidated here: an empty or absent
// credential is an authentication failure, not a malformed request.
type verifyCollegeRequest struct {
	SrNo       string `json:"sr_no" validate:"required"`
	Credential string `json:"credential"`
}

type verifyGuestRequest struct {
	Mobile string `json:"mobile" validate:"required"`
}

// RegisterRoutes registers all identity routes
func (h *IdentityHandler) RegisterRoutes(router chi.Router) {
	router.Route("/register", func(r chi.Router) {
		r.Post("/college", h.RegisterCollege)
		r.Post("/guest/send-otp", h.SendGuestOTP)
		r.Post("/guest/verify-otp", h.VerifyGuestOTP)
	})
	router.Route("/verify", func(r chi.Router) {
		r.Post("/college", h.VerifyCollege)
		r.Post("/guest", h.VerifyGuest)
	})
}

// RegisterCollege handles college identity registration
func (h *IdentityHandler) RegisterCollege(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req registerCollegeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	identity, err := h.identityService.RegisterCollege(ctx, service.RegisterCollegeInput{
		SrNo:       req.SrNo,
		Name:       req.Name,
		Email:      req.Email,
		Department: req.Department,
		Credential: req.Credential,
	})
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to register college identity")
		return
	}

	h.respondWithJSON(w, http.StatusCreated, successResponse(identity, "College identity registered"))
	util.Info("College identity registered via HTTP",
		zap.String("key_hash", util.KeyHash(identity.SrNo)),
		zap.Duration("duration", time.Since(startTime)),
	)
}

// SendGuestOTP issues a verification code for a guest mobile
func (h *IdentityHandler) SendGuestOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	startTime := time.Now()

	var req sendOTPRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	if err := h.identityService.SendGuestOTP(ctx, req.Mobile); err != nil {
		h.respondWithServiceError(w, err, "Failed to send verification code")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(nil, "Verification code sent"))
	util.Info("Verification code issued via HTTP",
		zap.Duration("duration", time.Since(startTime)),
	)
}

// VerifyGuestOTP checks a submitted code against the active challenge
func (h *IdentityHandler) VerifyGuestOTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyOTPRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	guest, err := h.identityService.VerifyGuestOTP(ctx, req.Mobile, req.Code)
	if err != nil {
		h.respondWithServiceError(w, err, "Verification failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(guest, "Guest identity verified"))
}

// VerifyCollege re-verifies a college credential
func (h *IdentityHandler) VerifyCollege(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyCollegeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	identity, err := h.identityService.VerifyCollege(ctx, req.SrNo, req.Credential)
	if err != nil {
		h.respondWithServiceError(w, err, "Verification failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(identity, "Credential verified"))
}

// VerifyGuest reports the verification state of a guest identity
func (h *IdentityHandler) VerifyGuest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req verifyGuestRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	guest, err := h.identityService.VerifyGuest(ctx, req.Mobile)
	if err != nil {
		h.respondWithServiceError(w, err, "Lookup failed")
		return
	}

	h.respondWithJSON(w, http.StatusOK, successResponse(guest, "Guest identity found"))
}

// HealthCheck reports service liveness
func (h *IdentityHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondWithJSON(w, http.StatusOK, successResponse(map[string]string{
		"status":  "healthy",
		"service": "lostfound-api",
	}, ""))
}

// -------------------- HELPERS --------------------

func (h *IdentityHandler) decodeAndValidate(w http.ResponseWriter, r *http.Request, req interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		h.respondWithJSON(w, http.StatusBadRequest,
			errorResponse("INVALID_INPUT", "Invalid request body"))
		return false
	}
	if err := h.validate.Struct(req); err != nil {
		h.respondWithJSON(w, http.StatusBadRequest,
			errorResponse("INVALID_INPUT", "Request validation failed"))
		return false
	}
	return true
}

func (h *IdentityHandler) respondWithServiceError(w http.ResponseWriter, err error, message string) {
	status := getStatusCode(err)
	code := getErrorCode(err)

	if status >= http.StatusInternalServerError || status == http.StatusBadGateway {
		util.Error("Request failed",
			zap.String("error_code", code),
			zap.Error(err))
	}

	h.respondWithJSON(w, status, errorResponse(code, message))
}

func (h *IdentityHandler) respondWithJSON(w http.ResponseWriter, status int, payload Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		util.Error("Failed to encode response", zap.Error(err))
	}
}

func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrDuplicateIdentity):
		return http.StatusConflict
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoActiveChallenge):
		return http.StatusNotFound
	case errors.Is(err, service.ErrOTPExpired):
		return http.StatusGone
	case errors.Is(err, service.ErrOTPMismatch):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidCredential):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrOTPAttemptsExceeded):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrResendTooSoon):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrDeliveryFailed):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func getErrorCode(err error) string {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return "INVALID_INPUT"
	case errors.Is(err, service.ErrDuplicateIdentity):
		return "DUPLICATE_IDENTITY"
	case errors.Is(err, service.ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, service.ErrNoActiveChallenge):
		return "NO_ACTIVE_CHALLENGE"
	case errors.Is(err, service.ErrOTPExpired):
		return "OTP_EXPIRED"
	case errors.Is(err, service.ErrOTPMismatch):
		return "OTP_MISMATCH"
	case errors.Is(err, service.ErrInvalidCredential):
		return "INVALID_CREDENTIAL"
	case errors.Is(err, service.ErrOTPAttemptsExceeded):
		return "OTP_ATTEMPTS_EXCEEDED"
	case errors.Is(err, service.ErrResendTooSoon):
		return "RESEND_TOO_SOON"
	case errors.Is(err, service.ErrDeliveryFailed):
		return "DELIVERY_FAILED"
	case errors.Is(err, service.ErrStoreUnavailable):
		return "STORE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}
