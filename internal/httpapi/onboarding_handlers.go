package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"kadra.org/internal/onboarding"
)

type verifyRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type verifyResponse struct {
	EmployeeID  string    `json:"employee_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	SetupToken  string    `json:"setup_token"`
	CurrentStep string    `json:"current_step"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type activateRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

type activateResponse struct {
	Account      onboarding.Account `json:"account"`
	SessionToken string             `json:"session_token"`
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.Phone) == "" {
		writeError(w, r, http.StatusBadRequest, "email and phone are required")
		return
	}

	result, err := a.verify.Verify(r.Context(), req.Email, req.Phone, requestMeta(r))
	if err != nil {
		handleOnboardingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		EmployeeID:  result.Employee.ID,
		FirstName:   result.Employee.FirstName,
		LastName:    result.Employee.LastName,
		SetupToken:  result.Bearer,
		CurrentStep: result.Token.CurrentStep().String(),
		ExpiresAt:   result.ExpiresAt,
	})
}

func (a *API) handleSetupSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	state, err := a.setup.Resume(r.Context(), token)
	if err != nil {
		handleOnboardingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleConfirmPhone(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	state, err := a.setup.ConfirmPhoneAuth(r.Context(), token)
	if err != nil {
		handleOnboardingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleChooseUsername(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	state, err := a.setup.ChooseUsername(r.Context(), token)
	if err != nil {
		handleOnboardingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (a *API) handleActivate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	var req activateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	result, err := a.setup.Activate(r.Context(), token, req.Username, req.Password, req.ConfirmPassword, requestMeta(r))
	if err != nil {
		handleOnboardingError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, activateResponse{
		Account:      result.Account,
		SessionToken: result.SessionToken,
	})
}

func handleOnboardingError(w http.ResponseWriter, r *http.Request, err error) {
	var mismatch *onboarding.MismatchError
	var weak *onboarding.WeakPasswordError
	switch {
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"error":              mismatch.Error(),
			"attempts_remaining": mismatch.AttemptsRemaining,
		})
	case errors.As(err, &weak):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":      weak.Error(),
			"violations": weak.Violations,
		})
	case errors.Is(err, onboarding.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, onboarding.ErrLockedOut):
		writeError(w, r, http.StatusLocked, err.Error())
	case errors.Is(err, onboarding.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, onboarding.ErrUnauthorized), errors.Is(err, onboarding.ErrTokenInvalid):
		writeError(w, r, http.StatusUnauthorized, "invalid setup token")
	case errors.Is(err, onboarding.ErrTokenExpired):
		writeError(w, r, http.StatusGone, err.Error())
	case errors.Is(err, onboarding.ErrTokenUsed):
		writeError(w, r, http.StatusGone, err.Error())
	case errors.Is(err, onboarding.ErrPasswordMismatch):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, onboarding.ErrUsernameTaken), errors.Is(err, onboarding.ErrAlreadyActivated):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
