package httpapi

import (
	"net/http"

	"egyptoai/internal/domain"
)

type registerRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Name     string `json:"name" validate:"required,max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type otpRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Purpose string `json:"purpose"`
}

type otpVerifyRequest struct {
	Email string `json:"email" validate:"required,email"`
	OTP   string `json:"otp" validate:"required,numeric,min=4,max=10"`
}

type profileRequest struct {
	Name     string `json:"name" validate:"required,max=100"`
	PhotoURL string `json:"photoUrl" validate:"omitempty,url,max=2048"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	token, err := h.accounts.Register(r.Context(), body.Email, body.Password, body.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	token, err := h.accounts.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (h *handlers) requestOTP(w http.ResponseWriter, r *http.Request) {
	var body otpRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.accounts.RequestOTP(r.Context(), body.Email, domain.OTPPurpose(body.Purpose)); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP sent"})
}

func (h *handlers) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var body otpVerifyRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	vt, err := h.accounts.VerifyOTP(r.Context(), body.Email, body.OTP)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true, "verificationToken": vt})
}

func (h *handlers) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := h.accounts.Profile(r.Context(), domain.UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *handlers) updateProfile(w http.ResponseWriter, r *http.Request) {
	var body profileRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	p, err := h.accounts.UpdateProfile(r.Context(), domain.UserIDFromContext(r.Context()), body.Name, body.PhotoURL)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}
