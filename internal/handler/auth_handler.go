package handlers

import (
	"errors"
	"net/http"

	"blogCPT/internal/models"
	"blogCPT/internal/service"
)

type MeResponse struct {
	User     *models.AuthUser `json:"user"`
	SignedIn bool             `json:"signedIn"`
}

// Login redirects to the provider's account chooser, opening a session first
// when the browser has none.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	s := SessionFrom(r.Context())
	if s == nil {
		var token string
		var err error
		s, token, err = h.AuthService.StartSession()
		if err != nil {
			h.Log.WithError(err).Error("failed to start session")
			WriteError(w, "Не удалось создать сессию", http.StatusInternalServerError)
			return
		}
		http.SetCookie(w, h.AuthService.SessionCookie(token))
	}

	http.Redirect(w, r, h.AuthService.LoginURL(s), http.StatusFound)
}

func (h *Handlers) Callback(w http.ResponseWriter, r *http.Request) {
	s := SessionFrom(r.Context())
	if s == nil {
		WriteError(w, "Сессия не найдена", http.StatusUnauthorized)
		return
	}

	q := r.URL.Query()
	if reason := q.Get("error"); reason != "" {
		WriteError(w, "Вход отменен: "+reason, http.StatusUnauthorized)
		return
	}

	code := q.Get("code")
	if code == "" {
		WriteError(w, "Отсутствует код авторизации", http.StatusBadRequest)
		return
	}

	if _, err := h.AuthService.CompleteLogin(r.Context(), s, q.Get("state"), code); err != nil {
		if errors.Is(err, service.ErrInvalidLoginState) {
			WriteError(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.Log.WithError(err).Warn("sign-in failed")
		WriteError(w, "Ошибка аутентификации", http.StatusUnauthorized)
		return
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	s := SessionFrom(r.Context())
	if s != nil {
		if err := h.AuthService.Logout(r.Context(), s); err != nil {
			h.writeServiceError(w, r, err)
			return
		}
	}

	http.SetCookie(w, h.AuthService.ClearSessionCookie())
	writeSuccess(w, MessageResponse{Message: "Выход выполнен"}, http.StatusOK)
}

func (h *Handlers) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	s := SessionFrom(r.Context())
	if s == nil {
		writeSuccess(w, MeResponse{}, http.StatusOK)
		return
	}

	user, err := h.AuthService.CurrentUser(r.Context(), s, forceRefresh(r))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	writeSuccess(w, MeResponse{User: user, SignedIn: user != nil}, http.StatusOK)
}
