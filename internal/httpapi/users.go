package httpapi

import (
	"net/http"

	"github.com/libraryops/circulation-go/circulation"
)

type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userPayload struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type passwordPayload struct {
	Password string `json:"password"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, registerErr := h.users.Register(r.Context(), payload.Username, payload.Password)
	if registerErr != nil {
		h.writeError(w, r, registerErr)
		return
	}

	h.writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var payload credentialsPayload
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, authErr := h.users.Authenticate(r.Context(), payload.Username, payload.Password)
	if authErr != nil {
		h.writeError(w, r, authErr)
		return
	}

	h.writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.FindUsers(r.Context(), r.URL.Query().Get("q"), r.URL.Query().Get("role"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, users)
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var payload userPayload
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, createErr := h.users.CreateUser(r.Context(), payload.Username, roleOrDefault(payload.Role))
	if createErr != nil {
		h.writeError(w, r, createErr)
		return
	}

	h.writeJSON(w, http.StatusCreated, user)
}

func (h *Handler) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, idErr := pathID(r)
	if idErr != nil {
		h.writeError(w, r, idErr)
		return
	}

	var payload userPayload
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	user, updateErr := h.users.UpdateUser(r.Context(), id, payload.Username, roleOrDefault(payload.Role))
	if updateErr != nil {
		h.writeError(w, r, updateErr)
		return
	}

	h.writeJSON(w, http.StatusOK, user)
}

func (h *Handler) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, idErr := pathID(r)
	if idErr != nil {
		h.writeError(w, r, idErr)
		return
	}

	if deleteErr := h.users.DeleteUser(r.Context(), id); deleteErr != nil {
		h.writeError(w, r, deleteErr)
		return
	}

	h.writeJSON(w, http.StatusOK, successEnvelope{Success: true})
}

func (h *Handler) handleSetPassword(w http.ResponseWriter, r *http.Request) {
	id, idErr := pathID(r)
	if idErr != nil {
		h.writeError(w, r, idErr)
		return
	}

	var payload passwordPayload
	if err := decodeJSON(r, &payload); err != nil {
		h.writeError(w, r, err)
		return
	}

	if setErr := h.users.SetPassword(r.Context(), id, payload.Password); setErr != nil {
		h.writeError(w, r, setErr)
		return
	}

	h.writeJSON(w, http.StatusOK, successEnvelope{Success: true})
}

func (h *Handler) handleUserBorrowed(w http.ResponseWriter, r *http.Request) {
	id, idErr := pathID(r)
	if idErr != nil {
		h.writeError(w, r, idErr)
		return
	}

	loans, listErr := h.circulation.ListUserBorrowed(r.Context(), id)
	if listErr != nil {
		h.writeError(w, r, listErr)
		return
	}

	h.writeJSON(w, http.StatusOK, loans)
}

func roleOrDefault(role string) circulation.Role {
	if role == string(circulation.RoleAdmin) {
		return circulation.RoleAdmin
	}

	return circulation.RoleUser
}
