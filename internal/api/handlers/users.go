package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/card-ledger/internal/api/httpx"
	"github.com/baharkarakas/card-ledger/internal/api/validate"
	"github.com/baharkarakas/card-ledger/internal/services"
)

type UserHandler struct {
	svc *services.UserService
	log *slog.Logger
}

func NewUserHandler(svc *services.UserService, log *slog.Logger) *UserHandler {
	return &UserHandler{svc: svc, log: log}
}

type createUserReq struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserReq
	ok := decode(w, r, &req, func() validate.Errs {
		return validate.Collect(
			validate.Required("first_name", req.FirstName),
			validate.Required("email", req.Email),
		)
	})
	if !ok {
		return
	}
	u, err := h.svc.Create(r.Context(), req.FirstName, req.LastName, req.Email)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, u)
}

// Get returns the user with their cards and recent transactions.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Summary(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}
