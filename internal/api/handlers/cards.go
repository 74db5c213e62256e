package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/baharkarakas/card-ledger/internal/api/httpx"
	"github.com/baharkarakas/card-ledger/internal/api/validate"
	"github.com/baharkarakas/card-ledger/internal/models"
	"github.com/baharkarakas/card-ledger/internal/services"
)

type CardHandler struct {
	svc *services.CardService
	log *slog.Logger
}

func NewCardHandler(svc *services.CardService, log *slog.Logger) *CardHandler {
	return &CardHandler{svc: svc, log: log}
}

func (h *CardHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req services.CreateCardInput
	ok := decode(w, r, &req, func() validate.Errs {
		// card_no is length-checked by the service
		return validate.Collect(
			validate.Required("user_id", req.UserID),
		)
	})
	if !ok {
		return
	}
	card, err := h.svc.CreateCard(r.Context(), req)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, card)
}

func (h *CardHandler) Get(w http.ResponseWriter, r *http.Request) {
	card, err := h.svc.GetCard(r.Context(), chi.URLParam(r, "cardNo"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, card)
}

func (h *CardHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.ListTransactions(r.Context(), chi.URLParam(r, "cardNo"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	if rows == nil {
		rows = []models.Transaction{}
	}
	httpx.WriteJSON(w, http.StatusOK, rows)
}

func (h *CardHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Reconcile(r.Context(), chi.URLParam(r, "cardNo"))
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec)
}
