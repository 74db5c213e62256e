package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/baharkarakas/card-ledger/internal/api/httpx"
	"github.com/baharkarakas/card-ledger/internal/api/validate"
	"github.com/baharkarakas/card-ledger/internal/services"
)

type TransactionHandler struct {
	svc *services.TransactionService
	log *slog.Logger
}

func NewTransactionHandler(svc *services.TransactionService, log *slog.Logger) *TransactionHandler {
	return &TransactionHandler{svc: svc, log: log}
}

type amountReq struct {
	CardNo string `json:"card_no"`
	Amount *int64 `json:"amount"`
}

type settleReq struct {
	CardNo string `json:"card_no"`
}

func (h *TransactionHandler) amountOp(op func(ctx context.Context, cardNo string, amount int64) (services.TransactionResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req amountReq
		ok := decode(w, r, &req, func() validate.Errs {
			return validate.Collect(
				validate.Required("card_no", req.CardNo),
				validate.NotNil("amount", req.Amount),
			)
		})
		if !ok {
			return
		}
		res, err := op(r.Context(), req.CardNo, *req.Amount)
		if err != nil {
			writeError(w, r, h.log, err)
			return
		}
		httpx.WriteJSON(w, http.StatusCreated, res)
	}
}

func (h *TransactionHandler) TopUp(w http.ResponseWriter, r *http.Request) {
	h.amountOp(h.svc.CreateTopUpPending)(w, r)
}

func (h *TransactionHandler) DirectTopUp(w http.ResponseWriter, r *http.Request) {
	h.amountOp(h.svc.CreateDirectTopUp)(w, r)
}

func (h *TransactionHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	h.amountOp(h.svc.CreatePurchase)(w, r)
}

func (h *TransactionHandler) UpdateBalance(w http.ResponseWriter, r *http.Request) {
	var req settleReq
	ok := decode(w, r, &req, func() validate.Errs {
		return validate.Collect(validate.Required("card_no", req.CardNo))
	})
	if !ok {
		return
	}
	res, err := h.svc.SettlePendingTopUps(r.Context(), req.CardNo)
	if err != nil {
		writeError(w, r, h.log, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, res)
}
