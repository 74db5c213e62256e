package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/baharkarakas/card-ledger/internal/config"
	"github.com/baharkarakas/card-ledger/internal/lock"
	"github.com/baharkarakas/card-ledger/internal/models"
	"github.com/baharkarakas/card-ledger/internal/repository/memory"
	"github.com/baharkarakas/card-ledger/internal/services"
)

const cardNo = "111111111111111"

type testAPI struct {
	t       *testing.T
	srv     *httptest.Server
	locks   *lock.Local
	ownerID string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	locks := lock.NewLocal(50 * time.Millisecond)

	h := NewRouter(RouterDeps{
		Cfg:     config.Config{RateRPS: 0},
		Log:     log,
		UserSvc: services.NewUserService(store.Users(), store),
		CardSvc: services.NewCardService(store, locks, nil, log),
		TxnSvc:  services.NewTransactionService(store, locks, nil, log),
	})
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return &testAPI{t: t, srv: srv, locks: locks}
}

func (a *testAPI) do(method, path string, body any) (*http.Response, map[string]any) {
	a.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = bytes.NewBufferString(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, rd)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(a.t, err)
	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(a.t, json.Unmarshal(raw, &out))
	}
	return resp, out
}

func (a *testAPI) seedCard() {
	a.t.Helper()
	resp, user := a.do(http.MethodPost, "/api/v1/users", map[string]any{"first_name": "Ada", "email": "ada@example.com"})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	a.ownerID = user["id"].(string)

	resp, card := a.do(http.MethodPost, "/api/v1/cards", map[string]any{
		"user_id": user["id"], "card_no": cardNo, "card_name": "main", "card_type": "DEBIT",
	})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	require.Equal(a.t, float64(0), card["balance"])
	require.Equal(a.t, "NOT_ACTIVE", card["status"])
}

func TestRouter_EndToEnd(t *testing.T) {
	a := newTestAPI(t)
	a.seedCard()

	resp, body := a.do(http.MethodPost, "/api/v1/transactions/topup", map[string]any{"card_no": cardNo, "amount": 500})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "PENDING", body["transaction"].(map[string]any)["status"])
	require.Equal(t, float64(0), body["balance"])

	resp, body = a.do(http.MethodPost, "/api/v1/transactions/update-balance", map[string]any{"card_no": cardNo})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, float64(500), body["balance"])
	require.Equal(t, float64(500), body["summary"].(map[string]any)["amount"])
	require.Len(t, body["settled_ids"], 1)

	resp, body = a.do(http.MethodPost, "/api/v1/transactions/update-balance", map[string]any{"card_no": cardNo})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, "no_pending_topups", body["code"])

	resp, body = a.do(http.MethodPost, "/api/v1/transactions/direct-topup", map[string]any{"card_no": cardNo, "amount": 100})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, float64(600), body["balance"])

	resp, body = a.do(http.MethodPost, "/api/v1/transactions/purchase", map[string]any{"card_no": cardNo, "amount": 1000})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.Equal(t, "insufficient_balance", body["code"])
	require.Equal(t, "insufficient balance: current 600, required 1000", body["error"])
	require.Equal(t, map[string]any{"current": float64(600), "required": float64(1000)}, body["details"])

	resp, body = a.do(http.MethodPost, "/api/v1/transactions/purchase", map[string]any{"card_no": cardNo, "amount": 600})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, float64(0), body["balance"])

	resp, body = a.do(http.MethodGet, "/api/v1/cards/"+cardNo, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(0), body["balance"])

	resp, body = a.do(http.MethodGet, "/api/v1/cards/"+cardNo+"/reconcile", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["consistent"])

	resp, err := http.Get(a.srv.URL + "/api/v1/cards/" + cardNo + "/transactions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rows []models.Transaction
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	require.Len(t, rows, 4)
	require.Equal(t, models.TxnPurchase, rows[0].Type)
}

func TestRouter_Errors(t *testing.T) {
	a := newTestAPI(t)
	a.seedCard()

	var tests = []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"short card number", http.MethodPost, "/api/v1/cards", map[string]any{"user_id": "u", "card_no": "12345", "card_name": "x"}, http.StatusBadRequest, "invalid_card_number_length"},
		{"duplicate card", http.MethodPost, "/api/v1/cards", map[string]any{"user_id": "u", "card_no": cardNo, "card_name": "x"}, http.StatusConflict, "duplicate_card_number"},
		{"unknown user", http.MethodPost, "/api/v1/cards", map[string]any{"user_id": "u", "card_no": "222222222222222", "card_name": "x"}, http.StatusNotFound, "user_not_found"},
		{"empty card number", http.MethodPost, "/api/v1/cards", map[string]any{"user_id": "u", "card_no": "", "card_name": "x"}, http.StatusBadRequest, "invalid_card_number_length"},
		{"absent card number", http.MethodPost, "/api/v1/cards", map[string]any{"user_id": "u", "card_name": "x"}, http.StatusBadRequest, "invalid_card_number_length"},
		{"missing fields", http.MethodPost, "/api/v1/cards", map[string]any{}, http.StatusBadRequest, "invalid_request"},
		{"missing amount", http.MethodPost, "/api/v1/transactions/purchase", map[string]any{"card_no": cardNo}, http.StatusBadRequest, "invalid_request"},
		{"zero amount", http.MethodPost, "/api/v1/transactions/direct-topup", map[string]any{"card_no": cardNo, "amount": 0}, http.StatusBadRequest, "invalid_amount"},
		{"unknown field", http.MethodPost, "/api/v1/transactions/topup", map[string]any{"card_no": cardNo, "amount": 1, "currency": "EUR"}, http.StatusBadRequest, "invalid_request"},
		{"malformed json", http.MethodPost, "/api/v1/transactions/topup", "{", http.StatusBadRequest, "invalid_request"},
		{"unknown card", http.MethodPost, "/api/v1/transactions/topup", map[string]any{"card_no": "999999999999999", "amount": 1}, http.StatusNotFound, "card_not_found"},
		{"unknown card lookup", http.MethodGet, "/api/v1/cards/999999999999999", nil, http.StatusNotFound, "card_not_found"},
		{"unknown user lookup", http.MethodGet, "/api/v1/users/nope", nil, http.StatusNotFound, "user_not_found"},
		{"duplicate email", http.MethodPost, "/api/v1/users", map[string]any{"first_name": "A", "email": "ada@example.com"}, http.StatusConflict, "duplicate_email"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			resp, body := a.do(tt.method, tt.path, tt.body)
			require.Equal(t, tt.status, resp.StatusCode)
			require.Equal(t, tt.code, body["code"])
		})
	}
}

func TestRouter_UserSummary(t *testing.T) {
	a := newTestAPI(t)
	a.seedCard()

	resp, _ := a.do(http.MethodPost, "/api/v1/transactions/direct-topup", map[string]any{"card_no": cardNo, "amount": 250})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = a.do(http.MethodPost, "/api/v1/transactions/topup", map[string]any{"card_no": cardNo, "amount": 40})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, user := a.do(http.MethodPost, "/api/v1/users", map[string]any{"first_name": "Grace", "email": "grace@example.com"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, body := a.do(http.MethodGet, "/api/v1/users/"+user["id"].(string), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "grace@example.com", body["email"])
	require.Empty(t, body["cards"])

	resp, err := http.Get(a.srv.URL + "/api/v1/users/" + a.ownerID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sum services.UserSummary
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sum))
	require.Equal(t, "ada@example.com", sum.Email)
	require.Len(t, sum.Cards, 1)
	require.Equal(t, cardNo, sum.Cards[0].CardNo)
	require.Equal(t, int64(250), sum.Cards[0].Balance)
	require.Len(t, sum.Cards[0].Transactions, 2)
	require.Equal(t, models.TxnTopUp, sum.Cards[0].Transactions[0].Type)
	require.Equal(t, models.TxnPending, sum.Cards[0].Transactions[0].Status)
}

func TestRouter_LockTimeout(t *testing.T) {
	a := newTestAPI(t)
	a.seedCard()

	h, err := a.locks.Acquire(context.Background(), lock.CardKey(cardNo))
	require.NoError(t, err)
	defer func() { _ = h.Release(context.Background()) }()

	resp, body := a.do(http.MethodPost, "/api/v1/transactions/direct-topup", map[string]any{"card_no": cardNo, "amount": 1})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, "concurrency_conflict", body["code"])
	require.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	a := newTestAPI(t)

	resp, err := http.Get(a.srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("X-Request-Id"))

	resp, err = http.Get(a.srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
