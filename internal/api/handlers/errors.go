package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/baharkarakas/card-ledger/internal/api/httpx"
	"github.com/baharkarakas/card-ledger/internal/api/validate"
	"github.com/baharkarakas/card-ledger/internal/middleware"
	"github.com/baharkarakas/card-ledger/internal/services"
)

func statusFor(e *services.Error) int {
	switch e.Kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConcurrency:
		return http.StatusConflict
	case services.KindBusiness:
		if errors.Is(e, services.ErrDuplicateCardNumber) || errors.Is(e, services.ErrDuplicateEmail) {
			return http.StatusConflict
		}
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var se *services.Error
	if !errors.As(err, &se) {
		se = services.ErrInternal
	}
	status := statusFor(se)
	if status == http.StatusInternalServerError {
		log.Error("request failed", "request_id", middleware.RequestIDFrom(r.Context()), "path", r.URL.Path, "err", err)
		httpx.WriteError(w, status, services.ErrInternal.Code, services.ErrInternal.Message, nil)
		return
	}
	if se.Kind == services.KindConcurrency {
		w.Header().Set("Retry-After", "1")
	}
	httpx.WriteError(w, status, se.Code, se.Message, se.Details)
}

func writeBadRequest(w http.ResponseWriter, err error) {
	var errs validate.Errs
	if errors.As(err, &errs) {
		httpx.WriteError(w, http.StatusBadRequest, services.ErrInvalidRequest.Code, "validation failed", errs)
		return
	}
	httpx.WriteError(w, http.StatusBadRequest, services.ErrInvalidRequest.Code, err.Error(), nil)
}

// decode reads the body into v and runs checks on it. It writes the 400
// itself and reports false when the request should stop.
func decode(w http.ResponseWriter, r *http.Request, v interface{}, checks func() validate.Errs) bool {
	if err := httpx.DecodeJSON(w, r, v); err != nil {
		writeBadRequest(w, err)
		return false
	}
	if checks != nil {
		if errs := checks(); len(errs) > 0 {
			writeBadRequest(w, errs)
			return false
		}
	}
	return true
}
