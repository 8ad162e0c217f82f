package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/nullable"

	"github.com/Overland-East-Bay/storefront-api/internal/app/carts"
	"github.com/Overland-East-Bay/storefront-api/internal/app/checkout"
	"github.com/Overland-East-Bay/storefront-api/internal/app/orders"
)

// ErrorResponse is the JSON error envelope of every non-2xx JSON response.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string                            `json:"code"`
	Message   string                            `json:"message"`
	Details   nullable.Nullable[map[string]any] `json:"details,omitempty"`
	RequestId nullable.Nullable[string]         `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code string, message string, details map[string]any) {
	var er ErrorResponse
	er.Error.Code = code
	er.Error.Message = message
	if details != nil {
		er.Error.Details = nullable.NewNullableWithValue(details)
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		er.Error.RequestId = nullable.NewNullableWithValue(rid)
	}
	writeJSON(w, status, er)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// appError extracts the status, code, message and details of an application-layer error.
func appError(err error) (status int, code, message string, details map[string]any, ok bool) {
	if ae := (*checkout.Error)(nil); errors.As(err, &ae) {
		return ae.Status, ae.Code, ae.Message, ae.Details, true
	}
	if ae := (*carts.Error)(nil); errors.As(err, &ae) {
		return ae.Status, ae.Code, ae.Message, ae.Details, true
	}
	if ae := (*orders.Error)(nil); errors.As(err, &ae) {
		return ae.Status, ae.Code, ae.Message, ae.Details, true
	}
	return 0, "", "", nil, false
}

// writeServiceError maps application errors to their response and everything else to a
// logged 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	if status, code, msg, details, ok := appError(err); ok {
		writeError(w, r, status, code, msg, details)
		return
	}
	log.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", middleware.GetReqID(r.Context()),
		"error", err,
	)
	writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error", nil)
}
