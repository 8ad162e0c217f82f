package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/Overland-East-Bay/storefront-api/internal/domain"
	"github.com/Overland-East-Bay/storefront-api/internal/ports/out/idempotency"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

type lineItemRequest struct {
	Title     string `json:"title" validate:"required"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0,lte=1000000000000"`
	Quantity  int    `json:"quantity" validate:"gt=0,lte=1000000"`
}

func (li lineItemRequest) toDomain() domain.LineItem {
	return domain.LineItem{Title: li.Title, UnitPrice: li.UnitPrice, Quantity: li.Quantity}
}

func lineItems(in []lineItemRequest) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(in))
	for _, li := range in {
		out = append(out, li.toDomain())
	}
	return out
}

type createCartRequest struct {
	Email         *openapi_types.Email `json:"email,omitempty"`
	RegionID      string               `json:"region_id"`
	CurrencyCode  string               `json:"currency_code" validate:"required,len=3"`
	Items         []lineItemRequest    `json:"items" validate:"dive"`
	ShippingTotal int64                `json:"shipping_total" validate:"gte=0,lte=1000000000000"`
	Metadata      map[string]any       `json:"metadata,omitempty"`
}

type selectPaymentSessionRequest struct {
	ProviderID string `json:"provider_id" validate:"required"`
}

type createSwapRequest struct {
	Items         []lineItemRequest `json:"items" validate:"required,min=1,dive"`
	ShippingTotal int64             `json:"shipping_total" validate:"gte=0,lte=1000000000000"`
}

type idempotencyKeyView struct {
	Key           string          `json:"idempotency_key"`
	CreatedAt     time.Time       `json:"created_at"`
	LockedAt      *time.Time      `json:"locked_at"`
	RequestMethod string          `json:"request_method"`
	RequestParams json.RawMessage `json:"request_params,omitempty"`
	RequestBody   json.RawMessage `json:"request_body,omitempty"`
	RequestPath   string          `json:"request_path"`
	ResponseCode  int             `json:"response_code,omitempty"`
	ResponseBody  json.RawMessage `json:"response_body,omitempty"`
	RecoveryPoint string          `json:"recovery_point"`
}

func toIdempotencyKeyView(rec idempotency.Record) idempotencyKeyView {
	return idempotencyKeyView{
		Key:           string(rec.Key),
		CreatedAt:     rec.CreatedAt,
		LockedAt:      rec.LockedAt,
		RequestMethod: rec.RequestMethod,
		RequestParams: rec.RequestParams,
		RequestBody:   rec.RequestBody,
		RequestPath:   rec.RequestPath,
		ResponseCode:  rec.ResponseCode,
		ResponseBody:  rec.ResponseBody,
		RecoveryPoint: string(rec.RecoveryPoint),
	}
}

// requestError is a client error found while decoding a request body.
type requestError struct {
	status  int
	code    string
	message string
	details map[string]any
}

func (e *requestError) Error() string { return e.message }

// decodeBody decodes and validates a JSON request body into dst.
func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &requestError{status: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR", message: "missing request body"}
		}
		return &requestError{status: http.StatusBadRequest, code: "INVALID_DATA", message: fmt.Sprintf("malformed request body: %v", err)}
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		details := make(map[string]any, len(verrs))
		for _, fe := range verrs {
			field := strings.TrimPrefix(fe.Namespace(), reflect.TypeOf(dst).Elem().Name()+".")
			details[field] = "failed " + fe.Tag()
		}
		return &requestError{status: http.StatusUnprocessableEntity, code: "VALIDATION_ERROR", message: "invalid request body", details: details}
	}
	return nil
}
