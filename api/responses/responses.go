package responses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	pkgerrors "github.com/angelmondragon/stockledger-backend/pkg/errors"
	"github.com/angelmondragon/stockledger-backend/pkg/logger"
	"github.com/angelmondragon/stockledger-backend/pkg/types"
)

const (
	requestIDHeader = "X-Request-Id"
	// retryAfterSeconds is advertised on retryable failures such as a lost
	// identifier allocation race.
	retryAfterSeconds = 1
)

var fallbackBody = []byte(`{"error":{"code":"INTERNAL_ERROR","message":"response encoding failed","retryable":false}}` + "\n")

// WriteSuccess writes data in the success envelope with 200.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteSuccessStatus(w, http.StatusOK, data)
}

func WriteSuccessStatus(w http.ResponseWriter, status int, data any) {
	_ = write(w, status, types.SuccessEnvelope{Data: data})
}

// WriteError renders err as the error envelope. Untyped errors become
// CodeInternal. Messages and details reach the client only when the code's
// metadata exposes them.
func WriteError(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodeInternal, err, "unexpected error")
	}
	meta := pkgerrors.MetadataFor(typed.Code())

	body := types.APIError{
		Code:      string(typed.Code()),
		Message:   meta.PublicMessage,
		Retryable: meta.Retryable,
		RequestID: w.Header().Get(requestIDHeader),
	}
	if m := typed.Message(); meta.ExposeMessage && m != "" {
		body.Message = m
	}
	if meta.DetailsAllowed {
		body.Details = typed.Details()
	}
	if meta.Retryable && (meta.HTTPStatus == http.StatusServiceUnavailable || meta.HTTPStatus == http.StatusTooManyRequests) {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	}

	if logg != nil {
		ctx = logg.WithFields(ctx, pkgerrors.Dump(err).Fields())
		ctx = logg.WithField(ctx, "status", meta.HTTPStatus)
		if meta.HTTPStatus >= http.StatusInternalServerError {
			logg.Error(ctx, "request failed", err)
		} else {
			logg.Warn(ctx, "request rejected")
		}
	}

	if encErr := write(w, meta.HTTPStatus, types.ErrorEnvelope{Error: body}); encErr != nil && logg != nil {
		logg.Error(ctx, "encode error response", encErr)
	}
}

// write marshals before touching the header so an unencodable payload still
// yields a well-formed 500.
func write(w http.ResponseWriter, status int, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		status, raw = http.StatusInternalServerError, fallbackBody
	} else {
		raw = append(raw, '\n')
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(raw)
	return err
}
