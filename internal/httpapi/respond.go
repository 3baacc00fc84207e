package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"kinhelp.org/internal/care"
	"kinhelp.org/internal/obs"
)

// notificationHeader flags responses whose state change committed but whose
// notification could not be recorded.
const notificationHeader = "X-Care-Notification"

var errEmptyBody = errors.New("request body is required")

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errors.New("request body too large")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeOptionalJSON accepts an empty body as the zero value.
func decodeOptionalJSON(r *http.Request, dst any) error {
	if err := decodeJSON(r, dst); err != nil && !errors.Is(err, errEmptyBody) {
		return err
	}
	return nil
}

func handleCareError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, care.ErrValidation):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, care.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, care.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, care.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, care.ErrInvalidTransition):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		obs.Logger().Error("request_failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// writeResult answers a service call. A notification failure does not undo a committed
// change, so the record is still returned with the failure flagged in a header.
func writeResult(w http.ResponseWriter, r *http.Request, code int, v any, err error) {
	if err != nil {
		if !errors.Is(err, care.ErrNotificationFailed) {
			handleCareError(w, r, err)
			return
		}
		obs.Logger().Warn("notification_failed",
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		w.Header().Set(notificationHeader, "failed")
	}
	writeJSON(w, code, v)
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func writeList[T any](w http.ResponseWriter, r *http.Request, items []T, err error) {
	if err != nil {
		handleCareError(w, r, err)
		return
	}
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, listResponse[T]{Items: items})
}

func parsePositiveInt(raw string, def, min, max int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < min || v > max {
		return 0, errors.New("value out of range")
	}
	return v, nil
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func listLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), defaultListLimit, 1, maxListLimit)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxListLimit))
		return 0, false
	}
	return limit, true
}
