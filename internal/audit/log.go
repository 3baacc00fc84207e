package audit

import (
	"context"
	"errors"
	"maps"
	"strings"

	"go.uber.org/zap"

	"kinhelp.org/internal/auth"
	"kinhelp.org/internal/care"
	"kinhelp.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zf := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		zf = append(zf, zap.String("request_id", rid))
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		zf = append(zf, zap.String("user_id", userID))
	}
	copied := make(map[string]any, len(fields))
	maps.Copy(copied, fields)
	zf = append(zf, zap.Any("fields", copied))

	obs.Logger().Info("audit", zf...)
	return nil
}

// Transition records a committed care transition as "care.<kind>.<to>". It matches the
// care.WithCommitHook signature.
func Transition(ctx context.Context, t care.Transition) {
	_ = LogEvent(ctx, "care."+t.Kind+"."+t.To, map[string]any{
		"id":         t.ID,
		"actor":      t.Actor.ID,
		"actor_role": string(t.Actor.Role),
		"from":       t.From,
		"to":         t.To,
	})
}

// WatchSessions records every session event until ctx is done.
func WatchSessions(ctx context.Context, sessions *auth.Sessions) {
	events, cancel := sessions.Subscribe(32)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = LogEvent(ctx, "auth.session."+string(ev.Kind), map[string]any{
				"user":     ev.UserID,
				"token_id": ev.TokenID,
			})
		}
	}
}
