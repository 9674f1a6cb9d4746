package tracing

import (
	"context"
	"strconv"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// SessionKeyKey is the context key for the chat session key
	SessionKeyKey ContextKey = "session_key"
	// MessageIDKey is the context key for the inbound transport message id
	MessageIDKey ContextKey = "message_id"
	// EventKey is the context key for the inbound event kind (text, voice, start)
	EventKey ContextKey = "event"
)

// TraceContext holds tracing information for one inbound turn
type TraceContext struct {
	TraceID    string
	SessionKey string
	MessageID  string
	Event      string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithSessionKey adds a session key to the context
func WithSessionKey(ctx context.Context, sessionKey string) context.Context {
	return context.WithValue(ctx, SessionKeyKey, sessionKey)
}

// WithMessageID adds the inbound message id to the context
func WithMessageID(ctx context.Context, messageID string) context.Context {
	return context.WithValue(ctx, MessageIDKey, messageID)
}

// WithEvent adds the inbound event kind to the context
func WithEvent(ctx context.Context, event string) context.Context {
	return context.WithValue(ctx, EventKey, event)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// GetSessionKey retrieves the session key from the context
func GetSessionKey(ctx context.Context) string {
	return stringValue(ctx, SessionKeyKey)
}

// GetMessageID retrieves the inbound message id from the context
func GetMessageID(ctx context.Context) string {
	return stringValue(ctx, MessageIDKey)
}

// GetEvent retrieves the inbound event kind from the context
func GetEvent(ctx context.Context) string {
	return stringValue(ctx, EventKey)
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:    GetTraceID(ctx),
		SessionKey: GetSessionKey(ctx),
		MessageID:  GetMessageID(ctx),
		Event:      GetEvent(ctx),
	}
}

// NewContext creates a new context with tracing information
func NewContext(ctx context.Context, tc *TraceContext) context.Context {
	if tc.TraceID != "" {
		ctx = WithTraceID(ctx, tc.TraceID)
	}
	if tc.SessionKey != "" {
		ctx = WithSessionKey(ctx, tc.SessionKey)
	}
	if tc.MessageID != "" {
		ctx = WithMessageID(ctx, tc.MessageID)
	}
	if tc.Event != "" {
		ctx = WithEvent(ctx, tc.Event)
	}
	return ctx
}

// NewTurnContext tags ctx for one inbound event, generating a trace ID if none is set.
func NewTurnContext(ctx context.Context, sessionKey string, messageID int, event string) context.Context {
	if GetTraceID(ctx) == "" {
		ctx = WithTraceID(ctx, NewTraceID())
	}
	ctx = WithSessionKey(ctx, sessionKey)
	ctx = WithMessageID(ctx, strconv.Itoa(messageID))
	return WithEvent(ctx, event)
}
