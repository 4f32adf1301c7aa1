package mcp

import (
	"github.com/rs/zerolog"
)

// ToolContext carries per-invocation progress and log reporting into tools.
type ToolContext struct {
	logger    zerolog.Logger
	requestID string
}

// NewToolContext creates a context for one tool invocation.
func NewToolContext(logger zerolog.Logger, requestID string) *ToolContext {
	return &ToolContext{
		logger:    logger.With().Str("request_id", requestID).Logger(),
		requestID: requestID,
	}
}

// RequestID returns the invocation's correlation ID.
func (tc *ToolContext) RequestID() string {
	if tc == nil {
		return ""
	}
	return tc.requestID
}

// Info reports a progress message to the caller's log stream. Safe on nil.
func (tc *ToolContext) Info(msg string) {
	if tc == nil {
		return
	}
	tc.logger.Info().Msg(msg)
}

// Error reports an error message to the caller's log stream. Safe on nil.
func (tc *ToolContext) Error(msg string) {
	if tc == nil {
		return
	}
	tc.logger.Error().Msg(msg)
}

// Progress reports fractional completion (0..1) with a message. Safe on nil.
func (tc *ToolContext) Progress(fraction float64, msg string) {
	if tc == nil {
		return
	}
	tc.logger.Info().Float64("progress", fraction).Msg(msg)
}
