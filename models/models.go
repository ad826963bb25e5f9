package models

import (
	"fmt"
	"strings"
	"time"
)

// ChallengeRequest asks for a sign-in challenge for a wallet.
type ChallengeRequest struct {
	PublicKey string `json:"public_key"`
}

// Validate rejects malformed input before anything is issued.
func (r ChallengeRequest) Validate() error {
	if strings.TrimSpace(r.PublicKey) == "" {
		return fmt.Errorf("public_key required")
	}
	return nil
}

// SignInRequest carries the signed challenge back.
type SignInRequest struct {
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// Validate rejects malformed input before any verification runs.
func (r SignInRequest) Validate() error {
	if strings.TrimSpace(r.PublicKey) == "" {
		return fmt.Errorf("public_key required")
	}
	if strings.TrimSpace(r.Signature) == "" {
		return fmt.Errorf("signature required")
	}
	return nil
}

// CreateTaskRequest is the requester's task-creation payload. The payment
// reference must name an on-chain payment of the task amount to the
// platform wallet.
type CreateTaskRequest struct {
	Title      string   `json:"title"`
	Options    []Option `json:"options"`
	PaymentRef string   `json:"payment_ref"`
}

// Option is one selectable image in a task-creation payload.
type Option struct {
	ImageURL string `json:"image_url"`
}

// Validate enforces the required fields and ranges before the ledger is touched.
func (r CreateTaskRequest) Validate() error {
	if len(r.Options) < 2 {
		return fmt.Errorf("at least two options required")
	}
	if len(r.Options) > 50 {
		return fmt.Errorf("too many options")
	}
	for i, o := range r.Options {
		if strings.TrimSpace(o.ImageURL) == "" {
			return fmt.Errorf("option %d: image_url required", i)
		}
	}
	if strings.TrimSpace(r.PaymentRef) == "" {
		return fmt.Errorf("payment_ref required")
	}
	return nil
}

// SubmissionRequest is the worker's labeling payload.
type SubmissionRequest struct {
	TaskID   int64 `json:"task_id"`
	OptionID int64 `json:"option_id"`
}

// Validate enforces numeric ranges before the ledger is touched.
func (r SubmissionRequest) Validate() error {
	if r.TaskID <= 0 {
		return fmt.Errorf("task_id must be positive")
	}
	if r.OptionID <= 0 {
		return fmt.Errorf("option_id must be positive")
	}
	return nil
}

// HealthResponse represents health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

// ErrorResponse represents API error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	Code      int    `json:"code,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

// APIResponse represents a generic API response.
type APIResponse struct {
	Success bool           `json:"success"`
	Data    interface{}    `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// NewSuccessResponse creates a success response.
func NewSuccessResponse(data interface{}) *APIResponse {
	return &APIResponse{
		Success: true,
		Data:    data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(error string, code int) *APIResponse {
	return &APIResponse{
		Success: false,
		Error: &ErrorResponse{
			Error:     error,
			Message:   error,
			Code:      code,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
	}
}
