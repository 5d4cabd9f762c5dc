package http

import "time"

// APIResponse is the envelope every endpoint answers with. Errors travel in Data as
// a list of AppError.
type APIResponse struct {
	Status      int         `json:"status" example:"200"`
	Message     string      `json:"message" example:"OK"`
	Data        interface{} `json:"data,omitempty"`
	GeneratedAt *time.Time  `json:"generated_at,omitempty"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"symbol"`
	Message string                 `json:"message,omitempty" example:"symbol is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}
