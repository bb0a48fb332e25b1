// ABOUTME: JSON wire types of the dialogue service HTTP API
// ABOUTME: Shared by the HTTP client and the fake planner service

package transport

// Endpoint paths relative to the service base URL.
const (
	PathStartChat    = "/start_chat"
	PathContinueChat = "/continue_chat"
	PathResetChat    = "/reset_chat"
)

// HeaderIdempotencyKey carries the mutation ID of a request.
const HeaderIdempotencyKey = "Idempotency-Key"

// StartChatRequest is the body of POST /start_chat.
type StartChatRequest struct {
	UserID    string `json:"user_id"`
	UserInput string `json:"user_input"`
}

// ContinueChatRequest is the body of POST /continue_chat.
type ContinueChatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

// ResetChatRequest is the body of POST /reset_chat.
type ResetChatRequest struct {
	UserID string `json:"user_id"`
}

// ChatResponse is the success body of every endpoint.
type ChatResponse struct {
	Response string `json:"response"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
