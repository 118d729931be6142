package types

// GenerateRequest is the payload accepted by POST /generate.
type GenerateRequest struct {
	// Required prompt text describing the video to generate.
	Prompt string `json:"prompt"`
	// Optional negative prompt.
	NegativePrompt string `json:"negative_prompt,omitempty"`
	// Optional generation parameters; defaults are applied when omitted.
	Parameters *GenerationParameters `json:"parameters,omitempty"`
}

// GenerateAccepted is returned when a request has been queued.
type GenerateAccepted struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// QueueItem is the public view of one queued or in-flight request.
type QueueItem struct {
	ID             string               `json:"id"`
	Prompt         string               `json:"prompt"`
	NegativePrompt string               `json:"negative_prompt,omitempty"`
	Status         string               `json:"status"`
	CreatedAt      int64                `json:"created_at"`
	Parameters     GenerationParameters `json:"parameters"`
	// Populated on terminal items.
	Error          string `json:"error,omitempty"`
	VideoPath      string `json:"video_path,omitempty"`
	Seed           int64  `json:"seed,omitempty"`
	Mode           string `json:"mode,omitempty"`
	HasAudio       bool   `json:"has_audio,omitempty"`
	EnhancedPrompt string `json:"enhanced_prompt,omitempty"`
}

// QueueResponse wraps the item list returned by GET /queue.
type QueueResponse struct {
	Items []QueueItem `json:"items"`
}

// StatusResponse is the GET /status payload.
type StatusResponse struct {
	Server          string  `json:"server"`
	ModelLoaded     bool    `json:"model_loaded"`
	QueueCount      int     `json:"queue_count"`
	CurrentProgress float64 `json:"current_progress"`
	CurrentMessage  string  `json:"current_message,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
