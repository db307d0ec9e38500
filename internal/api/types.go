package api

// PublishRequest is the body of POST /publish.
type PublishRequest struct {
	Topic string          `json:"topic"`
	Data  *map[string]any `json:"data"`
}

// PublishResponse reports a completed broadcast.
type PublishResponse struct {
	OK        bool   `json:"ok"`
	Topic     string `json:"topic"`
	Delivered int    `json:"delivered"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Text    string `json:"text"`
	User    string `json:"user"`
	TTSMode string `json:"tts_mode"`
}

// ChatResponse is the aggregate result of one conversation turn.
type ChatResponse struct {
	Reply          string `json:"reply"`
	Emotion        string `json:"emotion"`
	AudioB64       string `json:"audio_b64"`
	Turn           int    `json:"turn"`
	TTSBackendUsed string `json:"tts_backend_used"`
	MemoriesUsed   int    `json:"memories_used"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status      string         `json:"status"`
	Service     string         `json:"service"`
	Topics      []string       `json:"topics"`
	Subscribers map[string]int `json:"subscribers"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}
