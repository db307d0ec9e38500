package orchestrate

import (
	"context"
	"log/slog"
	"sync"
)

// ChatRequest is one conversation turn from a client.
type ChatRequest struct {
	// User identifies the speaker; defaults to "local" at the API layer.
	User string

	// Text is the user's utterance.
	Text string

	// TTSMode selects the synthesis backend on the TTS router
	// (casiopy | stream_fast | blips). Passed through verbatim.
	TTSMode string
}

// ChatResult is the aggregate outcome of a full conversation turn.
type ChatResult struct {
	Reply        string
	Emotion      string
	AudioB64     string
	Turn         int
	TTSBackend   string
	MemoriesUsed int
}

// conversationResponse is the subset of the conversation service's /chat
// reply the gateway consumes.
type conversationResponse struct {
	Reply        string `json:"reply"`
	Emotion      string `json:"emotion"`
	Turn         int    `json:"turn"`
	MemoriesUsed int    `json:"memories_used"`
}

// ttsResponse is the TTS router's /synthesize reply.
type ttsResponse struct {
	OK       bool   `json:"ok"`
	Backend  string `json:"backend"`
	AudioB64 string `json:"audio_b64"`
}

// Chat runs one conversation turn: conversation service, then TTS, then a
// concurrent fan-out of the utterance, emotion and audio events. Any
// upstream failure aborts the turn before anything is broadcast, so a
// caller receiving a result always has a genuine reply and audio.
func (o *Orchestrator) Chat(ctx context.Context, req ChatRequest) (*ChatResult, error) {
	up := o.upstreams()

	var conv conversationResponse
	err := o.postJSON(ctx, "conversation", up.Conversation, "/chat",
		map[string]string{"user": req.User, "text": req.Text}, &conv)
	if err != nil {
		o.rec.ChatRequest(true)
		return nil, err
	}
	if conv.Emotion == "" {
		conv.Emotion = "neutral"
	}

	var tts ttsResponse
	err = o.postJSON(ctx, "tts", up.TTS, "/synthesize", map[string]any{
		"text":    conv.Reply,
		"voice":   "casiopy",
		"mode":    req.TTSMode,
		"emotion": conv.Emotion,
		"speed":   1.0,
	}, &tts)
	if err != nil {
		o.rec.ChatRequest(true)
		return nil, err
	}
	if !tts.OK {
		o.rec.ChatRequest(true)
		return nil, &UpstreamError{Service: "tts", Err: errSynthesisRefused}
	}

	// The three events are independent and unordered relative to each
	// other, but all must be attempted before the caller gets its reply.
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		o.publish("utterance", map[string]any{
			"text":    conv.Reply,
			"user_id": req.User,
			"turn":    conv.Turn,
		})
	}()
	go func() {
		defer wg.Done()
		o.publish("emotion", map[string]any{"emotion": conv.Emotion})
	}()
	go func() {
		defer wg.Done()
		o.publish("audio", map[string]any{
			"audio_b64":   tts.AudioB64,
			"tts_backend": tts.Backend,
		})
	}()
	wg.Wait()

	o.rec.ChatRequest(false)
	slog.Info("chat turn completed",
		"user", req.User,
		"emotion", conv.Emotion,
		"turn", conv.Turn,
		"tts_backend", tts.Backend,
		"memories_used", conv.MemoriesUsed,
	)

	return &ChatResult{
		Reply:        conv.Reply,
		Emotion:      conv.Emotion,
		AudioB64:     tts.AudioB64,
		Turn:         conv.Turn,
		TTSBackend:   tts.Backend,
		MemoriesUsed: conv.MemoriesUsed,
	}, nil
}
