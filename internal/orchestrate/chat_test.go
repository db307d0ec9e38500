package orchestrate_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/bus"
	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/config"
	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/orchestrate"
)

// --- test helpers -----------------------------------------------------------

// recordingSub collects every frame type it receives. The orchestrator
// broadcasts from concurrent goroutines, so access is locked.
type recordingSub struct {
	mu     sync.Mutex
	frames []string
}

func (s *recordingSub) Send(p []byte) error {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(p, &env); err != nil {
		return err
	}
	s.mu.Lock()
	s.frames = append(s.frames, env.Type)
	s.mu.Unlock()
	return nil
}

func (s *recordingSub) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.frames...)
}

func target(url string) config.Target {
	return config.Target{URL: url, Timeout: 2 * time.Second}
}

// conversationStub answers /chat with a fixed reply.
func conversationStub(t *testing.T, reply, emotion string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat" {
			http.NotFound(w, r)
			return
		}
		var in map[string]string
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("conversation stub: bad body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"reply": reply, "emotion": emotion, "turn": 7, "memories_used": 2,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// ttsStub answers /synthesize with fixed audio.
func ttsStub(t *testing.T, audioB64 string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/synthesize" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck
			"ok": true, "backend": "casiopy", "audio_b64": audioB64,
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func failingStub(t *testing.T, code int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", code)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newOrchestrator(b *bus.Bus, conv, tts string) *orchestrate.Orchestrator {
	up := config.UpstreamConfig{
		Conversation: target(conv),
		TTS:          target(tts),
		STT:          target("http://127.0.0.1:1"),
		Monitoring:   target("http://127.0.0.1:1"),
	}
	return orchestrate.New(b, nil, up)
}

func subscribeAll(b *bus.Bus) *recordingSub {
	sub := &recordingSub{}
	for _, topic := range b.Topics() {
		b.Subscribe(topic, sub)
	}
	return sub
}

// --- Chat -------------------------------------------------------------------

func TestChat_HappyPath(t *testing.T) {
	conv := conversationStub(t, "hola", "happy")
	tts := ttsStub(t, "ZmFrZQ==")
	b := bus.New(config.DefaultTopics, nil)
	sub := subscribeAll(b)
	orch := newOrchestrator(b, conv.URL, tts.URL)

	result, err := orch.Chat(context.Background(), orchestrate.ChatRequest{
		User: "local", Text: "hola", TTSMode: "casiopy",
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if result.Reply != "hola" || result.Emotion != "happy" || result.AudioB64 != "ZmFrZQ==" {
		t.Errorf("result = %+v", result)
	}
	if result.Turn != 7 || result.MemoriesUsed != 2 || result.TTSBackend != "casiopy" {
		t.Errorf("passthrough fields = %+v", result)
	}

	frames := sub.types()
	got := map[string]int{}
	for _, f := range frames {
		got[f]++
	}
	for _, topic := range []string{"utterance", "emotion", "audio"} {
		if got[topic] != 1 {
			t.Errorf("topic %q broadcast %d times, want 1", topic, got[topic])
		}
	}
	if len(frames) != 3 {
		t.Errorf("total broadcasts = %d, want 3", len(frames))
	}
}

func TestChat_EmotionDefaultsToNeutral(t *testing.T) {
	conv := conversationStub(t, "ok", "")
	tts := ttsStub(t, "YQ==")
	b := bus.New(config.DefaultTopics, nil)
	orch := newOrchestrator(b, conv.URL, tts.URL)

	result, err := orch.Chat(context.Background(), orchestrate.ChatRequest{User: "local", Text: "x"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if result.Emotion != "neutral" {
		t.Errorf("emotion = %q, want neutral", result.Emotion)
	}
}

func TestChat_ConversationFailureBroadcastsNothing(t *testing.T) {
	conv := failingStub(t, http.StatusInternalServerError)
	tts := ttsStub(t, "YQ==")
	b := bus.New(config.DefaultTopics, nil)
	sub := subscribeAll(b)
	orch := newOrchestrator(b, conv.URL, tts.URL)

	_, err := orch.Chat(context.Background(), orchestrate.ChatRequest{User: "local", Text: "x"})
	var ue *orchestrate.UpstreamError
	if !errors.As(err, &ue) || ue.Service != "conversation" {
		t.Fatalf("err = %v, want conversation UpstreamError", err)
	}
	if frames := sub.types(); len(frames) != 0 {
		t.Errorf("broadcasts = %v, want none on conversation failure", frames)
	}
}

func TestChat_TTSFailureBroadcastsNothing(t *testing.T) {
	conv := conversationStub(t, "hola", "happy")
	tts := failingStub(t, http.StatusServiceUnavailable)
	b := bus.New(config.DefaultTopics, nil)
	sub := subscribeAll(b)
	orch := newOrchestrator(b, conv.URL, tts.URL)

	_, err := orch.Chat(context.Background(), orchestrate.ChatRequest{User: "local", Text: "x"})
	var ue *orchestrate.UpstreamError
	if !errors.As(err, &ue) || ue.Service != "tts" {
		t.Fatalf("err = %v, want tts UpstreamError", err)
	}
	if frames := sub.types(); len(frames) != 0 {
		t.Errorf("broadcasts = %v, want none on tts failure", frames)
	}
}

func TestChat_TTSNotOKFailsTurn(t *testing.T) {
	conv := conversationStub(t, "hola", "happy")
	tts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"ok": false}) //nolint:errcheck
	}))
	t.Cleanup(tts.Close)

	b := bus.New(config.DefaultTopics, nil)
	orch := newOrchestrator(b, conv.URL, tts.URL)

	if _, err := orch.Chat(context.Background(), orchestrate.ChatRequest{User: "local", Text: "x"}); err == nil {
		t.Fatal("Chat succeeded despite ok=false from TTS")
	}
}

func TestChat_ConversationUnreachable(t *testing.T) {
	b := bus.New(config.DefaultTopics, nil)
	// Port 1 refuses connections.
	orch := newOrchestrator(b, "http://127.0.0.1:1", "http://127.0.0.1:1")

	_, err := orch.Chat(context.Background(), orchestrate.ChatRequest{User: "local", Text: "x"})
	var ue *orchestrate.UpstreamError
	if !errors.As(err, &ue) || ue.Service != "conversation" || ue.Status != 0 {
		t.Fatalf("err = %v, want transport-level conversation failure", err)
	}
}

func TestChat_TimeoutIsMarked(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(slow.Close)

	b := bus.New(config.DefaultTopics, nil)
	up := config.UpstreamConfig{
		Conversation: config.Target{URL: slow.URL, Timeout: 50 * time.Millisecond},
		TTS:          target("http://127.0.0.1:1"),
		STT:          target("http://127.0.0.1:1"),
		Monitoring:   target("http://127.0.0.1:1"),
	}
	orch := orchestrate.New(b, nil, up)

	_, err := orch.Chat(context.Background(), orchestrate.ChatRequest{User: "local", Text: "x"})
	var ue *orchestrate.UpstreamError
	if !errors.As(err, &ue) || !ue.Timeout {
		t.Fatalf("err = %v, want timeout-flagged UpstreamError", err)
	}
}

// --- services proxy ---------------------------------------------------------

func TestStartService_PublishesLifecycleEvents(t *testing.T) {
	mon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/services/stt/start" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "online"}) //nolint:errcheck
	}))
	t.Cleanup(mon.Close)

	b := bus.New(config.DefaultTopics, nil)
	sub := &recordingSub{}
	b.Subscribe("service-status", sub)

	up := config.UpstreamConfig{
		Conversation: target("http://127.0.0.1:1"),
		TTS:          target("http://127.0.0.1:1"),
		STT:          target("http://127.0.0.1:1"),
		Monitoring:   target(mon.URL),
	}
	orch := orchestrate.New(b, nil, up)

	if _, err := orch.StartService(context.Background(), "stt"); err != nil {
		t.Fatalf("StartService: %v", err)
	}
	// starting + started.
	if frames := sub.types(); len(frames) != 2 {
		t.Errorf("service-status events = %d, want 2", len(frames))
	}
}

func TestServiceStatus_UnknownID(t *testing.T) {
	mon := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"tts": map[string]any{"status": "online"}}) //nolint:errcheck
	}))
	t.Cleanup(mon.Close)

	b := bus.New(config.DefaultTopics, nil)
	up := config.UpstreamConfig{
		Conversation: target("http://127.0.0.1:1"),
		TTS:          target("http://127.0.0.1:1"),
		STT:          target("http://127.0.0.1:1"),
		Monitoring:   target(mon.URL),
	}
	orch := orchestrate.New(b, nil, up)

	if _, err := orch.ServiceStatus(context.Background(), "ghost"); err == nil {
		t.Fatal("ServiceStatus for unknown id should fail")
	}
}
