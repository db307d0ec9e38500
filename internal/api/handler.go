package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/bus"
	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/metrics"
	"github.com/RichardDebugFile/IA-Vtuber-sub001/internal/orchestrate"
)

// maxUploadBytes caps /stt audio uploads (25 MiB covers several minutes of
// webm/ogg speech).
const maxUploadBytes = 25 << 20

// Handler is the HTTP handler for the whole gateway surface.
type Handler struct {
	bus    *bus.Bus
	orch   *orchestrate.Orchestrator
	router chi.Router
}

// New creates a Handler and registers all routes. wsHandler serves GET /ws
// and rec provides GET /metrics; either may be nil to leave the route off.
func New(b *bus.Bus, orch *orchestrate.Orchestrator, wsHandler http.Handler, rec *metrics.Recorder) http.Handler {
	h := &Handler{bus: b, orch: orch, router: chi.NewRouter()}

	h.router.Get("/health", h.health)
	h.router.Post("/publish", h.publish)
	h.router.Post("/chat", h.chat)
	h.router.Post("/stt", h.stt)

	h.router.Route("/services", func(r chi.Router) {
		r.Get("/status", h.servicesStatus)
		r.Get("/{id}/status", h.serviceStatus)
		r.Post("/{id}/start", h.serviceStart)
		r.Post("/{id}/stop", h.serviceStop)
		r.Post("/{id}/restart", h.serviceRestart)
	})

	if wsHandler != nil {
		h.router.Get("/ws", wsHandler.ServeHTTP)
	}
	if rec != nil {
		h.router.Get("/metrics", rec.Handler().ServeHTTP)
	}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /health — topic registry and live subscriber counts.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Service:     "gateway",
		Topics:      h.bus.Topics(),
		Subscribers: h.bus.Counts(),
	})
}

// publish handles POST /publish — one-shot broadcast to a topic.
func (h *Handler) publish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	if req.Data == nil {
		jsonErr(w, http.StatusUnprocessableEntity, "missing required field: data")
		return
	}

	delivered, err := h.bus.Publish(req.Topic, *req.Data)
	if err != nil {
		if errors.Is(err, bus.ErrUnknownTopic) {
			jsonErr(w, http.StatusBadRequest, fmt.Sprintf(
				"%q is not a valid topic. Valid topics: %v", req.Topic, h.bus.Topics()))
			return
		}
		jsonErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	jsonResp(w, http.StatusOK, PublishResponse{OK: true, Topic: req.Topic, Delivered: delivered})
}

// chat handles POST /chat — the full conversation turn.
func (h *Handler) chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonErr(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	if req.Text == "" {
		jsonErr(w, http.StatusUnprocessableEntity, "missing required field: text")
		return
	}
	if req.User == "" {
		req.User = "local"
	}
	if req.TTSMode == "" {
		req.TTSMode = "casiopy"
	}

	result, err := h.orch.Chat(r.Context(), orchestrate.ChatRequest{
		User:    req.User,
		Text:    req.Text,
		TTSMode: req.TTSMode,
	})
	if err != nil {
		upstreamErr(w, err)
		return
	}

	jsonResp(w, http.StatusOK, ChatResponse{
		Reply:          result.Reply,
		Emotion:        result.Emotion,
		AudioB64:       result.AudioB64,
		Turn:           result.Turn,
		TTSBackendUsed: result.TTSBackend,
		MemoriesUsed:   result.MemoriesUsed,
	})
}

// stt handles POST /stt — multipart audio transcription proxy.
func (h *Handler) stt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("audio")
	if err != nil {
		jsonErr(w, http.StatusUnprocessableEntity, "missing multipart field: audio")
		return
	}
	defer file.Close()

	out, err := h.orch.Transcribe(r.Context(),
		header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		upstreamErr(w, err)
		return
	}
	rawResp(w, http.StatusOK, out)
}

// --- services proxy ---------------------------------------------------------

func (h *Handler) servicesStatus(w http.ResponseWriter, r *http.Request) {
	out, err := h.orch.ServicesStatus(r.Context())
	if err != nil {
		upstreamErr(w, err)
		return
	}
	rawResp(w, http.StatusOK, out)
}

func (h *Handler) serviceStatus(w http.ResponseWriter, r *http.Request) {
	out, err := h.orch.ServiceStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, orchestrate.ErrServiceNotFound) {
			jsonErr(w, http.StatusNotFound, err.Error())
			return
		}
		upstreamErr(w, err)
		return
	}
	rawResp(w, http.StatusOK, out)
}

func (h *Handler) serviceStart(w http.ResponseWriter, r *http.Request) {
	h.serviceAction(w, r, h.orch.StartService)
}

func (h *Handler) serviceStop(w http.ResponseWriter, r *http.Request) {
	h.serviceAction(w, r, h.orch.StopService)
}

func (h *Handler) serviceRestart(w http.ResponseWriter, r *http.Request) {
	h.serviceAction(w, r, h.orch.RestartService)
}

func (h *Handler) serviceAction(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) (json.RawMessage, error)) {
	out, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		upstreamErr(w, err)
		return
	}
	rawResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func rawResp(w http.ResponseWriter, code int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}

// upstreamErr maps a collaborator failure onto the gateway's status codes:
// 504 for timeouts, the collaborator's own status for monitoring proxy
// calls that got one, 502 otherwise.
func upstreamErr(w http.ResponseWriter, err error) {
	var ue *orchestrate.UpstreamError
	if errors.As(err, &ue) {
		switch {
		case ue.Timeout:
			jsonErr(w, http.StatusGatewayTimeout, ue.Error())
		case ue.Service == "monitoring" && ue.Status != 0:
			jsonErr(w, ue.Status, ue.Error())
		default:
			jsonErr(w, http.StatusBadGateway, ue.Error())
		}
		return
	}
	jsonErr(w, http.StatusBadGateway, err.Error())
}
