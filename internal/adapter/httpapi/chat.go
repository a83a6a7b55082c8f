package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"egyptoai/internal/adapter/sse"
	"egyptoai/internal/domain"
	"egyptoai/internal/infra/logger"
	"egyptoai/internal/usecase"
)

// chatRequest is the body of the text chat endpoints. An empty prompt is
// left to the chat service so every entry point reports it the same way.
type chatRequest struct {
	Prompt string `json:"prompt" validate:"max=32000"`
	Model  string `json:"model" validate:"max=32"`
	ChatID string `json:"chatId" validate:"max=64"`
}

func (c chatRequest) toStream(r *http.Request) usecase.StreamRequest {
	return usecase.StreamRequest{
		Prompt:   c.Prompt,
		Provider: c.Model,
		ChatID:   c.ChatID,
		UserID:   domain.UserIDFromContext(r.Context()),
	}
}

func (h *handlers) chatStream(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	h.stream(w, r, body.toStream(r))
}

func (h *handlers) stream(w http.ResponseWriter, r *http.Request, req usecase.StreamRequest) {
	if err := h.chat.Stream(r.Context(), req, sse.New(w)); err != nil {
		logger.FromContext(r.Context(), h.logger).Debug("chat stream ended with error",
			"provider", req.Provider, "error", err)
	}
}

func (h *handlers) chatComplete(w http.ResponseWriter, r *http.Request) {
	var body chatRequest
	if err := decodeJSON(w, r, &body); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.chat.Complete(r.Context(), body.toStream(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// chatAudio transcribes the multipart "audio" field and streams the
// transcript as the prompt.
func (h *handlers) chatAudio(w http.ResponseWriter, r *http.Request) {
	if h.transcriber == nil {
		writeError(w, http.StatusServiceUnavailable, "Audio chat is not configured", "")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxAudio)
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "Audio file too large", "")
			return
		}
		writeError(w, http.StatusBadRequest, "Audio file is required", "")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Audio file is required", "")
		return
	}
	defer file.Close()

	text, err := h.transcriber.Transcribe(r.Context(), header.Filename, file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	text = strings.TrimSpace(text)
	if text == "" {
		writeError(w, http.StatusBadRequest, usecase.MsgEmptyTranscript, "")
		return
	}

	model := r.FormValue("model")
	if _, err := domain.ParseProviderName(model); err != nil {
		model = string(domain.ProviderDeepSeek)
	}
	h.stream(w, r, usecase.StreamRequest{
		Prompt:   text,
		Provider: model,
		ChatID:   r.FormValue("chatId"),
		UserID:   domain.UserIDFromContext(r.Context()),
	})
}

func (h *handlers) chatTitles(w http.ResponseWriter, r *http.Request) {
	chats, err := h.convs.ListConversations(r.Context(), domain.UserIDFromContext(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

func (h *handlers) chatDetail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.convs.History(r.Context(), domain.UserIDFromContext(r.Context()), r.PathValue("chatId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}
