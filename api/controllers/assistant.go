package controllers

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/locallink/locallink-backend/api/responses"
	"github.com/locallink/locallink-backend/api/validators"
	"github.com/locallink/locallink-backend/internal/assistant"
	"github.com/locallink/locallink-backend/pkg/logger"
)

// AssistantClient is the conversational helper used to draft requests.
type AssistantClient interface {
	Reply(ctx context.Context, history []assistant.Turn, onChunk assistant.ChunkFunc) (string, error)
	Transcribe(ctx context.Context, audioBase64, mimeType string) (string, error)
}

type assistantReplyRequest struct {
	History []assistant.Turn `json:"history"`
}

type assistantSummaryRequest struct {
	Text string `json:"text" validate:"required"`
}

type transcribeRequest struct {
	AudioBase64 string `json:"audioBase64" validate:"required"`
	MimeType    string `json:"mimeType"`
}

// AssistantSummaryResult wraps a parsed summary; Found is false when the
// reply carried no JSON block.
type AssistantSummaryResult struct {
	Found   bool              `json:"found"`
	Summary assistant.Summary `json:"summary"`
}

// AssistantReply streams the assistant's next message as plain text. Once
// the first chunk is written failures can only be logged.
func AssistantReply(client AssistantClient, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if client == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("assistant"))
			return
		}

		var body assistantReplyRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(http.StatusOK)

		rc := http.NewResponseController(w)
		_, err := client.Reply(r.Context(), body.History, func(chunk string) error {
			if _, err := io.WriteString(w, chunk); err != nil {
				return err
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return err
			}
			return nil
		})
		if err != nil && logg != nil {
			logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "assistant.reply.aborted")
		}
	}
}

// AssistantParseSummary extracts the finalized request block from a reply.
func AssistantParseSummary(logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body assistantSummaryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		summary, ok := assistant.ParseSummary(body.Text)
		responses.WriteSuccess(w, AssistantSummaryResult{Found: ok, Summary: summary})
	}
}

func AssistantTranscribe(client AssistantClient, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if client == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("assistant"))
			return
		}

		var body transcribeRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		text, err := client.Transcribe(r.Context(), body.AudioBase64, body.MimeType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"text": text})
	}
}
