// internal/webhook/server.go
package webhook

import (
	"encoding/json"
	"log/slog"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/user/pdfbot/internal/types"
)

// EnqueueFunc hands a decoded event to the dispatch queue.
type EnqueueFunc func(*types.InboundEvent) error

// Server is a lightweight HTTP handler for the webhook endpoints. Any
// readable update is answered 200: failures are communicated to the end
// user through the gateway, not through HTTP status codes.
type Server struct {
	enqueue EnqueueFunc
	mux     *http.ServeMux
}

// NewServer creates a webhook Server delivering events via enqueue.
func NewServer(enqueue EnqueueFunc) *Server {
	s := &Server{
		enqueue: enqueue,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /webhook", s.handleUpdate)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var update tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	ev := eventFromUpdate(&update)
	if ev == nil {
		// Nothing routable and nowhere to send a reply; acknowledge and drop.
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := s.enqueue(ev); err != nil {
		slog.Error("enqueue event failed", "chat_id", ev.ChatID, "event_id", ev.ID, "error", err)
	}
	w.WriteHeader(http.StatusOK)
}

// eventFromUpdate flattens a Telegram update into an inbound event, or
// nil when it carries no usable chat identifier.
func eventFromUpdate(update *tgbotapi.Update) *types.InboundEvent {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Chat.ID == 0 {
		return nil
	}

	ev := &types.InboundEvent{
		ID:     types.NewEventID(),
		ChatID: types.ChatID(msg.Chat.ID),
		Text:   msg.Text,
	}
	if msg.Document != nil {
		ev.Document = &types.DocumentRef{
			FileID:   msg.Document.FileID,
			MimeType: msg.Document.MimeType,
			FileName: msg.Document.FileName,
		}
		if ev.Text == "" {
			ev.Text = msg.Caption
		}
	}
	return ev
}
