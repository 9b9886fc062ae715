// Package dispatch classifies inbound events and routes them through
// the session store and the transform pipeline. All per-event failures
// are absorbed here: they turn into a reply to the chat, never into a
// process-level error.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/user/pdfbot/internal/pipeline"
	"github.com/user/pdfbot/internal/session"
	"github.com/user/pdfbot/internal/types"
)

const mimePDF = "application/pdf"

const usageText = "Send me PDF files, then:\n" +
	"/merge - combine everything I have buffered into one PDF\n" +
	"/compress - shrink a single buffered PDF\n" +
	"/help - show this message"

const fallbackText = "📎 Send me some PDF files, then type /merge to combine them or /compress to shrink one."

// Kind is the classification of an inbound event.
type Kind int

const (
	KindDrop Kind = iota
	KindUpload
	KindCommand
	KindUnsupported
	KindFallback
)

// Classify maps an event to its handling kind, in priority order: PDF
// upload, recognized command text, other media, fallback. The second
// return is the bare command name ("merge", "compress", "start",
// "help") when kind is KindCommand.
func Classify(ev *types.InboundEvent) (Kind, string) {
	if ev == nil || ev.ChatID == 0 {
		return KindDrop, ""
	}
	if ev.Document != nil && ev.Document.MimeType == mimePDF {
		return KindUpload, ""
	}
	switch cmd := strings.ToLower(strings.TrimSpace(ev.Text)); cmd {
	case "/merge", "/compress", "/start", "/help":
		return KindCommand, strings.TrimPrefix(cmd, "/")
	}
	if ev.Document != nil {
		return KindUnsupported, ""
	}
	return KindFallback, ""
}

// Dispatcher routes classified events. It holds no state of its own
// beyond references to its collaborators.
type Dispatcher struct {
	store        *session.Store
	gateway      types.ConversationGateway
	pipe         *pipeline.Pipeline
	fetchTimeout time.Duration
}

func New(store *session.Store, gateway types.ConversationGateway, pipe *pipeline.Pipeline, fetchTimeout time.Duration) *Dispatcher {
	if fetchTimeout <= 0 {
		fetchTimeout = 30 * time.Second
	}
	return &Dispatcher{
		store:        store,
		gateway:      gateway,
		pipe:         pipe,
		fetchTimeout: fetchTimeout,
	}
}

// Dispatch handles one event end to end. The returned error is always
// nil for event-scoped failures; those are reported to the chat.
func (d *Dispatcher) Dispatch(ctx context.Context, ev *types.InboundEvent) error {
	if ev == nil {
		return nil
	}
	kind, cmd := Classify(ev)
	switch kind {
	case KindDrop:
		slog.Debug("dropped event without chat id", "event_id", ev.ID)
	case KindUpload:
		d.handleUpload(ctx, ev)
	case KindCommand:
		d.handleCommand(ctx, ev, cmd)
	case KindUnsupported:
		d.reply(ctx, ev.ChatID, "❌ I can only work with PDF documents.")
	default:
		d.reply(ctx, ev.ChatID, fallbackText)
	}
	return nil
}

func (d *Dispatcher) handleUpload(ctx context.Context, ev *types.InboundEvent) {
	doc := ev.Document
	name := doc.FileName
	if name == "" {
		name = "document-" + uuid.New().String()[:8] + ".pdf"
	}

	fctx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
	defer cancel()

	url, err := d.gateway.ResolveFileURL(fctx, doc.FileID)
	if err != nil {
		slog.Warn("resolve file failed", "chat_id", ev.ChatID, "event_id", ev.ID, "file", name, "error", err)
		d.reply(ctx, ev.ChatID, "❌ Failed to download "+name)
		return
	}

	data, err := d.gateway.FetchBytes(fctx, url)
	if err != nil {
		slog.Warn("download file failed", "chat_id", ev.ChatID, "event_id", ev.ID, "file", name, "error", err)
		d.reply(ctx, ev.ChatID, "❌ Failed to download "+name)
		return
	}

	if err := d.store.Append(ev.ChatID, name, data); err != nil {
		if errors.Is(err, session.ErrSessionFull) {
			d.reply(ctx, ev.ChatID, "❌ Can't buffer "+name+": "+err.Error()+". Run /merge or /compress to process what you already sent.")
			return
		}
		slog.Error("append to session failed", "chat_id", ev.ChatID, "event_id", ev.ID, "error", err)
		d.reply(ctx, ev.ChatID, "❌ Failed to store "+name)
		return
	}

	d.reply(ctx, ev.ChatID, "✅ Received: "+name)
}

func (d *Dispatcher) handleCommand(ctx context.Context, ev *types.InboundEvent, cmd string) {
	switch cmd {
	case "start", "help":
		d.reply(ctx, ev.ChatID, usageText)
		return
	case "merge", "compress":
	default:
		d.reply(ctx, ev.ChatID, fallbackText)
		return
	}

	// Drain before transforming: a failed command never leaves documents
	// behind to be replayed silently. The user resends and tries again.
	docs := d.store.Drain(ev.ChatID)
	if len(docs) == 0 {
		d.reply(ctx, ev.ChatID, "❌ No PDFs found. Please send some files first.")
		return
	}

	var res *pipeline.Result
	var err error
	switch cmd {
	case "merge":
		res, err = d.pipe.Merge(docs)
	case "compress":
		res, err = d.pipe.Compress(docs)
	}
	if err != nil {
		slog.Warn("transform failed", "chat_id", ev.ChatID, "event_id", ev.ID, "command", cmd, "error", err)
		d.reply(ctx, ev.ChatID, failureText(cmd, err))
		return
	}

	if err := d.gateway.SendDocument(ctx, ev.ChatID, res.Filename, res.Data); err != nil {
		// The session is already drained; the artifact is not cached for
		// re-delivery. The user re-runs the command after resending.
		slog.Error("deliver document failed", "chat_id", ev.ChatID, "event_id", ev.ID, "file", res.Filename, "error", err)
	}
}

// failureText renders a transform error as a user-facing reply.
func failureText(cmd string, err error) string {
	var decodeErr *pipeline.DecodeError
	if errors.As(err, &decodeErr) {
		return "❌ " + decodeErr.Name + " is not a valid PDF. The buffer was cleared; fix the file and send everything again."
	}
	var preErr *pipeline.PreconditionError
	if errors.As(err, &preErr) {
		return "❌ Can't " + cmd + ": " + preErr.Msg + ". The buffer was cleared; send the right files and try again."
	}
	return "❌ Failed to " + cmd + " your PDFs."
}

// reply sends best-effort text to a chat. Delivery failure is logged,
// never retried.
func (d *Dispatcher) reply(ctx context.Context, chatID types.ChatID, text string) {
	if err := d.gateway.SendText(ctx, chatID, text); err != nil {
		slog.Warn("send reply failed", "chat_id", chatID, "error", err)
	}
}
