// internal/types/interfaces.go
package types

import "context"

// ConversationGateway is the chat platform seen from the core: resolve a
// file reference to a fetchable URL, download it, and deliver text or
// documents back to a chat. All calls may fail transiently; sends are
// best-effort and never retried by the core.
type ConversationGateway interface {
	ResolveFileURL(ctx context.Context, fileID string) (string, error)
	FetchBytes(ctx context.Context, url string) ([]byte, error)
	SendText(ctx context.Context, chatID ChatID, text string) error
	SendDocument(ctx context.Context, chatID ChatID, filename string, data []byte) error
}

// Codec is the PDF engine seen from the pipeline. PageCount doubles as
// the decode check: any input it rejects is not a usable PDF.
type Codec interface {
	PageCount(data []byte) (int, error)
	Merge(inputs [][]byte) ([]byte, error)
	Compress(data []byte) ([]byte, error)
}
