// internal/types/models.go
package types

// DocumentRef describes an uploaded file as announced by the transport:
// a reference token resolvable through the gateway, the declared media
// type, and an optional display filename.
type DocumentRef struct {
	FileID   string
	MimeType string
	FileName string
}

// InboundEvent is one webhook delivery, already stripped down to the
// fields the dispatcher classifies on.
type InboundEvent struct {
	ID       EventID
	ChatID   ChatID
	Text     string
	Document *DocumentRef
}

// PendingDocument is one buffered upload. Immutable once stored; Seq is
// the arrival position within its session, starting at 0.
type PendingDocument struct {
	Name string
	Data []byte
	Seq  int
}
