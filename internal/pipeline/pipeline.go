// Package pipeline implements the merge and compress transforms over a
// drained session. Both are synchronous and single-attempt: inputs are
// already fully buffered, so a retry with the same bytes would fail the
// same way.
package pipeline

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/user/pdfbot/internal/types"
)

// Result is a successful transform: output bytes plus a suggested
// filename distinct from any input name.
type Result struct {
	Data     []byte
	Filename string
	Pages    int
}

// DecodeError identifies the input that failed to parse as a PDF.
type DecodeError struct {
	Name  string
	Index int
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q (document %d): %v", e.Name, e.Index+1, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// PreconditionError reports a transform invoked on a session that does
// not satisfy its input contract. No codec work happens in that case.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string {
	return e.Msg
}

// Pipeline runs transforms through a codec.
type Pipeline struct {
	codec types.Codec
}

func New(codec types.Codec) *Pipeline {
	return &Pipeline{codec: codec}
}

// Merge composes every document, in arrival order, into one output.
// All-or-nothing: the first input that fails to decode aborts the whole
// operation with a DecodeError naming it, and no output is produced.
// A single document degenerates to a pass-through re-encode.
func (p *Pipeline) Merge(docs []types.PendingDocument) (*Result, error) {
	if len(docs) == 0 {
		return nil, &PreconditionError{Msg: "no documents buffered"}
	}

	pages := 0
	inputs := make([][]byte, len(docs))
	for i, doc := range docs {
		n, err := p.codec.PageCount(doc.Data)
		if err != nil {
			return nil, &DecodeError{Name: doc.Name, Index: i, Err: err}
		}
		pages += n
		inputs[i] = doc.Data
	}

	out, err := p.codec.Merge(inputs)
	if err != nil {
		return nil, fmt.Errorf("merge %d documents: %w", len(docs), err)
	}

	name := "merged-" + time.Now().Format("20060102-150405") + ".pdf"
	slog.Info("merged session", "documents", len(docs), "pages", pages, "bytes", len(out))
	return &Result{Data: out, Filename: name, Pages: pages}, nil
}

// Compress re-encodes exactly one document with compact object streams
// and stripped descriptive metadata. Size reduction is opportunistic:
// the operation succeeds even when the output is not smaller. Sessions
// holding zero or more than one document fail the precondition.
func (p *Pipeline) Compress(docs []types.PendingDocument) (*Result, error) {
	switch {
	case len(docs) == 0:
		return nil, &PreconditionError{Msg: "no documents buffered"}
	case len(docs) > 1:
		return nil, &PreconditionError{
			Msg: fmt.Sprintf("%d documents buffered; compress works on exactly one", len(docs)),
		}
	}

	doc := docs[0]
	pages, err := p.codec.PageCount(doc.Data)
	if err != nil {
		return nil, &DecodeError{Name: doc.Name, Index: 0, Err: err}
	}

	out, err := p.codec.Compress(doc.Data)
	if err != nil {
		return nil, fmt.Errorf("compress %q: %w", doc.Name, err)
	}

	slog.Info("compressed document", "name", doc.Name, "pages", pages,
		"bytes_in", len(doc.Data), "bytes_out", len(out))
	return &Result{Data: out, Filename: "compressed-" + doc.Name, Pages: pages}, nil
}
