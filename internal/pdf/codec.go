// Package pdf adapts pdfcpu to the page-level operations the transform
// pipeline needs. All inputs and outputs are in-memory byte buffers; no
// temporary files are used.
package pdf

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/user/pdfbot/internal/types"
)

// Codec implements types.Codec on pdfcpu with relaxed validation, which
// accepts the slightly malformed files real chat uploads tend to be.
type Codec struct{}

var _ types.Codec = (*Codec)(nil)

func New() *Codec {
	// Keep pdfcpu from materializing its config directory on disk; the
	// service owns no persistent state.
	api.DisableConfigDir()
	return &Codec{}
}

func (c *Codec) conf() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// PageCount decodes data and reports its number of pages. This is also
// the validity check: any parse or validation failure surfaces here.
func (c *Codec) PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), c.conf())
	if err != nil {
		return 0, fmt.Errorf("decode pdf: %w", err)
	}
	return n, nil
}

// Merge appends the pages of each input, in slice order, into a single
// output document and returns its serialized bytes.
func (c *Codec) Merge(inputs [][]byte) ([]byte, error) {
	rs := make([]io.ReadSeeker, len(inputs))
	for i, in := range inputs {
		rs[i] = bytes.NewReader(in)
	}
	var buf bytes.Buffer
	if err := api.MergeRaw(rs, &buf, false, c.conf()); err != nil {
		return nil, fmt.Errorf("merge pdfs: %w", err)
	}
	return buf.Bytes(), nil
}

// Compress re-serializes data with object streams enabled and the
// descriptive Info dictionary dropped. The output is always a valid
// document with the same pages; it is not guaranteed to be smaller.
func (c *Codec) Compress(data []byte) ([]byte, error) {
	conf := c.conf()
	conf.Cmd = model.OPTIMIZE
	conf.WriteObjectStream = true
	conf.WriteXRefStream = true

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("decode pdf: %w", err)
	}

	// Title, author and friends live behind the Info reference; the
	// writer regenerates a minimal one.
	ctx.XRefTable.Info = nil

	var buf bytes.Buffer
	if err := api.WriteContext(ctx, &buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return buf.Bytes(), nil
}
