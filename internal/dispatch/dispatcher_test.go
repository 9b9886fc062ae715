package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/user/pdfbot/internal/pipeline"
	"github.com/user/pdfbot/internal/session"
	"github.com/user/pdfbot/internal/types"
)

// mockGateway records sends and serves downloads from an in-memory map.
type mockGateway struct {
	mu       sync.Mutex
	files    map[string][]byte
	fetchErr error

	texts []string
	docs  []sentDoc
}

type sentDoc struct {
	chatID   types.ChatID
	filename string
	data     []byte
}

func newMockGateway() *mockGateway {
	return &mockGateway{files: map[string][]byte{}}
}

func (m *mockGateway) ResolveFileURL(_ context.Context, fileID string) (string, error) {
	if _, ok := m.files[fileID]; !ok {
		return "", errors.New("file not found")
	}
	return "mock://" + fileID, nil
}

func (m *mockGateway) FetchBytes(_ context.Context, url string) ([]byte, error) {
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	data, ok := m.files[strings.TrimPrefix(url, "mock://")]
	if !ok {
		return nil, errors.New("download failed")
	}
	return data, nil
}

func (m *mockGateway) SendText(_ context.Context, _ types.ChatID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texts = append(m.texts, text)
	return nil
}

func (m *mockGateway) SendDocument(_ context.Context, chatID types.ChatID, filename string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs = append(m.docs, sentDoc{chatID: chatID, filename: filename, data: data})
	return nil
}

func (m *mockGateway) lastText(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.texts) == 0 {
		t.Fatal("no text was sent")
	}
	return m.texts[len(m.texts)-1]
}

// fakeCodec: one byte of input = one page; '!' prefix means corrupt.
type fakeCodec struct{}

func (fakeCodec) PageCount(data []byte) (int, error) {
	if len(data) > 0 && data[0] == '!' {
		return 0, errors.New("not a pdf")
	}
	return len(data), nil
}

func (fakeCodec) Merge(inputs [][]byte) ([]byte, error) {
	var out []byte
	for _, in := range inputs {
		out = append(out, in...)
	}
	return out, nil
}

func (fakeCodec) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func setup() (*Dispatcher, *session.Store, *mockGateway) {
	store := session.New(session.Limits{})
	gw := newMockGateway()
	d := New(store, gw, pipeline.New(fakeCodec{}), time.Second)
	return d, store, gw
}

func uploadEvent(chat types.ChatID, fileID, name string) *types.InboundEvent {
	return &types.InboundEvent{
		ID:     types.NewEventID(),
		ChatID: chat,
		Document: &types.DocumentRef{
			FileID:   fileID,
			MimeType: "application/pdf",
			FileName: name,
		},
	}
}

func textEvent(chat types.ChatID, text string) *types.InboundEvent {
	return &types.InboundEvent{ID: types.NewEventID(), ChatID: chat, Text: text}
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		ev   *types.InboundEvent
		kind Kind
		cmd  string
	}{
		{"no chat id", &types.InboundEvent{}, KindDrop, ""},
		{"pdf upload", uploadEvent(1, "f", "a.pdf"), KindUpload, ""},
		{"merge", textEvent(1, "/merge"), KindCommand, "merge"},
		{"compress mixed case", textEvent(1, "  /CoMpReSs  "), KindCommand, "compress"},
		{"start", textEvent(1, "/start"), KindCommand, "start"},
		{"help", textEvent(1, "/help"), KindCommand, "help"},
		{"unknown command", textEvent(1, "/frobnicate"), KindFallback, ""},
		{"plain text", textEvent(1, "hello"), KindFallback, ""},
		{
			"non-pdf media",
			&types.InboundEvent{ChatID: 1, Document: &types.DocumentRef{FileID: "f", MimeType: "image/png"}},
			KindUnsupported, "",
		},
		{
			"non-pdf media with command caption",
			&types.InboundEvent{ChatID: 1, Text: "/merge", Document: &types.DocumentRef{FileID: "f", MimeType: "image/png"}},
			KindCommand, "merge",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, cmd := Classify(tc.ev)
			if kind != tc.kind || cmd != tc.cmd {
				t.Errorf("Classify = (%v, %q), want (%v, %q)", kind, cmd, tc.kind, tc.cmd)
			}
		})
	}
}

func TestUploadAppendsAndConfirms(t *testing.T) {
	d, store, gw := setup()
	gw.files["f1"] = []byte("pp")

	if err := d.Dispatch(context.Background(), uploadEvent(42, "f1", "a.pdf")); err != nil {
		t.Fatal(err)
	}
	if n := store.Size(42); n != 1 {
		t.Fatalf("session holds %d documents, want 1", n)
	}
	if got := gw.lastText(t); !strings.Contains(got, "a.pdf") {
		t.Errorf("confirmation %q does not name the file", got)
	}
}

func TestUploadSynthesizesMissingFilename(t *testing.T) {
	d, store, gw := setup()
	gw.files["f1"] = []byte("p")

	if err := d.Dispatch(context.Background(), uploadEvent(42, "f1", "")); err != nil {
		t.Fatal(err)
	}
	docs := store.Drain(42)
	if len(docs) != 1 {
		t.Fatal("nothing buffered")
	}
	if !strings.HasPrefix(docs[0].Name, "document-") || !strings.HasSuffix(docs[0].Name, ".pdf") {
		t.Errorf("synthesized name %q", docs[0].Name)
	}
}

func TestUploadDownloadFailureAppendsNothing(t *testing.T) {
	d, store, gw := setup()
	gw.files["f1"] = []byte("p")
	gw.fetchErr = errors.New("timeout")

	if err := d.Dispatch(context.Background(), uploadEvent(42, "f1", "a.pdf")); err != nil {
		t.Fatal(err)
	}
	if n := store.Size(42); n != 0 {
		t.Errorf("failed download buffered %d documents", n)
	}
	if got := gw.lastText(t); !strings.Contains(got, "Failed to download") {
		t.Errorf("reply %q", got)
	}
}

func TestUploadFailureLeavesEarlierDocuments(t *testing.T) {
	d, store, gw := setup()
	gw.files["f1"] = []byte("p")

	if err := d.Dispatch(context.Background(), uploadEvent(42, "f1", "a.pdf")); err != nil {
		t.Fatal(err)
	}
	if err := d.Dispatch(context.Background(), uploadEvent(42, "missing", "b.pdf")); err != nil {
		t.Fatal(err)
	}
	if n := store.Size(42); n != 1 {
		t.Errorf("session holds %d documents after one failed upload, want 1", n)
	}
}

func TestMergeEmptySession(t *testing.T) {
	d, _, gw := setup()

	if err := d.Dispatch(context.Background(), textEvent(42, "/merge")); err != nil {
		t.Fatal(err)
	}
	if len(gw.docs) != 0 {
		t.Error("document sent for an empty session")
	}
	if got := gw.lastText(t); !strings.Contains(got, "No PDFs") {
		t.Errorf("reply %q", got)
	}
}

func TestMergeHappyPath(t *testing.T) {
	d, store, gw := setup()
	gw.files["f1"] = []byte("pp")
	gw.files["f2"] = []byte("p")

	ctx := context.Background()
	for _, ev := range []*types.InboundEvent{
		uploadEvent(42, "f1", "a.pdf"),
		uploadEvent(42, "f2", "b.pdf"),
		textEvent(42, "/merge"),
	} {
		if err := d.Dispatch(ctx, ev); err != nil {
			t.Fatal(err)
		}
	}

	if len(gw.docs) != 1 {
		t.Fatalf("sent %d documents, want 1", len(gw.docs))
	}
	if got := len(gw.docs[0].data); got != 3 {
		t.Errorf("merged output has %d page bytes, want 3", got)
	}
	if gw.docs[0].chatID != 42 {
		t.Errorf("document sent to chat %d", gw.docs[0].chatID)
	}
	if n := store.Size(42); n != 0 {
		t.Errorf("session still holds %d documents after merge", n)
	}
}

func TestMergeDecodeFailureClearsSession(t *testing.T) {
	d, store, gw := setup()
	gw.files["f1"] = []byte("pp")
	gw.files["f2"] = []byte("!corrupt")

	ctx := context.Background()
	d.Dispatch(ctx, uploadEvent(42, "f1", "good.pdf"))
	d.Dispatch(ctx, uploadEvent(42, "f2", "bad.pdf"))
	d.Dispatch(ctx, textEvent(42, "/merge"))

	if len(gw.docs) != 0 {
		t.Error("partial merge output was delivered")
	}
	if got := gw.lastText(t); !strings.Contains(got, "bad.pdf") {
		t.Errorf("failure reply %q does not name the corrupt input", got)
	}
	// Drained even on failure: a retry must not replay the same files.
	if n := store.Size(42); n != 0 {
		t.Errorf("session still holds %d documents after failed merge", n)
	}
}

func TestCompressRequiresExactlyOne(t *testing.T) {
	d, store, gw := setup()
	gw.files["f1"] = []byte("p")
	gw.files["f2"] = []byte("p")

	ctx := context.Background()
	d.Dispatch(ctx, uploadEvent(42, "f1", "a.pdf"))
	d.Dispatch(ctx, uploadEvent(42, "f2", "b.pdf"))
	d.Dispatch(ctx, textEvent(42, "/compress"))

	if len(gw.docs) != 0 {
		t.Error("compress produced output despite failed precondition")
	}
	if got := gw.lastText(t); !strings.Contains(got, "exactly one") {
		t.Errorf("reply %q", got)
	}
	if n := store.Size(42); n != 0 {
		t.Errorf("session still holds %d documents", n)
	}
}

func TestCompressHappyPath(t *testing.T) {
	d, _, gw := setup()
	gw.files["f1"] = []byte("ppp")

	ctx := context.Background()
	d.Dispatch(ctx, uploadEvent(42, "f1", "report.pdf"))
	d.Dispatch(ctx, textEvent(42, "/compress"))

	if len(gw.docs) != 1 {
		t.Fatalf("sent %d documents, want 1", len(gw.docs))
	}
	if gw.docs[0].filename != "compressed-report.pdf" {
		t.Errorf("filename = %q", gw.docs[0].filename)
	}
}

func TestUnsupportedMediaReply(t *testing.T) {
	d, _, gw := setup()

	ev := &types.InboundEvent{
		ID:     types.NewEventID(),
		ChatID: 42,
		Document: &types.DocumentRef{
			FileID:   "f1",
			MimeType: "image/png",
			FileName: "cat.png",
		},
	}
	if err := d.Dispatch(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if got := gw.lastText(t); !strings.Contains(got, "PDF") {
		t.Errorf("reply %q", got)
	}
}

func TestDropWithoutChatID(t *testing.T) {
	d, _, gw := setup()
	if err := d.Dispatch(context.Background(), &types.InboundEvent{Text: "/merge"}); err != nil {
		t.Fatal(err)
	}
	if len(gw.texts) != 0 || len(gw.docs) != 0 {
		t.Error("dropped event produced gateway traffic")
	}
}

func TestHelpReply(t *testing.T) {
	d, _, gw := setup()
	d.Dispatch(context.Background(), textEvent(42, "/help"))
	if got := gw.lastText(t); !strings.Contains(got, "/merge") {
		t.Errorf("usage reply %q", got)
	}
}

func TestSessionFullReply(t *testing.T) {
	store := session.New(session.Limits{MaxDocuments: 1})
	gw := newMockGateway()
	d := New(store, gw, pipeline.New(fakeCodec{}), time.Second)
	gw.files["f1"] = []byte("p")
	gw.files["f2"] = []byte("p")

	ctx := context.Background()
	d.Dispatch(ctx, uploadEvent(42, "f1", "a.pdf"))
	d.Dispatch(ctx, uploadEvent(42, "f2", "b.pdf"))

	if got := gw.lastText(t); !strings.Contains(got, "session full") {
		t.Errorf("reply %q", got)
	}
	if n := store.Size(42); n != 1 {
		t.Errorf("session holds %d documents, want 1", n)
	}
}
