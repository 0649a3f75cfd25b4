package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

type recordingWriter struct {
	path        string
	contentType string
	body        []byte
}

func (w *recordingWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	w.path, w.contentType, w.body = path, contentType, b
	return err
}

func (w *recordingWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(ctx, path, data, "")
}

func TestArchiveVotesWritesJSONL(t *testing.T) {
	w := &recordingWriter{}
	a := NewArchiver(w)
	a.now = func() time.Time { return time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC) }

	votes := []domain.Vote{
		{ID: "v1", UserID: "u1", MarketID: "m1", Side: domain.SideOver, LineAtVote: 25},
		{ID: "v2", UserID: "u1", MarketID: "m2", Side: domain.SideUnder, LineAtVote: 31.5},
	}
	path, err := a.ArchiveVotes(context.Background(), "u1", votes)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if path != "archive/votes/u1/20260115T103000Z.jsonl" || w.path != path {
		t.Fatalf("path = %q, writer path = %q", path, w.path)
	}
	if w.contentType != "application/x-ndjson" {
		t.Fatalf("content type = %q", w.contentType)
	}

	lines := strings.Split(strings.TrimSpace(string(w.body)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	var rec archivedVote
	if err := json.NewDecoder(bytes.NewReader([]byte(lines[1]))).Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.MarketID != "m2" || rec.Side != "under" || rec.LineAtVote != 31.5 {
		t.Fatalf("record = %+v", rec)
	}
}

func TestArchiveVotesEmpty(t *testing.T) {
	w := &recordingWriter{}
	path, err := NewArchiver(w).ArchiveVotes(context.Background(), "u1", nil)
	if err != nil || path != "" || w.path != "" {
		t.Fatalf("path=%q err=%v writer=%q", path, err, w.path)
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	cases := map[string]string{
		"https://s3.example.com": "https://s3.example.com",
		"minio:9000":             "http://minio:9000",
	}
	for in, want := range cases {
		if got := normaliseEndpoint(in, false); got != want {
			t.Fatalf("normaliseEndpoint(%q) = %q, want %q", in, got, want)
		}
	}
	if got := normaliseEndpoint("r2.example.com", true); got != "https://r2.example.com" {
		t.Fatalf("ssl endpoint = %q", got)
	}
}
