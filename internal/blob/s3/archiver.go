package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/wagerloo/internal/domain"
)

// Archiver implements domain.VoteArchiver by writing a user's votes as JSONL
// to archive/votes/{userID}/{timestamp}.jsonl before cleanup deletes them.
type Archiver struct {
	writer domain.BlobWriter
	now    func() time.Time
}

// NewArchiver creates an Archiver writing through w.
func NewArchiver(w domain.BlobWriter) *Archiver {
	return &Archiver{writer: w, now: time.Now}
}

type archivedVote struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	MarketID   string    `json:"market_id"`
	Side       string    `json:"side"`
	LineAtVote float64   `json:"line_at_vote"`
	CreatedAt  time.Time `json:"created_at"`
}

// ArchiveVotes uploads votes and returns the object path. An empty slice
// writes nothing and returns "".
func (a *Archiver) ArchiveVotes(ctx context.Context, userID string, votes []domain.Vote) (string, error) {
	if len(votes) == 0 {
		return "", nil
	}

	records := make([]archivedVote, 0, len(votes))
	for _, v := range votes {
		records = append(records, archivedVote{
			ID:         v.ID,
			UserID:     v.UserID,
			MarketID:   v.MarketID,
			Side:       string(v.Side),
			LineAtVote: v.LineAtVote,
			CreatedAt:  v.CreatedAt,
		})
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive votes marshal: %w", err)
	}

	path := archivePath("votes", userID, a.now())
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive votes upload: %w", err)
	}
	return path, nil
}

// archivePath builds keys like archive/votes/u1/20260115T103000Z.jsonl.
func archivePath(kind, owner string, at time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, owner, at.UTC().Format("20060102T150405Z"))
}

// marshalJSONL encodes one compact JSON document per line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.VoteArchiver = (*Archiver)(nil)
