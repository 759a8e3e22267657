package gateway

import (
	"context"

	"github.com/small-frappuccino/discordstate/pkg/storage"
)

const journalBatch = 500

// JournalSource replays a recorded journal in order, then reports
// ErrSourceClosed.
type JournalSource struct {
	journal *storage.Journal
	after   int64
	buf     []storage.Entry
}

func NewJournalSource(j *storage.Journal) *JournalSource {
	return &JournalSource{journal: j}
}

func (s *JournalSource) Next(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	if len(s.buf) == 0 {
		batch, err := s.journal.Entries(ctx, s.after, journalBatch)
		if err != nil {
			return Event{}, err
		}
		if len(batch) == 0 {
			return Event{}, ErrSourceClosed
		}
		s.buf = batch
	}
	e := s.buf[0]
	s.buf = s.buf[1:]
	s.after = e.Seq
	return Event{Name: e.Name, Data: e.Payload, Seq: e.GatewaySeq}, nil
}
