package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bignetbrands/et-site/internal/memory"
	"github.com/bignetbrands/et-site/internal/persona"
)

const (
	ledgerCap        = 200
	topPerformersCap = 15
)

// AppendLedgerEntry pushes a published text onto the memory ledger,
// most-recent-first, trimming to the cap.
func (s *Store) AppendLedgerEntry(ctx context.Context, entry memory.Entry) error {
	bytes, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, keyMemoryEntries, bytes)
	pipe.LTrim(ctx, keyMemoryEntries, 0, ledgerCap-1)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentLedgerEntries returns up to n entries, most recent first. Entries
// that fail to decode are skipped rather than poisoning the whole read.
func (s *Store) RecentLedgerEntries(ctx context.Context, n int) ([]memory.Entry, error) {
	if n <= 0 || n > ledgerCap {
		n = ledgerCap
	}
	vals, err := s.client.LRange(ctx, keyMemoryEntries, 0, int64(n-1)).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]memory.Entry, 0, len(vals))
	for _, val := range vals {
		var entry memory.Entry
		if err := json.Unmarshal([]byte(val), &entry); err != nil {
			s.logger.WithError(err).Warn("Skipping undecodable ledger entry")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// TopPerformer is a historical post that earned outsized engagement, kept as
// style reference for the generator.
type TopPerformer struct {
	ID       string           `json:"id"`
	Text     string           `json:"text"`
	Category persona.Category `json:"category"`
	Score    int              `json:"score"`
}

// SetTopPerformers replaces the top performer list, keeping the highest
// scored entries up to the cap. Input must already be sorted by score desc.
func (s *Store) SetTopPerformers(ctx context.Context, performers []TopPerformer) error {
	if len(performers) > topPerformersCap {
		performers = performers[:topPerformersCap]
	}
	return s.setJSON(ctx, keyTopPerformers, performers, 0)
}

func (s *Store) TopPerformers(ctx context.Context) ([]TopPerformer, error) {
	var performers []TopPerformer
	if _, err := s.getJSON(ctx, keyTopPerformers, &performers); err != nil {
		return nil, fmt.Errorf("store: load top performers: %w", err)
	}
	return performers, nil
}
