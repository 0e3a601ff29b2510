package persistence_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"RangeMarket/internal/event"
	"RangeMarket/internal/persistence"
)

func TestRowFromRecord(t *testing.T) {
	claimant := uuid.New()
	ts := time.Now().UTC()
	rec := event.Record{
		Sequence:  42,
		Type:      event.TypeRewardClaimed,
		MarketID:  7,
		Timestamp: ts,
		Payload: event.RewardClaimed{
			MarketID: 7,
			Claimant: claimant,
			Amount:   "100000000000000000000",
			Reward:   "150000000000000000000",
		},
	}

	row, err := persistence.RowFromRecord(rec)
	if err != nil {
		t.Fatalf("RowFromRecord: %v", err)
	}
	if row.Sequence != 42 || row.MarketID != 7 || !row.Timestamp.Equal(ts) {
		t.Errorf("header fields mangled: %+v", row)
	}
	if row.EventType != "RewardClaimed" {
		t.Errorf("event type: got %q, want RewardClaimed", row.EventType)
	}

	var payload event.RewardClaimed
	if err := json.Unmarshal(row.Payload, &payload); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if payload.Claimant != claimant || payload.Reward != "150000000000000000000" {
		t.Errorf("payload mangled: %+v", payload)
	}
}
