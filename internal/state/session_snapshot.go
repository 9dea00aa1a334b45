package state

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

const SessionSnapshotKey = "session:stopped_windows"

// SessionSnapshot persists the pair windows closed by a stop-loss so a rerun
// of the same window does not trade it again.
type SessionSnapshot struct {
	RunID       string           `json:"run_id"`
	Stopped     map[string]int64 `json:"stopped"`
	UpdatedAtMS int64            `json:"updated_at_ms"`
}

func NewSessionSnapshot(runID string, stopped map[string]time.Time, now time.Time) SessionSnapshot {
	snap := SessionSnapshot{
		RunID:       runID,
		Stopped:     make(map[string]int64, len(stopped)),
		UpdatedAtMS: now.UnixMilli(),
	}
	for k, v := range stopped {
		snap.Stopped[k] = v.UnixMilli()
	}
	return snap
}

// StoppedTimes converts the snapshot back into stop dates in UTC.
func (s SessionSnapshot) StoppedTimes() map[string]time.Time {
	out := make(map[string]time.Time, len(s.Stopped))
	for k, ms := range s.Stopped {
		out[k] = time.UnixMilli(ms).UTC()
	}
	return out
}

func LoadSessionSnapshot(ctx context.Context, store Store) (SessionSnapshot, bool, error) {
	if store == nil {
		return SessionSnapshot{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, SessionSnapshotKey)
	if err != nil {
		return SessionSnapshot{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return SessionSnapshot{}, false, nil
	}
	var snapshot SessionSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return SessionSnapshot{}, false, err
	}
	return snapshot, true, nil
}

func SaveSessionSnapshot(ctx context.Context, store Store, snapshot SessionSnapshot) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return store.Set(ctx, SessionSnapshotKey, string(payload))
}
