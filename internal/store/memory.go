package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"regwatch/internal/model"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs tests and
// small single-process deployments; the SQLite store is the durable
// variant of the same contract.
type MemoryStore struct {
	mu            sync.RWMutex
	snapshots     map[string]*model.Snapshot
	snapshotOrder []string
	subscriptions map[string]*model.Subscription
	channels      map[string]*model.Channel
	changes       []*model.Change
	notifications map[string]*model.Notification
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snapshots:     map[string]*model.Snapshot{},
		subscriptions: map[string]*model.Subscription{},
		channels:      map[string]*model.Channel{},
		notifications: map[string]*model.Notification{},
	}
}

var _ Store = (*MemoryStore)(nil)

func (m *MemoryStore) PutSnapshot(_ context.Context, snap *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.snapshots[snap.ID]; !ok {
		m.snapshotOrder = append(m.snapshotOrder, snap.ID)
	}
	m.snapshots[snap.ID] = snap
	return nil
}

func (m *MemoryStore) GetSnapshot(_ context.Context, id string) (*model.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.snapshots[id]
	if !ok {
		return nil, ErrNotFound
	}
	return snap, nil
}

func (m *MemoryStore) LatestSnapshot(_ context.Context) (*model.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest *model.Snapshot
	for _, snap := range m.snapshots {
		if latest == nil || snap.Timestamp.After(latest.Timestamp) {
			latest = snap
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (m *MemoryStore) DeleteSnapshotsBefore(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	kept := m.snapshotOrder[:0]
	for _, id := range m.snapshotOrder {
		if m.snapshots[id].Timestamp.Before(cutoff) {
			delete(m.snapshots, id)
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.snapshotOrder = kept
	return removed, nil
}

func (m *MemoryStore) PutSubscription(_ context.Context, sub *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[sub.ID] = sub
	for _, ch := range sub.Channels {
		ch.SubscriptionID = sub.ID
		m.channels[ch.ID] = ch
	}
	return nil
}

func (m *MemoryStore) ListActiveSubscriptions(_ context.Context) ([]*model.Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Subscription
	for _, sub := range m.subscriptions {
		if sub.Status != model.SubscriptionActive {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) GetChannels(_ context.Context, subscriptionID string) ([]*model.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Channel
	for _, ch := range m.channels {
		if ch.SubscriptionID == subscriptionID {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) RecordChannelSuccess(_ context.Context, channelID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[channelID]
	if !ok {
		return ErrNotFound
	}
	ch.SuccessCount++
	ch.LastSuccess = at
	return nil
}

func (m *MemoryStore) RecordChannelFailure(_ context.Context, channelID string, at time.Time, errText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.channels[channelID]
	if !ok {
		return ErrNotFound
	}
	ch.FailureCount++
	ch.LastFailure = at
	ch.LastError = errText
	return nil
}

func (m *MemoryStore) PutChanges(_ context.Context, changes []*model.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, changes...)
	return nil
}

func (m *MemoryStore) ChangesSince(_ context.Context, since time.Time, limit int) ([]*model.Change, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Change
	for _, c := range m.changes {
		if c.DetectedAt.Before(since) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DetectedAt.Before(out[j].DetectedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) PutNotification(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *MemoryStore) UpdateNotification(_ context.Context, n *model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notifications[n.ID]; !ok {
		return ErrNotFound
	}
	cp := *n
	m.notifications[n.ID] = &cp
	return nil
}

func (m *MemoryStore) ListNotifications(_ context.Context, subscriptionID string, limit int) ([]*model.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Notification
	for _, n := range m.notifications {
		if n.SubscriptionID == subscriptionID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
