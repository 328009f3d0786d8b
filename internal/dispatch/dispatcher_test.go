package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"regwatch/internal/diff"
	"regwatch/internal/logging"
	"regwatch/internal/model"
	"regwatch/internal/sender"
	"regwatch/internal/store"
)

// fakeSender records sends and fails a configurable number of times per
// channel. Safe for concurrent use.
type fakeSender struct {
	mu       sync.Mutex
	failures map[string]int // channel id -> remaining failures (-1 = always fail)
	sent     []*sender.Payload
	calls    map[string]int
}

func newFakeSender() *fakeSender {
	return &fakeSender{failures: map[string]int{}, calls: map[string]int{}}
}

func (f *fakeSender) failAlways(channelID string) { f.failures[channelID] = -1 }

func (f *fakeSender) Send(_ context.Context, ch *model.Channel, p *sender.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ch.ID]++
	if n, ok := f.failures[ch.ID]; ok && (n < 0 || n > 0) {
		if n > 0 {
			f.failures[ch.ID] = n - 1
		}
		return errors.New("send refused")
	}
	f.sent = append(f.sent, p)
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) callCount(channelID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[channelID]
}

func testConfig() Config {
	return Config{
		RetryMax:          3,
		RetryInitialDelay: time.Millisecond,
		SendTimeout:       time.Second,
		RatePerSec:        1000,
	}
}

func webhookChannel(id string) *model.Channel {
	return &model.Channel{
		ID:      id,
		Type:    model.ChannelWebhook,
		Config:  model.ChannelConfig{WebhookURL: "https://example.com/hook"},
		Enabled: true,
	}
}

func putSub(t *testing.T, st *store.MemoryStore, id string, status model.SubscriptionStatus, f model.SubscriptionFilter, channels ...*model.Channel) *model.Subscription {
	t.Helper()
	sub := &model.Subscription{ID: id, Name: id, Filter: f, Status: status, Channels: channels}
	if err := st.PutSubscription(context.Background(), sub); err != nil {
		t.Fatalf("put subscription: %v", err)
	}
	return sub
}

func diffOf(t *testing.T, fromServers, toServers []*model.Server) *model.DiffResult {
	t.Helper()
	var from *model.Snapshot
	if fromServers != nil {
		from = diff.CreateSnapshot(fromServers)
	}
	return diff.Compare(from, diff.CreateSnapshot(toServers))
}

func TestDispatchDeliversMatchingChange(t *testing.T) {
	st := store.NewMemoryStore()
	fake := newFakeSender()
	putSub(t, st, "sub1", model.SubscriptionActive, model.SubscriptionFilter{}, webhookChannel("ch1"))

	d := New(testConfig(), sender.Registry{model.ChannelWebhook: fake}, st, st, logging.NewNop())
	result := diffOf(t, nil, []*model.Server{{Name: "io.github.x/y", Description: "tool"}})

	if err := d.Dispatch(context.Background(), result); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if fake.sentCount() != 1 {
		t.Fatalf("expected 1 delivery, got %d", fake.sentCount())
	}

	notifs, err := st.ListNotifications(context.Background(), "sub1", 0)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifs) != 1 {
		t.Fatalf("expected 1 notification record, got %d", len(notifs))
	}
	n := notifs[0]
	if n.Status != model.NotificationSent {
		t.Errorf("expected status sent, got %s", n.Status)
	}
	if n.Attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", n.Attempts)
	}
	if n.SentAt.IsZero() {
		t.Error("sent notification must carry SentAt")
	}

	chans, _ := st.GetChannels(context.Background(), "sub1")
	if chans[0].SuccessCount != 1 {
		t.Errorf("expected success count 1, got %d", chans[0].SuccessCount)
	}
}

func TestDispatchRetriesThenFails(t *testing.T) {
	st := store.NewMemoryStore()
	fake := newFakeSender()
	fake.failAlways("ch1")
	putSub(t, st, "sub1", model.SubscriptionActive, model.SubscriptionFilter{}, webhookChannel("ch1"))

	d := New(testConfig(), sender.Registry{model.ChannelWebhook: fake}, st, st, logging.NewNop())
	result := diffOf(t, nil, []*model.Server{{Name: "a"}})

	if err := d.Dispatch(context.Background(), result); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got := fake.callCount("ch1"); got != 3 {
		t.Errorf("expected exactly 3 attempts (retry ceiling), got %d", got)
	}

	notifs, _ := st.ListNotifications(context.Background(), "sub1", 0)
	if len(notifs) != 1 {
		t.Fatalf("expected 1 notification record, got %d", len(notifs))
	}
	n := notifs[0]
	if n.Status != model.NotificationFailed {
		t.Errorf("expected terminal failed status, got %s", n.Status)
	}
	if n.Attempts != 3 {
		t.Errorf("expected attempts 3, got %d", n.Attempts)
	}
	if n.Error == "" {
		t.Error("failed notification must carry the error")
	}

	chans, _ := st.GetChannels(context.Background(), "sub1")
	if chans[0].SuccessCount != 0 {
		t.Errorf("success count must stay 0, got %d", chans[0].SuccessCount)
	}
	if chans[0].FailureCount != 1 {
		t.Errorf("expected failure count 1, got %d", chans[0].FailureCount)
	}
	if chans[0].LastError == "" {
		t.Error("failure must record last error")
	}
}

func TestDispatchFailureIsChannelLocal(t *testing.T) {
	st := store.NewMemoryStore()
	fake := newFakeSender()
	fake.failAlways("bad")
	putSub(t, st, "sub1", model.SubscriptionActive, model.SubscriptionFilter{},
		webhookChannel("bad"), webhookChannel("good"))

	d := New(testConfig(), sender.Registry{model.ChannelWebhook: fake}, st, st, logging.NewNop())
	result := diffOf(t, nil, []*model.Server{{Name: "a"}})

	if err := d.Dispatch(context.Background(), result); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if fake.sentCount() != 1 {
		t.Errorf("healthy channel must still receive its delivery, got %d", fake.sentCount())
	}
	chans, _ := st.GetChannels(context.Background(), "sub1")
	for _, ch := range chans {
		switch ch.ID {
		case "good":
			if ch.SuccessCount != 1 || ch.FailureCount != 0 {
				t.Errorf("good channel stats wrong: %+v", ch)
			}
		case "bad":
			if ch.FailureCount != 1 {
				t.Errorf("bad channel stats wrong: %+v", ch)
			}
		}
	}
}

func TestDispatchSkipsInactiveSubscriptions(t *testing.T) {
	st := store.NewMemoryStore()
	fake := newFakeSender()
	putSub(t, st, "paused", model.SubscriptionPaused, model.SubscriptionFilter{}, webhookChannel("p1"))
	putSub(t, st, "expired", model.SubscriptionExpired, model.SubscriptionFilter{}, webhookChannel("e1"))

	d := New(testConfig(), sender.Registry{model.ChannelWebhook: fake}, st, st, logging.NewNop())
	result := diffOf(t, nil, []*model.Server{{Name: "a"}})

	if err := d.Dispatch(context.Background(), result); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if fake.sentCount() != 0 {
		t.Errorf("inactive subscriptions must receive nothing, got %d sends", fake.sentCount())
	}
	for _, id := range []string{"paused", "expired"} {
		notifs, _ := st.ListNotifications(context.Background(), id, 0)
		if len(notifs) != 0 {
			t.Errorf("no notification records may be created for %s subscription", id)
		}
	}
}

func TestDispatchSkipsDigestAndDisabledChannels(t *testing.T) {
	st := store.NewMemoryStore()
	fake := newFakeSender()
	daily := webhookChannel("daily")
	daily.Config.Frequency = model.FrequencyDaily
	off := webhookChannel("off")
	off.Enabled = false
	putSub(t, st, "sub1", model.SubscriptionActive, model.SubscriptionFilter{}, daily, off)

	d := New(testConfig(), sender.Registry{model.ChannelWebhook: fake}, st, st, logging.NewNop())
	result := diffOf(t, nil, []*model.Server{{Name: "a"}})

	if err := d.Dispatch(context.Background(), result); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if fake.sentCount() != 0 {
		t.Errorf("digest and disabled channels must not get immediate sends, got %d", fake.sentCount())
	}
}

func TestDispatchAppliesSubscriptionFilter(t *testing.T) {
	st := store.NewMemoryStore()
	fake := newFakeSender()
	putSub(t, st, "sub1", model.SubscriptionActive,
		model.SubscriptionFilter{Namespaces: []string{"io.github.acme/*"}},
		webhookChannel("ch1"))

	d := New(testConfig(), sender.Registry{model.ChannelWebhook: fake}, st, st, logging.NewNop())
	result := diffOf(t, nil, []*model.Server{
		{Name: "io.github.acme/search"},
		{Name: "io.github.other/tool"},
	})

	if err := d.Dispatch(context.Background(), result); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if fake.sentCount() != 1 {
		t.Fatalf("expected exactly the matching change delivered, got %d", fake.sentCount())
	}
	if got := fake.sent[0].Change.ServerName; got != "io.github.acme/search" {
		t.Errorf("wrong change delivered: %s", got)
	}
}

func TestDispatchNoSenderRegistered(t *testing.T) {
	st := store.NewMemoryStore()
	rss := &model.Channel{ID: "rss1", Type: model.ChannelRSS, Enabled: true}
	putSub(t, st, "sub1", model.SubscriptionActive, model.SubscriptionFilter{}, rss)

	d := New(testConfig(), sender.Registry{}, st, st, logging.NewNop())
	result := diffOf(t, nil, []*model.Server{{Name: "a"}})

	if err := d.Dispatch(context.Background(), result); err != nil {
		t.Fatalf("dispatch must not fail the cycle: %v", err)
	}
	notifs, _ := st.ListNotifications(context.Background(), "sub1", 0)
	if len(notifs) != 1 || notifs[0].Status != model.NotificationFailed {
		t.Errorf("unroutable channel must produce a failed record, got %+v", notifs)
	}
}

func TestDispatchEmptyResult(t *testing.T) {
	st := store.NewMemoryStore()
	d := New(testConfig(), sender.Registry{}, st, st, logging.NewNop())
	if err := d.Dispatch(context.Background(), &model.DiffResult{}); err != nil {
		t.Fatalf("empty result must be a no-op, got %v", err)
	}
	if err := d.Dispatch(context.Background(), nil); err != nil {
		t.Fatalf("nil result must be a no-op, got %v", err)
	}
}
