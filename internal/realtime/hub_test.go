package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/mbd888/cardledger/internal/events"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &events.Event{Type: events.TypePaymentMade, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []events.Type{events.TypePaymentMade, events.TypePaymentRevoked},
	}}

	made := &events.Event{Type: events.TypePaymentMade}
	revoked := &events.Event{Type: events.TypePaymentRevoked}
	cleared := &events.Event{Type: events.TypePaymentCleared}

	if !h.shouldSend(client, made) {
		t.Error("Should receive payment.made events")
	}
	if !h.shouldSend(client, revoked) {
		t.Error("Should receive payment.revoked events")
	}
	if h.shouldSend(client, cleared) {
		t.Error("Should NOT receive payment.cleared events")
	}
}

func TestShouldSend_AccountFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Accounts: []string{"alice"},
	}}

	matching := &events.Event{
		Type: events.TypePaymentMade,
		Data: map[string]any{"account": "alice"},
	}
	notMatching := &events.Event{
		Type: events.TypePaymentMade,
		Data: map[string]any{"account": "bob"},
	}
	matchingSponsor := &events.Event{
		Type: events.TypePaymentMade,
		Data: map[string]any{"account": "bob", "sponsor": "alice"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on account")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match unrelated accounts")
	}
	if !h.shouldSend(client, matchingSponsor) {
		t.Error("Should match on sponsor")
	}
}

func TestShouldSend_AuthorizationIDFilter(t *testing.T) {
	h := testHub()

	id := "01020304000000000000000000000000"
	client := &Client{sub: Subscription{
		AuthorizationIDs: []string{id},
	}}

	matching := &events.Event{
		Type: events.TypePaymentCleared,
		Data: map[string]any{"authorizationId": id},
	}
	notMatching := &events.Event{
		Type: events.TypePaymentCleared,
		Data: map[string]any{"authorizationId": "ffffffffffffffffffffffffffffffff"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on authorization id")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other payments")
	}
}

func TestShouldSend_EmptySubscription(t *testing.T) {
	h := testHub()

	// No filters, not AllEvents
	client := &Client{sub: Subscription{}}

	event := &events.Event{Type: events.TypePaymentMade}
	if !h.shouldSend(client, event) {
		t.Error("Empty subscription (no filters) should receive events")
	}
}

func TestShouldSend_MissingData(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Accounts: []string{"alice"},
	}}

	// Event with no data map should not crash and should be filtered out.
	event := &events.Event{Type: events.TypeCashbackEnabled}
	if h.shouldSend(client, event) {
		t.Error("Account filter should reject events without account data")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHub_Stats_Initial(t *testing.T) {
	h := testHub()

	stats := h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients, got %v", stats["connectedClients"])
	}
	if stats["totalEvents"].(int64) != 0 {
		t.Errorf("Expected 0 total events, got %v", stats["totalEvents"])
	}
}

func TestHub_PublishAndStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	h.Publish(&events.Event{Type: events.TypePaymentMade, Timestamp: time.Now()})
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["totalEvents"].(int64) != 1 {
		t.Errorf("Expected 1 total event, got %v", stats["totalEvents"])
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	stats := h.Stats()
	if stats["connectedClients"].(int) != 1 {
		t.Errorf("Expected 1 connected client, got %v", stats["connectedClients"])
	}
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak 1, got %v", stats["peakClients"])
	}

	h.unregister <- client
	time.Sleep(50 * time.Millisecond)

	stats = h.Stats()
	if stats["connectedClients"].(int) != 0 {
		t.Errorf("Expected 0 connected clients after unregister, got %v", stats["connectedClients"])
	}
	// Peak should still be 1
	if stats["peakClients"].(int64) != 1 {
		t.Errorf("Expected peak still 1, got %v", stats["peakClients"])
	}
}

func TestHub_BroadcastToClient(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{AllEvents: true},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	h.Publish(&events.Event{
		Type:      events.TypePaymentMade,
		Timestamp: time.Now(),
		Data:      map[string]any{"account": "alice", "amount": uint64(500)},
	})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for broadcast")
	}
}

func TestHub_ContextCancellation(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
		// Hub stopped
	case <-time.After(2 * time.Second):
		t.Error("Hub did not stop after context cancellation")
	}
}

func TestHub_FilteredBroadcast(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.Run(ctx)
	time.Sleep(50 * time.Millisecond)

	// Client only wants revocations
	client := &Client{
		hub:  h,
		send: make(chan []byte, 256),
		sub:  Subscription{EventTypes: []events.Type{events.TypePaymentRevoked}},
	}

	h.register <- client
	time.Sleep(50 * time.Millisecond)

	// Send a made event (should be filtered out)
	h.Publish(&events.Event{Type: events.TypePaymentMade, Timestamp: time.Now()})
	time.Sleep(100 * time.Millisecond)

	select {
	case <-client.send:
		t.Error("Client should NOT receive payment.made event")
	default:
		// Good - filtered out
	}

	// Send a revoked event (should be received)
	h.Publish(&events.Event{Type: events.TypePaymentRevoked, Timestamp: time.Now()})

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("Expected non-empty message")
		}
	case <-time.After(time.Second):
		t.Error("Client should receive payment.revoked event")
	}
}
