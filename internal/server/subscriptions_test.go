package server

import (
	"errors"
	"sync"
	"testing"

	"main/pkg/exception"
)

func TestRegisterSymbolAllocatesStableIDs(t *testing.T) {
	idx := NewSubscriptionIndex()
	first, err := idx.RegisterSymbol("BTC-USD")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	second, err := idx.RegisterSymbol("ETH-USD")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if first == second {
		t.Fatal("distinct symbols share an ID")
	}

	again, err := idx.RegisterSymbol("BTC-USD")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if again != first {
		t.Fatalf("re-register changed ID: %d -> %d", first, again)
	}

	name, ok := idx.SymbolName(first)
	if !ok || name != "BTC-USD" {
		t.Fatalf("SymbolName(%d) = %q,%v", first, name, ok)
	}
}

func TestBindSymbolConflicts(t *testing.T) {
	idx := NewSubscriptionIndex()
	if err := idx.BindSymbol("BTC-USD", 5); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if err := idx.BindSymbol("BTC-USD", 5); err != nil {
		t.Fatalf("re-bind same pair: %v", err)
	}
	if err := idx.BindSymbol("BTC-USD", 6); !errors.Is(err, exception.ErrInvalidArgument) {
		t.Fatalf("rebind to new id: err = %v, want ErrInvalidArgument", err)
	}
	if err := idx.BindSymbol("ETH-USD", 5); !errors.Is(err, exception.ErrInvalidArgument) {
		t.Fatalf("bind taken id: err = %v, want ErrInvalidArgument", err)
	}
}

func TestSubscribeUnknownSymbol(t *testing.T) {
	idx := NewSubscriptionIndex()
	if err := idx.Subscribe(1, 42); !errors.Is(err, exception.ErrUnknownSymbol) {
		t.Fatalf("err = %v, want ErrUnknownSymbol", err)
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	idx := NewSubscriptionIndex()
	id, _ := idx.RegisterSymbol("BTC-USD")

	if err := idx.Subscribe(1, id); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := idx.Subscribe(2, id); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if n := idx.SubscriberCount(id); n != 2 {
		t.Fatalf("subscriber count = %d, want 2", n)
	}

	idx.Unsubscribe(1, id)
	subs := idx.SubscribersOf(id)
	if len(subs) != 1 || subs[0] != 2 {
		t.Fatalf("subscribers = %v, want [2]", subs)
	}

	// Absent pairs are a no-op.
	idx.Unsubscribe(1, id)
	idx.Unsubscribe(99, id)
	if n := idx.SubscriberCount(id); n != 1 {
		t.Fatalf("subscriber count = %d, want 1", n)
	}
}

func TestPurgeSessionSweepsEverySymbol(t *testing.T) {
	idx := NewSubscriptionIndex()
	btc, _ := idx.RegisterSymbol("BTC-USD")
	eth, _ := idx.RegisterSymbol("ETH-USD")

	for _, id := range []uint32{btc, eth} {
		if err := idx.Subscribe(7, id); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
		if err := idx.Subscribe(8, id); err != nil {
			t.Fatalf("subscribe: %v", err)
		}
	}

	idx.PurgeSession(7)

	for _, id := range []uint32{btc, eth} {
		for _, sub := range idx.SubscribersOf(id) {
			if sub == 7 {
				t.Fatalf("session 7 still subscribed to id %d after purge", id)
			}
		}
		if n := idx.SubscriberCount(id); n != 1 {
			t.Fatalf("id %d subscriber count = %d, want 1", id, n)
		}
	}
}

func TestPurgeSessionConcurrentWithSubscribes(t *testing.T) {
	idx := NewSubscriptionIndex()
	const symbols = 16
	ids := make([]uint32, symbols)
	for i := range ids {
		id, err := idx.RegisterSymbol(string(rune('A' + i)))
		if err != nil {
			t.Fatalf("register: %v", err)
		}
		ids[i] = id
	}

	var wg sync.WaitGroup
	for victim := SessionID(1); victim <= 8; victim++ {
		for _, id := range ids {
			if err := idx.Subscribe(victim, id); err != nil {
				t.Fatalf("subscribe: %v", err)
			}
		}
	}

	// Concurrent purges and fresh subscriptions must leave no trace of the
	// purged sessions.
	for victim := SessionID(1); victim <= 8; victim++ {
		wg.Add(1)
		go func(v SessionID) {
			defer wg.Done()
			idx.PurgeSession(v)
		}(victim)
	}
	for keeper := SessionID(100); keeper < 104; keeper++ {
		wg.Add(1)
		go func(k SessionID) {
			defer wg.Done()
			for _, id := range ids {
				_ = idx.Subscribe(k, id)
			}
		}(keeper)
	}
	wg.Wait()

	for _, id := range ids {
		for _, sub := range idx.SubscribersOf(id) {
			if sub <= 8 {
				t.Fatalf("purged session %d still subscribed to id %d", sub, id)
			}
		}
		if n := idx.SubscriberCount(id); n != 4 {
			t.Fatalf("id %d subscriber count = %d, want 4", id, n)
		}
	}
}
