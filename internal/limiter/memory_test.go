package limiter

import (
	"context"
	"testing"
	"time"
)

func TestMemory_BlocksAfterMaxFails(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	l := NewMemory(time.Minute, 3, 10*time.Minute)
	l.now = func() time.Time { return now }
	ctx := context.Background()
	peer := HashPeer("10.0.0.1:5555")

	for i := 0; i < 2; i++ {
		blocked, _, err := l.Failure(ctx, "u", peer)
		if err != nil || blocked {
			t.Fatalf("failure %d: blocked=%v err=%v", i, blocked, err)
		}
	}
	blocked, d, _ := l.Failure(ctx, "u", peer)
	if !blocked || d != 10*time.Minute {
		t.Fatalf("third failure: blocked=%v d=%v", blocked, d)
	}

	ok, retry, _ := l.Allow(ctx, "u", peer)
	if ok || retry != 10*time.Minute {
		t.Fatalf("allow while blocked: ok=%v retry=%v", ok, retry)
	}
	if ok, _, _ := l.Allow(ctx, "u", HashPeer("10.0.0.2:1")); !ok {
		t.Fatal("other peer must not be blocked")
	}

	now = now.Add(11 * time.Minute)
	if ok, _, _ := l.Allow(ctx, "u", peer); !ok {
		t.Fatal("block must expire")
	}
}

func TestMemory_WindowResetsAndSuccessClears(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	l := NewMemory(time.Minute, 2, time.Hour)
	l.now = func() time.Time { return now }
	ctx := context.Background()
	peer := HashPeer("p")

	_, _, _ = l.Failure(ctx, "u", peer)
	now = now.Add(2 * time.Minute)
	if blocked, _, _ := l.Failure(ctx, "u", peer); blocked {
		t.Fatal("failure outside the window must start a new count")
	}

	if err := l.Success(ctx, "u", peer); err != nil {
		t.Fatal(err)
	}
	if blocked, _, _ := l.Failure(ctx, "u", peer); blocked {
		t.Fatal("success must reset the counter")
	}
}
