package hub

import "testing"

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	rl := NewRateLimiter(3)

	for i := 0; i < 3; i++ {
		if !rl.Allow("conn-1") {
			t.Fatalf("Request %d within budget was denied", i+1)
		}
	}
	if rl.Allow("conn-1") {
		t.Error("Request over budget was allowed")
	}
}

func TestRateLimiter_BudgetsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1)

	if !rl.Allow("conn-1") {
		t.Fatal("First request denied")
	}
	if rl.Allow("conn-1") {
		t.Error("conn-1 over budget was allowed")
	}
	if !rl.Allow("conn-2") {
		t.Error("conn-2 must have its own budget")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(1)
	rl.Allow("conn-1")

	// Entries within the retention window survive cleanup.
	rl.Cleanup()

	rl.mu.Lock()
	_, exists := rl.clients["conn-1"]
	rl.mu.Unlock()
	if !exists {
		t.Error("Cleanup must keep recent entries")
	}
}
