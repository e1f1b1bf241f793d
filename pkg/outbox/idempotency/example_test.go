package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

func ExampleGuard_CheckAndMarkProcessed() {
	guard, _ := NewGuard(newMemoryStore(), 7*24*time.Hour)
	rowID := uuid.MustParse("f47ac10b-58cc-4372-a567-0e02b2c3d479")

	for i := 0; i < 2; i++ {
		seen, _ := guard.CheckAndMarkProcessed(context.Background(), "outbox-publisher", rowID)
		if seen {
			fmt.Println("skip publish")
			continue
		}
		fmt.Println("publish")
	}
	// Output:
	// publish
	// skip publish
}
