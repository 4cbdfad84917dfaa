package state

import (
	"fmt"
	"testing"
	"time"
)

// BenchmarkMemoryTracker_ClaimMessage benchmarks inserts of fresh hashes
func BenchmarkMemoryTracker_ClaimMessage(b *testing.B) {
	tracker := NewMemoryTracker()
	loc := time.FixedZone("", -7*3600)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		tracker.ClaimMessage(fmt.Sprintf("hash-%d", i), loc)
	}
}

// BenchmarkMemoryTracker_LookupMessage benchmarks lookup performance
func BenchmarkMemoryTracker_LookupMessage(b *testing.B) {
	tracker := NewMemoryTracker()
	for i := 0; i < 1000; i++ {
		tracker.ClaimMessage(fmt.Sprintf("hash-%d", i), time.UTC)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = tracker.LookupMessage(fmt.Sprintf("hash-%d", i%1000))
	}
}

// BenchmarkMemoryTracker_ClaimContended benchmarks claims under parallel workers
func BenchmarkMemoryTracker_ClaimContended(b *testing.B) {
	tracker := NewMemoryTracker()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			tracker.ClaimFile(fmt.Sprintf("file-%d", i%5000))
			tracker.ClaimMessage(fmt.Sprintf("hash-%d", i%5000), time.UTC)
			i++
		}
	})
}
