package benchmarks

import (
	"testing"

	"github.com/randalmurphal/lazyref/pkg/lazyref/group"
)

// BenchmarkGroup_Get_SameKey measures reads of an initialized key.
func BenchmarkGroup_Get_SameKey(b *testing.B) {
	g := group.New(func(key string) (int, error) { return len(key), nil })
	defer g.Close()

	_, _ = g.Get("hot")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = g.Get("hot")
	}
}

// BenchmarkGroup_Get_ManyKeys measures reads spread over 100 initialized keys.
func BenchmarkGroup_Get_ManyKeys(b *testing.B) {
	g := group.New(func(key string) (int, error) { return len(key), nil })
	defer g.Close()

	for j := 0; j < 100; j++ {
		_, _ = g.Get(keyID(j))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = g.Get(keyID(i % 100))
	}
}

// BenchmarkGroup_HandleRelease measures a handle checkout/release round trip.
func BenchmarkGroup_HandleRelease(b *testing.B) {
	g := group.New(func(key string) (int, error) { return len(key), nil })
	defer g.Close()

	_, _ = g.Get("hot")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		h, err := g.Handle("hot")
		if err != nil {
			b.Fatal(err)
		}
		_ = h.Release()
	}
}

// Helper functions

func keyID(n int) string {
	return string(rune('a'+n%26)) + string(rune('0'+n/26%10))
}
