package fleet

import (
	"strconv"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestPropertyRingBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	genCapacity := gen.IntRange(1, 64)
	genAppends := gen.IntRange(0, 500)

	properties.Property("Length never exceeds capacity", prop.ForAll(
		func(capacity, appends int) bool {
			r := NewRing(capacity)
			for i := 0; i < appends; i++ {
				r.Append(strconv.Itoa(i))
				if r.Len() > capacity {
					return false
				}
			}
			return true
		},
		genCapacity,
		genAppends,
	))

	properties.Property("Ring holds the most recent lines in arrival order", prop.ForAll(
		func(capacity, appends int) bool {
			r := NewRing(capacity)
			for i := 0; i < appends; i++ {
				r.Append(strconv.Itoa(i))
			}

			got := r.All()
			want := appends
			if want > capacity {
				want = capacity
			}
			if len(got) != want {
				return false
			}
			for i, line := range got {
				if line != strconv.Itoa(appends-want+i) {
					return false
				}
			}
			return true
		},
		genCapacity,
		genAppends,
	))

	properties.Property("Last(n) is a suffix of All()", prop.ForAll(
		func(capacity, appends, n int) bool {
			r := NewRing(capacity)
			for i := 0; i < appends; i++ {
				r.Append(strconv.Itoa(i))
			}

			all := r.All()
			last := r.Last(n)
			if len(last) > len(all) {
				return false
			}
			for i := range last {
				if last[i] != all[len(all)-len(last)+i] {
					return false
				}
			}
			return true
		},
		genCapacity,
		genAppends,
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}

func TestRingEviction(t *testing.T) {
	r := NewRing(3)
	for _, line := range []string{"a", "b", "c", "d", "e"} {
		r.Append(line)
	}

	got := r.All()
	want := []string{"c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("All() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("All() = %v, want %v", got, want)
			break
		}
	}

	last := r.Last(2)
	if len(last) != 2 || last[0] != "d" || last[1] != "e" {
		t.Errorf("Last(2) = %v", last)
	}
}
