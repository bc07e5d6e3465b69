package detector

import (
	"fmt"
	"math/rand"
	"testing"
)

func sections(ranges ...*PageRange) []Section {
	out := make([]Section, len(ranges))
	for i, r := range ranges {
		out[i] = Section{Name: fmt.Sprintf("s%d", i), Range: r}
	}
	return out
}

func TestResolveOverlaps(t *testing.T) {
	priority := []string{"s0", "s1", "s2"}
	tests := []struct {
		name string
		in   []*PageRange
		want []*PageRange
	}{
		{
			name: "disjoint ranges untouched",
			in:   []*PageRange{span(0, 1), span(2, 3), span(4, 4)},
			want: []*PageRange{span(0, 1), span(2, 3), span(4, 4)},
		},
		{
			name: "start inside higher range is pushed",
			in:   []*PageRange{span(0, 3), span(2, 5), span(6, 6)},
			want: []*PageRange{span(0, 3), span(4, 5), span(6, 6)},
		},
		{
			name: "push past end drops the section",
			in:   []*PageRange{span(0, 3), span(1, 2), nil},
			want: []*PageRange{span(0, 3), nil, nil},
		},
		{
			name: "pushed start lands in another kept range",
			in:   []*PageRange{span(0, 1), span(2, 3), span(1, 6)},
			want: []*PageRange{span(0, 1), span(2, 3), span(4, 6)},
		},
		{
			name: "lower range running into higher one is cut",
			in:   []*PageRange{span(4, 6), span(2, 8), nil},
			want: []*PageRange{span(4, 6), span(2, 3), nil},
		},
		{
			name: "missing sections are ignored",
			in:   []*PageRange{nil, span(0, 2), span(1, 3)},
			want: []*PageRange{nil, span(0, 2), span(3, 3)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sections(tt.in...)
			got := ResolveOverlaps(in, priority)
			for i := range tt.want {
				g, w := got[i].Range, tt.want[i]
				if (g == nil) != (w == nil) || (g != nil && *g != *w) {
					t.Errorf("s%d = %v, want %v", i, g, w)
				}
			}
		})
	}
}

func TestResolveOverlapsDoesNotMutateInput(t *testing.T) {
	in := sections(span(0, 3), span(2, 5))
	ResolveOverlaps(in, []string{"s0", "s1"})
	if *in[1].Range != *span(2, 5) {
		t.Errorf("input modified: %v", *in[1].Range)
	}
}

func TestResolveOverlapsKeepsUnlistedSections(t *testing.T) {
	in := sections(span(0, 3), span(1, 2))
	got := ResolveOverlaps(in, []string{"s0"})
	if got[1].Range == nil || *got[1].Range != *span(1, 2) {
		t.Errorf("unlisted section changed: %v", got[1].Range)
	}
}

// For any input, listed sections end up pairwise disjoint and higher-priority
// ranges are never altered.
func TestResolveOverlapsProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	priority := []string{"s0", "s1", "s2", "s3"}
	for iter := 0; iter < 2000; iter++ {
		ranges := make([]*PageRange, len(priority))
		for i := range ranges {
			if rng.Intn(5) == 0 {
				continue
			}
			a, b := rng.Intn(20), rng.Intn(20)
			if a > b {
				a, b = b, a
			}
			ranges[i] = span(a, b)
		}
		in := sections(ranges...)
		out := ResolveOverlaps(in, priority)

		if (ranges[0] == nil) != (out[0].Range == nil) || (ranges[0] != nil && *ranges[0] != *out[0].Range) {
			t.Fatalf("highest priority range changed: %v -> %v", ranges[0], out[0].Range)
		}
		for i := range out {
			r := out[i].Range
			if r == nil {
				continue
			}
			if r.Start > r.End {
				t.Fatalf("half-open range %v", *r)
			}
			if ranges[i] == nil || r.Start < ranges[i].Start || r.End > ranges[i].End {
				t.Fatalf("range grew: %v -> %v", ranges[i], *r)
			}
			for j := 0; j < i; j++ {
				h := out[j].Range
				if h != nil && h.Overlaps(*r) {
					t.Fatalf("iteration %d: s%d %v overlaps s%d %v", iter, i, *r, j, *h)
				}
			}
		}
	}
}
