package chatid

import (
	"slices"
	"testing"
)

func TestQualify(t *testing.T) {
	tests := []struct {
		in   int64
		want int64
	}{
		{12345, -10012345},
		{1, -1001},
		{-10012345, -10012345}, // already qualified
		{-42, -42},             // negative non-prefixed
		{0, 0},
	}
	for _, tt := range tests {
		if got := Qualify(tt.in); got != tt.want {
			t.Errorf("Qualify(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestShort(t *testing.T) {
	tests := []struct {
		in     int64
		want   int64
		wantOK bool
	}{
		{-10012345, 12345, true},
		{-1001, 1, true},
		{12345, 12345, false},
		{-42, -42, false},
		{-100, -100, false}, // bare prefix, nothing after it
	}
	for _, tt := range tests {
		got, ok := Short(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Short(%d) = (%d, %v), want (%d, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestExpand(t *testing.T) {
	tests := []struct {
		in   int64
		want []int64
	}{
		{12345, []int64{12345, -10012345}},
		{-10012345, []int64{-10012345, 12345}},
		{-42, []int64{-42}},
		{0, []int64{0}},
	}
	for _, tt := range tests {
		got := Expand(tt.in)
		if !slices.Equal(got, tt.want) {
			t.Errorf("Expand(%d) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

// Expanding every member of an expansion must not grow the set: the closure
// under normalization is reached after one step.
func TestExpandIdempotent(t *testing.T) {
	for _, id := range []int64{12345, -10012345, -42, 7, 0} {
		once := map[int64]bool{}
		for _, v := range Expand(id) {
			once[v] = true
		}
		twice := map[int64]bool{}
		for v := range once {
			for _, w := range Expand(v) {
				twice[w] = true
			}
		}
		if len(twice) != len(once) {
			t.Errorf("Expand closure of %d grew on second pass: %v -> %v", id, once, twice)
		}
		for v := range once {
			if !twice[v] {
				t.Errorf("Expand closure of %d lost member %d", id, v)
			}
		}
	}
}
