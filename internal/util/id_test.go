package util

import (
	"testing"
)

func TestNewID(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := NewID()
		if err != nil {
			t.Fatalf("NewID() error: %v", err)
		}
		if !IsValidID(id) {
			t.Fatalf("NewID() = %q, not a valid id", id)
		}
		if id[0] == '-' {
			t.Fatalf("NewID() = %q starts with a dash", id)
		}
		if seen[id] {
			t.Fatalf("NewID() produced duplicate %q", id)
		}
		seen[id] = true
	}
}

func TestIsValidID(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"aB3dE6gH", true},
		{"00000000", true},
		{"aB3dE6g", false},
		{"aB3dE6gHi", false},
		{"aB3d-6gH", false},
		{"aB3d_6gH", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValidID(tt.in); got != tt.want {
			t.Errorf("IsValidID(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestFindSimilarID(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		candidates []string
		want       string
		wantOK     bool
	}{
		{
			name:       "distance one beats distance five",
			target:     "aB3dE6gX",
			candidates: []string{"zzzzzgHq", "aB3dE6gH"},
			want:       "aB3dE6gH",
			wantOK:     true,
		},
		{
			name:       "only far candidate",
			target:     "aB3dE6gX",
			candidates: []string{"aBzzzzzq"},
			wantOK:     false,
		},
		{
			name:       "distance two accepted",
			target:     "abcdefgh",
			candidates: []string{"abcdefXY"},
			want:       "abcdefXY",
			wantOK:     true,
		},
		{
			name:       "first wins on tie",
			target:     "abcdefgh",
			candidates: []string{"abcdefgX", "abcdefgY"},
			want:       "abcdefgX",
			wantOK:     true,
		},
		{
			name:   "no candidates",
			target: "abcdefgh",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindSimilarID(tt.target, tt.candidates)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("FindSimilarID() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
