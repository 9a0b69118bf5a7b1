package room

import "testing"

func TestDerive_Commutative(t *testing.T) {
	cases := []struct{ a, b int64 }{
		{3, 7},
		{7, 3},
		{1, 1},
		{0, 42},
		{123456789, 987654321},
	}
	for _, tc := range cases {
		if Derive(tc.a, tc.b) != Derive(tc.b, tc.a) {
			t.Errorf("Derive(%d,%d) != Derive(%d,%d)", tc.a, tc.b, tc.b, tc.a)
		}
	}
}

func TestDerive_Format(t *testing.T) {
	if got := Derive(7, 3); got != Key("3_7") {
		t.Errorf("Derive(7,3) = %q, want %q", got, "3_7")
	}
	if got := Derive(3, 7); got != Key("3_7") {
		t.Errorf("Derive(3,7) = %q, want %q", got, "3_7")
	}
}

func TestDerive_DistinctPairs(t *testing.T) {
	pairs := [][2]int64{
		{1, 2}, {3, 4}, {1, 3}, {2, 4}, {5, 6}, {10, 20}, {12, 0},
	}
	seen := make(map[Key][2]int64)
	for _, p := range pairs {
		key := Derive(p[0], p[1])
		if prev, ok := seen[key]; ok {
			t.Errorf("pairs %v and %v collide on key %q", prev, p, key)
		}
		seen[key] = p
	}
}
