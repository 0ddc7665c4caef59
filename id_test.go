package richcrdt

import "testing"

func TestOpIdLess(t *testing.T) {
	cases := []struct {
		a, b OpId
		want bool
	}{
		{OpId{1, 1}, OpId{2, 1}, true},
		{OpId{2, 1}, OpId{1, 1}, false},
		{OpId{1, 1}, OpId{1, 2}, true},
		{OpId{1, 2}, OpId{1, 1}, false},
		{OpId{1, 1}, OpId{1, 1}, false},
	}
	for _, c := range cases {
		if got := c.a.Less(c.b); got != c.want {
			t.Errorf("%v.Less(%v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}

func TestOriginParagraphIsZero(t *testing.T) {
	if !OpId(OriginParagraphID).IsZero() {
		t.Errorf("origin paragraph id should be zero, got %v", OriginParagraphID)
	}
}

func TestOpIdString(t *testing.T) {
	if got, want := (OpId{3, 7}).String(), "(3,7)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
