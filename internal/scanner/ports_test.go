package scanner

import (
	"errors"
	"reflect"
	"testing"
)

func TestBuildPortSet_NoSource(t *testing.T) {
	_, err := BuildPortSet(PortSpec{})
	if err == nil {
		t.Fatalf("expected error for empty spec")
	}
	if err.Error() != "either ports or port_range must be provided" {
		t.Fatalf("wrong message: %q", err.Error())
	}
	if !IsInvalidArgument(err) {
		t.Fatalf("expected invalid-argument error, got %T", err)
	}
}

func TestBuildPortSet_RangeExpansion(t *testing.T) {
	got, err := BuildPortSet(PortSpec{Range: &PortRange{Start: 1, End: 5}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []int{1, 2, 3, 4, 5}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	// single-port range
	got, err = BuildPortSet(PortSpec{Range: &PortRange{Start: 80, End: 80}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []int{80}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBuildPortSet_FullRange(t *testing.T) {
	got, err := BuildPortSet(PortSpec{Range: &PortRange{Start: 1, End: 65535}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 65535 {
		t.Fatalf("expected all 65535 ports, got %d", len(got))
	}
	for i, p := range got {
		if p != i+1 {
			t.Fatalf("ports not contiguous ascending at index %d: %d", i, p)
		}
	}
}

func TestBuildPortSet_BadRanges(t *testing.T) {
	cases := []PortRange{
		{Start: 0, End: 10},
		{Start: 1, End: 65536},
		{Start: -5, End: -1},
		{Start: 100, End: 99},
		{Start: 70000, End: 70001},
	}
	for _, pr := range cases {
		pr := pr
		_, err := BuildPortSet(PortSpec{Range: &pr})
		if err == nil {
			t.Fatalf("expected error for range %+v", pr)
		}
		if err.Error() != "invalid port_range; ports must be between 1 and 65535" {
			t.Fatalf("wrong message for range %+v: %q", pr, err.Error())
		}
	}
}

func TestBuildPortSet_ExplicitSortedDeduped(t *testing.T) {
	got, err := BuildPortSet(PortSpec{Explicit: []int{443, 80, 443, 22, 80}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []int{22, 80, 443}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestBuildPortSet_ExplicitOutOfBounds(t *testing.T) {
	for _, bad := range [][]int{{0}, {80, 65536}, {-1, 22}} {
		_, err := BuildPortSet(PortSpec{Explicit: bad})
		if err == nil {
			t.Fatalf("expected error for %v", bad)
		}
		if !errors.Is(err, ErrBadPortList) {
			t.Fatalf("expected ErrBadPortList for %v, got %v", bad, err)
		}
	}
}

func TestBuildPortSet_EmptyExplicitSelectsNothing(t *testing.T) {
	got, err := BuildPortSet(PortSpec{Explicit: []int{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil {
		t.Fatalf("expected non-nil empty set")
	}
	if len(got) != 0 {
		t.Fatalf("expected no ports, got %v", got)
	}
}

func TestBuildPortSet_ExplicitWinsOverRange(t *testing.T) {
	got, err := BuildPortSet(PortSpec{
		Explicit: []int{8080},
		Range:    &PortRange{Start: 1, End: 100},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := []int{8080}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected explicit list to win, got %v", got)
	}

	// even an empty explicit list overrides the range
	got, err = BuildPortSet(PortSpec{
		Explicit: []int{},
		Range:    &PortRange{Start: 1, End: 100},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty set, got %v", got)
	}
}
