package baseline

import "testing"

func buildTestMap() *Map {
	return Build([]Entry{
		{Target: "10.0.0.5", Ports: []string{"22", "8000-8002"}},
		{Target: "web.internal", Ports: []string{"443"}},
		{Target: "10.1.0.0/16", Ports: []string{"80"}},
		{Target: "bad.ports", Ports: []string{"0", "70000", "9-5", "x"}},
	})
}

func TestExpectedByIP(t *testing.T) {
	m := buildTestMap()
	if !m.Expected("10.0.0.5", 22) {
		t.Fatalf("22 on 10.0.0.5 should be expected")
	}
	if !m.Expected("10.0.0.5", 8001) {
		t.Fatalf("range member should be expected")
	}
	if m.Expected("10.0.0.5", 80) {
		t.Fatalf("80 not declared for 10.0.0.5")
	}
	if m.Expected("10.0.0.6", 22) {
		t.Fatalf("different IP must not match")
	}
}

func TestExpectedByHostnameLiteral(t *testing.T) {
	m := buildTestMap()
	if !m.Expected("web.internal", 443) {
		t.Fatalf("literal hostname should match")
	}
	if m.Expected("other.internal", 443) {
		t.Fatalf("unrelated hostname must not match")
	}
}

func TestExpectedByCIDR(t *testing.T) {
	m := buildTestMap()
	if !m.Expected("10.1.2.3", 80) {
		t.Fatalf("address inside CIDR should match")
	}
	if m.Expected("10.2.0.1", 80) {
		t.Fatalf("address outside CIDR must not match")
	}
	if m.Expected("not-an-ip.test", 80) {
		t.Fatalf("non-IP target cannot match a CIDR rule")
	}
}

func TestInvalidPortSpecsSkipped(t *testing.T) {
	m := buildTestMap()
	for _, p := range []int{0, 5, 9, 70000} {
		if m.Expected("bad.ports", p) {
			t.Fatalf("invalid spec produced a match for port %d", p)
		}
	}
}

func TestNilMapExpectsNothing(t *testing.T) {
	var m *Map
	if m.Expected("10.0.0.5", 22) {
		t.Fatalf("nil map must report nothing as expected")
	}
}
