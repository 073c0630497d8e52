package clock

import (
	"testing"
	"time"
)

func TestSystemNowMsIsMonotonicNonDecreasing(t *testing.T) {
	c := NewSystem()
	a := c.NowMs()
	time.Sleep(time.Millisecond)
	b := c.NowMs()
	if b < a {
		t.Fatalf("NowMs went backwards: %d -> %d", a, b)
	}
}

func TestSystemUptimeMsGrows(t *testing.T) {
	c := NewSystem()
	a := c.UptimeMs()
	time.Sleep(time.Millisecond)
	b := c.UptimeMs()
	if b < a {
		t.Fatalf("UptimeMs went backwards: %d -> %d", a, b)
	}
}

func TestSystemISOParsesAsRFC3339Nano(t *testing.T) {
	c := NewSystem()
	s := c.ISO()
	if _, err := time.Parse(time.RFC3339Nano, s); err != nil {
		t.Fatalf("ISO() produced unparseable timestamp %q: %v", s, err)
	}
}

func TestSystemTZOffsetMinMatchesLocalZone(t *testing.T) {
	c := NewSystem()
	_, wantSec := time.Now().Zone()
	if got := c.TZOffsetMin(); got != wantSec/60 {
		t.Fatalf("TZOffsetMin: got %d, want %d", got, wantSec/60)
	}
}
