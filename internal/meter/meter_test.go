package meter

import "testing"

func TestMarkEstablishesInitialRate(t *testing.T) {
	var m Meter
	m.Mark(100)
	if got := m.Rate(); got != 100 {
		t.Fatalf("Rate() after first Mark = %v, want 100", got)
	}
}

func TestRateIsNonNegative(t *testing.T) {
	var m Meter
	m.Mark(0)
	m.Mark(50)
	if m.Rate() < 0 {
		t.Fatalf("Rate() went negative: %v", m.Rate())
	}
}
