package npadomain

import (
	"testing"

	"lotus/internal/npaconfig"
)

type intMaxRing struct{}

func (intMaxRing) Zero() int            { return 0 }
func (intMaxRing) One() int             { return 1 }
func (intMaxRing) Combine(a, b int) int { if a > b { return a }; return b }
func (intMaxRing) Extend(a, b int) int  { return a + b }
func (intMaxRing) Star(a int) int       { return a }
func (intMaxRing) Equal(a, b int) bool  { return a == b }
func (intMaxRing) Subtract(a, b int) int { return a - b }

func TestNewDriverAcceptsKnownVariant(t *testing.T) {
	cfg := &npaconfig.Config{AnalyzerVariant: npaconfig.BilateralAnalyzer}
	d, err := NewDriver[int](intMaxRing{}, cfg)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	if d.Ring.Combine(3, 5) != 5 {
		t.Fatalf("expected ring to be usable through the driver")
	}
}

func TestNewDriverRejectsUnknownVariant(t *testing.T) {
	cfg := &npaconfig.Config{AnalyzerVariant: "SomethingElse"}
	_, err := NewDriver[int](intMaxRing{}, cfg)
	if err == nil {
		t.Fatalf("expected an error for an unrecognized analyzer variant")
	}
}
