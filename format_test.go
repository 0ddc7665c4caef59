package richcrdt

import "testing"

func TestFormatChangeApply(t *testing.T) {
	setBold := Set(FormatBold, true)
	running := setBold.Apply(0)
	if !Has(running, FormatBold) {
		t.Fatalf("expected bold set, got mask %b", running)
	}
	if Has(running, FormatItalic) {
		t.Fatalf("italic should be untouched, got mask %b", running)
	}

	setItalic := Set(FormatItalic, true)
	running = setItalic.Apply(running)
	if !Has(running, FormatBold) || !Has(running, FormatItalic) {
		t.Fatalf("expected both bits set, got mask %b", running)
	}

	clearBold := Set(FormatBold, false)
	running = clearBold.Apply(running)
	if Has(running, FormatBold) {
		t.Fatalf("expected bold cleared, got mask %b", running)
	}
	if !Has(running, FormatItalic) {
		t.Fatalf("italic should remain set, got mask %b", running)
	}
}

func TestFormatChangeMaskIsolatesBits(t *testing.T) {
	fc := FormatChange{Mask: uint32(FormatBold), Value: uint32(FormatBold | FormatItalic)}
	// Only the masked bit (bold) should actually flip; italic in Value is
	// outside Mask and must be ignored.
	running := fc.Apply(0)
	if !Has(running, FormatBold) {
		t.Fatalf("expected bold set")
	}
	if Has(running, FormatItalic) {
		t.Fatalf("italic outside mask should not be set, got mask %b", running)
	}
}
