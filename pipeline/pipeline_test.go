package pipeline

import "testing"

func TestSpirvWords(t *testing.T) {
	// SPIR-V magic number 0x07230203 in little-endian byte order.
	bytes := []byte{0x03, 0x02, 0x23, 0x07, 0xFF, 0x00, 0x00, 0x00}
	words := spirvWords(bytes)

	if len(words) != 2 {
		t.Fatalf("expected 2 words, got %d", len(words))
	}
	if words[0] != 0x07230203 {
		t.Errorf("expected magic 0x07230203, got 0x%08X", words[0])
	}
	if words[1] != 0xFF {
		t.Errorf("expected 0xFF, got 0x%08X", words[1])
	}
}

func TestSpirvWordsEmpty(t *testing.T) {
	if words := spirvWords(nil); len(words) != 0 {
		t.Errorf("expected no words, got %d", len(words))
	}
}

func TestResourcesDestroyNilDevice(t *testing.T) {
	// Destroy on a zero Resources must be a no-op.
	var r Resources
	r.Destroy()
}
