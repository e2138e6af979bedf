package pixclient

import (
	"testing"

	"github.com/pixnet/pixnetd/internal/wire"
)

func makeTestFrame() *wire.Frame {
	width, height := uint16(2), uint16(2)
	catMap := make([]byte, int(width)*int(height)*2)
	// pixel (1,0) and pixel (1,1) -> category 1
	catMap[2], catMap[3] = 0x00, 0x01
	catMap[6], catMap[7] = 0x00, 0x01
	navData := append([]byte{4}, []byte("home")...)
	navData = append(navData, 0x64, 0x00) // debounce 100ms little-endian
	return &wire.Frame{
		Width:       width,
		Height:      height,
		CategoryMap: catMap,
		Categories: []wire.CategoryRecord{
			{ID: 1, Name: "home_link", BehaviorID: 1, BehaviorData: navData},
		},
	}
}

func TestHitTestResolvesCategory(t *testing.T) {
	f := makeTestFrame()
	hit, ok := HitTest(f, 1, 0)
	if !ok {
		t.Fatalf("expected hit at (1,0)")
	}
	if hit.CategoryID != 1 || hit.Category.Name != "home_link" {
		t.Fatalf("unexpected hit: %+v", hit)
	}
}

func TestHitTestMissOnUncategorizedPixel(t *testing.T) {
	f := makeTestFrame()
	if _, ok := HitTest(f, 0, 0); ok {
		t.Fatalf("expected miss at (0,0)")
	}
}

func TestHitTestClampsOutOfBoundsCoordinates(t *testing.T) {
	f := makeTestFrame()
	hit, ok := HitTest(f, 999, 999)
	if !ok {
		t.Fatalf("expected clamped coordinate to still resolve a hit")
	}
	_ = hit
}

func TestNavigateTargetParsesBehaviorData(t *testing.T) {
	f := makeTestFrame()
	target, debounce, ok := NavigateTarget(&f.Categories[0])
	if !ok {
		t.Fatalf("expected NavigateTarget to succeed")
	}
	if target != "home" {
		t.Fatalf("expected target %q, got %q", "home", target)
	}
	if debounce != 100 {
		t.Fatalf("expected debounce 100, got %d", debounce)
	}
}
