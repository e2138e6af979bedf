package pixclient

import "github.com/pixnet/pixnetd/internal/wire"

// Hit describes the category resolved at a pointer position, if any.
type Hit struct {
	CategoryID uint16
	Category   *wire.CategoryRecord
}

// HitTest resolves (x, y) against a frame's category map: each pixel maps
// to a 2-byte big-endian category ID, 0 meaning no category. Coordinates
// outside the frame are clamped to its bounds.
func HitTest(frame *wire.Frame, x, y int) (Hit, bool) {
	if frame.Width == 0 || frame.Height == 0 {
		return Hit{}, false
	}
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	if x >= int(frame.Width) {
		x = int(frame.Width) - 1
	}
	if y >= int(frame.Height) {
		y = int(frame.Height) - 1
	}

	offset := (y*int(frame.Width) + x) * 2
	if offset+1 >= len(frame.CategoryMap) {
		return Hit{}, false
	}
	catID := uint16(frame.CategoryMap[offset])<<8 | uint16(frame.CategoryMap[offset+1])
	if catID == 0 {
		return Hit{}, false
	}

	for i := range frame.Categories {
		if frame.Categories[i].ID == catID {
			return Hit{CategoryID: catID, Category: &frame.Categories[i]}, true
		}
	}
	return Hit{CategoryID: catID}, false
}

// NavigateTarget extracts the target page name from a NAVIGATE category's
// behavior_data (name_len byte, name bytes, then a little-endian u16
// debounce_ms tail), mirroring the PXNT container's NAVIGATE encoding.
func NavigateTarget(cat *wire.CategoryRecord) (target string, debounceMS uint16, ok bool) {
	if cat == nil || len(cat.BehaviorData) < 1 {
		return "", 0, false
	}
	nameLen := int(cat.BehaviorData[0])
	if len(cat.BehaviorData) < 1+nameLen+2 {
		return "", 0, false
	}
	name := string(cat.BehaviorData[1 : 1+nameLen])
	debounce := uint16(cat.BehaviorData[1+nameLen]) | uint16(cat.BehaviorData[1+nameLen+1])<<8
	return name, debounce, true
}
