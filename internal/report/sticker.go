package report

import (
	"strings"

	"github.com/DeviceIngineering/-tocka-marketplace/constants"
)

// ResolveSticker picks the sticker number for a row. Priority: the sticker
// cell itself, then a sticker embedded in the order code, then the
// placeholder.
func ResolveSticker(sticker, orderCode string) string {
	if v := strings.TrimSpace(sticker); v != "" {
		return v
	}
	if v := strings.TrimSpace(orderCode); v != "" {
		return extractFromOrderCode(v)
	}
	return constants.StickerPlaceholder
}

// extractFromOrderCode pulls the sticker number out of a composite order code
// of the form STICKER-PART-PART. Anything but exactly two dashes, or a code
// starting with a dash, yields the placeholder.
func extractFromOrderCode(code string) string {
	if strings.Count(code, "-") != 2 {
		return constants.StickerPlaceholder
	}
	first := strings.Index(code, "-")
	if first <= 0 {
		return constants.StickerPlaceholder
	}
	return code[:first]
}

// SplitSticker prepares a sticker value for display: the placeholder stays as
// is, values of four or more characters get a space inserted before the last
// four. The bool reports whether the cell should get the bold enlarged font;
// short values stay untouched and unstyled.
func SplitSticker(value string) (string, bool) {
	if value == constants.StickerPlaceholder {
		return value, true
	}
	runes := []rune(value)
	if len(runes) < 4 {
		return value, false
	}
	prefix := strings.TrimRight(string(runes[:len(runes)-4]), " ")
	last4 := string(runes[len(runes)-4:])
	return prefix + " " + last4, true
}
