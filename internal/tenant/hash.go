package tenant

import (
	"strconv"
	"unicode/utf16"
)

// DefaultAllowHash is the allow-hash shipped with the original sidebar build.
const DefaultAllowHash = "348387cf"

// HashID computes the allow-hash of a tenant identifier: the 32-bit
// shift-and-subtract string hash over UTF-16 code units, absolute value, in
// lowercase hex. It is not a cryptographic hash; it must stay bit-compatible
// with the allow-hash constants already issued.
func HashID(id string) string {
	var h int32
	for _, u := range utf16.Encode([]rune(id)) {
		h = (h << 5) - h + int32(u)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 16)
}
