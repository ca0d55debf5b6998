package state

import (
	"strconv"
)

// FormatCount renders a tally for a compact badge: "" for zero, the plain
// number below a thousand, then thousands or millions floored to one decimal
// ("1.2k", "12k", "3.4m").
func FormatCount(n int64) string {
	switch {
	case n <= 0:
		return ""
	case n < 1000:
		return strconv.FormatInt(n, 10)
	case n < 1000000:
		return abbreviate(n/100, "k")
	default:
		return abbreviate(n/100000, "m")
	}
}

// abbreviate formats tenths, dropping a zero decimal
func abbreviate(tenths int64, suffix string) string {
	whole, frac := tenths/10, tenths%10
	if frac == 0 {
		return strconv.FormatInt(whole, 10) + suffix
	}
	return strconv.FormatInt(whole, 10) + "." + strconv.FormatInt(frac, 10) + suffix
}
