package serial

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Width is the minimum number of digits in a serial's numeric suffix.
// Numbers above 999 keep their full width; the suffix grows, it never wraps.
const Width = 3

var suffixRe = regexp.MustCompile(`(\d+)$`)

// Format renders the serial string for the given prefix and sequence number.
func Format(prefix string, n int64) string {
	return fmt.Sprintf("%s%0*d", prefix, Width, n)
}

// SuffixNumber extracts the numeric suffix of a serial number issued under
// the given prefix. It returns false when the serial does not carry the
// prefix or when everything after the prefix is not a plain digit run, so
// serials of a longer code with a non-digit tail (e.g. "CNC001A002" under
// "CNC001") are never counted against the shorter prefix.
func SuffixNumber(serialNumber, prefix string) (int64, bool) {
	rest, ok := strings.CutPrefix(serialNumber, prefix)
	if !ok || rest == "" {
		return 0, false
	}
	if suffixRe.FindString(rest) != rest {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MaxSuffix returns the highest numeric suffix among the given serial
// numbers for a prefix, 0 when none parse. Serials are compared numerically,
// not by insertion order, so out-of-order inserts are tolerated.
func MaxSuffix(serialNumbers []string, prefix string) int64 {
	var max int64
	for _, s := range serialNumbers {
		if n, ok := SuffixNumber(s, prefix); ok && n > max {
			max = n
		}
	}
	return max
}
