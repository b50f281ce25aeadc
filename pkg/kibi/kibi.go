// Package kibi formats and parses byte sizes in powers of 1024
package kibi

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var digitRegex = regexp.MustCompile(`^\d+`)
var ErrInvalidByteSizeString = fmt.Errorf("Invalid byte size string")

var units = []string{"KB", "MB", "GB", "TB", "PB"}

// FormatBytes rounds down to the largest unit that keeps the value above zero
func FormatBytes(b int64) string {
	if b < 1024 {
		return fmt.Sprintf("%v bytes", b)
	}
	v := b / 1024
	unit := 0
	for v >= 1024 && unit < len(units)-1 {
		v /= 1024
		unit++
	}
	return fmt.Sprintf("%v %v", v, units[unit])
}

// ParseBytes accepts suffixes 'kb', 'mb', etc, or just the letter ('k', 'm', ...), in any case.
// No suffix, or 'bytes', means bytes.
//
//	123 m  -> 123*1024*1024
//	123 GB -> 123*1024*1024*1024
func ParseBytes(v string) (int64, error) {
	v = strings.TrimSpace(strings.ToLower(v))
	digits := digitRegex.FindString(v)
	if digits == "" {
		return 0, ErrInvalidByteSizeString
	}
	suffix := strings.TrimSpace(v[len(digits):])
	multiplier := int64(1)
	if suffix != "" && suffix != "bytes" {
		found := false
		for _, u := range units {
			multiplier *= 1024
			u = strings.ToLower(u)
			if suffix == u || suffix == u[:1] {
				found = true
				break
			}
		}
		if !found {
			return 0, ErrInvalidByteSizeString
		}
	}
	value, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, err
	}
	return value * multiplier, nil
}
