package rate

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// extractInts returns all integer substrings contained in s. Any non-digit
// characters are treated as separators. Missing or unparsable values result in
// an empty slice.
func extractInts(s string) []int64 {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r < '0' || r > '9'
	})
	nums := make([]int64, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if n, err := strconv.ParseInt(p, 10, 64); err == nil {
			nums = append(nums, n)
		}
	}
	return nums
}

// maxRetryAfterHint caps vendor cooldown hints so a hostile header cannot
// stall a worker indefinitely.
const maxRetryAfterHint = 5 * time.Minute

// RetryAfterHint extracts the vendor's cooldown hint from throttling response
// headers. Zero means no usable hint was provided. HTTP-date forms and plain
// second counts are both accepted.
func RetryAfterHint(header http.Header) time.Duration {
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0
	}

	if t, err := http.ParseTime(raw); err == nil {
		d := time.Until(t)
		if d <= 0 {
			return 0
		}
		return capHint(d)
	}

	nums := extractInts(raw)
	if len(nums) == 0 || nums[0] <= 0 {
		return 0
	}
	return capHint(time.Duration(nums[0]) * time.Second)
}

func capHint(d time.Duration) time.Duration {
	if d > maxRetryAfterHint {
		return maxRetryAfterHint
	}
	return d
}
