package cache

import (
	"strconv"
	"strings"
)

const (
	headerCacheControl = "cache-control"
	headerAge          = "age"
	maxAgeDirective    = "max-age="
)

// ResolveTTLSeconds returns max-age minus Age in seconds.
//
// Header names are matched case-insensitively and only the first value of
// each header is considered. An unparsable Age counts as zero. A missing
// Cache-Control, or one without a parsable max-age directive, yields 0. The
// result may be negative when Age exceeds max-age.
func ResolveTTLSeconds(headers map[string][]string) int64 {
	var cacheControl string
	var age int64
	foundCacheControl, foundAge := false, false

	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		switch strings.ToLower(name) {
		case headerCacheControl:
			if !foundCacheControl {
				cacheControl = values[0]
				foundCacheControl = true
			}
		case headerAge:
			if !foundAge {
				foundAge = true
				if v, err := strconv.ParseInt(strings.TrimSpace(values[0]), 10, 64); err == nil {
					age = v
				}
			}
		}
		if foundCacheControl && foundAge {
			break
		}
	}

	if !foundCacheControl {
		return 0
	}

	maxAge := parseMaxAge(cacheControl)
	if maxAge == 0 {
		return 0
	}
	return maxAge - age
}

// parseMaxAge returns the max-age directive of a Cache-Control value, or 0.
func parseMaxAge(cacheControl string) int64 {
	for _, token := range strings.Split(strings.ToLower(cacheControl), ",") {
		token = strings.TrimSpace(token)
		if !strings.HasPrefix(token, maxAgeDirective) {
			continue
		}
		v, err := strconv.ParseInt(strings.TrimSpace(token[len(maxAgeDirective):]), 10, 64)
		if err != nil {
			return 0
		}
		return v
	}
	return 0
}
