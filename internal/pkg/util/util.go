package util

import (
	"fmt"
	"time"
)

// GenerateTimestampWithPrefix builds a human traceable identifier such as
// "NPO-1716012345678901234". Uniqueness for externally issued ids is enforced
// by database constraints, not by this helper.
func GenerateTimestampWithPrefix(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
