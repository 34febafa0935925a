package counting

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	prefixItem    = "count"
	prefixSession = "session"
	prefixArea    = "area"

	suffixLen = 9
)

// newID returns "<prefix>-<unix ms>-<base36 suffix>"
func newID(prefix string, now time.Time) string {
	u := uuid.New()
	suffix := strconv.FormatUint(binary.BigEndian.Uint64(u[:8]), 36)
	if len(suffix) > suffixLen {
		suffix = suffix[len(suffix)-suffixLen:]
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.UnixMilli(), suffix)
}

// isLocalAreaID reports whether an area id was minted on this device and has
// no backend counterpart yet.
func isLocalAreaID(id string) bool {
	return strings.HasPrefix(id, prefixArea+"-")
}
