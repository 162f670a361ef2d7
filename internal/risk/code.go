package risk

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newSignalCode builds a signal code like SIG08311245A3F1: a fixed
// prefix, the UTC month/day/hour/minute, and four hex characters from
// a fresh UUID for uniqueness within the minute.
func newSignalCode(ts time.Time) string {
	frag := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("SIG%s%s", ts.UTC().Format("01021504"), frag)
}
