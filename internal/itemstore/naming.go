package itemstore

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	batchPrefix = "batch_"
	batchSuffix = ".json"
)

// BatchFilename returns the stable file name for batch id, zero padded to
// three digits ("batch_007.json"). Wider ids render in full.
func BatchFilename(id int) string {
	return fmt.Sprintf("%s%03d%s", batchPrefix, id, batchSuffix)
}

// ParseBatchID extracts the id from a name produced by BatchFilename.
func ParseBatchID(name string) (int, bool) {
	if !strings.HasPrefix(name, batchPrefix) || !strings.HasSuffix(name, batchSuffix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(name, batchPrefix), batchSuffix)
	if len(digits) < 3 {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(digits)
	if err != nil || id <= 0 {
		return 0, false
	}
	if BatchFilename(id) != name {
		return 0, false
	}
	return id, true
}
