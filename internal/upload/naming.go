package upload

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapsheets/pkg/directive"
)

// GeneratedRangePrefix starts every system-assigned named range.
const GeneratedRangePrefix = "ls_"

// GeneratedRangeName derives a stable named range name for a destination
// that has none, so repeated exports reuse one range.
func GeneratedRangeName(meta Meta, cfg directive.Config) string {
	key := strings.Join([]string{
		meta.SourcePath,
		cfg.Title,
		cfg.SheetParam(),
		cfg.StartCell,
		strconv.Itoa(meta.BlockStart),
		strconv.Itoa(meta.BlockEnd),
		strconv.Itoa(meta.DestIndex),
	}, "|")
	h := sha256.Sum256([]byte(key))
	return GeneratedRangePrefix + hex.EncodeToString(h[:])[:12]
}
