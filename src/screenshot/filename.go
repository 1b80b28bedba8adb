package screenshot

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is appended to descriptions when timestamps are enabled.
const TimestampLayout = "20060102_150405"

// NameParts are the inputs of the screenshot filename policy.
type NameParts struct {
	CaseName    string
	Counter     int
	Description string
	Timestamp   time.Time // zero means no timestamp
	Suffix      string    // monitor_{n} or all_monitors
}

// StampDescription appends the formatted timestamp to description.
func StampDescription(description string, ts time.Time) string {
	if ts.IsZero() {
		return description
	}
	return description + "_" + ts.Format(TimestampLayout)
}

// unsafeChars covers path separators and the characters Windows rejects in
// file names.
var unsafeChars = strings.NewReplacer(
	" ", "_", "/", "_", `\`, "_", ":", "_", "*", "_",
	"?", "_", `"`, "_", "<", "_", ">", "_", "|", "_",
)

// FileName builds {case}_{counter}_{description}[_{timestamp}]_{suffix}.png.
// Spaces, path separators and reserved characters become underscores so the
// file always lands directly in the output folder.
func FileName(p NameParts) string {
	base := fmt.Sprintf("%s_%d_%s", p.CaseName, p.Counter, StampDescription(p.Description, p.Timestamp))
	return sanitizeName(base + "_" + p.Suffix + ".png")
}

func sanitizeName(name string) string {
	name = unsafeChars.Replace(name)
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return '_'
		}
		return r
	}, name)
}
