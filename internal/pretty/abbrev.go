// Package pretty has formatting helpers for logs and error messages.
package pretty

import (
	"fmt"
	"unicode/utf8"
)

// Abbrev returns s as a Stringer that is cut down to CutTo runes, followed by
// an ellipsis, when it is longer than MaxLen runes. Ranges are (MaxLen,
// CutTo) or a single value for both, defaulting to 12.
func Abbrev(s string, ranges ...int) Abbreviated {
	MaxLen := 12
	CutTo := 12
	if len(ranges) >= 2 {
		MaxLen, CutTo = ranges[0], ranges[1]
	} else if len(ranges) == 1 {
		MaxLen, CutTo = ranges[0], ranges[0]
	}
	return Abbreviated{
		Original: s,
		MaxLen:   MaxLen,
		CutTo:    CutTo,
	}
}

type Abbreviated struct {
	Original string
	MaxLen   int
	CutTo    int
}

func (s Abbreviated) String() string {
	if utf8.RuneCountInString(s.Original) <= s.MaxLen {
		return s.Original
	}
	n := 0
	for i := range s.Original {
		if n == s.CutTo {
			return fmt.Sprintf("%s…", s.Original[:i])
		}
		n++
	}
	return s.Original
}
