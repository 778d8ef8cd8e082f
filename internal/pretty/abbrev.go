// Package pretty formats values for log output.
package pretty

import "fmt"

// DefaultMaxLen is the Abbrev limit when none is given.
const DefaultMaxLen = 256

// Abbrev returns a Stringer that cuts s down to at most maxLen bytes, noting
// how much was dropped. Long payloads stay readable in debug logs.
func Abbrev(s string, maxLen ...int) Abbreviated {
	n := DefaultMaxLen
	if len(maxLen) > 0 && maxLen[0] > 0 {
		n = maxLen[0]
	}
	return Abbreviated{Original: s, MaxLen: n}
}

type Abbreviated struct {
	Original string
	MaxLen   int
}

func (s Abbreviated) String() string {
	if len(s.Original) <= s.MaxLen {
		return s.Original
	}
	return fmt.Sprintf("%s… (%d more bytes)", s.Original[:s.MaxLen], len(s.Original)-s.MaxLen)
}
