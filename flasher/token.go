package flasher

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// varField is the closed set of segment attributes a token may select.
type varField int

const (
	fieldData varField = iota
	fieldAddr
	fieldSize
	fieldChecksum
)

func (f varField) String() string {
	switch f {
	case fieldData:
		return "data"
	case fieldAddr:
		return "addr"
	case fieldSize:
		return "size"
	case fieldChecksum:
		return "checksum"
	default:
		return fmt.Sprintf("field(%d)", int(f))
	}
}

// token is a parsed external-data reference: segment Index of firmware
// File, attribute Field.
type token struct {
	file  string
	field varField
	index int
}

// TokenError describes a malformed external-data token. Resolution treats
// it as a soft failure (the token contributes no bytes); it is surfaced
// through the executor's log stream for visibility.
type TokenError struct {
	Token  string
	Reason string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("invalid token %q: %s", e.Token, e.Reason)
}

// tokenPattern matches "name[index]" with a trailing zero-based index.
var tokenPattern = regexp.MustCompile(`^(.+)\[(\d+)\]$`)

// parseToken parses "<file>_<field>[<index>]". The field suffix is split
// off at the last underscore, so file names may themselves contain
// underscores.
func parseToken(raw string) (token, error) {
	m := tokenPattern.FindStringSubmatch(raw)
	if m == nil {
		return token{}, &TokenError{Token: raw, Reason: "expected name[index]"}
	}
	name, idxStr := m[1], m[2]

	cut := strings.LastIndex(name, "_")
	if cut <= 0 || cut == len(name)-1 {
		return token{}, &TokenError{Token: raw, Reason: "expected <file>_<field> name"}
	}
	file, suffix := name[:cut], name[cut+1:]

	var field varField
	switch suffix {
	case "data":
		field = fieldData
	case "addr":
		field = fieldAddr
	case "size":
		field = fieldSize
	case "checksum":
		field = fieldChecksum
	default:
		return token{}, &TokenError{Token: raw, Reason: fmt.Sprintf("unknown field %q", suffix)}
	}

	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return token{}, &TokenError{Token: raw, Reason: "index is not a number"}
	}

	return token{file: file, field: field, index: idx}, nil
}
