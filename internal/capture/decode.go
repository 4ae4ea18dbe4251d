package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMalformed is returned for records that cannot be turned into an Error.
var ErrMalformed = errors.New("malformed captured error")

// Raw is the wire shape delivered by the interception shim. Fields are kept
// loose because the shim serializes whatever the page handed it.
type Raw struct {
	Type      any `json:"type"`
	Message   any `json:"message"`
	File      any `json:"file"`
	Line      any `json:"line"`
	Column    any `json:"column"`
	Stack     any `json:"stack"`
	Timestamp any `json:"timestamp"`
}

// Decode parses one JSON record into a normalized Error.
func Decode(b []byte) (Error, error) {
	r, err := DecodeRaw(b)
	if err != nil {
		return Error{}, err
	}
	return Normalize(r, time.Now()), nil
}

// DecodeRaw parses one JSON record without normalizing it.
func DecodeRaw(b []byte) (Raw, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return Raw{}, ErrMalformed
	}
	var r Raw
	if err := json.Unmarshal(b, &r); err != nil {
		return Raw{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r, nil
}

// Normalize coerces a Raw record. A missing message becomes "", an unknown
// type becomes TypeUnknown and a missing timestamp becomes now.
func Normalize(r Raw, now time.Time) Error {
	e := Error{
		Type:    ParseType(asString(r.Type)),
		Message: asString(r.Message),
		File:    asString(r.File),
		Line:    asInt(r.Line),
		Column:  asInt(r.Column),
		Stack:   asString(r.Stack),
	}
	if ts := asInt64(r.Timestamp); ts > 0 {
		e.Timestamp = ts
	} else {
		e.Timestamp = now.UnixMilli()
	}
	return e
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

func asInt64(v any) int64 {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return int64(x)
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func asInt(v any) int {
	n := asInt64(v)
	if n < 0 || n > math.MaxInt32 {
		return 0
	}
	return int(n)
}
