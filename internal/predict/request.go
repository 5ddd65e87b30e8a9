// Package predict validates intake vitals and forwards them to the external
// prediction service.
package predict

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Mode selects how a field counts as missing.
type Mode string

const (
	// ModePresence treats only absent and null fields as missing.
	ModePresence Mode = "presence"
	// ModeTruthy also treats 0, "" and false as missing. This rejects a
	// legitimate reading of zero and exists for compatibility only.
	ModeTruthy Mode = "truthy"
)

// ParseMode maps a config value to a Mode. Empty means presence.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(s)) {
	case "", ModePresence:
		return ModePresence, nil
	case ModeTruthy:
		return ModeTruthy, nil
	default:
		return "", fmt.Errorf("predict: unknown validation mode %q", s)
	}
}

// Request is the inbound body. Each field is kept raw because callers send
// both numbers and numeric strings.
type Request struct {
	Age           json.RawMessage `json:"age"`
	BloodPressure json.RawMessage `json:"blood_pressure"`
	Cholesterol   json.RawMessage `json:"cholesterol"`
	Glucose       json.RawMessage `json:"glucose"`
}

// Payload is what the prediction service receives.
type Payload struct {
	Age           int64 `json:"age"`
	BloodPressure int64 `json:"blood_pressure"`
	Cholesterol   int64 `json:"cholesterol"`
	Glucose       int64 `json:"glucose"`
}

type field struct {
	name string
	raw  json.RawMessage
	dst  *int64
}

func (r *Request) fields(p *Payload) []field {
	return []field{
		{"age", r.Age, &p.Age},
		{"blood_pressure", r.BloodPressure, &p.BloodPressure},
		{"cholesterol", r.Cholesterol, &p.Cholesterol},
		{"glucose", r.Glucose, &p.Glucose},
	}
}

// Validate checks that every field is present under mode and coerces each
// to an integer. Missing fields are reported before unparsable ones.
func (r *Request) Validate(mode Mode) (Payload, error) {
	var p Payload
	fields := r.fields(&p)

	for _, f := range fields {
		if missing(f.raw, mode) {
			return Payload{}, missingFields()
		}
	}
	for _, f := range fields {
		n, ok := coerce(f.raw)
		if !ok {
			return Payload{}, invalidField(f.name)
		}
		*f.dst = n
	}
	return p, nil
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

func missing(raw json.RawMessage, mode Mode) bool {
	if isNull(raw) {
		return true
	}
	if mode != ModeTruthy {
		return false
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return !x
	case float64:
		return x == 0
	case string:
		return x == ""
	}
	return false
}

// coerce converts a JSON number or numeric string to an integer. Strings are
// read like a base-10 parseInt: leading space and sign, then as many digits as
// follow. Numbers are truncated toward zero.
func coerce(raw json.RawMessage) (int64, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return 0, false
	}
	switch x := v.(type) {
	case string:
		return parseLeadingInt(x)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return n, true
		}
		f, err := x.Float64()
		if err != nil || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
			return 0, false
		}
		return int64(math.Trunc(f)), true
	}
	return 0, false
}

func parseLeadingInt(s string) (int64, bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	digits := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == digits {
		return 0, false
	}
	n, err := strconv.ParseInt(s[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
