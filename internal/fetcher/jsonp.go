package fetcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
)

// callbackPattern matches callbackName( ... ) with an optional trailing
// semicolon. The callback name varies per request.
var callbackPattern = regexp.MustCompile(`(?s)^\s*[A-Za-z_$][\w$.]*\s*\((.*)\)\s*;?\s*$`)

var (
	errEmptyBody   = errors.New("empty response body")
	errNoCallback  = errors.New("response is not wrapped in a callback")
	errInvalidJSON = errors.New("callback argument is not valid json")
)

// UnwrapJSONP strips a JSONP callback wrapper and returns the inner JSON. A
// body without the wrapper is rejected, bare JSON included.
func UnwrapJSONP(body []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, errEmptyBody
	}
	m := callbackPattern.FindSubmatch(trimmed)
	if m == nil {
		return nil, errNoCallback
	}
	inner := bytes.TrimSpace(m[1])
	if !json.Valid(inner) {
		return nil, errInvalidJSON
	}
	return json.RawMessage(inner), nil
}
