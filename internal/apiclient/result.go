package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Result is the normalized {status, data, message} shape every store reads.
type Result struct {
	Status  bool
	Data    json.RawMessage
	Message string
	Code    int
}

// ErrNoData is returned by Decode when the response carried no payload.
var ErrNoData = errors.New("apiclient: empty response data")

// Decode unmarshals the `data` member of the envelope, or the whole envelope
// when the server answered without one. An empty object or null data is
// ErrNoData.
func (r Result) Decode(out any) error {
	if len(r.Data) == 0 {
		return ErrNoData
	}
	var env map[string]json.RawMessage
	if err := json.Unmarshal(r.Data, &env); err == nil {
		if len(env) == 0 {
			return ErrNoData
		}
		if inner, ok := env["data"]; ok {
			if string(inner) == "null" {
				return ErrNoData
			}
			return unmarshal(inner, out)
		}
	}
	return unmarshal(r.Data, out)
}

func unmarshal(raw json.RawMessage, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("apiclient: decode response: %w", err)
	}
	return nil
}

// normalize strips the `status` member from the body and decides success:
// any 2xx whose body does not carry `"status": false`.
func normalize(code int, raw []byte) Result {
	res := Result{Code: code}
	ok := code >= 200 && code <= 299

	var env map[string]json.RawMessage
	if len(raw) > 0 && json.Unmarshal(raw, &env) == nil && env != nil {
		if status, present := env["status"]; present {
			var flag bool
			if json.Unmarshal(status, &flag) == nil && !flag {
				ok = false
			}
			if !ok {
				var text string
				if json.Unmarshal(status, &text) == nil {
					res.Message = text
				}
			}
			delete(env, "status")
		}
		for _, key := range []string{"message", "msg", "error"} {
			var text string
			if v, present := env[key]; present && json.Unmarshal(v, &text) == nil && text != "" {
				res.Message = text
				break
			}
		}
		res.Data, _ = json.Marshal(env)
	} else if len(raw) > 0 && ok {
		res.Data = append(json.RawMessage(nil), raw...)
	} else if len(raw) > 0 {
		msg := string(raw)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		res.Message = msg
	}

	if !ok && res.Message == "" {
		res.Message = http.StatusText(code)
	}
	res.Status = ok
	return res
}
