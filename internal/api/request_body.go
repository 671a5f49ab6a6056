package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// maxJSONBodyBytes leaves room for a maximal command plus JSON escaping.
const maxJSONBodyBytes int64 = 4 * maxCommandBytes

var (
	errEmptyBody    = errors.New("request body is empty")
	errTrailingData = errors.New("request body must hold a single JSON object")
)

// decodeJSONBody reads exactly one JSON value from a size-capped body.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if dec.More() {
		return errTrailingData
	}
	return nil
}
