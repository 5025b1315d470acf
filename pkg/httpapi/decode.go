package httpapi

import (
	"encoding/json"
	"net/http"
)

// Bodies are small evaluation contexts; cap them to keep the decoder from
// reading unbounded input.
const maxBodyBytes = 1 << 20

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	return dec.Decode(dst)
}
