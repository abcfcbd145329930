package utils

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const maxBodyBytes = 1 << 20

// DecodeJSONBody decodes the request body into dst, rejecting unknown fields
// and oversized payloads. It returns the HTTP status to respond with on error.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) (int, error) {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		return http.StatusUnsupportedMediaType, fmt.Errorf("Content-Type header is not application/json")
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return http.StatusBadRequest, err
	}

	return http.StatusOK, nil
}
