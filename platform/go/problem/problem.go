// Package problem renders RFC 7807 application/problem+json error bodies.
package problem

import (
	"encoding/json"
	"net/http"
)

// Details is the wire shape of an error response.
type Details struct {
	Type   *string              `json:"type,omitempty"`
	Title  string               `json:"title"`
	Status int                  `json:"status"`
	Detail *string              `json:"detail,omitempty"`
	Errors *map[string][]string `json:"errors,omitempty"`
}

// Build assembles a Details value, omitting empty optional members.
func Build(title, detail, problemType string, status int, fieldErrors map[string][]string) Details {
	d := Details{
		Title:  title,
		Status: status,
	}

	if detail != "" {
		d.Detail = &detail
	}
	if problemType != "" {
		d.Type = &problemType
	}
	if len(fieldErrors) > 0 {
		copied := make(map[string][]string, len(fieldErrors))
		for field, messages := range fieldErrors {
			copied[field] = append([]string(nil), messages...)
		}
		d.Errors = &copied
	}

	return d
}

// Render writes the problem document with the proper content type.
func Render(w http.ResponseWriter, d Details) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(d.Status)
	_ = json.NewEncoder(w).Encode(d)
}
