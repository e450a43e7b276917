package http

import (
	"encoding/json"
	"strings"
	"time"
)

// Response is the synchronous answer of the counterpart.
type Response struct {
	StatusCode int
	Status     string
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

// DecodedBody returns the body as JSON when it parses, as a string
// otherwise, and nil when empty.
func (r *Response) DecodedBody() any {
	if len(r.Body) == 0 {
		return nil
	}
	var decoded any
	if err := json.Unmarshal(r.Body, &decoded); err == nil {
		return decoded
	}
	return string(r.Body)
}

// StatusText is the reason phrase without the numeric code.
func (r *Response) StatusText() string {
	if _, text, ok := strings.Cut(r.Status, " "); ok {
		return text
	}
	return r.Status
}

func (r *Response) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// IsSuccess reports a 2xx status. Anything else rejects the request.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
