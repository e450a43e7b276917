package http

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Request is an outbound call. Body is sent verbatim when it is a string
// or []byte and JSON-encoded otherwise.
type Request struct {
	Method      string
	BaseURL     string
	Path        string
	QueryParams map[string]string
	Headers     map[string]string
	Body        any
	Timeout     time.Duration
}

func NewRequest(method, baseURL string) *Request {
	return &Request{
		Method:      method,
		BaseURL:     baseURL,
		Headers:     make(map[string]string),
		QueryParams: make(map[string]string),
	}
}

func (r *Request) SetHeader(key, value string) *Request {
	if r.Headers == nil {
		r.Headers = make(map[string]string)
	}
	r.Headers[key] = value
	return r
}

func (r *Request) SetPath(path string) *Request {
	r.Path = path
	return r
}

func (r *Request) SetBody(body any) *Request {
	r.Body = body
	return r
}

func (r *Request) SetTimeout(d time.Duration) *Request {
	r.Timeout = d
	return r
}

func (r *Request) SetQueryParam(key, value string) *Request {
	if r.QueryParams == nil {
		r.QueryParams = make(map[string]string)
	}
	r.QueryParams[key] = value
	return r
}

// Header returns a header value, matching the key case-insensitively.
func (r *Request) Header(key string) string {
	for k, v := range r.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func (r *Request) BuildURL() string {
	target := strings.TrimSuffix(r.BaseURL, "/")
	if r.Path != "" {
		if !strings.HasPrefix(r.Path, "/") {
			target += "/"
		}
		target += r.Path
	}
	if len(r.QueryParams) == 0 {
		return target
	}

	u, err := url.Parse(target)
	if err != nil {
		return target
	}

	q := u.Query()
	for k, v := range r.QueryParams {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (r *Request) isJSONBody() bool {
	switch r.Body.(type) {
	case string, []byte:
		return false
	}
	return true
}

// EncodeBody returns the wire form of the body, or nil when there is none.
func (r *Request) EncodeBody() ([]byte, error) {
	switch b := r.Body.(type) {
	case nil:
		return nil, nil
	case string:
		if b == "" {
			return nil, nil
		}
		return []byte(b), nil
	case []byte:
		if len(b) == 0 {
			return nil, nil
		}
		return b, nil
	default:
		data, err := encodeJSON(b)
		if err != nil {
			return nil, errors.Wrap(err, "encoding request body")
		}
		return data, nil
	}
}

// Curl renders the request as a curl command line.
func (r *Request) Curl() string {
	var b strings.Builder
	fmt.Fprintf(&b, "curl -X %s '%s'", strings.ToUpper(r.Method), r.BuildURL())

	keys := make([]string, 0, len(r.Headers))
	for k := range r.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " \\\n  -H '%s: %s'", k, shellQuote(r.Headers[k]))
	}

	if data, err := r.EncodeBody(); err == nil && data != nil {
		fmt.Fprintf(&b, " \\\n  -d '%s'", shellQuote(string(data)))
	}
	return b.String()
}

func shellQuote(s string) string {
	return strings.ReplaceAll(s, "'", `'\''`)
}
