package cache

import (
	"net/http"
	"strconv"
	"time"
)

// Response represents a captured HTTP response as held by a cache store
type Response struct {
	// Status is the HTTP status code of the captured response
	Status int `json:"status"`
	// Header holds the captured response headers
	Header http.Header `json:"header"`
	// Body is the full response body
	Body []byte `json:"body"`
	// Stored is the timestamp for when the response was written to a store
	Stored JSONTime `json:"stored"`
}

// OK reports whether the response carries a 2xx status
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Clone returns a deep copy of the response so a store never shares
// header maps or body buffers with a caller
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	body := make([]byte, len(r.Body))
	copy(body, r.Body)

	return &Response{
		Status: r.Status,
		Header: r.Header.Clone(),
		Body:   body,
		Stored: r.Stored,
	}
}

// JSONTime is a time.Time wrapper that JSON (un)marshals into a unix timestamp
type JSONTime time.Time

// MarshalJSON is used to convert the timestamp to JSON
func (t JSONTime) MarshalJSON() ([]byte, error) {
	unix := time.Time(t).Unix()
	// Negative time stamps make no sense for our use cases
	if unix < 0 {
		unix = 0
	}

	return []byte(strconv.FormatInt(unix, 10)), nil
}

// UnmarshalJSON is used to convert the timestamp from JSON
func (t *JSONTime) UnmarshalJSON(s []byte) (err error) {
	q, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return err
	}
	*(*time.Time)(t) = time.Unix(q, 0)

	return nil
}

// Time returns the JSON time as a time.Time instance
func (t JSONTime) Time() time.Time {
	return time.Time(t)
}

// String returns time as a formatted string
func (t JSONTime) String() string {
	return t.Time().String()
}
