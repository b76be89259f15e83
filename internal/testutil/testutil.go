package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
)

// ValidISBN13 and ValidISBN10 are the same edition in both formats.
const (
	ValidISBN13 = "9780306406157"
	ValidISBN10 = "0306406152"
)

// NewRequest creates a new HTTP request for testing
func NewRequest(method, path string, body interface{}) *http.Request {
	var bodyBytes []byte
	if body != nil {
		bodyBytes, _ = json.Marshal(body)
	}
	var r *http.Request
	if bodyBytes != nil {
		r = httptest.NewRequest(method, path, bytes.NewReader(bodyBytes))
		r.Header.Set("Content-Type", "application/json")
	} else {
		r = httptest.NewRequest(method, path, nil)
	}
	return r
}

// NewFormRequest creates a urlencoded form request
func NewFormRequest(method, path string, values url.Values) *http.Request {
	r := httptest.NewRequest(method, path, strings.NewReader(values.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

// FileField is a file part of a multipart request.
type FileField struct {
	Name        string
	Filename    string
	ContentType string
	Content     []byte
}

// NewMultipartRequest creates a multipart/form-data request carrying values
// and an optional file.
func NewMultipartRequest(method, path string, values url.Values, file *FileField) *http.Request {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, vs := range values {
		for _, v := range vs {
			_ = mw.WriteField(key, v)
		}
	}
	if file != nil {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", `form-data; name="`+file.Name+`"; filename="`+file.Filename+`"`)
		if file.ContentType != "" {
			header.Set("Content-Type", file.ContentType)
		}
		part, _ := mw.CreatePart(header)
		_, _ = part.Write(file.Content)
	}
	_ = mw.Close()

	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return r
}

// RecordResponse records the HTTP response for testing
type RecordResponse struct {
	Code   int
	Header http.Header
	Body   map[string]interface{}
}

// RecordHTTPResponse records the HTTP response
func RecordHTTPResponse(w *httptest.ResponseRecorder) RecordResponse {
	result := w.Result()
	defer result.Body.Close()

	bodyBytes, _ := io.ReadAll(result.Body)

	var bodyMap map[string]interface{}
	if len(bodyBytes) > 0 {
		_ = json.NewDecoder(bytes.NewReader(bodyBytes)).Decode(&bodyMap)
	}

	return RecordResponse{
		Code:   result.StatusCode,
		Header: result.Header,
		Body:   bodyMap,
	}
}

// Data returns the "data" member of the envelope as an object.
func (r RecordResponse) Data() map[string]interface{} {
	data, _ := r.Body["data"].(map[string]interface{})
	return data
}

// Meta returns the "meta" member of the envelope.
func (r RecordResponse) Meta() map[string]interface{} {
	meta, _ := r.Body["meta"].(map[string]interface{})
	return meta
}

// ErrorCode returns error.code, or "" for a success envelope.
func (r RecordResponse) ErrorCode() string {
	e, _ := r.Body["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

// ErrorDetails flattens error.details into field -> message.
func (r RecordResponse) ErrorDetails() map[string]string {
	out := map[string]string{}
	e, _ := r.Body["error"].(map[string]interface{})
	details, _ := e["details"].([]interface{})
	for _, d := range details {
		m, _ := d.(map[string]interface{})
		field, _ := m["field"].(string)
		msg, _ := m["message"].(string)
		out[field] = msg
	}
	return out
}

// AssertResponseCode checks if the response code matches expected
func AssertResponseCode(t interface {
	Errorf(format string, args ...any)
}, got, want int) {
	if got != want {
		t.Errorf("got status code %d, want %d", got, want)
	}
}

// AssertResponseBody checks if the response body contains expected field
func AssertResponseBody(t interface {
	Errorf(format string, args ...any)
}, body map[string]interface{}, key string, expectedValue interface{}) {
	value, ok := body[key]
	if !ok {
		t.Errorf("response body missing key %q", key)
		return
	}
	if value != expectedValue {
		t.Errorf("got %v for key %q, want %v", value, key, expectedValue)
	}
}
