package handler_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
)

var (
	InvalidJSON = `{"invalid": json}`
)

// create JSON request body
func createJSONRequest(data interface{}) *bytes.Buffer {
	if s, ok := data.(string); ok {
		return bytes.NewBufferString(s)
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return bytes.NewBuffer([]byte(""))
	}
	return bytes.NewBuffer(jsonData)
}

// create HTTP request with JSON body and actor header (actor 0 = no header)
func createJSONHTTPRequest(method, url string, data interface{}, actor int64) *http.Request {
	var body *bytes.Buffer
	if data != nil {
		body = createJSONRequest(data)
	} else {
		body = &bytes.Buffer{}
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		return nil
	}
	req.Header.Set("Content-Type", "application/json")
	if actor != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(actor, 10))
	}
	return req
}

// create request whose body length is unknown (Transfer-Encoding: chunked)
func createChunkedHTTPRequest(method, url, body string, actor int64) *http.Request {
	req, err := http.NewRequest(method, url, io.NopCloser(strings.NewReader(body)))
	if err != nil {
		return nil
	}
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	if actor != 0 {
		req.Header.Set("X-User-ID", strconv.FormatInt(actor, 10))
	}
	return req
}
