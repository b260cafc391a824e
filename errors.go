package sprest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for common SharePoint failure conditions.
// A *RequestError matches the sentinel for its status code under errors.Is().
var (
	// ErrBadRequest indicates SharePoint rejected the request as malformed.
	// Returned for HTTP 400.
	ErrBadRequest = errors.New("sprest: bad request")

	// ErrUnauthorized indicates missing or expired credentials.
	// Returned for HTTP 401.
	ErrUnauthorized = errors.New("sprest: unauthorized")

	// ErrForbidden indicates the caller lacks permission on the resource.
	// Returned for HTTP 403.
	ErrForbidden = errors.New("sprest: forbidden")

	// ErrNotFound indicates the list, item, file or user does not exist.
	// Returned for HTTP 404.
	ErrNotFound = errors.New("sprest: not found")

	// ErrConflict indicates a conflict such as a file that already exists.
	// Returned for HTTP 409.
	ErrConflict = errors.New("sprest: conflict")

	// ErrPreconditionFailed indicates the If-Match ETag no longer matches.
	// Returned for HTTP 412.
	ErrPreconditionFailed = errors.New("sprest: precondition failed")

	// ErrThrottled indicates SharePoint is throttling the caller.
	// Returned for HTTP 429 and 503.
	ErrThrottled = errors.New("sprest: throttled")

	// ErrServer indicates an unexpected server-side failure.
	// Returned for other 5xx statuses.
	ErrServer = errors.New("sprest: server error")

	// ErrUnexpectedResponse indicates a response body that could not be decoded.
	ErrUnexpectedResponse = errors.New("sprest: unexpected response")
)

// RequestError is the structured failure of a single REST call. It carries
// the HTTP status and the error SharePoint reported in its response body.
//
// Example usage:
//
//	item, err := client.FetchListItemByID(ctx, "Tasks", 7)
//	var reqErr *sprest.RequestError
//	if errors.As(err, &reqErr) {
//	    log.Printf("sharepoint said %s (%d)", reqErr.Message, reqErr.StatusCode)
//	}
type RequestError struct {
	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Code is SharePoint's error code, e.g. "-2130575322, Microsoft.SharePoint.SPException".
	Code string

	// Message is the human-readable error text.
	Message string

	// Method and URL identify the failed request.
	Method string
	URL    string

	// Err is the underlying error, if any (transport or decode failure).
	Err error
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	parts := []string{"sprest"}
	if e.Method != "" {
		parts = append(parts, e.Method+" "+e.URL)
	}
	msg := e.Message
	if msg == "" && e.StatusCode != 0 {
		msg = http.StatusText(e.StatusCode)
	}
	switch {
	case e.StatusCode != 0:
		parts = append(parts, strings.TrimSpace(fmt.Sprintf("%d %s", e.StatusCode, msg)))
	case msg != "":
		parts = append(parts, msg)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

// Unwrap implements error unwrapping for errors.Is() and errors.As().
func (e *RequestError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's status code.
func (e *RequestError) Is(target error) bool {
	sentinel := sentinelForStatus(e.StatusCode)
	return sentinel != nil && sentinel == target
}

func sentinelForStatus(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusPreconditionFailed:
		return ErrPreconditionFailed
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return ErrThrottled
	}
	if status >= 500 {
		return ErrServer
	}
	return nil
}

// verboseError is the odata=verbose error envelope:
//
//	{"error":{"code":"...","message":{"lang":"en-US","value":"..."}}}
type verboseError struct {
	Error struct {
		Code    string `json:"code"`
		Message struct {
			Lang  string `json:"lang"`
			Value string `json:"value"`
		} `json:"message"`
	} `json:"error"`
}

// newRequestError builds a RequestError from a non-2xx response body.
// Bodies that are not a SharePoint error envelope are kept as the message.
func newRequestError(method, url string, status int, body []byte) *RequestError {
	reqErr := &RequestError{StatusCode: status, Method: method, URL: url}

	var env verboseError
	if err := json.Unmarshal(body, &env); err == nil && (env.Error.Code != "" || env.Error.Message.Value != "") {
		reqErr.Code = env.Error.Code
		reqErr.Message = env.Error.Message.Value
		return reqErr
	}

	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		text = text[:512]
	}
	reqErr.Message = text
	return reqErr
}

// StatusCode returns the HTTP status carried by err, or 0 if err is not a
// *RequestError.
func StatusCode(err error) int {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}

// IsNotFoundError returns true if the error indicates a missing resource.
//
// Example usage:
//
//	list, err := client.FetchList(ctx, "Archive")
//	if sprest.IsNotFoundError(err) {
//	    return nil, nil // list not provisioned on this site
//	}
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsThrottledError returns true if SharePoint asked the caller to back off.
func IsThrottledError(err error) bool {
	return errors.Is(err, ErrThrottled)
}
