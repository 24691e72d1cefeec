package httpapi

import (
	"encoding/json"
	"errors"
	"mime"
	"strconv"
)

const (
	contentTypeJSON   = "application/json"
	contentTypeText   = "text/plain; charset=utf-8"
	contentTypeBinary = "application/octet-stream"
)

var errInvalidJSON = errors.New("body is not valid JSON")

// encodeValue renders a cached value for a response body. Values stored over
// HTTP come back in the form they were sent; values stored by in-process
// callers are formatted by type.
func encodeValue(value any) ([]byte, string, error) {
	switch v := value.(type) {
	case json.RawMessage:
		return v, contentTypeJSON, nil
	case string:
		return []byte(v), contentTypeText, nil
	case []byte:
		return v, contentTypeBinary, nil
	case int:
		return []byte(strconv.Itoa(v)), contentTypeText, nil
	case int32:
		return []byte(strconv.FormatInt(int64(v), 10)), contentTypeText, nil
	case int64:
		return []byte(strconv.FormatInt(v, 10)), contentTypeText, nil
	case float32:
		return []byte(strconv.FormatFloat(float64(v), 'f', -1, 32)), contentTypeText, nil
	case float64:
		return []byte(strconv.FormatFloat(v, 'f', -1, 64)), contentTypeText, nil
	case bool:
		return []byte(strconv.FormatBool(v)), contentTypeText, nil
	default:
		data, err := json.Marshal(v)
		return data, contentTypeJSON, err
	}
}

// decodeValue turns a request body into the value to store. JSON bodies are
// validated and kept verbatim, octet streams stay bytes, anything else is
// stored as a string.
func decodeValue(body []byte, contentType string) (any, error) {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = ""
	}
	switch mediaType {
	case contentTypeJSON:
		if !json.Valid(body) {
			return nil, errInvalidJSON
		}
		return json.RawMessage(body), nil
	case contentTypeBinary:
		return body, nil
	default:
		return string(body), nil
	}
}
