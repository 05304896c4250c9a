package utils

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

// TestRequest represents a test HTTP request
type TestRequest struct {
	Method string
	Path   string
	Body   interface{}
	// RawBody is sent verbatim instead of marshalling Body
	RawBody []byte
	Headers map[string]string
}

// TestResponse represents a test HTTP response
type TestResponse struct {
	StatusCode int
	Body       map[string]interface{}
}

// Data returns the response's data object, or nil
func (r TestResponse) Data() map[string]interface{} {
	data, _ := r.Body["data"].(map[string]interface{})
	return data
}

// MakeTestRequest makes a test HTTP request
func MakeTestRequest(t *testing.T, router *gin.Engine, req TestRequest) TestResponse {
	t.Helper()

	body := req.RawBody
	if body == nil && req.Body != nil {
		var err error
		body, err = json.Marshal(req.Body)
		if err != nil {
			t.Fatalf("Failed to marshal request body: %v", err)
		}
	}

	httpReq, err := http.NewRequest(req.Method, req.Path, bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httpReq)

	var responseBody map[string]interface{}
	if w.Body.Len() > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &responseBody); err != nil {
			t.Fatalf("Failed to unmarshal response body: %v", err)
		}
	}

	return TestResponse{
		StatusCode: w.Code,
		Body:       responseBody,
	}
}

// AssertResponse asserts the test response
func AssertResponse(t *testing.T, response TestResponse, expectedStatusCode int, expectedBody map[string]interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatusCode, response.StatusCode)
	if expectedBody != nil {
		assert.Equal(t, expectedBody, response.Body)
	}
}

// GetTestAdminToken generates an operator token signed with secret
func GetTestAdminToken(t *testing.T, secret string) string {
	t.Helper()
	token, err := GenerateAdminToken(secret, 1, 0)
	if err != nil {
		t.Fatalf("Failed to generate test admin token: %v", err)
	}
	return token
}
