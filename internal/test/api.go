package test

import (
	"Hearth/pkg/log"
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Format of Request helper ExecuteAPITest() handles
type RequestAPITest struct {
	Method       string            // Method of API request - [GET, POST, PUT, DELETE . . .]
	Path         string            // API Path
	Body         []byte            // Request Body
	WantResponse []int             // Expected Response according to request
	Headers      map[string]string // Request headers
}

// Helper to execute API tests in Hearth, returns the recorded response for further assertions.
func ExecuteAPITest(logger log.Logger, t *testing.T, router *gin.Engine, request RequestAPITest) *httptest.ResponseRecorder {
	t.Helper()
	// Setup the test request
	req, reqerr := http.NewRequest(request.Method, request.Path, bytes.NewReader(request.Body))
	require.NoError(t, reqerr)
	for key, val := range request.Headers {
		req.Header.Set(key, val)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	logger.Debug().Str("path", request.Path).Int("status", w.Code).Msg("API test request served")
	// Assert the response
	assert.Contains(t, request.WantResponse, w.Code)
	return w
}
