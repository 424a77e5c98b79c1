// Dispatch API tests in Hearth.

package dispatch

import (
	"Hearth/internal/test"
	"Hearth/pkg/log"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

const mockSecret = "MockInternalSecret"

// Helper to build up a mock router instance for testing the dispatch API.
func setupMockRouter(pub Repository) *gin.Engine {
	logger := log.Nop()
	router := test.MockRouter(logger)
	APIHandlers(router, NewService(pub, logger, nil), InternalSecretMiddleware(mockSecret, logger), logger)
	return router
}

func TestDispatchAPI(t *testing.T) {
	validBody := []byte(`{"events":[{"eventName":"MESSAGE_EVENT","payload":` + messagePayload + `,"transmissionType":"broadcast"}]}`)

	cases := []struct {
		name      string
		headers   map[string]string
		body      []byte
		published int
	}{
		{name: "valid secret publishes", headers: map[string]string{InternalSecretHeader: mockSecret}, body: validBody, published: 1},
		{name: "missing secret", body: validBody},
		{name: "wrong secret", headers: map[string]string{InternalSecretHeader: mockSecret + "x"}, body: validBody},
		{name: "malformed body", headers: map[string]string{InternalSecretHeader: mockSecret}, body: []byte(`{"events":`)},
		{name: "events is not a list", headers: map[string]string{InternalSecretHeader: mockSecret}, body: []byte(`{"events":{}}`)},
		{name: "empty list", headers: map[string]string{InternalSecretHeader: mockSecret}, body: []byte(`{"events":[]}`)},
		{
			name:      "one bad event among good ones",
			headers:   map[string]string{InternalSecretHeader: mockSecret},
			body:      []byte(`{"events":[{"eventName":"MESSAGE_EVENT"},{"eventName":"MESSAGE_EVENT","payload":` + messagePayload + `,"transmissionType":"multicast","targetRoles":["USER"]}]}`),
			published: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pub := &fakePublisher{}
			router := setupMockRouter(pub)

			w := test.ExecuteAPITest(log.Nop(), t, router, test.RequestAPITest{
				Method:       http.MethodPost,
				Path:         "/api/internal/events",
				Body:         tc.body,
				Headers:      tc.headers,
				WantResponse: []int{http.StatusNoContent},
			})

			assert.Empty(t, w.Body.String())
			assert.Len(t, pub.channels(), tc.published)
		})
	}
}
