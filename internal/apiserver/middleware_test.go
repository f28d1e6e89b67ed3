package apiserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/require"

	"github.com/banachtech/orex/internal/store/mock"
)

func newTestServer(t *testing.T, ms *mock.MockStore) *Server {
	gin.SetMode(gin.TestMode)
	return NewServer(ms, NewRunner(ms, t.TempDir(), nil))
}

func TestAuthenticationRejectsMissingHeader(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	server := newTestServer(t, mock.NewMockStore(ctrl))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", nil)
	server.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticationRejectsMalformedKey(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	server := newTestServer(t, mock.NewMockStore(ctrl))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/runs", nil)
	req.Header.Set("Authorization", "bearer no-dot-here")
	server.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestVerifyAPIKeyRejectsWrongSecret(t *testing.T) {
	hash, err := HashAPIKey("s3cret")
	require.NoError(t, err)
	require.False(t, VerifyAPIKey(hash, "wrong"))
	require.True(t, VerifyAPIKey(hash, "s3cret"))
}
