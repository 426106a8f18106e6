package middleware

import (
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"syscall"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storeledger/internal/core/apperror"
)

type recordingPanics struct{ routes []string }

func (p *recordingPanics) ObservePanic(route string) {
	p.routes = append(p.routes, route)
}

func panicRouter(obs PanicObserver, value any) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(ErrorHandler(), Recovery(obs))
	r.GET("/receipts/:id", func(*gin.Context) { panic(value) })
	return r
}

func TestRecovery_PanicBecomesInternalError(t *testing.T) {
	obs := &recordingPanics{}
	r := panicRouter(obs, "nil settlement")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/receipts/42", nil))

	require.Equal(t, http.StatusInternalServerError, w.Code)
	payload := decodeError(t, w)
	assert.Equal(t, apperror.CodeInternal, payload.Code)
	assert.NotContains(t, w.Body.String(), "nil settlement", "panic text stays in the logs")
	assert.Equal(t, []string{"/receipts/:id"}, obs.routes)
}

func TestRecovery_ClientHangUpIsNotAnError(t *testing.T) {
	obs := &recordingPanics{}
	brokenPipe := &net.OpError{Op: "write", Net: "tcp", Err: &os.SyscallError{Syscall: "write", Err: syscall.EPIPE}}
	r := panicRouter(obs, brokenPipe)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/receipts/42", nil))

	assert.Empty(t, obs.routes)
	assert.Empty(t, w.Body.String())
}

func TestRecovery_NilObserver(t *testing.T) {
	r := panicRouter(nil, "boom")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/receipts/42", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
