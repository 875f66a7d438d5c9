package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/traafik/auth-svc/internal/model"
)

func TestRecorder_Op(t *testing.T) {
	r := New()

	r.Op("login", nil)
	r.Op("login", model.ErrInvalidCredentials)
	r.Op("login", model.ErrInvalidCredentials)
	r.Op("refresh", errors.New("boom"))

	assert.Equal(t, 1.0, testutil.ToFloat64(r.ops.WithLabelValues("login", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.ops.WithLabelValues("login", "invalid_credentials")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ops.WithLabelValues("refresh", "internal")))
}

func TestRecorder_Sweep(t *testing.T) {
	r := New()

	r.Sweep(3, nil)
	r.Sweep(0, errors.New("db down"))

	assert.Equal(t, 3.0, testutil.ToFloat64(r.swept))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sweeps.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.sweeps.WithLabelValues("error")))
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.Op("login", nil)
		r.Sweep(1, nil)
		r.Event("account.registered", nil)
	})
}

func TestRecorder_Handler(t *testing.T) {
	r := New()
	r.Event("account.registered", nil)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `auth_events_published_total{result="ok",type="account.registered"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
