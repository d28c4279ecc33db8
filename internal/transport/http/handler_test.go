package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enrollsync/internal/reconcile"
	"enrollsync/pkg/domain"
	dErrors "enrollsync/pkg/domain-errors"
)

const testSecret = "hook-secret"

type fakeReconciler struct {
	sweepErr   error
	changeErr  error
	sweeps     []domain.OrgID
	changes    []reconcile.StatusChange
	sweepStats reconcile.SweepResult
}

func (f *fakeReconciler) Sweep(_ context.Context, orgID domain.OrgID) (*reconcile.SweepResult, error) {
	if f.sweepErr != nil {
		return nil, f.sweepErr
	}
	f.sweeps = append(f.sweeps, orgID)
	res := f.sweepStats
	return &res, nil
}

func (f *fakeReconciler) HandleStatusChange(_ context.Context, change reconcile.StatusChange) error {
	if f.changeErr != nil {
		return f.changeErr
	}
	f.changes = append(f.changes, change)
	return nil
}

func newTestRouter(rec *fakeReconciler) http.Handler {
	return NewRouter(RouterConfig{
		Handler:       NewHandler(rec, nil),
		WebhookSecret: testSecret,
	})
}

func authed(req *http.Request) *http.Request {
	req.Header.Set("Authorization", "Bearer "+testSecret)
	return req
}

func TestWebhookSecretRequired(t *testing.T) {
	router := newTestRouter(&fakeReconciler{})

	req := httptest.NewRequest(http.MethodPost, "/sweep/"+domain.NewOrgID().String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealthAndMetricsAreOpen(t *testing.T) {
	router := newTestRouter(&fakeReconciler{})

	for _, path := range []string{"/healthz", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestStatusChangeHook(t *testing.T) {
	t.Run("valid payload dispatches to the reconciler", func(t *testing.T) {
		fake := &fakeReconciler{}
		router := newTestRouter(fake)

		recID := domain.NewRegistrationID()
		body, _ := json.Marshal(map[string]string{
			"registration_id": recID.String(),
			"before":          "pending",
			"after":           "approved",
			"reviewed_by":     "admin@school.example",
			"reviewed_at":     "2025-06-02T09:00:00Z",
		})
		req := authed(httptest.NewRequest(http.MethodPost, "/hooks/registration", bytes.NewReader(body)))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Len(t, fake.changes, 1)
		assert.Equal(t, recID, fake.changes[0].RegistrationID)
		assert.Equal(t, "admin@school.example", fake.changes[0].ReviewedBy)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		router := newTestRouter(&fakeReconciler{})
		req := authed(httptest.NewRequest(http.MethodPost, "/hooks/registration", bytes.NewReader([]byte("{"))))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed registration id is rejected", func(t *testing.T) {
		router := newTestRouter(&fakeReconciler{})
		body, _ := json.Marshal(map[string]string{"registration_id": "nope", "after": "approved"})
		req := authed(httptest.NewRequest(http.MethodPost, "/hooks/registration", bytes.NewReader(body)))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("reconciler error maps to its status", func(t *testing.T) {
		fake := &fakeReconciler{changeErr: dErrors.New(dErrors.CodeUnavailable, "source database down")}
		router := newTestRouter(fake)
		body, _ := json.Marshal(map[string]string{
			"registration_id": domain.NewRegistrationID().String(),
			"after":           "approved",
		})
		req := authed(httptest.NewRequest(http.MethodPost, "/hooks/registration", bytes.NewReader(body)))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestManualSweep(t *testing.T) {
	t.Run("returns the sweep summary", func(t *testing.T) {
		fake := &fakeReconciler{sweepStats: reconcile.SweepResult{Inserted: 2, Deleted: 1}}
		router := newTestRouter(fake)

		orgID := domain.NewOrgID()
		req := authed(httptest.NewRequest(http.MethodPost, "/sweep/"+orgID.String(), nil))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var body map[string]int
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, 2, body["inserted"])
		assert.Equal(t, 1, body["deleted"])
		require.Len(t, fake.sweeps, 1)
		assert.Equal(t, orgID, fake.sweeps[0])
	})

	t.Run("malformed org id is rejected", func(t *testing.T) {
		router := newTestRouter(&fakeReconciler{})
		req := authed(httptest.NewRequest(http.MethodPost, "/sweep/not-a-uuid", nil))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
