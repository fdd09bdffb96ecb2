package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smazurov/cmdpanel/internal/events"
	"github.com/smazurov/cmdpanel/internal/updater"
)

type fakeUpdater struct {
	reason     string
	applyErr   error
	rollbacks  atomic.Int32
	restarts   atomic.Int32
	lastStatus updater.Status
}

func (f *fakeUpdater) CheckForUpdate(context.Context) (*updater.UpdateInfo, error) {
	return &updater.UpdateInfo{CurrentVersion: "v1.0.0", LatestVersion: "v1.1.0", UpdateAvailable: true}, nil
}

func (f *fakeUpdater) ApplyUpdate(context.Context) error { return f.applyErr }

func (f *fakeUpdater) Rollback(context.Context) error {
	f.rollbacks.Add(1)
	return nil
}

func (f *fakeUpdater) GetStatus(context.Context) *updater.Status {
	st := f.lastStatus
	return &st
}

func (f *fakeUpdater) Restart(context.Context) error {
	f.restarts.Add(1)
	return nil
}

func (f *fakeUpdater) IsEnabled() bool        { return f.reason == "" }
func (f *fakeUpdater) DisabledReason() string { return f.reason }

func newUpdateEnv(t *testing.T, up updater.Service) *testEnv {
	t.Helper()
	env := &testEnv{svc: newFakeCommandService(), bus: events.New()}
	env.ts = httptest.NewServer(NewServer(&Options{
		CommandService: env.svc,
		EventBus:       env.bus,
		UpdateService:  up,
	}).Handler())
	t.Cleanup(env.ts.Close)
	return env
}

func TestUpdateRoutes(t *testing.T) {
	up := &fakeUpdater{lastStatus: updater.Status{State: updater.StateAvailable, TargetVersion: "v1.1.0"}}
	env := newUpdateEnv(t, up)

	resp, body := env.do(t, http.MethodGet, "/api/update/check", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "v1.1.0", body["latest_version"])
	assert.Equal(t, true, body["update_available"])

	resp, body = env.do(t, http.MethodGet, "/api/update/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "available", body["state"])

	resp, body = env.do(t, http.MethodPost, "/api/update/rollback", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Rollback complete, restarting...", body["message"])
	assert.Equal(t, int32(1), up.rollbacks.Load())

	resp, _ = env.do(t, http.MethodPost, "/api/update/restart", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), up.restarts.Load())
}

func TestUpdateApplyErrorStatus(t *testing.T) {
	up := &fakeUpdater{applyErr: &updater.Error{Code: updater.ErrCodeNoUpdate, Message: "already running v1.0.0"}}
	env := newUpdateEnv(t, up)

	resp, body := env.do(t, http.MethodPost, "/api/update/apply", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "already running v1.0.0", body["detail"])
}

func TestDisabledUpdateRoutes(t *testing.T) {
	env := newUpdateEnv(t, &fakeUpdater{reason: "read-only filesystem"})

	for _, path := range []string{"/api/update/apply", "/api/update/rollback", "/api/update/restart"} {
		resp, body := env.do(t, http.MethodPost, path, nil)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
		assert.Contains(t, body["detail"], "read-only filesystem")
	}
	resp, _ := env.do(t, http.MethodGet, "/api/update/status", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMapUpdateError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&updater.Error{Code: updater.ErrCodeInvalidState}, http.StatusConflict},
		{&updater.Error{Code: updater.ErrCodeNoBackup}, http.StatusNotFound},
		{&updater.Error{Code: updater.ErrCodeDisabled}, http.StatusServiceUnavailable},
		{&updater.Error{Code: updater.ErrCodeApplyFailed}, http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var se interface{ GetStatus() int }
		require.ErrorAs(t, mapUpdateError(tt.err), &se)
		assert.Equal(t, tt.status, se.GetStatus(), tt.err.Error())
	}
}
