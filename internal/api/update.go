package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/cmdpanel/internal/api/models"
	"github.com/smazurov/cmdpanel/internal/updater"
	"github.com/smazurov/cmdpanel/internal/version"
)

// registerVersionRoute registers the build information endpoint.
func (s *Server) registerVersionRoute() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(_ context.Context, _ *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{Body: models.VersionData{
			Version:   info.Version,
			GitCommit: info.GitCommit,
			BuildDate: info.BuildDate,
			BuildID:   info.BuildID,
			GoVersion: info.GoVersion,
			Compiler:  info.Compiler,
			Platform:  info.Platform,
		}}, nil
	})
}

// updateAction is a POST endpoint that replaces or restarts the binary and
// answers with a message.
type updateAction struct {
	id, path, summary, desc string
	errors                  []int
	done                    string
	run                     func(updater.Service, context.Context) error
}

var updateActions = []updateAction{
	{
		id: "apply-update", path: "/api/update/apply", summary: "Apply Update",
		desc:   "Download and install the newest release. Running commands are stopped by the restart.",
		errors: []int{400, 401, 404, 409, 500},
		done:   "Update applied, restarting...",
		run:    updater.Service.ApplyUpdate,
	},
	{
		id: "rollback-update", path: "/api/update/rollback", summary: "Rollback Update",
		desc:   "Reinstall the binary saved by the last update and restart.",
		errors: []int{401, 404, 500},
		done:   "Rollback complete, restarting...",
		run:    updater.Service.Rollback,
	},
	{
		id: "restart-service", path: "/api/update/restart", summary: "Restart Service",
		desc:   "Restart cmdpanel. Running commands are stopped first.",
		errors: []int{401, 500, 503},
		done:   "Restarting...",
		run:    updater.Service.Restart,
	},
}

// registerUpdateRoutes registers the self-update endpoints. A disabled
// updater keeps the routes but answers 503 so clients can tell it apart
// from a missing feature.
func (s *Server) registerUpdateRoutes() {
	svc := s.options.UpdateService
	if svc == nil {
		return
	}
	if !svc.IsEnabled() {
		s.registerDisabledUpdateRoutes(svc.DisabledReason())
		return
	}

	huma.Register(s.api, updateOperation("check-updates", http.MethodGet, "/api/update/check",
		"Check for Updates", "Check whether a newer release exists without downloading it",
		[]int{401, 404, 409, 500}),
		func(ctx context.Context, _ *struct{}) (*models.UpdateCheckResponse, error) {
			info, err := svc.CheckForUpdate(ctx)
			if err != nil {
				return nil, mapUpdateError(err)
			}
			return &models.UpdateCheckResponse{Body: models.UpdateCheckData(*info)}, nil
		})

	huma.Register(s.api, updateOperation("get-update-status", http.MethodGet, "/api/update/status",
		"Get Update Status", "Get the updater state, the pending version and backup availability",
		[]int{401}),
		func(ctx context.Context, _ *struct{}) (*models.UpdateStatusResponse, error) {
			st := svc.GetStatus(ctx)
			body := models.UpdateStatusData{
				State:           string(st.State),
				CurrentVersion:  st.CurrentVersion,
				TargetVersion:   st.TargetVersion,
				Progress:        st.Progress,
				Error:           st.Error,
				LastChecked:     st.LastChecked,
				BackupAvailable: st.BackupAvailable,
				BackupVersion:   st.BackupVersion,
			}
			return &models.UpdateStatusResponse{Body: body}, nil
		})

	for _, a := range updateActions {
		huma.Register(s.api, updateOperation(a.id, http.MethodPost, a.path, a.summary, a.desc, a.errors),
			func(ctx context.Context, _ *struct{}) (*models.MessageResponse, error) {
				if err := a.run(svc, ctx); err != nil {
					return nil, mapUpdateError(err)
				}
				return models.NewMessage(a.done), nil
			})
	}
}

func (s *Server) registerDisabledUpdateRoutes(reason string) {
	unavailable := func(_ context.Context, _ *struct{}) (*struct{}, error) {
		return nil, huma.Error503ServiceUnavailable("Update service disabled: " + reason)
	}

	register := func(id, method, path, summary string) {
		huma.Register(s.api, updateOperation(id, method, path, summary, summary+" (disabled)", []int{401, 503}), unavailable)
	}
	register("check-updates", http.MethodGet, "/api/update/check", "Check for Updates")
	register("get-update-status", http.MethodGet, "/api/update/status", "Get Update Status")
	for _, a := range updateActions {
		register(a.id, http.MethodPost, a.path, a.summary)
	}
}

func updateOperation(id, method, path, summary, desc string, errs []int) huma.Operation {
	return huma.Operation{
		OperationID: id,
		Method:      method,
		Path:        path,
		Summary:     summary,
		Description: desc,
		Tags:        []string{"update"},
		Errors:      errs,
		Security:    withAuth(),
	}
}

var updateErrorStatus = map[updater.Code]int{
	updater.ErrCodeInvalidState: http.StatusConflict,
	updater.ErrCodeNoUpdate:     http.StatusBadRequest,
	updater.ErrCodeNotFound:     http.StatusNotFound,
	updater.ErrCodeNoBackup:     http.StatusNotFound,
	updater.ErrCodeDisabled:     http.StatusServiceUnavailable,
}

// mapUpdateError converts updater errors to Huma HTTP errors. Causes are not
// exposed to clients; they are in the update status.
func mapUpdateError(err error) error {
	var updateErr *updater.Error
	if !errors.As(err, &updateErr) {
		return huma.Error500InternalServerError(err.Error())
	}
	status, ok := updateErrorStatus[updateErr.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return huma.NewError(status, updateErr.Message)
}
