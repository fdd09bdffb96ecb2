package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/cmdpanel/internal/api/models"
	"github.com/smazurov/cmdpanel/internal/commands"
)

// registerCommandRoutes registers command CRUD, ordering, run control and log paging.
func (s *Server) registerCommandRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-commands",
		Method:      http.MethodGet,
		Path:        "/api/commands",
		Summary:     "List Commands",
		Description: "List all commands in display order with their live run state",
		Tags:        []string{"commands"},
		Errors:      []int{401, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, _ *struct{}) (*models.CommandListResponse, error) {
		cmds, err := s.commands.ListCommands(ctx)
		if err != nil {
			return nil, mapCommandError(err)
		}

		data := make([]models.CommandData, 0, len(cmds))
		for _, cmd := range cmds {
			data = append(data, s.toAPICommand(&cmd))
		}
		return &models.CommandListResponse{
			Body: models.CommandListData{
				Commands: data,
				Count:    len(data),
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "create-command",
		Method:        http.MethodPost,
		Path:          "/api/commands",
		Summary:       "Create Command",
		Description:   "Store a new command at the end of the list",
		Tags:          []string{"commands"},
		DefaultStatus: http.StatusCreated,
		Errors:        []int{400, 401, 422, 500},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.CreateCommandRequest) (*models.CommandResponse, error) {
		cmd, err := s.commands.CreateCommand(ctx, commands.CreateParams{
			Name:    input.Body.Name,
			Command: input.Body.Command,
			Cwd:     input.Body.Cwd,
		})
		if err != nil {
			return nil, mapCommandError(err)
		}
		return &models.CommandResponse{Body: s.toAPICommand(cmd)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-command",
		Method:      http.MethodGet,
		Path:        "/api/commands/{id}",
		Summary:     "Get Command",
		Description: "Get a single command with its live run state",
		Tags:        []string{"commands"},
		Errors:      []int{401, 404, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CommandIDInput) (*models.CommandResponse, error) {
		cmd, err := s.commands.GetCommand(ctx, input.ID)
		if err != nil {
			return nil, mapCommandError(err)
		}
		return &models.CommandResponse{Body: s.toAPICommand(cmd)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-command",
		Method:      http.MethodPatch,
		Path:        "/api/commands/{id}",
		Summary:     "Update Command",
		Description: "Change the name, command line, working directory or order key. Omitted fields are kept.",
		Tags:        []string{"commands"},
		Errors:      []int{400, 401, 404, 422, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.UpdateCommandRequest) (*models.CommandResponse, error) {
		cmd, err := s.commands.UpdateCommand(ctx, input.ID, commands.UpdateParams{
			Name:     input.Body.Name,
			Command:  input.Body.Command,
			Cwd:      input.Body.Cwd,
			OrderKey: input.Body.OrderKey,
		})
		if err != nil {
			return nil, mapCommandError(err)
		}
		return &models.CommandResponse{Body: s.toAPICommand(cmd)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "delete-command",
		Method:        http.MethodDelete,
		Path:          "/api/commands/{id}",
		Summary:       "Delete Command",
		Description:   "Stop the command if it is running, then delete it and its log",
		Tags:          []string{"commands"},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{401, 404, 500},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.CommandIDInput) (*struct{}, error) {
		if err := s.commands.DeleteCommand(ctx, input.ID); err != nil {
			return nil, mapCommandError(err)
		}
		return nil, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "move-command",
		Method:      http.MethodPost,
		Path:        "/api/commands/{id}/move",
		Summary:     "Move Command",
		Description: "Reorder the command between two neighbours. Only the moved command is rewritten.",
		Tags:        []string{"commands"},
		Errors:      []int{400, 401, 404, 422, 500},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.MoveCommandRequest) (*models.CommandResponse, error) {
		cmd, err := s.commands.MoveCommand(ctx, input.ID, commands.MoveParams{
			AfterID:  input.Body.AfterID,
			BeforeID: input.Body.BeforeID,
		})
		if err != nil {
			return nil, mapCommandError(err)
		}
		return &models.CommandResponse{Body: s.toAPICommand(cmd)}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID:   "run-command",
		Method:        http.MethodPost,
		Path:          "/api/commands/{id}/run",
		Summary:       "Run Command",
		Description:   "Start the command. Output is streamed into its log.",
		Tags:          []string{"commands"},
		DefaultStatus: http.StatusAccepted,
		Errors:        []int{401, 404, 409, 500},
		Security:      withAuth(),
	}, func(ctx context.Context, input *models.CommandIDInput) (*models.CommandStatusResponse, error) {
		if err := s.commands.RunCommand(ctx, input.ID); err != nil {
			return nil, mapCommandError(err)
		}
		return s.statusResponse(input.ID), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "kill-command",
		Method:      http.MethodPost,
		Path:        "/api/commands/{id}/kill",
		Summary:     "Kill Command",
		Description: "Stop the running command, escalating to a forced kill after the grace period. Returns once it has stopped.",
		Tags:        []string{"commands"},
		Errors:      []int{401, 500, 504},
		Security:    withAuth(),
	}, func(ctx context.Context, input *models.CommandIDInput) (*models.CommandStatusResponse, error) {
		if err := s.commands.KillCommand(ctx, input.ID); err != nil {
			return nil, mapCommandError(err)
		}
		return s.statusResponse(input.ID), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-command-status",
		Method:      http.MethodGet,
		Path:        "/api/commands/{id}/status",
		Summary:     "Get Command Status",
		Description: "Get the live run state of a command",
		Tags:        []string{"commands"},
		Errors:      []int{401},
		Security:    withAuth(),
	}, func(_ context.Context, input *models.CommandIDInput) (*models.CommandStatusResponse, error) {
		return s.statusResponse(input.ID), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-command-logs",
		Method:      http.MethodGet,
		Path:        "/api/commands/{id}/logs",
		Summary:     "Get Command Log",
		Description: "Page through a command's log. Without a cursor the newest lines are returned; " +
			"use before to page backwards and after to poll for new lines.",
		Tags:     []string{"commands"},
		Errors:   []int{400, 401, 404, 500},
		Security: withAuth(),
	}, func(ctx context.Context, input *models.LogLinesInput) (*models.LogLinesResponse, error) {
		lines, err := s.commands.LogLines(ctx, input.ID, commands.LogQuery{
			Before: input.Before,
			After:  input.After,
			Limit:  input.Limit,
		})
		if err != nil {
			return nil, mapCommandError(err)
		}

		data := make([]models.LogLineData, len(lines))
		for i, line := range lines {
			data[i] = models.LogLineData{
				ID:        line.ID,
				Source:    line.Source.String(),
				Text:      line.Text,
				Timestamp: line.Timestamp,
			}
		}
		return &models.LogLinesResponse{
			Body: models.LogLinesData{
				CommandID: input.ID,
				Lines:     data,
				Count:     len(data),
			},
		}, nil
	})
}

func (s *Server) toAPICommand(cmd *commands.Command) models.CommandData {
	return models.CommandData{
		ID:            cmd.ID,
		Name:          cmd.Name,
		Command:       cmd.Command,
		Cwd:           cmd.Cwd,
		OrderKey:      cmd.OrderKey,
		Status:        string(s.commands.Status(cmd.ID)),
		LastRunResult: string(cmd.LastRunResult),
		LastRunCode:   cmd.LastRunCode,
		CreatedAt:     cmd.CreatedAt,
		UpdatedAt:     cmd.UpdatedAt,
	}
}

func (s *Server) statusResponse(id int64) *models.CommandStatusResponse {
	return &models.CommandStatusResponse{
		Body: models.CommandStatusData{
			ID:     id,
			Status: string(s.commands.Status(id)),
		},
	}
}

// mapCommandError converts command service errors to Huma HTTP errors.
func mapCommandError(err error) error {
	var cmdErr *commands.Error
	if errors.As(err, &cmdErr) {
		switch cmdErr.Code {
		case commands.ErrCodeNotFound:
			return huma.Error404NotFound(cmdErr.Message, err)
		case commands.ErrCodeInvalidParams:
			return huma.Error400BadRequest(cmdErr.Message, err)
		case commands.ErrCodeAlreadyRunning:
			return huma.Error409Conflict(cmdErr.Message, err)
		case commands.ErrCodeTimeout:
			return huma.NewError(http.StatusGatewayTimeout, cmdErr.Message, err)
		default:
			return huma.Error500InternalServerError(cmdErr.Message, err)
		}
	}
	return huma.Error500InternalServerError("internal server error", err)
}
