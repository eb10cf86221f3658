package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/synthnode/internal/api/models"
	"github.com/smazurov/synthnode/internal/lifecycle"
	"github.com/smazurov/synthnode/internal/options"
)

// bootTimeout bounds how long a boot request waits for the engine. Boots
// outlive a disconnected client, since cancelling one kills the engine.
const bootTimeout = 30 * time.Second

func (s *Server) registerEngineRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-engine-status",
		Method:      http.MethodGet,
		Path:        "/api/engine/status",
		Summary:     "Engine status",
		Description: "Get the engine's lifecycle status and address",
		Tags:        []string{"engine"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.EngineStatusResponse, error) {
		return &models.EngineStatusResponse{Body: s.engineStatus()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "boot-engine",
		Method:      http.MethodPost,
		Path:        "/api/engine/boot",
		Summary:     "Boot engine",
		Description: "Boot the engine with the current options and wait until it is online. Booting an engine that is not offline does nothing.",
		Tags:        []string{"engine"},
		Security:    withAuth(),
		Errors:      []int{401, 409, 422, 502, 504},
	}, func(ctx context.Context, _ *struct{}) (*models.EngineActionResponse, error) {
		bootCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bootTimeout)
		defer cancel()

		if err := s.supervisor.Boot(bootCtx); err != nil {
			return nil, engineError(err)
		}
		return s.engineAction("Engine booted"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "quit-engine",
		Method:      http.MethodPost,
		Path:        "/api/engine/quit",
		Summary:     "Quit engine",
		Description: "Quit the engine and wait for it to exit. Quitting an engine that is not online does nothing.",
		Tags:        []string{"engine"},
		Security:    withAuth(),
		Errors:      []int{401, 504},
	}, func(ctx context.Context, _ *struct{}) (*models.EngineActionResponse, error) {
		if err := s.supervisor.Quit(ctx); err != nil {
			return nil, engineError(err)
		}
		return s.engineAction("Engine quit"), nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-engine-command",
		Method:      http.MethodGet,
		Path:        "/api/engine/command",
		Summary:     "Engine command",
		Description: "Get the command line the engine is booted with",
		Tags:        []string{"engine"},
		Security:    withAuth(),
		Errors:      []int{401, 404},
	}, func(_ context.Context, _ *struct{}) (*models.EngineCommandResponse, error) {
		command, err := s.supervisor.Options().Command()
		if err != nil {
			return nil, huma.Error404NotFound("Engine executable not found", err)
		}
		return &models.EngineCommandResponse{Body: models.EngineCommandData{Command: command}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-client-ranges",
		Method:      http.MethodGet,
		Path:        "/api/engine/clients/{client}/ranges",
		Summary:     "Client ID ranges",
		Description: "Get the node, bus and buffer ID ranges reserved for one client under the current options",
		Tags:        []string{"engine"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(_ context.Context, input *models.ClientRangesRequest) (*models.ClientRangesResponse, error) {
		opts := s.supervisor.Options()

		resp := &models.ClientRangesResponse{}
		resp.Body.Client = input.Client
		for _, kind := range []options.Resource{options.AudioBuses, options.ControlBuses, options.Buffers, options.SyncIDs} {
			minID, maxID, err := opts.Range(kind, input.Client)
			if err != nil {
				return nil, huma.Error422UnprocessableEntity("Invalid client index", err)
			}
			resp.Body.Ranges = append(resp.Body.Ranges, models.IDRangeData{
				Resource: kind.String(),
				Min:      minID,
				Max:      maxID,
			})
		}
		return resp, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-engine-options",
		Method:      http.MethodGet,
		Path:        "/api/engine/options",
		Summary:     "Engine options",
		Description: "Get the options the engine boots with",
		Tags:        []string{"engine"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.EngineOptionsResponse, error) {
		return &models.EngineOptionsResponse{Body: s.supervisor.Options()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "update-engine-options",
		Method:      http.MethodPut,
		Path:        "/api/engine/options",
		Summary:     "Update engine options",
		Description: "Replace the engine options. An online engine is restarted with them.",
		Tags:        []string{"engine"},
		Security:    withAuth(),
		Errors:      []int{401, 422, 502},
	}, func(ctx context.Context, input *models.EngineOptionsRequest) (*models.EngineReloadResponse, error) {
		opts := input.Body
		// The password is never exposed, so keep the current one.
		opts.Password = s.supervisor.Options().Password

		reloadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bootTimeout)
		defer cancel()

		changed, err := s.supervisor.Reload(reloadCtx, opts)
		if err != nil {
			return nil, engineError(err)
		}
		return &models.EngineReloadResponse{Body: models.EngineReloadData{
			Changed: changed,
			Status:  string(s.supervisor.Status()),
		}}, nil
	})
}

func (s *Server) engineStatus() models.EngineStatusData {
	m := s.supervisor.Engine().Machine()
	opts := s.supervisor.Options()
	return models.EngineStatusData{
		Name:      m.Name(),
		Status:    string(m.Status()),
		Address:   m.Address(),
		Port:      opts.Port,
		Protocol:  opts.Protocol,
		PID:       s.supervisor.PID(),
		LastError: m.ErrorText(),
	}
}

func (s *Server) engineAction(msg string) *models.EngineActionResponse {
	return &models.EngineActionResponse{Body: models.EngineActionData{
		Status:  string(s.supervisor.Status()),
		Message: msg,
	}}
}

// engineError maps lifecycle errors to HTTP errors.
func engineError(err error) error {
	switch {
	case errors.Is(err, lifecycle.ErrConfigInvalid):
		return huma.Error422UnprocessableEntity("Invalid engine options", err)
	case errors.Is(err, lifecycle.ErrDuplicateEmbeddedInstance):
		return huma.Error409Conflict("An embedded engine is already running", err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return huma.Error504GatewayTimeout("Timed out waiting for the engine", err)
	case errors.Is(err, lifecycle.ErrBootFailed), errors.Is(err, lifecycle.ErrTransportOpen):
		return huma.Error502BadGateway("Engine failed to boot", err)
	default:
		return huma.Error500InternalServerError("Engine error", err)
	}
}
