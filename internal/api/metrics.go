package api

import (
	"cmp"
	"context"
	"net/http"
	"slices"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/synthnode/internal/api/models"
	"github.com/smazurov/synthnode/internal/metrics"
)

// registerEngineMetricsRoutes registers the JSON view of the engine
// counters. The Prometheus exposition lives at /metrics.
func (s *Server) registerEngineMetricsRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-engine-metrics",
		Method:      http.MethodGet,
		Path:        "/api/engine/metrics",
		Summary:     "Engine metrics",
		Description: "Get lifecycle counters for every engine seen by this process",
		Tags:        []string{"metrics"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.EngineMetricsListResponse, error) {
		all := metrics.GetAllEngineMetrics()

		resp := &models.EngineMetricsListResponse{}
		resp.Body.Engines = make([]models.EngineMetricsData, 0, len(all))
		for name, m := range all {
			resp.Body.Engines = append(resp.Body.Engines, models.EngineMetricsData{
				Name:         name,
				Status:       m.Status,
				Boots:        m.Boots,
				BootFailures: m.BootFailures,
				Quits:        m.Quits,
				Panics:       m.Panics,
				Lines:        m.Lines,
			})
		}
		slices.SortFunc(resp.Body.Engines, func(a, b models.EngineMetricsData) int {
			return cmp.Compare(a.Name, b.Name)
		})
		return resp, nil
	})
}
