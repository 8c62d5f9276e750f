package classroom

import (
	"context"

	"github.com/fastygo/classroom/api/transport"
	"github.com/fastygo/classroom/domain"
	"github.com/fastygo/classroom/internal/query"
)

func (uc *UseCase) Dashboard(ctx context.Context) (domain.DashboardStats, error) {
	return query.Fetch(ctx, uc.cache, query.KeyDashboardStats(),
		query.Options{StaleTime: query.StaleDashboard},
		func(ctx context.Context) (domain.DashboardStats, error) {
			resp, err := uc.api.Get(ctx, "/dashboard")
			if err != nil {
				return domain.DashboardStats{}, err
			}
			return transport.DashboardStats(resp.Result().Payload), nil
		})
}

func (uc *UseCase) InvalidateClasses() int { return uc.cache.Invalidate(query.KeyClasses) }
func (uc *UseCase) InvalidateAssignments() int { return uc.cache.Invalidate(query.KeyAssignments) }
func (uc *UseCase) InvalidateSubmissions() int { return uc.cache.Invalidate(query.KeySubmissions) }
func (uc *UseCase) InvalidateDashboard() int { return uc.cache.Invalidate(query.KeyDashboard) }
func (uc *UseCase) InvalidateAll() int { return uc.cache.Invalidate(query.Key{}) }
