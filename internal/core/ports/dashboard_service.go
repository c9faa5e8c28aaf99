package ports

import (
	"context"

	"github.com/schoolms/portal-client/internal/core/domain"
)

// DashboardService exposes the typed, cached dashboard endpoints.
type DashboardService interface {
	Stats(ctx context.Context, q domain.StatsQuery) (*domain.DashboardStats, error)
	RecentActivity(ctx context.Context, q domain.ActivityQuery) ([]domain.RecentActivity, error)
	UpcomingEvents(ctx context.Context, q domain.EventsQuery) ([]domain.UpcomingEvent, error)
	Me(ctx context.Context) (*domain.User, error)
}
