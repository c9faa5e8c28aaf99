package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/schoolms/portal-client/internal/core/cache"
	"github.com/schoolms/portal-client/internal/core/domain"
	"github.com/schoolms/portal-client/internal/core/ports"
)

const (
	pathStats    = "/dashboard/stats/"
	pathActivity = "/dashboard/recent-activity/"
	pathEvents   = "/dashboard/upcoming-events/"
)

// DashboardService exposes the typed dashboard reads.
type DashboardService struct {
	res     *Resources
	session *SessionService
}

var _ ports.DashboardService = (*DashboardService)(nil)

func NewDashboardService(res *Resources, session *SessionService) *DashboardService {
	return &DashboardService{res: res, session: session}
}

func StatsQuery(q domain.StatsQuery) cache.Query {
	p := url.Values{}
	if q.Role != "" {
		p.Set("role", q.Role)
	}
	if q.Limit > 0 {
		p.Set("limit", strconv.Itoa(q.Limit))
	}
	return cache.Query{
		Endpoint:      pathStats,
		Params:        p,
		Tags:          []domain.Tag{domain.TagUser},
		KeepUnusedFor: 300 * time.Second,
	}
}

func ActivityQuery(q domain.ActivityQuery) cache.Query {
	p := url.Values{}
	if q.Limit > 0 {
		p.Set("limit", strconv.Itoa(q.Limit))
	}
	return cache.Query{
		Endpoint:      pathActivity,
		Params:        p,
		Tags:          []domain.Tag{domain.TagUser},
		KeepUnusedFor: 120 * time.Second,
	}
}

func EventsQuery(q domain.EventsQuery) cache.Query {
	p := url.Values{}
	if q.DaysAhead > 0 {
		p.Set("days_ahead", strconv.Itoa(q.DaysAhead))
	}
	if q.Limit > 0 {
		p.Set("limit", strconv.Itoa(q.Limit))
	}
	return cache.Query{
		Endpoint:      pathEvents,
		Params:        p,
		Tags:          []domain.Tag{domain.TagCalendarEvent},
		KeepUnusedFor: 300 * time.Second,
	}
}

func MeQuery() cache.Query {
	return cache.Query{Endpoint: pathMe, Tags: []domain.Tag{domain.TagUser}}
}

func (d *DashboardService) Stats(ctx context.Context, q domain.StatsQuery) (*domain.DashboardStats, error) {
	var out domain.DashboardStats
	if err := d.read(ctx, StatsQuery(q), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *DashboardService) RecentActivity(ctx context.Context, q domain.ActivityQuery) ([]domain.RecentActivity, error) {
	var out []domain.RecentActivity
	if err := d.read(ctx, ActivityQuery(q), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DashboardService) UpcomingEvents(ctx context.Context, q domain.EventsQuery) ([]domain.UpcomingEvent, error) {
	var out []domain.UpcomingEvent
	if err := d.read(ctx, EventsQuery(q), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Me fetches the profile and pushes it into the session.
func (d *DashboardService) Me(ctx context.Context) (*domain.User, error) {
	var u domain.User
	if err := d.read(ctx, MeQuery(), &u); err != nil {
		return nil, err
	}
	if d.session != nil {
		d.session.SetUser(ctx, &u)
	}
	return &u, nil
}

// CreateEvent posts a calendar event and invalidates every cached event list.
func (d *DashboardService) CreateEvent(ctx context.Context, in domain.NewEvent) (*domain.UpcomingEvent, error) {
	resp, err := d.res.Mutate(ctx, ports.Request{
		Method: http.MethodPost,
		Path:   pathEvents,
		Body:   in,
	}, domain.TagCalendarEvent)
	if err != nil {
		return nil, err
	}
	var ev domain.UpcomingEvent
	if err := resp.DecodeJSON(&ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// WatchStats delivers decoded stats on every cache change. Undecodable
// payloads are reported through the error argument.
func (d *DashboardService) WatchStats(q domain.StatsQuery, fn func(*domain.DashboardStats, cache.Snapshot, error)) func() {
	return d.res.Watch(StatsQuery(q), func(s cache.Snapshot) {
		if s.Data == nil {
			fn(nil, s, s.Err)
			return
		}
		var out domain.DashboardStats
		if err := json.Unmarshal(s.Data, &out); err != nil {
			fn(nil, s, fmt.Errorf("decode stats: %w", err))
			return
		}
		fn(&out, s, s.Err)
	})
}

func (d *DashboardService) read(ctx context.Context, q cache.Query, v any) error {
	data, err := d.res.Get(ctx, q)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", q.Endpoint, err)
	}
	return nil
}
