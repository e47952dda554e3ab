// Package directory answers organization queries: by building, by activity (direct or
// nested), by id, by name and by proximity. Every call runs inside one read-only
// transaction and returns organizations with their phone numbers attached.
package directory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"org-directory/internal/activity"
	"org-directory/internal/geo"
	"org-directory/internal/metrics"
	"org-directory/internal/model"
	"org-directory/internal/store"
	"org-directory/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
)

var (
	ErrNotFound        = errors.New("directory: not found")
	ErrInvalidArgument = errors.New("directory: invalid argument")
)

type Service struct {
	st       *store.Store
	resolver *activity.Resolver
	finder   geo.Finder
}

// New: resolver and finder may be nil, in which case an unobserved resolver and the haversine finder are used
func New(st *store.Store, resolver *activity.Resolver, finder geo.Finder) *Service {
	if resolver == nil {
		resolver = activity.NewResolver(nil)
	}
	if finder == nil {
		finder = &geo.HaversineFinder{}
	}
	return &Service{st: st, resolver: resolver, finder: finder}
}

func (s *Service) Finder() geo.Finder { return s.finder }

// OrganizationsByBuilding: organizations housed in the building, empty when none
func (s *Service) OrganizationsByBuilding(ctx context.Context, buildingID int64) (out []model.OrganizationOut, err error) {
	ctx, done := s.begin(ctx, "by_building", attribute.Int64("building_id", buildingID))
	defer func() { done(len(out), err) }()
	err = s.st.ReadTx(ctx, func(r *store.Reader) error {
		orgs, err := r.OrganizationsByBuilding(ctx, buildingID)
		if err != nil {
			return err
		}
		out, err = withPhones(ctx, r, orgs)
		return err
	})
	return out, err
}

// OrganizationsByActivity: organizations linked to exactly this activity, descendants excluded
func (s *Service) OrganizationsByActivity(ctx context.Context, activityID int64) (out []model.OrganizationOut, err error) {
	ctx, done := s.begin(ctx, "by_activity", attribute.Int64("activity_id", activityID))
	defer func() { done(len(out), err) }()
	err = s.st.ReadTx(ctx, func(r *store.Reader) error {
		orgs, err := r.OrganizationsByActivity(ctx, activityID)
		if err != nil {
			return err
		}
		out, err = withPhones(ctx, r, orgs)
		return err
	})
	return out, err
}

// OrganizationsByNestedActivity: one row per (organization, activity) link whose activity is
// activityID or any of its descendants. An organization linked to two matching activities
// yields two rows. Unknown activity gives an empty result, never an error.
func (s *Service) OrganizationsByNestedActivity(ctx context.Context, activityID int64) (out []model.OrganizationActivityOut, err error) {
	ctx, done := s.begin(ctx, "by_nested_activity", attribute.Int64("activity_id", activityID))
	defer func() { done(len(out), err) }()
	err = s.st.ReadTx(ctx, func(r *store.Reader) error {
		ids, err := s.resolver.Closure(ctx, r, activityID)
		if err != nil {
			return err
		}
		out = []model.OrganizationActivityOut{}
		if ids.Len() == 0 {
			return nil
		}
		matches, err := r.OrganizationActivityMatches(ctx, ids.Sorted())
		if err != nil {
			return err
		}
		orgIDs := make([]int64, 0, len(matches))
		for _, m := range matches {
			orgIDs = append(orgIDs, m.OrganizationID)
		}
		phones, err := r.PhonesByOrganization(ctx, dedupe(orgIDs))
		if err != nil {
			return err
		}
		for _, m := range matches {
			out = append(out, model.OrganizationActivityOut{
				OrganizationID: m.OrganizationID,
				ActivityID:     m.ActivityID,
				Organization:   m.OrganizationName,
				Activity:       m.ActivityName,
				Phones:         phoneList(phones, m.OrganizationID),
			})
		}
		return nil
	})
	return out, err
}

// OrganizationByID: ErrNotFound when no organization has id
func (s *Service) OrganizationByID(ctx context.Context, id int64) (out model.OrganizationOut, err error) {
	ctx, done := s.begin(ctx, "by_id", attribute.Int64("organization_id", id))
	defer func() {
		n := 1
		if err != nil {
			n = 0
		}
		done(n, err)
	}()
	err = s.st.ReadTx(ctx, func(r *store.Reader) error {
		o, err := r.OrganizationByID(ctx, id)
		if store.IsNoRows(err) {
			return fmt.Errorf("%w: organization %d", ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		rows, err := withPhones(ctx, r, []model.Organization{o})
		if err != nil {
			return err
		}
		out = rows[0]
		return nil
	})
	return out, err
}

// OrganizationsByName: exact match; names are not unique so the result is a list
func (s *Service) OrganizationsByName(ctx context.Context, name string) (out []model.OrganizationOut, err error) {
	ctx, done := s.begin(ctx, "by_name")
	defer func() { done(len(out), err) }()
	err = s.st.ReadTx(ctx, func(r *store.Reader) error {
		orgs, err := r.OrganizationsByName(ctx, name)
		if err != nil {
			return err
		}
		out, err = withPhones(ctx, r, orgs)
		return err
	})
	return out, err
}

// OrganizationsNearby: organizations in buildings whose great-circle distance to (lat, lon)
// is at most radiusM meters. Buildings without coordinates never match. +Inf is a valid radius.
func (s *Service) OrganizationsNearby(ctx context.Context, lat, lon, radiusM float64) (out []model.OrganizationOut, err error) {
	p := geo.Point{Lat: lat, Lon: lon}
	if !p.Valid() {
		return nil, fmt.Errorf("%w: coordinates (%v, %v)", ErrInvalidArgument, lat, lon)
	}
	if !geo.ValidRadius(radiusM) {
		return nil, fmt.Errorf("%w: radius %v", ErrInvalidArgument, radiusM)
	}
	ctx, done := s.begin(ctx, "nearby",
		attribute.Float64("lat", lat), attribute.Float64("lon", lon),
		attribute.Bool("radius_unbounded", math.IsInf(radiusM, 1)),
		attribute.String("geo.strategy", s.finder.Name()))
	defer func() { done(len(out), err) }()
	err = s.st.ReadTx(ctx, func(r *store.Reader) error {
		buildings, err := s.finder.BuildingsWithin(ctx, r, p, radiusM)
		if err != nil {
			return err
		}
		orgs, err := r.OrganizationsByBuildings(ctx, buildings)
		if err != nil {
			return err
		}
		out, err = withPhones(ctx, r, orgs)
		return err
	})
	return out, err
}

// ActivityTree: activityID and its descendants with display paths, ordered by level then id.
// ErrNotFound for an unknown activity.
func (s *Service) ActivityTree(ctx context.Context, activityID int64) (out []model.ActivityNode, err error) {
	ctx, done := s.begin(ctx, "activity_tree", attribute.Int64("activity_id", activityID))
	defer func() { done(len(out), err) }()
	err = s.st.ReadTx(ctx, func(r *store.Reader) error {
		ids, err := s.resolver.Closure(ctx, r, activityID)
		if err != nil {
			return err
		}
		if ids.Len() == 0 {
			return fmt.Errorf("%w: activity %d", ErrNotFound, activityID)
		}
		acts, err := r.ActivitiesByIDs(ctx, ids.Sorted())
		if err != nil {
			return err
		}
		out = make([]model.ActivityNode, 0, len(acts))
		for _, a := range acts {
			path, err := r.ActivityPath(ctx, a.ID)
			if err != nil {
				return err
			}
			out = append(out, model.ActivityNode{ID: a.ID, Name: a.Name, Path: path, Level: a.Level, ParentID: a.ParentID})
		}
		return nil
	})
	return out, err
}

// withPhones: second statement left-attaches phones; an organization without phones gets []
func withPhones(ctx context.Context, r *store.Reader, orgs []model.Organization) ([]model.OrganizationOut, error) {
	out := make([]model.OrganizationOut, 0, len(orgs))
	if len(orgs) == 0 {
		return out, nil
	}
	ids := make([]int64, len(orgs))
	for i, o := range orgs {
		ids[i] = o.ID
	}
	phones, err := r.PhonesByOrganization(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, o := range orgs {
		out = append(out, model.OrganizationOut{ID: o.ID, Name: o.Name, Phones: phoneList(phones, o.ID)})
	}
	return out, nil
}

func phoneList(m map[int64][]string, id int64) []string {
	if p := m[id]; p != nil {
		return p
	}
	return []string{}
}

func dedupe(ids []int64) []int64 {
	seen := model.NewIDSet()
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen.Has(id) {
			seen.Add(id)
			out = append(out, id)
		}
	}
	return out
}

// begin opens a span and returns the completion hook that records metrics and ends it
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(n int, err error)) {
	start := time.Now()
	ctx, span := telemetry.StartSpan(ctx, "directory."+op, attrs...)
	metrics.QueriesTotal.WithLabelValues(op).Inc()
	return ctx, func(n int, err error) {
		metrics.QueryDurationMs.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))
		switch {
		case errors.Is(err, ErrNotFound):
			metrics.EmptyResultsTotal.WithLabelValues(op).Inc()
			err = nil
		case err != nil:
			metrics.QueryErrorsTotal.WithLabelValues(op).Inc()
		case n == 0:
			metrics.EmptyResultsTotal.WithLabelValues(op).Inc()
		}
		span.SetAttributes(attribute.Int("result.rows", n))
		telemetry.End(span, err)
	}
}
