package store

import (
	"context"
	"fmt"
	"org-directory/internal/model"
)

// Writer: generic create/delete plumbing; no read endpoint uses it, the seed tool and tests do
type Writer struct {
	Reader
}

func (w *Writer) insertID(ctx context.Context, name, q string, args ...any) (int64, error) {
	debugStmt(name)
	var id int64
	if err := w.QueryRowContext(ctx, q+` RETURNING id`, args...).Scan(&id); err != nil {
		return 0, fmt.Errorf("store: %s: %w", name, err)
	}
	return id, nil
}

// CreateBuilding: b.ID is ignored, the assigned id is returned
func (w *Writer) CreateBuilding(ctx context.Context, b model.Building) (int64, error) {
	return w.insertID(ctx, "create_building",
		`INSERT INTO building(city, street, house, office, latitude, longitude) VALUES($1,$2,$3,$4,$5,$6)`,
		b.City, b.Street, b.House, b.Office, b.Latitude, b.Longitude)
}

func (w *Writer) CreateActivity(ctx context.Context, a model.Activity) (int64, error) {
	return w.insertID(ctx, "create_activity",
		`INSERT INTO activity(name, parent_id, level) VALUES($1,$2,$3)`,
		a.Name, a.ParentID, a.Level)
}

// CreateOrganization: inserts the organization and its phones
func (w *Writer) CreateOrganization(ctx context.Context, o model.Organization, phones ...string) (int64, error) {
	id, err := w.insertID(ctx, "create_organization",
		`INSERT INTO organization(name, building_id) VALUES($1,$2)`, o.Name, o.BuildingID)
	if err != nil {
		return 0, err
	}
	for _, p := range phones {
		if _, err := w.AddPhone(ctx, id, p); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (w *Writer) AddPhone(ctx context.Context, orgID int64, phone string) (int64, error) {
	return w.insertID(ctx, "create_phone",
		`INSERT INTO organization_phone(organization_id, phone) VALUES($1,$2)`, orgID, phone)
}

// LinkActivity: idempotent organization_activity insert; false when the link already existed
func (w *Writer) LinkActivity(ctx context.Context, orgID, activityID int64) (bool, error) {
	debugStmt("link_activity", "org", orgID, "activity", activityID)
	res, err := w.ExecContext(ctx,
		`INSERT INTO organization_activity(organization_id, activity_id) VALUES($1,$2)
         ON CONFLICT (organization_id, activity_id) DO NOTHING`, orgID, activityID)
	if err != nil {
		return false, fmt.Errorf("store: link activity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: link activity: %w", err)
	}
	return n > 0, nil
}

// DeleteOrganization: phones and activity links go with it; false when nothing was deleted
// Constraint: children are removed explicitly as well so a store without FK enforcement stays clean
func (w *Writer) DeleteOrganization(ctx context.Context, id int64) (bool, error) {
	debugStmt("delete_organization", "id", id)
	if _, err := w.ExecContext(ctx, `DELETE FROM organization_phone WHERE organization_id = $1`, id); err != nil {
		return false, fmt.Errorf("store: delete phones: %w", err)
	}
	if _, err := w.ExecContext(ctx, `DELETE FROM organization_activity WHERE organization_id = $1`, id); err != nil {
		return false, fmt.Errorf("store: delete links: %w", err)
	}
	res, err := w.ExecContext(ctx, `DELETE FROM organization WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete organization: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("store: delete organization: %w", err)
	}
	return n > 0, nil
}
