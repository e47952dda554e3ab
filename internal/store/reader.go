package store

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"org-directory/internal/model"
	"slices"
	"strings"
)

// Reader: read statements bound to one transaction scope
type Reader struct {
	Querier
}

// ActivityExists: whether an activity row with id is present
func (r *Reader) ActivityExists(ctx context.Context, id int64) (bool, error) {
	debugStmt("activity_exists", "id", id)
	var one int
	err := r.QueryRowContext(ctx, `SELECT 1 FROM activity WHERE id = $1`, id).Scan(&one)
	if IsNoRows(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("store: activity exists: %w", err)
	}
	return true, nil
}

// ChildActivityIDs: ids of activities whose parent_id is one of parents, ascending
func (r *Reader) ChildActivityIDs(ctx context.Context, parents []int64) ([]int64, error) {
	if len(parents) == 0 {
		return nil, nil
	}
	debugStmt("activity_children", "parents", len(parents))
	var out []int64
	err := inChunks(parents, func(part []int64) error {
		rows, err := r.QueryContext(ctx,
			`SELECT id FROM activity WHERE parent_id IN (`+placeholders(1, len(part))+`)`,
			int64Args(part)...)
		if err != nil {
			return fmt.Errorf("store: activity children: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return fmt.Errorf("store: activity children scan: %w", err)
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	slices.Sort(out)
	return out, nil
}

// Activity: single activity, sql.ErrNoRows wrapped when missing
func (r *Reader) Activity(ctx context.Context, id int64) (model.Activity, error) {
	var a model.Activity
	var parent sql.NullInt64
	err := r.QueryRowContext(ctx, `SELECT id, name, parent_id, level FROM activity WHERE id = $1`, id).
		Scan(&a.ID, &a.Name, &parent, &a.Level)
	if err != nil {
		return a, fmt.Errorf("store: activity %d: %w", id, err)
	}
	if parent.Valid {
		p := parent.Int64
		a.ParentID = &p
	}
	return a, nil
}

// ActivitiesByIDs: activities for ids, ordered by level then id
func (r *Reader) ActivitiesByIDs(ctx context.Context, ids []int64) ([]model.Activity, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var out []model.Activity
	err := inChunks(ids, func(part []int64) error {
		rows, err := r.QueryContext(ctx,
			`SELECT id, name, parent_id, level FROM activity WHERE id IN (`+placeholders(1, len(part))+`)`,
			int64Args(part)...)
		if err != nil {
			return fmt.Errorf("store: activities: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var a model.Activity
			var parent sql.NullInt64
			if err := rows.Scan(&a.ID, &a.Name, &parent, &a.Level); err != nil {
				return fmt.Errorf("store: activities scan: %w", err)
			}
			if parent.Valid {
				p := parent.Int64
				a.ParentID = &p
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b model.Activity) int {
		if c := cmp.Compare(a.Level, b.Level); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// ActivityPath: "Root -> Child -> Leaf" for id, walking parent links upwards
// Constraint: stops at an already visited id so corrupt parent cycles cannot loop
func (r *Reader) ActivityPath(ctx context.Context, id int64) (string, error) {
	var names []string
	seen := model.NewIDSet()
	cur := id
	for !seen.Has(cur) {
		seen.Add(cur)
		a, err := r.Activity(ctx, cur)
		if err != nil {
			return "", err
		}
		names = append(names, a.Name)
		if a.ParentID == nil {
			break
		}
		cur = *a.ParentID
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return strings.Join(names, " -> "), nil
}

const orgColumns = `o.id, o.name, o.building_id`

func scanOrganizations(rows *sql.Rows) ([]model.Organization, error) {
	defer rows.Close()
	var out []model.Organization
	for rows.Next() {
		var o model.Organization
		if err := rows.Scan(&o.ID, &o.Name, &o.BuildingID); err != nil {
			return nil, fmt.Errorf("store: organization scan: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// OrganizationsByBuilding: organizations housed in buildingID
func (r *Reader) OrganizationsByBuilding(ctx context.Context, buildingID int64) ([]model.Organization, error) {
	debugStmt("orgs_by_building", "building_id", buildingID)
	rows, err := r.QueryContext(ctx,
		`SELECT `+orgColumns+` FROM organization o WHERE o.building_id = $1 ORDER BY o.id`, buildingID)
	if err != nil {
		return nil, fmt.Errorf("store: orgs by building: %w", err)
	}
	return scanOrganizations(rows)
}

// OrganizationsByBuildings: organizations housed in any of buildingIDs, ordered by id
// Long id lists are queried in chunks and merged.
func (r *Reader) OrganizationsByBuildings(ctx context.Context, buildingIDs []int64) ([]model.Organization, error) {
	if len(buildingIDs) == 0 {
		return nil, nil
	}
	debugStmt("orgs_by_buildings", "buildings", len(buildingIDs))
	var out []model.Organization
	err := inChunks(buildingIDs, func(part []int64) error {
		rows, err := r.QueryContext(ctx,
			`SELECT `+orgColumns+` FROM organization o WHERE o.building_id IN (`+placeholders(1, len(part))+`)`,
			int64Args(part)...)
		if err != nil {
			return fmt.Errorf("store: orgs by buildings: %w", err)
		}
		orgs, err := scanOrganizations(rows)
		out = append(out, orgs...)
		return err
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b model.Organization) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

// OrganizationsByActivity: organizations linked directly to activityID
func (r *Reader) OrganizationsByActivity(ctx context.Context, activityID int64) ([]model.Organization, error) {
	debugStmt("orgs_by_activity", "activity_id", activityID)
	rows, err := r.QueryContext(ctx,
		`SELECT `+orgColumns+` FROM organization o
         JOIN organization_activity oa ON oa.organization_id = o.id
         WHERE oa.activity_id = $1 ORDER BY o.id`, activityID)
	if err != nil {
		return nil, fmt.Errorf("store: orgs by activity: %w", err)
	}
	return scanOrganizations(rows)
}

// OrganizationByID: sql.ErrNoRows (wrapped) when absent
func (r *Reader) OrganizationByID(ctx context.Context, id int64) (model.Organization, error) {
	debugStmt("org_by_id", "id", id)
	var o model.Organization
	err := r.QueryRowContext(ctx, `SELECT `+orgColumns+` FROM organization o WHERE o.id = $1`, id).
		Scan(&o.ID, &o.Name, &o.BuildingID)
	if err != nil {
		return o, fmt.Errorf("store: org %d: %w", id, err)
	}
	return o, nil
}

// OrganizationsByName: exact name match, zero or more rows
func (r *Reader) OrganizationsByName(ctx context.Context, name string) ([]model.Organization, error) {
	debugStmt("orgs_by_name")
	rows, err := r.QueryContext(ctx,
		`SELECT `+orgColumns+` FROM organization o WHERE o.name = $1 ORDER BY o.id`, name)
	if err != nil {
		return nil, fmt.Errorf("store: orgs by name: %w", err)
	}
	return scanOrganizations(rows)
}

// OrgActivityMatch: one organization_activity row joined with both names
type OrgActivityMatch struct {
	OrganizationID   int64
	OrganizationName string
	ActivityID       int64
	ActivityName     string
}

// OrganizationActivityMatches: every (organization, activity) link whose activity is in activityIDs
func (r *Reader) OrganizationActivityMatches(ctx context.Context, activityIDs []int64) ([]OrgActivityMatch, error) {
	if len(activityIDs) == 0 {
		return nil, nil
	}
	debugStmt("org_activity_matches", "activities", len(activityIDs))
	var out []OrgActivityMatch
	err := inChunks(activityIDs, func(part []int64) error {
		rows, err := r.QueryContext(ctx,
			`SELECT o.id, o.name, a.id, a.name
             FROM organization_activity oa
             JOIN organization o ON o.id = oa.organization_id
             JOIN activity a ON a.id = oa.activity_id
             WHERE oa.activity_id IN (`+placeholders(1, len(part))+`)`,
			int64Args(part)...)
		if err != nil {
			return fmt.Errorf("store: org activity matches: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var m OrgActivityMatch
			if err := rows.Scan(&m.OrganizationID, &m.OrganizationName, &m.ActivityID, &m.ActivityName); err != nil {
				return fmt.Errorf("store: org activity scan: %w", err)
			}
			out = append(out, m)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b OrgActivityMatch) int {
		if c := cmp.Compare(a.OrganizationID, b.OrganizationID); c != 0 {
			return c
		}
		return cmp.Compare(a.ActivityID, b.ActivityID)
	})
	return out, nil
}

// PhonesByOrganization: phone strings grouped by organization id, storage order within a group
// Constraint: organizations without phones are simply absent from the map
func (r *Reader) PhonesByOrganization(ctx context.Context, orgIDs []int64) (map[int64][]string, error) {
	out := make(map[int64][]string, len(orgIDs))
	if len(orgIDs) == 0 {
		return out, nil
	}
	debugStmt("phones_by_org", "orgs", len(orgIDs))
	err := inChunks(orgIDs, func(part []int64) error {
		rows, err := r.QueryContext(ctx,
			`SELECT organization_id, phone FROM organization_phone
             WHERE organization_id IN (`+placeholders(1, len(part))+`)
             ORDER BY organization_id, id`,
			int64Args(part)...)
		if err != nil {
			return fmt.Errorf("store: phones: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			var phone string
			if err := rows.Scan(&id, &phone); err != nil {
				return fmt.Errorf("store: phones scan: %w", err)
			}
			out[id] = append(out[id], phone)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BuildingPoints: coordinates of every building that has them
func (r *Reader) BuildingPoints(ctx context.Context) ([]model.BuildingPoint, error) {
	debugStmt("building_points")
	rows, err := r.QueryContext(ctx,
		`SELECT id, latitude, longitude FROM building
         WHERE latitude IS NOT NULL AND longitude IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: building points: %w", err)
	}
	defer rows.Close()
	var out []model.BuildingPoint
	for rows.Next() {
		var p model.BuildingPoint
		if err := rows.Scan(&p.ID, &p.Lat, &p.Lon); err != nil {
			return nil, fmt.Errorf("store: building points scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Building: single building, sql.ErrNoRows wrapped when missing
func (r *Reader) Building(ctx context.Context, id int64) (model.Building, error) {
	var b model.Building
	var office sql.NullString
	var lat, lon sql.NullFloat64
	err := r.QueryRowContext(ctx,
		`SELECT id, city, street, house, office, latitude, longitude FROM building WHERE id = $1`, id).
		Scan(&b.ID, &b.City, &b.Street, &b.House, &office, &lat, &lon)
	if err != nil {
		return b, fmt.Errorf("store: building %d: %w", id, err)
	}
	if office.Valid {
		b.Office = &office.String
	}
	if lat.Valid && lon.Valid {
		b.Latitude, b.Longitude = &lat.Float64, &lon.Float64
	}
	return b, nil
}
