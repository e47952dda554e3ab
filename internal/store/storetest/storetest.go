// Package storetest: in-memory sqlite stores with the directory schema, for tests
package storetest

import (
	"context"
	"testing"

	"org-directory/internal/migrate"
	"org-directory/internal/model"
	"org-directory/internal/store"
	"org-directory/internal/utils"

	"github.com/stretchr/testify/require"
)

// New: fresh private database, closed with the test
func New(t testing.TB) *store.Store {
	t.Helper()
	db, err := utils.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, migrate.EnsureSchema(db, migrate.DialectSQLite, false))
	return store.AttachDB(db, migrate.DialectSQLite)
}

// Fixture: terse row builders; every call commits its own transaction
type Fixture struct {
	t  testing.TB
	St *store.Store
}

func NewFixture(t testing.TB) *Fixture {
	return &Fixture{t: t, St: New(t)}
}

func (f *Fixture) write(fn func(w *store.Writer) error) {
	f.t.Helper()
	require.NoError(f.t, f.St.WriteTx(context.Background(), fn))
}

func Coord(v float64) *float64 { return &v }

// Building: lat/lon nil means no coordinates
func (f *Fixture) Building(city string, lat, lon *float64) int64 {
	f.t.Helper()
	var id int64
	f.write(func(w *store.Writer) (err error) {
		id, err = w.CreateBuilding(context.Background(), model.Building{
			City: city, Street: "Main", House: "1", Latitude: lat, Longitude: lon,
		})
		return err
	})
	return id
}

// Activity: parent 0 creates a root
func (f *Fixture) Activity(name string, parent int64, level int) int64 {
	f.t.Helper()
	a := model.Activity{Name: name, Level: level}
	if parent != 0 {
		a.ParentID = &parent
	}
	var id int64
	f.write(func(w *store.Writer) (err error) {
		id, err = w.CreateActivity(context.Background(), a)
		return err
	})
	return id
}

func (f *Fixture) Org(name string, building int64, phones ...string) int64 {
	f.t.Helper()
	var id int64
	f.write(func(w *store.Writer) (err error) {
		id, err = w.CreateOrganization(context.Background(), model.Organization{Name: name, BuildingID: building}, phones...)
		return err
	})
	return id
}

func (f *Fixture) Link(org int64, activities ...int64) {
	f.t.Helper()
	f.write(func(w *store.Writer) error {
		for _, a := range activities {
			if _, err := w.LinkActivity(context.Background(), org, a); err != nil {
				return err
			}
		}
		return nil
	})
}

// Exec: raw statement for corrupting data on purpose
func (f *Fixture) Exec(q string, args ...any) {
	f.t.Helper()
	_, err := f.St.DB().Exec(q, args...)
	require.NoError(f.t, err)
}

// BulkOrgs: n buildings at (lat, lon), each housing one organization "org-<id>" with one phone "tel-<id>"
// Meant for an empty fixture, so building i houses organization i.
func (f *Fixture) BulkOrgs(n int, lat, lon float64) {
	f.t.Helper()
	f.Exec(`WITH RECURSIVE seq(i) AS (SELECT 1 UNION ALL SELECT i + 1 FROM seq WHERE i < $1)
        INSERT INTO building(city, street, house, latitude, longitude)
        SELECT 'Bulk', 'Main', CAST(i AS TEXT), $2, $3 FROM seq`, n, lat, lon)
	f.Exec(`INSERT INTO organization(name, building_id) SELECT 'org-' || id, id FROM building WHERE city = 'Bulk' ORDER BY id`)
	f.Exec(`INSERT INTO organization_phone(organization_id, phone) SELECT id, 'tel-' || id FROM organization WHERE name LIKE 'org-%' ORDER BY id`)
}
