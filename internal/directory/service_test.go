package directory_test

import (
	"context"
	"math"
	"testing"

	"org-directory/internal/activity"
	"org-directory/internal/directory"
	"org-directory/internal/geo"
	"org-directory/internal/model"
	"org-directory/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type world struct {
	f                 *storetest.Fixture
	svc               *directory.Service
	b1, b2            int64
	food, meat, dairy int64
	o1, o2, silent    int64
	closures, scanned []int
}

// B1 at (55.75, 37.61) houses O1 (+1, +2) and a phoneless org; B2 has no coordinates and houses O2.
// Food > {Meat, Dairy}; O1 practices Meat and Dairy, O2 practices Food.
func newWorld(t *testing.T) *world {
	t.Helper()
	w := &world{f: storetest.NewFixture(t)}
	f := w.f
	w.b1 = f.Building("Moscow", storetest.Coord(55.75), storetest.Coord(37.61))
	w.b2 = f.Building("Nowhere", nil, nil)
	w.food = f.Activity("Food", 0, 1)
	w.meat = f.Activity("Meat", w.food, 2)
	w.dairy = f.Activity("Dairy", w.food, 2)
	w.o1 = f.Org("O1", w.b1, "+1", "+2")
	w.o2 = f.Org("O2", w.b2, "+3")
	w.silent = f.Org("Silent", w.b1)
	f.Link(w.o1, w.meat, w.dairy)
	f.Link(w.o2, w.food)
	f.Link(w.silent, w.dairy)

	res := activity.NewResolver(func(n int) { w.closures = append(w.closures, n) })
	w.svc = directory.New(f.St, res, &geo.HaversineFinder{OnScan: func(n int) { w.scanned = append(w.scanned, n) }})
	return w
}

func names(rows []model.OrganizationOut) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Name
	}
	return out
}

func TestOrganizationsByBuildingAggregatesPhones(t *testing.T) {
	w := newWorld(t)
	rows, err := w.svc.OrganizationsByBuilding(context.Background(), w.b1)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "O1", rows[0].Name)
	assert.Equal(t, []string{"+1", "+2"}, rows[0].Phones)
	assert.Equal(t, "Silent", rows[1].Name)
	assert.NotNil(t, rows[1].Phones)
	assert.Empty(t, rows[1].Phones)
}

func TestOrganizationsByBuildingUnknownIsEmpty(t *testing.T) {
	w := newWorld(t)
	rows, err := w.svc.OrganizationsByBuilding(context.Background(), 999)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestOrganizationsByActivityIsDirectOnly(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	rows, err := w.svc.OrganizationsByActivity(ctx, w.food)
	require.NoError(t, err)
	assert.Equal(t, []string{"O2"}, names(rows))

	rows, err = w.svc.OrganizationsByActivity(ctx, w.dairy)
	require.NoError(t, err)
	assert.Equal(t, []string{"O1", "Silent"}, names(rows))
	assert.Equal(t, []string{}, rows[1].Phones)
}

func TestOrganizationsByNestedActivity(t *testing.T) {
	w := newWorld(t)
	rows, err := w.svc.OrganizationsByNestedActivity(context.Background(), w.food)
	require.NoError(t, err)

	type pair struct{ org, act string }
	var got []pair
	for _, r := range rows {
		got = append(got, pair{r.Organization, r.Activity})
	}
	// O1 matches through both Meat and Dairy and appears twice
	assert.Equal(t, []pair{
		{"O1", "Meat"},
		{"O1", "Dairy"},
		{"O2", "Food"},
		{"Silent", "Dairy"},
	}, got)
	assert.Equal(t, []string{"+1", "+2"}, rows[0].Phones)
	assert.Equal(t, []string{"+1", "+2"}, rows[1].Phones)
	assert.Equal(t, []string{}, rows[3].Phones)
	assert.Equal(t, []int{3}, w.closures)
}

func TestOrganizationsByNestedActivityLeafAndUnknown(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	rows, err := w.svc.OrganizationsByNestedActivity(ctx, w.meat)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "O1", rows[0].Organization)

	rows, err = w.svc.OrganizationsByNestedActivity(ctx, 12345)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestOrganizationByID(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	o, err := w.svc.OrganizationByID(ctx, w.o1)
	require.NoError(t, err)
	assert.Equal(t, model.OrganizationOut{ID: w.o1, Name: "O1", Phones: []string{"+1", "+2"}}, o)

	o, err = w.svc.OrganizationByID(ctx, w.silent)
	require.NoError(t, err)
	assert.Equal(t, []string{}, o.Phones)

	_, err = w.svc.OrganizationByID(ctx, 999)
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestOrganizationsByNameReturnsEveryMatch(t *testing.T) {
	w := newWorld(t)
	w.f.Org("O1", w.b2)
	ctx := context.Background()

	rows, err := w.svc.OrganizationsByName(ctx, "O1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"+1", "+2"}, rows[0].Phones)
	assert.Equal(t, []string{}, rows[1].Phones)

	rows, err = w.svc.OrganizationsByName(ctx, "nobody")
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestOrganizationsNearby(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	rows, err := w.svc.OrganizationsNearby(ctx, 55.75, 37.61, 100)
	require.NoError(t, err)
	assert.Equal(t, []string{"O1", "Silent"}, names(rows))
	assert.Equal(t, []string{"+1", "+2"}, rows[0].Phones)

	// exact point, zero radius
	rows, err = w.svc.OrganizationsNearby(ctx, 55.75, 37.61, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	// unbounded radius still skips the building without coordinates
	rows, err = w.svc.OrganizationsNearby(ctx, 0, 0, math.Inf(1))
	require.NoError(t, err)
	assert.NotContains(t, names(rows), "O2")

	rows, err = w.svc.OrganizationsNearby(ctx, -33.86, 151.2, 1000)
	require.NoError(t, err)
	assert.Empty(t, rows)

	assert.Equal(t, []int{1, 1, 1, 1}, w.scanned)
}

func TestOrganizationsNearbyRejectsBadInput(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()
	for _, tc := range []struct {
		name          string
		lat, lon, rad float64
	}{
		{"negative radius", 55.75, 37.61, -1},
		{"nan radius", 55.75, 37.61, math.NaN()},
		{"latitude", 91, 0, 10},
		{"longitude", 0, -181, 10},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := w.svc.OrganizationsNearby(ctx, tc.lat, tc.lon, tc.rad)
			assert.ErrorIs(t, err, directory.ErrInvalidArgument)
		})
	}
	assert.Empty(t, w.scanned)
}

func TestActivityTree(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	nodes, err := w.svc.ActivityTree(ctx, w.food)
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "Food", nodes[0].Path)
	assert.Equal(t, "Food -> Meat", nodes[1].Path)
	assert.Equal(t, "Food -> Dairy", nodes[2].Path)
	assert.Equal(t, 2, nodes[2].Level)

	_, err = w.svc.ActivityTree(ctx, 999)
	assert.ErrorIs(t, err, directory.ErrNotFound)
}

func TestStoreFailurePropagates(t *testing.T) {
	w := newWorld(t)
	w.f.Exec(`DROP TABLE organization_phone`)
	_, err := w.svc.OrganizationsByBuilding(context.Background(), w.b1)
	require.Error(t, err)
	assert.NotErrorIs(t, err, directory.ErrNotFound)
}

// more matching buildings than sqlite accepts bound parameters in one statement
func TestOrganizationsNearbyUnboundedOverManyBuildings(t *testing.T) {
	const n = 33000
	f := storetest.NewFixture(t)
	f.BulkOrgs(n, 10, 10)
	svc := directory.New(f.St, nil, nil)

	rows, err := svc.OrganizationsNearby(context.Background(), 10, 10, math.Inf(1))
	require.NoError(t, err)
	require.Len(t, rows, n)
	assert.Equal(t, "org-1", rows[0].Name)
	assert.Equal(t, []string{"tel-1"}, rows[0].Phones)
	assert.Equal(t, "org-33000", rows[n-1].Name)
	assert.Equal(t, []string{"tel-33000"}, rows[n-1].Phones)
}
