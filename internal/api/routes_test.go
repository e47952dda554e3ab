package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"org-directory/internal/directory"
	"org-directory/internal/geo"
	"org-directory/internal/store/storetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedLocator struct {
	p  geo.Point
	ok bool
}

func (l fixedLocator) Locate(string) (geo.Point, bool) { return l.p, l.ok }

type env struct {
	f      *storetest.Fixture
	mux    *http.ServeMux
	b1, b2 int64
	food   int64
	meat   int64
	o1     int64
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	e := &env{f: storetest.NewFixture(t)}
	e.b1 = e.f.Building("Moscow", storetest.Coord(55.75), storetest.Coord(37.61))
	e.b2 = e.f.Building("Nowhere", nil, nil)
	e.food = e.f.Activity("Food", 0, 1)
	e.meat = e.f.Activity("Meat", e.food, 2)
	e.o1 = e.f.Org("Horns", e.b1, "+1", "+2")
	e.f.Link(e.o1, e.meat)
	e.mux = BuildRoutes(directory.New(e.f.St, nil, nil), opts)
	return e
}

func (e *env) get(t *testing.T, target string) (*httptest.ResponseRecorder, any) {
	t.Helper()
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func detail(body any) string {
	m, _ := body.(map[string]any)
	s, _ := m["detail"].(string)
	return s
}

func TestByBuilding(t *testing.T) {
	e := newEnv(t, Options{})
	rec, body := e.get(t, "/organizations/by_building/1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{map[string]any{"name": "Horns", "phones": []any{"+1", "+2"}}}, body)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("content-type"))

	rec, body = e.get(t, "/organizations/by_building/2")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no organizations in the building", detail(body))

	rec, _ = e.get(t, "/organizations/by_building/abc")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestByActivityIsDirect(t *testing.T) {
	e := newEnv(t, Options{})
	rec, _ := e.get(t, "/activities/2/organizations")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := e.get(t, "/activities/1/organizations")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no organizations found for this activity", detail(body))
}

func TestByNestedActivity(t *testing.T) {
	e := newEnv(t, Options{})
	rec, body := e.get(t, "/organizations_by_nested_activity?activity_id=1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{map[string]any{
		"organization": "Horns", "activity": "Meat", "phones": []any{"+1", "+2"},
	}}, body)

	rec, body = e.get(t, "/organizations_by_nested_activity?activity_id=999")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body)

	rec, _ = e.get(t, "/organizations_by_nested_activity")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestByIDAndName(t *testing.T) {
	e := newEnv(t, Options{})
	rec, body := e.get(t, "/organization/1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"name": "Horns", "phones": []any{"+1", "+2"}}, body)

	rec, body = e.get(t, "/organization/42")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "organization not found", detail(body))

	rec, body = e.get(t, "/organization_by_name?organization_name=Horns")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body, 1)

	rec, body = e.get(t, "/organization_by_name?organization_name=Nobody")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, body)
}

func TestNearby(t *testing.T) {
	e := newEnv(t, Options{DefaultRadiusM: 100})

	rec, body := e.get(t, "/organizations/nearby?lat=55.7504&lon=37.61")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body, 1)

	// default radius 100 m does not reach 0.01 degrees of latitude (about 1.1 km)
	rec, body = e.get(t, "/organizations/nearby?lat=55.76&lon=37.61")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "no organizations within 100m", detail(body))

	rec, _ = e.get(t, "/organizations/nearby?lat=55.76&lon=37.61&radius_m=2000")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.get(t, "/organizations/nearby?lat=55.76&lon=37.61&radius_m=-5")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = e.get(t, "/organizations/nearby?lat=95&lon=37.61")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec, _ = e.get(t, "/organizations/nearby?lat=55.76")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestNearbyFallsBackToCallerLocation(t *testing.T) {
	e := newEnv(t, Options{Locator: fixedLocator{p: geo.Point{Lat: 55.75, Lon: 37.61}, ok: true}})
	rec, body := e.get(t, "/organizations/nearby")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body, 1)

	e = newEnv(t, Options{Locator: fixedLocator{}})
	rec, _ = e.get(t, "/organizations/nearby")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestActivityTreeRoute(t *testing.T) {
	e := newEnv(t, Options{})
	rec, body := e.get(t, "/activities/1/tree")
	require.Equal(t, http.StatusOK, rec.Code)
	nodes := body.([]any)
	require.Len(t, nodes, 2)
	assert.Equal(t, "Food -> Meat", nodes[1].(map[string]any)["path"])

	rec, body = e.get(t, "/activities/77/tree")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "activity not found", detail(body))
}

func TestHealthz(t *testing.T) {
	e := newEnv(t, Options{Health: func(context.Context) error { return nil }})
	rec, _ := e.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)

	e = newEnv(t, Options{Health: func(context.Context) error { return errors.New("down") }})
	rec, body := e.get(t, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "database unavailable", detail(body))
}

func TestStoreFailureIs500(t *testing.T) {
	e := newEnv(t, Options{})
	e.f.Exec(`DROP TABLE organization_phone`)
	rec, body := e.get(t, "/organization/1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", detail(body))
}

func TestCachedResponsesSurviveDataChanges(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	e := newEnv(t, Options{Cache: NewQueryCache(rc, time.Minute)})

	rec, _ := e.get(t, "/organization/1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, mr.Exists("orgdir:by_id:1"))

	e.f.Exec(`UPDATE organization SET name = 'Renamed' WHERE id = 1`)
	_, body := e.get(t, "/organization/1")
	assert.Equal(t, "Horns", body.(map[string]any)["name"])

	mr.FastForward(2 * time.Minute)
	_, body = e.get(t, "/organization/1")
	assert.Equal(t, "Renamed", body.(map[string]any)["name"])

	// not-found results are not stored
	rec, _ = e.get(t, "/organization/42")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.False(t, mr.Exists("orgdir:by_id:42"))
}

func TestNearbyKeyIsExact(t *testing.T) {
	a := nearbyKey(geo.Point{Lat: 55.75, Lon: 37.61}, 100)
	b := nearbyKey(geo.Point{Lat: 55.75001, Lon: 37.61}, 100)
	assert.NotEqual(t, a, b)
	assert.Equal(t, "nearby:ucftpu:55.75,37.61:100", a)
}

func TestNilCacheLoadsThrough(t *testing.T) {
	assert.Nil(t, NewQueryCache(nil, time.Minute))
	calls := 0
	v, err := cached(context.Background(), nil, "k", func(context.Context) (int, error) {
		calls++
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 1, calls)
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", clientIP(r))

	r.Header.Set("forwarded", `for="[2001:db8::1]:4711";proto=https`)
	assert.Equal(t, "2001:db8::1", clientIP(r))

	r.Header.Set("x-forwarded-for", "203.0.113.7, 10.0.0.2")
	assert.Equal(t, "203.0.113.7", clientIP(r))
}

func TestSharedLoadSurvivesFirstCallerCancel(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	c := NewQueryCache(rc, time.Minute)

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	load := func(ctx context.Context) (int, error) {
		once.Do(func() { close(started) })
		<-release
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 42, nil
	}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := cached(ctxA, c, "k", load)
		errA <- err
	}()
	<-started

	type result struct {
		v   int
		err error
	}
	resB := make(chan result, 1)
	go func() {
		v, err := cached(context.Background(), c, "k", load)
		resB <- result{v, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)
	close(release)

	b := <-resB
	require.NoError(t, b.err)
	assert.Equal(t, 42, b.v)
	assert.True(t, mr.Exists("orgdir:k"))
}
