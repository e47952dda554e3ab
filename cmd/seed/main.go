// seed: load buildings, activities and organizations from a YAML file in one transaction
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"org-directory/internal/config"
	"org-directory/internal/geo"
	"org-directory/internal/logger"
	"org-directory/internal/migrate"
	"org-directory/internal/model"
	"org-directory/internal/store"
	"org-directory/internal/utils"

	"github.com/lib/pq"
	"gopkg.in/yaml.v3"
)

type Fixture struct {
	Buildings     []BuildingSeed     `yaml:"buildings"`
	Activities    []ActivitySeed     `yaml:"activities"`
	Organizations []OrganizationSeed `yaml:"organizations"`
}

type BuildingSeed struct {
	Key       string   `yaml:"key"`
	City      string   `yaml:"city"`
	Street    string   `yaml:"street"`
	House     string   `yaml:"house"`
	Office    *string  `yaml:"office"`
	Latitude  *float64 `yaml:"latitude"`
	Longitude *float64 `yaml:"longitude"`
}

// ActivitySeed: Parent is the key of another activity, empty for a root
type ActivitySeed struct {
	Key    string `yaml:"key"`
	Name   string `yaml:"name"`
	Parent string `yaml:"parent"`
	Level  int    `yaml:"level"`
}

type OrganizationSeed struct {
	Name       string   `yaml:"name"`
	Building   string   `yaml:"building"`
	Phones     []string `yaml:"phones"`
	Activities []string `yaml:"activities"`
}

type Summary struct {
	Buildings, Activities, Organizations, Phones, Links int
}

var ErrInvalidFixture = errors.New("seed: invalid fixture")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidFixture, fmt.Sprintf(format, args...))
}

func Decode(r io.Reader) (*Fixture, error) {
	var f Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("seed: decode: %w", err)
	}
	return &f, nil
}

// Validate checks what the schema cannot: unique keys, references, level = parent level + 1, paired coordinates.
func (f *Fixture) Validate() error {
	buildings := map[string]bool{}
	for i, b := range f.Buildings {
		if b.Key == "" || buildings[b.Key] {
			return invalid("building %d: missing or duplicate key %q", i, b.Key)
		}
		buildings[b.Key] = true
		if b.City == "" || b.Street == "" || b.House == "" {
			return invalid("building %q: city, street and house are required", b.Key)
		}
		if (b.Latitude == nil) != (b.Longitude == nil) {
			return invalid("building %q: latitude and longitude must be set together", b.Key)
		}
		if b.Latitude != nil && !(geo.Point{Lat: *b.Latitude, Lon: *b.Longitude}).Valid() {
			return invalid("building %q: coordinates out of range", b.Key)
		}
	}
	acts := map[string]ActivitySeed{}
	for i, a := range f.Activities {
		if a.Key == "" {
			return invalid("activity %d: missing key", i)
		}
		if _, dup := acts[a.Key]; dup {
			return invalid("activity %q: duplicate key", a.Key)
		}
		acts[a.Key] = a
	}
	for _, a := range f.Activities {
		if a.Name == "" {
			return invalid("activity %q: name is required", a.Key)
		}
		if a.Level < model.MinActivityLevel || a.Level > model.MaxActivityLevel {
			return invalid("activity %q: level %d outside %d..%d", a.Key, a.Level, model.MinActivityLevel, model.MaxActivityLevel)
		}
		if a.Parent == "" {
			if a.Level != model.MinActivityLevel {
				return invalid("activity %q: root must have level %d", a.Key, model.MinActivityLevel)
			}
			continue
		}
		p, ok := acts[a.Parent]
		if !ok {
			return invalid("activity %q: unknown parent %q", a.Key, a.Parent)
		}
		if a.Level != p.Level+1 {
			return invalid("activity %q: level %d under parent level %d", a.Key, a.Level, p.Level)
		}
	}
	for _, o := range f.Organizations {
		if o.Name == "" {
			return invalid("organization without name")
		}
		if !buildings[o.Building] {
			return invalid("organization %q: unknown building %q", o.Name, o.Building)
		}
		for _, k := range o.Activities {
			if _, ok := acts[k]; !ok {
				return invalid("organization %q: unknown activity %q", o.Name, k)
			}
		}
	}
	return nil
}

// Apply inserts the fixture; nothing is written unless every row goes in.
func Apply(ctx context.Context, st *store.Store, f *Fixture) (Summary, error) {
	var sum Summary
	if err := f.Validate(); err != nil {
		return sum, err
	}
	// level order puts every parent before its children
	acts := append([]ActivitySeed(nil), f.Activities...)
	sort.SliceStable(acts, func(i, j int) bool { return acts[i].Level < acts[j].Level })

	err := st.WriteTx(ctx, func(w *store.Writer) error {
		buildingIDs := make(map[string]int64, len(f.Buildings))
		for _, b := range f.Buildings {
			id, err := w.CreateBuilding(ctx, model.Building{
				City: b.City, Street: b.Street, House: b.House, Office: b.Office,
				Latitude: b.Latitude, Longitude: b.Longitude,
			})
			if err != nil {
				return describe(err)
			}
			buildingIDs[b.Key] = id
			sum.Buildings++
		}
		activityIDs := make(map[string]int64, len(acts))
		for _, a := range acts {
			row := model.Activity{Name: a.Name, Level: a.Level}
			if a.Parent != "" {
				pid := activityIDs[a.Parent]
				row.ParentID = &pid
			}
			id, err := w.CreateActivity(ctx, row)
			if err != nil {
				return describe(err)
			}
			activityIDs[a.Key] = id
			sum.Activities++
		}
		for _, o := range f.Organizations {
			id, err := w.CreateOrganization(ctx, model.Organization{Name: o.Name, BuildingID: buildingIDs[o.Building]}, o.Phones...)
			if err != nil {
				return describe(err)
			}
			sum.Organizations++
			sum.Phones += len(o.Phones)
			for _, k := range o.Activities {
				added, err := w.LinkActivity(ctx, id, activityIDs[k])
				if err != nil {
					return describe(err)
				}
				if added {
					sum.Links++
				}
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	return sum, nil
}

// describe adds the violated constraint when postgres reports one
func describe(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return fmt.Errorf("%w (code=%s constraint=%s)", err, pqErr.Code, pqErr.Constraint)
	}
	return err
}

func main() {
	config.LoadDotEnv()
	l := logger.Setup()
	path := flag.String("file", os.Getenv("SEED_FILE"), "YAML fixture to load")
	flag.Parse()
	if *path == "" {
		l.Error("seed_no_file", "hint", "pass -file or set SEED_FILE")
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	fh, err := os.Open(*path)
	if err != nil {
		l.Error("seed_open_error", "err", err)
		os.Exit(1)
	}
	fx, err := Decode(fh)
	_ = fh.Close()
	if err != nil {
		l.Error("seed_decode_error", "err", err)
		os.Exit(1)
	}
	db, err := utils.OpenDB(cfg.DB)
	if err != nil {
		l.Error("db_open_error", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := migrate.EnsureSchema(db, cfg.DB.Driver, cfg.Geo.Strategy == config.GeoPostGIS); err != nil {
		l.Error("schema_error", "err", err)
		os.Exit(1)
	}
	sum, err := Apply(context.Background(), store.AttachDB(db, cfg.DB.Driver), fx)
	if err != nil {
		l.Error("seed_error", "err", err)
		os.Exit(1)
	}
	l.Info("seed_ok",
		"buildings", sum.Buildings,
		"activities", sum.Activities,
		"organizations", sum.Organizations,
		"phones", sum.Phones,
		"links", sum.Links,
	)
}
