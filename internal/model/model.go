// Package model: directory entities and the grouped rows returned to callers
package model

import (
	"fmt"
	"sort"
)

// Building: address plus optional WGS84 coordinates; Latitude/Longitude are both set or both nil
type Building struct {
	ID        int64    `json:"id" db:"id"`
	City      string   `json:"city" db:"city"`
	Street    string   `json:"street" db:"street"`
	House     string   `json:"house" db:"house"`
	Office    *string  `json:"office,omitempty" db:"office"`
	Latitude  *float64 `json:"latitude,omitempty" db:"latitude"`
	Longitude *float64 `json:"longitude,omitempty" db:"longitude"`
}

// HasCoords reports whether the building takes part in geo search.
func (b Building) HasCoords() bool { return b.Latitude != nil && b.Longitude != nil }

func (b Building) String() string { return fmt.Sprintf("%s - %s - %s", b.City, b.Street, b.House) }

// Organization: name is not unique; BuildingID is mandatory
type Organization struct {
	ID         int64  `json:"id" db:"id"`
	Name       string `json:"name" db:"name"`
	BuildingID int64  `json:"building_id" db:"building_id"`
}

// OrganizationPhone exists only attached to an organization.
type OrganizationPhone struct {
	ID             int64  `json:"id" db:"id"`
	OrganizationID int64  `json:"organization_id" db:"organization_id"`
	Phone          string `json:"phone" db:"phone"`
}

// Activity: node of a forest at most MaxActivityLevel deep; roots have ParentID == nil
type Activity struct {
	ID       int64  `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	ParentID *int64 `json:"parent_id,omitempty" db:"parent_id"`
	Level    int    `json:"level" db:"level"`
}

const (
	MinActivityLevel = 1
	MaxActivityLevel = 3
)

// OrganizationActivity: "organization practices activity"
type OrganizationActivity struct {
	OrganizationID int64 `json:"organization_id" db:"organization_id"`
	ActivityID     int64 `json:"activity_id" db:"activity_id"`
}

// OrganizationOut: one organization with its phone aggregate
type OrganizationOut struct {
	ID     int64    `json:"-"`
	Name   string   `json:"name"`
	Phones []string `json:"phones"`
}

// OrganizationActivityOut: one (organization, matched activity) pair
type OrganizationActivityOut struct {
	OrganizationID int64    `json:"-"`
	ActivityID     int64    `json:"-"`
	Organization   string   `json:"organization"`
	Activity       string   `json:"activity"`
	Phones         []string `json:"phones"`
}

// ActivityNode: activity with its display path, used by the tree listing
type ActivityNode struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Path     string `json:"path"`
	Level    int    `json:"level"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

// IDSet is an unordered set of row ids.
type IDSet map[int64]struct{}

func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s IDSet) Add(id int64) { s[id] = struct{}{} }
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

func (s IDSet) Len() int { return len(s) }

// Sorted returns the ids in ascending order so statements built from the set are stable.
func (s IDSet) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// BuildingPoint: a building id with its non-null coordinates
type BuildingPoint struct {
	ID  int64
	Lat float64
	Lon float64
}
