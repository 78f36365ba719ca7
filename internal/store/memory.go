package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/i474232898/ghi-aggregation/internal/irradiance"
)

type municipalityKey struct {
	departmentID uint
	name         string
}

type locationKey struct {
	municipalityID uint
	lat, lon       float64
}

type readingKey struct {
	locationID uint
	month      irradiance.Month
	year       int
}

// arena holds every entity in ID order (ID n lives at index n-1) plus the
// index maps used for lookups and uniqueness.
type arena struct {
	departments    []irradiance.Department
	municipalities []irradiance.Municipality
	locations      []irradiance.Location
	readings       []irradiance.Reading

	departmentByName   map[string]uint
	municipalityByKey  map[municipalityKey]uint
	locationByKey      map[locationKey]uint
	readingByKey       map[readingKey]uint
	municipalitiesByDp map[uint][]uint
	locationsByMun     map[uint][]uint
	readingsByLocation map[uint][]uint
}

// MemoryStore is a concurrency-safe in-memory implementation of irradiance.Store.
type MemoryStore struct {
	mu   sync.RWMutex
	data *arena
}

var _ irradiance.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: &arena{
			departmentByName:   make(map[string]uint),
			municipalityByKey:  make(map[municipalityKey]uint),
			locationByKey:      make(map[locationKey]uint),
			readingByKey:       make(map[readingKey]uint),
			municipalitiesByDp: make(map[uint][]uint),
			locationsByMun:     make(map[uint][]uint),
			readingsByLocation: make(map[uint][]uint),
		},
	}
}

// View holds the read lock while fn runs, so fn sees no concurrent writes.
func (s *MemoryStore) View(ctx context.Context, fn func(irradiance.Reader) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s.data)
}

func (s *MemoryStore) Departments(ctx context.Context) ([]irradiance.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Departments(ctx)
}

func (s *MemoryStore) Department(ctx context.Context, id uint) (irradiance.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Department(ctx, id)
}

func (s *MemoryStore) DepartmentByName(ctx context.Context, name string) (irradiance.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.DepartmentByName(ctx, name)
}

func (s *MemoryStore) Municipalities(ctx context.Context, departmentID uint) ([]irradiance.Municipality, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Municipalities(ctx, departmentID)
}

func (s *MemoryStore) Municipality(ctx context.Context, id uint) (irradiance.Municipality, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Municipality(ctx, id)
}

func (s *MemoryStore) Locations(ctx context.Context, municipalityID uint) ([]irradiance.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Locations(ctx, municipalityID)
}

func (s *MemoryStore) AllLocations(ctx context.Context) ([]irradiance.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.AllLocations(ctx)
}

func (s *MemoryStore) ReadingsForLocation(ctx context.Context, locationID uint) ([]irradiance.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ReadingsForLocation(ctx, locationID)
}

func (s *MemoryStore) ReadingsForMunicipality(ctx context.Context, municipalityID uint, year *int) ([]irradiance.Reading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.ReadingsForMunicipality(ctx, municipalityID, year)
}

// EnsureDepartment returns the department called name, creating it if needed.
func (s *MemoryStore) EnsureDepartment(_ context.Context, name string) (irradiance.Department, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.data.departmentByName[name]; ok {
		return s.data.departments[id-1], nil
	}
	d := irradiance.Department{ID: uint(len(s.data.departments) + 1), Name: name}
	s.data.departments = append(s.data.departments, d)
	s.data.departmentByName[name] = d.ID
	return d, nil
}

// EnsureMunicipality returns the municipality called name inside departmentID,
// creating it if needed.
func (s *MemoryStore) EnsureMunicipality(_ context.Context, departmentID uint, name string) (irradiance.Municipality, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.data.hasDepartment(departmentID) {
		return irradiance.Municipality{}, fmt.Errorf("%w: department %d", irradiance.ErrNotFound, departmentID)
	}
	key := municipalityKey{departmentID: departmentID, name: name}
	if id, ok := s.data.municipalityByKey[key]; ok {
		return s.data.municipalities[id-1], nil
	}
	m := irradiance.Municipality{ID: uint(len(s.data.municipalities) + 1), Name: name, DepartmentID: departmentID}
	s.data.municipalities = append(s.data.municipalities, m)
	s.data.municipalityByKey[key] = m.ID
	s.data.municipalitiesByDp[departmentID] = append(s.data.municipalitiesByDp[departmentID], m.ID)
	return m, nil
}

// EnsureLocation returns the location at the rounded coordinates inside
// municipalityID, creating it if needed.
func (s *MemoryStore) EnsureLocation(_ context.Context, municipalityID uint, lat, lon float64) (irradiance.Location, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.data.hasMunicipality(municipalityID) {
		return irradiance.Location{}, fmt.Errorf("%w: municipality %d", irradiance.ErrNotFound, municipalityID)
	}
	lat, lon = irradiance.RoundCoordinate(lat), irradiance.RoundCoordinate(lon)
	key := locationKey{municipalityID: municipalityID, lat: lat, lon: lon}
	if id, ok := s.data.locationByKey[key]; ok {
		return s.data.locations[id-1], nil
	}
	l := irradiance.Location{ID: uint(len(s.data.locations) + 1), Latitude: lat, Longitude: lon, MunicipalityID: municipalityID}
	s.data.locations = append(s.data.locations, l)
	s.data.locationByKey[key] = l.ID
	s.data.locationsByMun[municipalityID] = append(s.data.locationsByMun[municipalityID], l.ID)
	return l, nil
}

// UpsertIfAbsent appends r unless its (location, month, year) key is taken.
func (s *MemoryStore) UpsertIfAbsent(_ context.Context, r irradiance.Reading) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.data.hasLocation(r.LocationID) {
		return false, fmt.Errorf("%w: location %d", irradiance.ErrNotFound, r.LocationID)
	}
	key := readingKey{locationID: r.LocationID, month: r.Month, year: r.Year}
	if _, ok := s.data.readingByKey[key]; ok {
		return false, nil
	}
	r.ID = uint(len(s.data.readings) + 1)
	s.data.readings = append(s.data.readings, r)
	s.data.readingByKey[key] = r.ID
	s.data.readingsByLocation[r.LocationID] = append(s.data.readingsByLocation[r.LocationID], r.ID)
	return true, nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStore) Close() error {
	return nil
}

// The arena methods below assume the caller holds the store lock.

func (a *arena) hasDepartment(id uint) bool {
	return id > 0 && int(id) <= len(a.departments)
}

func (a *arena) hasMunicipality(id uint) bool {
	return id > 0 && int(id) <= len(a.municipalities)
}

func (a *arena) hasLocation(id uint) bool {
	return id > 0 && int(id) <= len(a.locations)
}

func (a *arena) Departments(context.Context) ([]irradiance.Department, error) {
	out := make([]irradiance.Department, len(a.departments))
	copy(out, a.departments)
	return out, nil
}

func (a *arena) Department(_ context.Context, id uint) (irradiance.Department, error) {
	if !a.hasDepartment(id) {
		return irradiance.Department{}, fmt.Errorf("%w: department %d", irradiance.ErrNotFound, id)
	}
	return a.departments[id-1], nil
}

func (a *arena) DepartmentByName(_ context.Context, name string) (irradiance.Department, error) {
	id, ok := a.departmentByName[name]
	if !ok {
		return irradiance.Department{}, fmt.Errorf("%w: department %q", irradiance.ErrNotFound, name)
	}
	return a.departments[id-1], nil
}

func (a *arena) Municipalities(_ context.Context, departmentID uint) ([]irradiance.Municipality, error) {
	ids := a.municipalitiesByDp[departmentID]
	out := make([]irradiance.Municipality, len(ids))
	for i, id := range ids {
		out[i] = a.municipalities[id-1]
	}
	return out, nil
}

func (a *arena) Municipality(_ context.Context, id uint) (irradiance.Municipality, error) {
	if !a.hasMunicipality(id) {
		return irradiance.Municipality{}, fmt.Errorf("%w: municipality %d", irradiance.ErrNotFound, id)
	}
	return a.municipalities[id-1], nil
}

func (a *arena) Locations(_ context.Context, municipalityID uint) ([]irradiance.Location, error) {
	ids := a.locationsByMun[municipalityID]
	out := make([]irradiance.Location, len(ids))
	for i, id := range ids {
		out[i] = a.locations[id-1]
	}
	return out, nil
}

func (a *arena) AllLocations(context.Context) ([]irradiance.Location, error) {
	out := make([]irradiance.Location, len(a.locations))
	copy(out, a.locations)
	return out, nil
}

func (a *arena) ReadingsForLocation(_ context.Context, locationID uint) ([]irradiance.Reading, error) {
	ids := a.readingsByLocation[locationID]
	out := make([]irradiance.Reading, len(ids))
	for i, id := range ids {
		out[i] = a.readings[id-1]
	}
	return out, nil
}

func (a *arena) ReadingsForMunicipality(_ context.Context, municipalityID uint, year *int) ([]irradiance.Reading, error) {
	var out []irradiance.Reading
	for _, locID := range a.locationsByMun[municipalityID] {
		for _, id := range a.readingsByLocation[locID] {
			r := a.readings[id-1]
			if year != nil && r.Year != *year {
				continue
			}
			out = append(out, r)
		}
	}
	return out, nil
}
