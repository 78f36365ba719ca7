package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/i474232898/ghi-aggregation/internal/irradiance"
)

// ═══════════════════════════════════════════════════════════════════════════
// Models
// ═══════════════════════════════════════════════════════════════════════════

type departmentRow struct {
	ID   uint   `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"column:name;size:128;not null;uniqueIndex"`
}

func (departmentRow) TableName() string { return "departments" }

type municipalityRow struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"column:name;size:128;not null;uniqueIndex:uix_municipality_department"`
	DepartmentID uint   `gorm:"column:department_id;not null;uniqueIndex:uix_municipality_department"`

	Department departmentRow `gorm:"foreignKey:DepartmentID;constraint:OnDelete:CASCADE"`
}

func (municipalityRow) TableName() string { return "municipalities" }

// Coordinates are stored already rounded, so equality lookups are exact.
type locationRow struct {
	ID             uint    `gorm:"primaryKey;autoIncrement"`
	Latitude       float64 `gorm:"column:latitude;not null;uniqueIndex:uix_lat_lon_municipality"`
	Longitude      float64 `gorm:"column:longitude;not null;uniqueIndex:uix_lat_lon_municipality"`
	MunicipalityID uint    `gorm:"column:municipality_id;not null;index;uniqueIndex:uix_lat_lon_municipality"`

	Municipality municipalityRow `gorm:"foreignKey:MunicipalityID;constraint:OnDelete:CASCADE"`
}

func (locationRow) TableName() string { return "locations" }

type readingRow struct {
	ID         uint    `gorm:"primaryKey;autoIncrement"`
	LocationID uint    `gorm:"column:location_id;not null;uniqueIndex:uix_location_month_year"`
	Month      string  `gorm:"column:month;size:16;not null;uniqueIndex:uix_location_month_year"`
	Year       int     `gorm:"column:year;not null;index;uniqueIndex:uix_location_month_year"`
	ValueMJ    float64 `gorm:"column:value_mj;not null"`
	ValueKWh   float64 `gorm:"column:value_kwh;not null"`

	Location locationRow `gorm:"foreignKey:LocationID;constraint:OnDelete:CASCADE"`
}

func (readingRow) TableName() string { return "readings" }

func (r departmentRow) model() irradiance.Department {
	return irradiance.Department{ID: r.ID, Name: r.Name}
}

func (r municipalityRow) model() irradiance.Municipality {
	return irradiance.Municipality{ID: r.ID, Name: r.Name, DepartmentID: r.DepartmentID}
}

func (r locationRow) model() irradiance.Location {
	return irradiance.Location{ID: r.ID, Latitude: r.Latitude, Longitude: r.Longitude, MunicipalityID: r.MunicipalityID}
}

func (r readingRow) model() irradiance.Reading {
	return irradiance.Reading{
		ID:         r.ID,
		LocationID: r.LocationID,
		Month:      irradiance.Month(r.Month),
		Year:       r.Year,
		ValueMJ:    r.ValueMJ,
		ValueKWh:   r.ValueKWh,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Initialisation
// ═══════════════════════════════════════════════════════════════════════════

// GormStore is the relational implementation of irradiance.Store.
type GormStore struct {
	db *gorm.DB
}

var _ irradiance.Store = (*GormStore)(nil)

// OpenGorm opens a sqlite or postgres database and migrates the schema.
func OpenGorm(driver, dsn string) (*GormStore, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("storage: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// sqlite serializes writers; a single connection avoids SQLITE_BUSY
		// under concurrent ingestion and keeps ":memory:" databases shared.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)

		if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
			return nil, fmt.Errorf("storage: enable WAL: %w", err)
		}
		if err := db.Exec("PRAGMA foreign_keys=ON").Error; err != nil {
			return nil, fmt.Errorf("storage: enable FK: %w", err)
		}
	}

	if err := db.AutoMigrate(&departmentRow{}, &municipalityRow{}, &locationRow{}, &readingRow{}); err != nil {
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}

	return &GormStore{db: db}, nil
}

// View runs fn inside a single transaction.
func (s *GormStore) View(ctx context.Context, fn func(irradiance.Reader) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(gormReader{db: tx})
	})
}

func (s *GormStore) reader(ctx context.Context) gormReader {
	return gormReader{db: s.db.WithContext(ctx)}
}

func (s *GormStore) Departments(ctx context.Context) ([]irradiance.Department, error) {
	return s.reader(ctx).Departments(ctx)
}

func (s *GormStore) Department(ctx context.Context, id uint) (irradiance.Department, error) {
	return s.reader(ctx).Department(ctx, id)
}

func (s *GormStore) DepartmentByName(ctx context.Context, name string) (irradiance.Department, error) {
	return s.reader(ctx).DepartmentByName(ctx, name)
}

func (s *GormStore) Municipalities(ctx context.Context, departmentID uint) ([]irradiance.Municipality, error) {
	return s.reader(ctx).Municipalities(ctx, departmentID)
}

func (s *GormStore) Municipality(ctx context.Context, id uint) (irradiance.Municipality, error) {
	return s.reader(ctx).Municipality(ctx, id)
}

func (s *GormStore) Locations(ctx context.Context, municipalityID uint) ([]irradiance.Location, error) {
	return s.reader(ctx).Locations(ctx, municipalityID)
}

func (s *GormStore) AllLocations(ctx context.Context) ([]irradiance.Location, error) {
	return s.reader(ctx).AllLocations(ctx)
}

func (s *GormStore) ReadingsForLocation(ctx context.Context, locationID uint) ([]irradiance.Reading, error) {
	return s.reader(ctx).ReadingsForLocation(ctx, locationID)
}

func (s *GormStore) ReadingsForMunicipality(ctx context.Context, municipalityID uint, year *int) ([]irradiance.Reading, error) {
	return s.reader(ctx).ReadingsForMunicipality(ctx, municipalityID, year)
}

// ═══════════════════════════════════════════════════════════════════════════
// Writes
// ═══════════════════════════════════════════════════════════════════════════

// The Ensure methods insert with ON CONFLICT DO NOTHING and read the row back,
// so two concurrent callers converge on the same row.

func (s *GormStore) EnsureDepartment(ctx context.Context, name string) (irradiance.Department, error) {
	db := s.db.WithContext(ctx)
	row := departmentRow{Name: name}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return irradiance.Department{}, fmt.Errorf("storage: create department %q: %w", name, err)
	}
	var got departmentRow
	if err := db.Where("name = ?", name).First(&got).Error; err != nil {
		return irradiance.Department{}, fmt.Errorf("storage: load department %q: %w", name, err)
	}
	return got.model(), nil
}

func (s *GormStore) EnsureMunicipality(ctx context.Context, departmentID uint, name string) (irradiance.Municipality, error) {
	db := s.db.WithContext(ctx)
	row := municipalityRow{Name: name, DepartmentID: departmentID}
	if err := db.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return irradiance.Municipality{}, fmt.Errorf("storage: create municipality %q: %w", name, err)
	}
	var got municipalityRow
	if err := db.Where("name = ? AND department_id = ?", name, departmentID).First(&got).Error; err != nil {
		return irradiance.Municipality{}, fmt.Errorf("storage: load municipality %q: %w", name, err)
	}
	return got.model(), nil
}

func (s *GormStore) EnsureLocation(ctx context.Context, municipalityID uint, lat, lon float64) (irradiance.Location, error) {
	db := s.db.WithContext(ctx)
	lat, lon = irradiance.RoundCoordinate(lat), irradiance.RoundCoordinate(lon)
	row := locationRow{Latitude: lat, Longitude: lon, MunicipalityID: municipalityID}
	if err := db.Omit(clause.Associations).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return irradiance.Location{}, fmt.Errorf("storage: create location (%v, %v): %w", lat, lon, err)
	}
	var got locationRow
	err := db.Where("latitude = ? AND longitude = ? AND municipality_id = ?", lat, lon, municipalityID).First(&got).Error
	if err != nil {
		return irradiance.Location{}, fmt.Errorf("storage: load location (%v, %v): %w", lat, lon, err)
	}
	return got.model(), nil
}

// UpsertIfAbsent relies on uix_location_month_year: a conflicting insert
// affects no rows.
func (s *GormStore) UpsertIfAbsent(ctx context.Context, r irradiance.Reading) (bool, error) {
	row := readingRow{
		LocationID: r.LocationID,
		Month:      string(r.Month),
		Year:       r.Year,
		ValueMJ:    r.ValueMJ,
		ValueKWh:   r.ValueKWh,
	}
	result := s.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row)
	if result.Error != nil {
		return false, fmt.Errorf("storage: insert reading: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// ═══════════════════════════════════════════════════════════════════════════
// Reads
// ═══════════════════════════════════════════════════════════════════════════

type gormReader struct {
	db *gorm.DB
}

func notFound(err error, what string, key any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %v", irradiance.ErrNotFound, what, key)
	}
	return fmt.Errorf("storage: load %s %v: %w", what, key, err)
}

func (r gormReader) Departments(context.Context) ([]irradiance.Department, error) {
	var rows []departmentRow
	if err := r.db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("storage: list departments: %w", err)
	}
	out := make([]irradiance.Department, len(rows))
	for i, row := range rows {
		out[i] = row.model()
	}
	return out, nil
}

func (r gormReader) Department(_ context.Context, id uint) (irradiance.Department, error) {
	var row departmentRow
	if err := r.db.First(&row, id).Error; err != nil {
		return irradiance.Department{}, notFound(err, "department", id)
	}
	return row.model(), nil
}

func (r gormReader) DepartmentByName(_ context.Context, name string) (irradiance.Department, error) {
	var row departmentRow
	if err := r.db.Where("name = ?", name).First(&row).Error; err != nil {
		return irradiance.Department{}, notFound(err, "department", name)
	}
	return row.model(), nil
}

func (r gormReader) Municipalities(_ context.Context, departmentID uint) ([]irradiance.Municipality, error) {
	var rows []municipalityRow
	if err := r.db.Where("department_id = ?", departmentID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("storage: list municipalities: %w", err)
	}
	out := make([]irradiance.Municipality, len(rows))
	for i, row := range rows {
		out[i] = row.model()
	}
	return out, nil
}

func (r gormReader) Municipality(_ context.Context, id uint) (irradiance.Municipality, error) {
	var row municipalityRow
	if err := r.db.First(&row, id).Error; err != nil {
		return irradiance.Municipality{}, notFound(err, "municipality", id)
	}
	return row.model(), nil
}

func (r gormReader) Locations(_ context.Context, municipalityID uint) ([]irradiance.Location, error) {
	var rows []locationRow
	if err := r.db.Where("municipality_id = ?", municipalityID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("storage: list locations: %w", err)
	}
	return locationModels(rows), nil
}

func (r gormReader) AllLocations(context.Context) ([]irradiance.Location, error) {
	var rows []locationRow
	if err := r.db.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("storage: list locations: %w", err)
	}
	return locationModels(rows), nil
}

func locationModels(rows []locationRow) []irradiance.Location {
	out := make([]irradiance.Location, len(rows))
	for i, row := range rows {
		out[i] = row.model()
	}
	return out
}

func (r gormReader) ReadingsForLocation(_ context.Context, locationID uint) ([]irradiance.Reading, error) {
	var rows []readingRow
	if err := r.db.Where("location_id = ?", locationID).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("storage: list readings: %w", err)
	}
	return readingModels(rows), nil
}

func (r gormReader) ReadingsForMunicipality(_ context.Context, municipalityID uint, year *int) ([]irradiance.Reading, error) {
	q := r.db.
		Select("readings.*").
		Joins("JOIN locations ON locations.id = readings.location_id").
		Where("locations.municipality_id = ?", municipalityID)
	if year != nil {
		q = q.Where("readings.year = ?", *year)
	}

	var rows []readingRow
	if err := q.Order("readings.location_id, readings.id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("storage: list municipality readings: %w", err)
	}
	return readingModels(rows), nil
}

func readingModels(rows []readingRow) []irradiance.Reading {
	out := make([]irradiance.Reading, len(rows))
	for i, row := range rows {
		out[i] = row.model()
	}
	return out
}
