package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/i474232898/ghi-aggregation/internal/common"
)

// Column names expected in the municipality feed.
const (
	ColMunicipality = "Municipio"
	ColDepartment   = "Departamento"
	ColLatitude     = "Latitud"
	ColLongitude    = "Longitud"
)

// ErrMissingColumns is returned when the feed header lacks a required column.
var ErrMissingColumns = errors.New("ingest: feed is missing required columns")

// Row is one usable line of the feed. HasCoordinates is false when the
// coordinates must be geocoded.
type Row struct {
	Municipality   string
	Department     string
	Latitude       float64
	Longitude      float64
	HasCoordinates bool
}

func (r Row) key() string {
	if !r.HasCoordinates {
		return r.Department + "|" + r.Municipality
	}
	return fmt.Sprintf("%s|%s|%v|%v", r.Department, r.Municipality, r.Latitude, r.Longitude)
}

// ReadRows parses the CSV feed. Header names are trimmed, exact duplicate
// rows are removed, rows without names or with unparseable coordinates are
// dropped. Rows with both coordinates missing are kept for geocoding.
func ReadRows(r io.Reader) (rows []Row, dropped int, err error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("ingest: read header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[common.CleanField(name)] = i
	}

	var missing []string
	for _, col := range []string{ColMunicipality, ColDepartment, ColLatitude, ColLongitude} {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, 0, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	field := func(record []string, col string) string {
		i := index[col]
		if i >= len(record) {
			return ""
		}
		return common.CleanField(record[i])
	}

	seen := make(map[string]bool)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, dropped, fmt.Errorf("ingest: read row: %w", err)
		}

		row, ok := parseRecord(
			field(record, ColMunicipality),
			field(record, ColDepartment),
			field(record, ColLatitude),
			field(record, ColLongitude),
		)
		if !ok {
			dropped++
			continue
		}
		if seen[row.key()] {
			dropped++
			continue
		}
		seen[row.key()] = true
		rows = append(rows, row)
	}

	return rows, dropped, nil
}

func parseRecord(municipality, department, lat, lon string) (Row, bool) {
	if common.IsMissing(municipality) || common.IsMissing(department) {
		return Row{}, false
	}
	row := Row{Municipality: municipality, Department: department}

	latMissing, lonMissing := common.IsMissing(lat), common.IsMissing(lon)
	if latMissing && lonMissing {
		return row, true
	}
	if latMissing || lonMissing {
		return Row{}, false
	}

	// Some exports use a decimal comma.
	latV, err := strconv.ParseFloat(strings.Replace(lat, ",", ".", 1), 64)
	if err != nil || latV < -90 || latV > 90 {
		return Row{}, false
	}
	lonV, err := strconv.ParseFloat(strings.Replace(lon, ",", ".", 1), 64)
	if err != nil || lonV < -180 || lonV > 180 {
		return Row{}, false
	}

	row.Latitude, row.Longitude, row.HasCoordinates = latV, lonV, true
	return row, true
}
