package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRows(t *testing.T) {
	feed := "\ufeffMunicipio , Departamento,Latitud,Longitud,Poblacion\n" +
		"Tunja,Boyacá,5.535,-73.367,180000\n" +
		"Tunja,Boyacá,5.535,-73.367,180000\n" +
		"San  Juan,Nariño,\"1,25\",-77.5,\n" +
		"Paipa,Boyacá,,,\n" +
		"Sogamoso,Boyacá,NaN,n/a\n" +
		",Boyacá,5,-73\n" +
		"Duitama,null,5,-73\n" +
		"Half,Boyacá,5.8,\n" +
		"Broken,Boyacá,north,-73\n" +
		"Far,Boyacá,95,-73\n"

	rows, dropped, err := ReadRows(strings.NewReader(feed))
	require.NoError(t, err)

	assert.Equal(t, []Row{
		{Municipality: "Tunja", Department: "Boyacá", Latitude: 5.535, Longitude: -73.367, HasCoordinates: true},
		{Municipality: "San Juan", Department: "Nariño", Latitude: 1.25, Longitude: -77.5, HasCoordinates: true},
		{Municipality: "Paipa", Department: "Boyacá"},
		{Municipality: "Sogamoso", Department: "Boyacá"},
	}, rows)
	// duplicate, two missing names, one half coordinate, two bad coordinates
	assert.Equal(t, 6, dropped)
}

func TestReadRows_MissingColumns(t *testing.T) {
	_, _, err := ReadRows(strings.NewReader("Municipio,Departamento,Lat\nTunja,Boyacá,5\n"))
	assert.ErrorIs(t, err, ErrMissingColumns)
	assert.ErrorContains(t, err, "Latitud")

	_, _, err = ReadRows(strings.NewReader(""))
	assert.Error(t, err)
}

func TestReadRows_GeocodedDuplicates(t *testing.T) {
	feed := "Municipio,Departamento,Latitud,Longitud\n" +
		"Paipa,Boyacá,,\n" +
		"Paipa,Boyacá,-,-\n"

	rows, dropped, err := ReadRows(strings.NewReader(feed))
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.Equal(t, 1, dropped)
}
