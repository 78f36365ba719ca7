package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasAny(t *testing.T) {
	assert.True(t, HasAny("NaN", "nan", "null"))
	assert.False(t, HasAny("nanometer", "nan"))
	assert.False(t, HasAny("x"))
}

func TestCleanField(t *testing.T) {
	assert.Equal(t, "Municipio", CleanField("\ufeff Municipio "))
	assert.Equal(t, "San Juan de Pasto", CleanField("San   Juan\tde Pasto"))
}

func TestIsMissing(t *testing.T) {
	for _, v := range []string{"", "nan", "NULL", "None", "N/A", "-"} {
		assert.True(t, IsMissing(v), v)
	}
	assert.False(t, IsMissing("0"))
}
