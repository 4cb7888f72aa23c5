package database

import (
	"testing"

	"robotbakery/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(Options{Driver: "mysql", DSN: "x"})
	assert.Error(t, err)
}

func TestOpenMemory_MigratesSchema(t *testing.T) {
	db, err := OpenMemory()
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []interface{}{&models.FlourPack{}, &models.Ingredient{}, &models.WaterPipe{}, &models.Product{}} {
		assert.True(t, db.HasTable(table))
	}

	require.NoError(t, db.Create(models.NewFlourPack()).Error)
	require.NoError(t, db.Create(&models.Ingredient{Kind: models.IngredientEggs}).Error)
	require.NoError(t, Reset(db))

	var packs, ingredients int
	db.Model(&models.FlourPack{}).Count(&packs)
	db.Model(&models.Ingredient{}).Count(&ingredients)
	assert.Zero(t, packs)
	assert.Zero(t, ingredients)
}
