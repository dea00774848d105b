package database

import (
	"testing"

	"stockdesk-backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSqliteAndMigrate(t *testing.T) {
	db, err := Open("sqlite://:memory:")
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	for _, table := range []string{"units", "sale_requests", "sale_records", "esim_tokens", "esim_allocations", "esim_movements", "marketing_events"} {
		assert.True(t, db.Migrator().HasTable(table), table)
	}

	u := models.Unit{Identifier: "356789012345678", Brand: "Samsung", Model: "A15", State: models.UnitAvailable}
	require.NoError(t, db.Create(&u).Error)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", u.ID.String())
}
