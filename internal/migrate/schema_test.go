package migrate

import (
	"testing"

	"org-directory/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	db, err := utils.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, EnsureSchema(db, DialectSQLite, false))
	require.NoError(t, EnsureSchema(db, DialectSQLite, false))

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(1) FROM sqlite_master WHERE type = 'table' AND name IN
        ('building','organization','organization_phone','activity','organization_activity')`).Scan(&n))
	assert.Equal(t, 5, n)
}

func TestSchemaChecks(t *testing.T) {
	db, err := utils.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, EnsureSchema(db, DialectSQLite, false))

	_, err = db.Exec(`INSERT INTO activity(name, level) VALUES ('too deep', 4)`)
	assert.ErrorContains(t, err, "activity_level_check")
	_, err = db.Exec(`INSERT INTO activity(name, level) VALUES ('root', 1)`)
	assert.NoError(t, err)

	_, err = db.Exec(`INSERT INTO building(city, street, house, latitude) VALUES ('X', 'Y', '1', 10)`)
	assert.ErrorContains(t, err, "building_coords_check")

	_, err = db.Exec(`INSERT INTO organization(name, building_id) VALUES ('orphan', 999)`)
	assert.Error(t, err, "foreign keys are enforced")
}

func TestEnsureSchemaRejectsBadOptions(t *testing.T) {
	db, err := utils.OpenSQLite(":memory:")
	require.NoError(t, err)
	defer db.Close()
	assert.Error(t, EnsureSchema(db, "mysql", false))
	assert.Error(t, EnsureSchema(db, DialectSQLite, true))
}
