package units

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schedule_db_migrator/migrations"
)

func TestParseUnitFilename(t *testing.T) {
	id, name, err := parseUnitFilename("0003_class_list_repair.up.sql")
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)
	assert.Equal(t, "class_list_repair", name)

	id, name, err = parseUnitFilename("12_short.up.sql")
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	assert.Equal(t, "short", name)

	_, _, err = parseUnitFilename("nounderscore.up.sql")
	assert.Error(t, err)

	_, _, err = parseUnitFilename("abc_not_a_number.up.sql")
	assert.Error(t, err)
}

func TestLoadSQLUnitsPairsReverseFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"0010_add_thing.up.sql":   {Data: []byte("ALTER TABLE t ADD COLUMN c int;")},
		"0010_add_thing.down.sql": {Data: []byte("ALTER TABLE t DROP COLUMN c;")},
		"0011_one_way.up.sql":     {Data: []byte("UPDATE t SET c = 0 WHERE c IS NULL;")},
	}

	units, err := loadSQLUnits(fsys)
	require.NoError(t, err)
	require.Len(t, units, 2)

	assert.Equal(t, int64(10), units[0].ID)
	assert.Equal(t, "add_thing", units[0].Name)
	assert.True(t, units[0].Reversible())
	assert.Equal(t, "ALTER TABLE t DROP COLUMN c;", units[0].ReverseSQL)

	assert.Equal(t, int64(11), units[1].ID)
	assert.False(t, units[1].Reversible())
}

func TestLoadSQLUnitsRejectsBadFilename(t *testing.T) {
	fsys := fstest.MapFS{
		"broken.up.sql": {Data: []byte("SELECT 1;")},
	}
	_, err := loadSQLUnits(fsys)
	assert.Error(t, err)
}

func TestEmbeddedMigrationsLoad(t *testing.T) {
	units, err := loadSQLUnits(migrations.FS())
	require.NoError(t, err)
	require.Len(t, units, 2)

	assert.Equal(t, int64(3), units[0].ID)
	assert.Equal(t, "class_list_repair", units[0].Name)
	assert.False(t, units[0].Reversible())

	assert.Equal(t, int64(6), units[1].ID)
	assert.Equal(t, "teacher_load_hours_repair", units[1].Name)
	assert.False(t, units[1].Reversible())
}
