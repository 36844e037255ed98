// Package units holds the migration units for the school-scheduling
// database: schema compatibility patches, deduplication, and data repair
// steps that must land before the solver runs.
package units

import (
	"fmt"
	"sort"

	"schedule_db_migrator/internal/migrate"
	"schedule_db_migrator/migrations"
)

var registered []migrate.Unit

func register(u migrate.Unit) {
	registered = append(registered, u)
}

// All returns every known unit ascending by ID: Go-registered units merged
// with the SQL files embedded under migrations/.
func All() ([]migrate.Unit, error) {
	fileUnits, err := loadSQLUnits(migrations.FS())
	if err != nil {
		return nil, err
	}
	all := make([]migrate.Unit, 0, len(registered)+len(fileUnits))
	all = append(all, registered...)
	all = append(all, fileUnits...)

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	for i := 1; i < len(all); i++ {
		if all[i].ID == all[i-1].ID {
			return nil, fmt.Errorf("duplicate unit id %d (%s, %s)", all[i].ID, all[i-1].Name, all[i].Name)
		}
	}
	return all, nil
}
