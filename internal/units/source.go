package units

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"schedule_db_migrator/internal/migrate"
)

// loadSQLUnits builds units from embedded NNNN_name.up.sql files, pairing
// each with its optional NNNN_name.down.sql reverse.
func loadSQLUnits(fsys fs.FS) ([]migrate.Unit, error) {
	files, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	var out []migrate.Unit
	for _, file := range files {
		id, name, err := parseUnitFilename(file)
		if err != nil {
			return nil, err
		}
		forward, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", file, err)
		}

		u := migrate.Unit{
			ID:         id,
			Name:       name,
			Forward:    migrate.SQLScript(string(forward)),
			ForwardSQL: string(forward),
		}

		downFile := strings.TrimSuffix(file, ".up.sql") + ".down.sql"
		if reverse, err := fs.ReadFile(fsys, downFile); err == nil {
			u.Reverse = migrate.SQLScript(string(reverse))
			u.ReverseSQL = string(reverse)
		}
		out = append(out, u)
	}
	return out, nil
}

func parseUnitFilename(path string) (int64, string, error) {
	base := filepath.Base(path)
	parts := strings.SplitN(base, "_", 2)
	if len(parts) < 2 {
		return 0, "", fmt.Errorf("invalid migration filename: %s", base)
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid unit id in %s: %w", base, err)
	}
	name := strings.TrimSuffix(parts[1], ".up.sql")
	return id, name, nil
}
