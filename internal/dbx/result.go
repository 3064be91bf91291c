package dbx

import (
	"database/sql"
	"fmt"
)

// Affected unwraps the result of ExecContext into a rows-affected count,
// annotating whichever step failed.
func Affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

// ScanIDs drains a single-column result set of ids.
func ScanIDs(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
