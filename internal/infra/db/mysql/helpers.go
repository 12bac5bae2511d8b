package mysql

import "database/sql"

// helper kecil untuk kolom nullable
func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
