package db

import "gorm.io/gorm"

// LockClause returns the row-lock suffix for raw SELECT statements. SQLite
// serializes writers at the database level and rejects FOR UPDATE syntax, so
// it gets an empty clause.
func LockClause(tx *gorm.DB) string {
	if tx.Dialector.Name() == "sqlite" {
		return ""
	}
	return " FOR UPDATE"
}
