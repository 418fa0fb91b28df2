package db

import "gorm.io/gorm"

// NotDeleted is a GORM scope that filters out soft-deleted records. Use it
// with Table()/Count() style queries that bypass automatic soft-delete
// filtering.
func NotDeleted() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("deleted_at IS NULL")
	}
}
