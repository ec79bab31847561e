package models

// Document is one row of the generic document table backing the docstore.
// Data is JSON text (jsonb on Postgres); timestamps are unix millis so both
// drivers scan them identically.
type Document struct {
	Collection string `gorm:"column:collection;type:text;primaryKey"`
	ID         string `gorm:"column:id;type:text;primaryKey"`
	Data       string `gorm:"column:data;type:jsonb;not null"`
	Revision   int64  `gorm:"column:revision;not null"`
	CreatedAt  int64  `gorm:"column:created_at;not null;autoCreateTime:milli"`
	UpdatedAt  int64  `gorm:"column:updated_at;not null;autoUpdateTime:milli"`
}

func (Document) TableName() string { return "documents" }
