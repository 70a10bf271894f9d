package dataset

import "time"

// Record is the persisted metadata row for an uploaded dataset.
type Record struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	FileID           string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"file_id"`
	OriginalFilename string    `gorm:"type:varchar(255);not null" json:"original_filename"`
	StoredPath       string    `gorm:"type:varchar(512);not null" json:"-"`
	FileType         string    `gorm:"type:varchar(16);not null" json:"file_type"`
	FileSize         int64     `gorm:"not null" json:"file_size"`
	RowCount         int       `gorm:"not null" json:"row_count"`
	ColumnCount      int       `gorm:"not null" json:"column_count"`
	CreatedAt        time.Time `json:"created_at"`
}

func (Record) TableName() string { return "datasets" }
