package database

// RoomBlob stores the sealed message list of a single room.
type RoomBlob struct {
	Name             string `gorm:"column:name;primaryKey;size:128;not null"`
	Cipher           string `gorm:"column:cipher;type:text;not null"`
	CreatedAtSeconds int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds int64  `gorm:"column:updated_at_s;not null;index:idx_room_blobs_updated"`
}

// TableName provides the explicit table binding for GORM.
func (RoomBlob) TableName() string {
	return "room_blobs"
}
