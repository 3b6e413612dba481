package repository

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserPresence last_seen heartbeat row
type UserPresence struct {
	UserID     string `gorm:"primaryKey;column:user_id"`
	LastSeenAt int64  `gorm:"column:last_seen_at"`
}

// TableName gorm table name
func (UserPresence) TableName() string { return "user_presences" }

// PresenceRepository persisted heartbeat store
type PresenceRepository interface {
	AutoMigrate() error
	// Touch upsert 自己的 last_seen
	Touch(userID string, at int64) error
	// LastSeen 批次查其他人的 last_seen，查無資料回 0
	LastSeen(userIDs []string) (map[string]int64, error)
}

type presenceRepo struct {
	db *gorm.DB
}

// NewPresenceRepo create PresenceRepository
func NewPresenceRepo(db *gorm.DB) PresenceRepository {
	return &presenceRepo{db: db}
}

func (r *presenceRepo) AutoMigrate() error {
	return r.db.AutoMigrate(&UserPresence{})
}

func (r *presenceRepo) Touch(userID string, at int64) error {
	row := UserPresence{UserID: userID, LastSeenAt: at}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen_at"}),
	}).Create(&row).Error
}

func (r *presenceRepo) LastSeen(userIDs []string) (map[string]int64, error) {
	var rows []UserPresence
	if err := r.db.Where("user_id IN ?", userIDs).Find(&rows).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return map[string]int64{}, nil
		}
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.UserID] = row.LastSeenAt
	}
	return out, nil
}
