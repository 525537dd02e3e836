package models

import (
	"time"

	"gorm.io/gorm"
)

// User 代表平台上的使用者
// 包含基本的使用者資訊，以及私訊確認時間（用於計算未讀私訊）
type User struct {
	gorm.Model

	Email             string    `gorm:"type:varchar(255);not null;unique;<-:create"`
	Username          string    `gorm:"type:varchar(30);not null"`
	Introduction      string    `gorm:"type:text"`
	Website           string    `gorm:"type:text"`
	DirectConfirmedAt time.Time `gorm:"not null"`
}

// Bookmark 代表使用者對刊登物品的收藏
// 收藏數量會作為搜尋排序中「推薦順」的依據
type Bookmark struct {
	gorm.Model

	UserID uint `gorm:"uniqueIndex:idx_bookmark_user_id_item_id,where:deleted_at IS NULL;not null;<-:create"`
	ItemID uint `gorm:"uniqueIndex:idx_bookmark_user_id_item_id,where:deleted_at IS NULL;not null;<-:create"`

	User *User `gorm:"foreignKey:UserID"`
	Item *Item `gorm:"foreignKey:ItemID"`
}

// Block 代表使用者對另一位使用者的封鎖
// 封鎖關係存在時，雙方無法建立新的私訊串或傳送新訊息
type Block struct {
	gorm.Model

	UserID   uint `gorm:"uniqueIndex:idx_block_user_id_target_id,where:deleted_at IS NULL;not null;<-:create"`
	TargetID uint `gorm:"uniqueIndex:idx_block_user_id_target_id,where:deleted_at IS NULL;not null;<-:create"`

	User   *User `gorm:"foreignKey:UserID"`
	Target *User `gorm:"foreignKey:TargetID"`
}

// IsBlockedPair 檢查兩位使用者之間是否存在任一方向的封鎖
func IsBlockedPair(db *gorm.DB, userID, otherID uint) (bool, error) {
	var count int64
	result := db.Model(&Block{}).
		Where("user_id = ? AND target_id = ?", userID, otherID).
		Or("user_id = ? AND target_id = ?", otherID, userID).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}

// HasBlocked 檢查 userID 是否封鎖了 targetID（單一方向）
func HasBlocked(db *gorm.DB, userID, targetID uint) (bool, error) {
	var count int64
	result := db.Model(&Block{}).
		Where("user_id = ? AND target_id = ?", userID, targetID).
		Count(&count)
	if result.Error != nil {
		return false, result.Error
	}
	return count > 0, nil
}
