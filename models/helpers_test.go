package models_test

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"furima/models"
)

// setupTestDB 建立每個測試獨立的 in-memory 資料庫
// 連線數固定為 1，避免 :memory: 資料庫在不同連線間看不到彼此的資料表
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Bookmark{},
		&models.Block{},
		&models.Category{},
		&models.Attribute{},
		&models.AttributeOption{},
		&models.Location{},
		&models.Keyword{},
		&models.Item{},
		&models.Image{},
		&models.PromotionType{},
		&models.PromotionOption{},
		&models.Promotion{},
		&models.PaymentHistory{},
		&models.Thread{},
		&models.Response{},
		&models.Participant{},
	))
	return db
}

// createUser 建立測試用的使用者
func createUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Email: email, Username: email}
	require.NoError(t, db.Create(&user).Error)
	// 讀回一次，確保所有欄位（含 direct_confirmed_at）都能被掃描
	require.NoError(t, db.First(&user, user.ID).Error)
	return user
}

func uintString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
