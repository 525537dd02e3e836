package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"furima/models"
)

func searchItems(t *testing.T, db *gorm.DB, query models.ItemSearchQuery, extraRangeSlugs ...string) []models.Item {
	t.Helper()
	var items []models.Item
	require.NoError(t, db.Model(&models.Item{}).Scopes(query.Scope(extraRangeSlugs...)).Find(&items).Error)
	return items
}

func itemTitles(items []models.Item) []string {
	titles := make([]string, len(items))
	for i, item := range items {
		titles[i] = item.Title
	}
	return titles
}

func TestItemSearchQueryScope(t *testing.T) {
	db := setupTestDB(t)
	author := createUser(t, db, "author@example.com")

	// 兩層的分類與地區，加上一個無關的分類
	parentCategory := models.Category{Name: "Housing", Level: 1}
	require.NoError(t, db.Create(&parentCategory).Error)
	childCategory := models.Category{Name: "Apartments", Level: 2, ParentID: &parentCategory.ID}
	require.NoError(t, db.Create(&childCategory).Error)
	otherCategory := models.Category{Name: "Vehicles", Level: 1}
	require.NoError(t, db.Create(&otherCategory).Error)

	location := models.Location{Name: "Midtown", Level: 2}
	require.NoError(t, db.Create(&location).Error)

	createItem := func(title, description string, categoryID uint, attributes datatypes.JSONMap) models.Item {
		item := models.Item{
			AuthorID:    author.ID,
			CategoryID:  &categoryID,
			LocationID:  &location.ID,
			Title:       title,
			Description: description,
			Attributes:  attributes,
		}
		require.NoError(t, db.Create(&item).Error)
		return item
	}

	createItem("Blue House near station", "quiet area", childCategory.ID, datatypes.JSONMap{
		"deposit": 500, "rent": 1200,
	})
	createItem("Cozy flat", "blue walls in every house room", parentCategory.ID, datatypes.JSONMap{
		"deposit": 0, "no_deposit": true, "rent": 800,
	})
	createItem("Old bicycle", "needs repair", otherCategory.ID, datatypes.JSONMap{
		"price": 50,
	})
	createItem("Free couch", "pick up only", otherCategory.ID, datatypes.JSONMap{
		"price": 0, "no_price": true,
	})
	// 售價為 0 但沒有免費旗標的物品，與 Free couch 區分
	createItem("Garage sale leftovers", "everything must go", otherCategory.ID, datatypes.JSONMap{
		"price": 0,
	})
	createItem("Quiet studio", "compact and bright", otherCategory.ID, datatypes.JSONMap{})

	t.Run("無條件時回傳全部物品", func(t *testing.T) {
		items := searchItems(t, db, models.ItemSearchQuery{})
		assert.Len(t, items, 6)
	})

	t.Run("分類篩選包含一層子分類", func(t *testing.T) {
		items := searchItems(t, db, models.ItemSearchQuery{CategoryID: uintString(parentCategory.ID)})
		assert.ElementsMatch(t, []string{"Blue House near station", "Cozy flat"}, itemTitles(items))
	})

	t.Run("子分類篩選不含父分類的物品", func(t *testing.T) {
		items := searchItems(t, db, models.ItemSearchQuery{CategoryID: uintString(childCategory.ID)})
		assert.Equal(t, []string{"Blue House near station"}, itemTitles(items))
	})

	t.Run("關鍵字需全部出現在標題或說明", func(t *testing.T) {
		// 兩個 token 都出現在標題（第一筆）或都出現在說明（第二筆）
		items := searchItems(t, db, models.ItemSearchQuery{Keyword: "blue house"})
		assert.ElementsMatch(t, []string{"Blue House near station", "Cozy flat"}, itemTitles(items))

		// token 順序無關
		items = searchItems(t, db, models.ItemSearchQuery{Keyword: "house blue"})
		assert.Len(t, items, 2)

		// 任一 token 缺席就不符合
		items = searchItems(t, db, models.ItemSearchQuery{Keyword: "blue car"})
		assert.Empty(t, items)
	})

	t.Run("關鍵字中的萬用字元只做字面比對", func(t *testing.T) {
		// 底線與百分比不可當作萬用字元放寬比對
		items := searchItems(t, db, models.ItemSearchQuery{Keyword: "Q___t"})
		assert.Empty(t, items)

		items = searchItems(t, db, models.ItemSearchQuery{Keyword: "%studio%"})
		assert.Empty(t, items)
	})

	t.Run("押金上限為0時只保留免押金的物品", func(t *testing.T) {
		items := searchItems(t, db, models.ItemSearchQuery{MaxDeposit: "0"})
		assert.Equal(t, []string{"Cozy flat"}, itemTitles(items))
	})

	t.Run("售價上限為0時只保留帶有免費旗標的物品", func(t *testing.T) {
		// 售價為 0 但沒有旗標的物品（Garage sale leftovers）不算免費
		items := searchItems(t, db, models.ItemSearchQuery{MaxPrice: "0"})
		assert.Equal(t, []string{"Free couch"}, itemTitles(items))
	})

	t.Run("數值範圍以屬性值篩選", func(t *testing.T) {
		items := searchItems(t, db, models.ItemSearchQuery{MinRent: "1000"})
		assert.Equal(t, []string{"Blue House near station"}, itemTitles(items))

		items = searchItems(t, db, models.ItemSearchQuery{MaxRent: "1000"})
		assert.Equal(t, []string{"Cozy flat"}, itemTitles(items))
	})

	t.Run("格式不正確的參數被靜默忽略", func(t *testing.T) {
		items := searchItems(t, db, models.ItemSearchQuery{MinRent: "abc", MaxPrice: "-1"})
		assert.Len(t, items, 6)
	})

	t.Run("排序鍵以白名單比對", func(t *testing.T) {
		items := searchItems(t, db, models.ItemSearchQuery{CategoryID: uintString(parentCategory.ID), Sort: "rent_asc"})
		assert.Equal(t, []string{"Cozy flat", "Blue House near station"}, itemTitles(items))

		items = searchItems(t, db, models.ItemSearchQuery{CategoryID: uintString(parentCategory.ID), Sort: "rent_desc"})
		assert.Equal(t, []string{"Blue House near station", "Cozy flat"}, itemTitles(items))

		// 不在白名單內的排序鍵回到預設排序，不會產生錯誤
		items = searchItems(t, db, models.ItemSearchQuery{Sort: "views_desc"})
		assert.Len(t, items, 6)
	})
}

func TestItemSearchQueryRecommendedSort(t *testing.T) {
	db := setupTestDB(t)
	author := createUser(t, db, "author@example.com")
	fans := []models.User{
		createUser(t, db, "fan1@example.com"),
		createUser(t, db, "fan2@example.com"),
	}

	plain := models.Item{AuthorID: author.ID, Title: "plain", Description: "d"}
	require.NoError(t, db.Create(&plain).Error)
	popular := models.Item{AuthorID: author.ID, Title: "popular", Description: "d"}
	require.NoError(t, db.Create(&popular).Error)

	for _, fan := range fans {
		require.NoError(t, db.Create(&models.Bookmark{UserID: fan.ID, ItemID: popular.ID}).Error)
	}

	items := searchItems(t, db, models.ItemSearchQuery{Sort: "recommended"})
	require.Len(t, items, 2)
	assert.Equal(t, "popular", items[0].Title)
}

func TestFixedScopes(t *testing.T) {
	db := setupTestDB(t)
	author := createUser(t, db, "author@example.com")

	fixedType := models.PromotionType{Slug: models.PromotionSlugFixed, Name: "Fixed"}
	require.NoError(t, db.Create(&fixedType).Error)

	fixedItem := models.Item{AuthorID: author.ID, Title: "fixed", Description: "d"}
	require.NoError(t, db.Create(&fixedItem).Error)
	plainItem := models.Item{AuthorID: author.ID, Title: "plain", Description: "d"}
	require.NoError(t, db.Create(&plainItem).Error)

	require.NoError(t, db.Create(&models.Promotion{ItemID: fixedItem.ID, TypeID: &fixedType.ID}).Error)

	var fixed []models.Item
	require.NoError(t, db.Model(&models.Item{}).Scopes(models.FixedScope).Find(&fixed).Error)
	assert.Equal(t, []string{"fixed"}, itemTitles(fixed))

	var unfixed []models.Item
	require.NoError(t, db.Model(&models.Item{}).Scopes(models.UnfixedScope).Find(&unfixed).Error)
	assert.Equal(t, []string{"plain"}, itemTitles(unfixed))

	// 推廣到期（列被刪除）後物品回到一般列表
	require.NoError(t, db.Where("item_id = ?", fixedItem.ID).Delete(&models.Promotion{}).Error)
	require.NoError(t, db.Model(&models.Item{}).Scopes(models.UnfixedScope).Find(&unfixed).Error)
	assert.Len(t, unfixed, 2)
}

func TestRelatedScope(t *testing.T) {
	db := setupTestDB(t)
	author := createUser(t, db, "author@example.com")

	parentCategory := models.Category{Name: "Housing", Level: 1}
	require.NoError(t, db.Create(&parentCategory).Error)
	categoryA := models.Category{Name: "Apartments", Level: 2, ParentID: &parentCategory.ID}
	require.NoError(t, db.Create(&categoryA).Error)
	categoryB := models.Category{Name: "Rooms", Level: 2, ParentID: &parentCategory.ID}
	require.NoError(t, db.Create(&categoryB).Error)

	parentLocation := models.Location{Name: "North", Level: 1}
	require.NoError(t, db.Create(&parentLocation).Error)
	locationA := models.Location{Name: "Midtown", Level: 2, ParentID: &parentLocation.ID}
	require.NoError(t, db.Create(&locationA).Error)
	locationB := models.Location{Name: "Harbor", Level: 2, ParentID: &parentLocation.ID}
	require.NoError(t, db.Create(&locationB).Error)

	base := models.Item{AuthorID: author.ID, CategoryID: &categoryA.ID, LocationID: &locationA.ID, Title: "base", Description: "d"}
	require.NoError(t, db.Create(&base).Error)

	// 相同父分類、相同父地區的物品，超過 8 筆
	for i := 0; i < 10; i++ {
		item := models.Item{AuthorID: author.ID, CategoryID: &categoryB.ID, LocationID: &locationB.ID, Title: "sibling", Description: "d"}
		require.NoError(t, db.Create(&item).Error)
	}
	// 不同父地區的物品
	farLocation := models.Location{Name: "South", Level: 2}
	require.NoError(t, db.Create(&farLocation).Error)
	far := models.Item{AuthorID: author.ID, CategoryID: &categoryB.ID, LocationID: &farLocation.ID, Title: "far", Description: "d"}
	require.NoError(t, db.Create(&far).Error)

	require.NoError(t, db.Preload("Category").Preload("Location").First(&base, base.ID).Error)

	t.Run("最多回傳8筆且排除物品本身", func(t *testing.T) {
		var related []models.Item
		require.NoError(t, db.Model(&models.Item{}).Scopes(models.RelatedScope(&base)).Find(&related).Error)
		assert.Len(t, related, 8)
		for _, item := range related {
			assert.NotEqual(t, base.ID, item.ID)
			assert.NotEqual(t, "far", item.Title)
		}
	})

	t.Run("缺少父分類或父地區時回傳空集合", func(t *testing.T) {
		orphan := models.Item{AuthorID: author.ID, Title: "orphan", Description: "d"}
		require.NoError(t, db.Create(&orphan).Error)
		var related []models.Item
		require.NoError(t, db.Model(&models.Item{}).Scopes(models.RelatedScope(&orphan)).Find(&related).Error)
		assert.Empty(t, related)
	})
}
