package models

import (
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// ItemSearchQuery 代表物品搜尋的一組可選查詢參數
// 所有參數皆為可選，彼此以 AND 組合；格式不正確的參數會被靜默忽略，
// 不會產生錯誤，也不會放寬查詢範圍
type ItemSearchQuery struct {
	CategoryID string `form:"category_id"`
	LocationID string `form:"location_id"`
	Keyword    string `form:"keyword"`
	MinDeposit string `form:"min_deposit"`
	MaxDeposit string `form:"max_deposit"`
	MinRent    string `form:"min_rent"`
	MaxRent    string `form:"max_rent"`
	MinPrice   string `form:"min_price"`
	MaxPrice   string `form:"max_price"`
	Sort       string `form:"sort"`
}

// 內建的數值範圍屬性，作為排序鍵的白名單基礎
var builtinRangeSlugs = []string{"deposit", "rent", "price"}

// attributeNumber 回傳屬性鍵值轉為數值的 SQL 運算式
// `->>` 與 CAST 在 postgres (jsonb) 和 sqlite 上行為一致；
// slug 只會來自白名單，不接受使用者輸入
func attributeNumber(slug string) string {
	return "CAST(items.attributes ->> '" + slug + "' AS numeric)"
}

// attributeFlag 回傳屬性布林旗標為真的 SQL 條件
// postgres 的 ->> 回傳 'true'，sqlite 回傳整數 1，先轉成文字再比對
func attributeFlag(slug string) string {
	return "CAST(items.attributes ->> '" + slug + "' AS text) IN ('true', '1')"
}

// EscapeLike 跳脫 LIKE pattern 中的萬用字元，讓使用者輸入只做字面比對
// 搭配 ESCAPE '\' 子句使用
func EscapeLike(s string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(s)
}

// digits 檢查字串是否為純數字並轉為整數
func digits(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Scope 將搜尋參數轉為可組合的 GORM scope
// extraRangeSlugs 是分類專屬的範圍屬性 slug，會加入排序鍵的白名單
func (q ItemSearchQuery) Scope(extraRangeSlugs ...string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		// 分類篩選：包含一層子分類
		if id, ok := digits(q.CategoryID); ok {
			db = db.Where(
				"items.category_id = ? OR items.category_id IN (SELECT id FROM categories WHERE parent_id = ? AND deleted_at IS NULL)",
				id, id,
			)
		}

		// 地區篩選：與分類相同的階層展開規則
		if id, ok := digits(q.LocationID); ok {
			db = db.Where(
				"items.location_id = ? OR items.location_id IN (SELECT id FROM locations WHERE parent_id = ? AND deleted_at IS NULL)",
				id, id,
			)
		}

		// 關鍵字篩選：以空白切分出 token，
		// 全部 token 出現在標題、或全部 token 出現在說明，兩組條件以 OR 組合；
		// token 中的萬用字元只做字面比對，不會放寬查詢範圍
		if tokens := strings.Fields(q.Keyword); len(tokens) > 0 {
			titleConds := make([]string, 0, len(tokens))
			descriptionConds := make([]string, 0, len(tokens))
			args := make([]any, 0, len(tokens)*2)
			for _, token := range tokens {
				titleConds = append(titleConds, `LOWER(items.title) LIKE ? ESCAPE '\'`)
				args = append(args, "%"+EscapeLike(strings.ToLower(token))+"%")
			}
			for _, token := range tokens {
				descriptionConds = append(descriptionConds, `LOWER(items.description) LIKE ? ESCAPE '\'`)
				args = append(args, "%"+EscapeLike(strings.ToLower(token))+"%")
			}
			db = db.Where(
				"("+strings.Join(titleConds, " AND ")+") OR ("+strings.Join(descriptionConds, " AND ")+")",
				args...,
			)
		}

		// 數值範圍篩選：非純數字或非正數的參數一律忽略；
		// 上限為 0 時是特殊值，代表只顯示免押金／免費的物品
		if n, ok := digits(q.MinDeposit); ok && n > 0 {
			db = db.Where(attributeNumber("deposit")+" >= ?", n)
		}
		if n, ok := digits(q.MaxDeposit); ok {
			if n > 0 {
				db = db.Where(attributeNumber("deposit")+" <= ?", n)
			} else {
				db = db.Where(attributeFlag("no_deposit"))
			}
		}
		if n, ok := digits(q.MinRent); ok && n > 0 {
			db = db.Where(attributeNumber("rent")+" >= ?", n)
		}
		if n, ok := digits(q.MaxRent); ok && n > 0 {
			db = db.Where(attributeNumber("rent")+" <= ?", n)
		}
		if n, ok := digits(q.MinPrice); ok && n > 0 {
			db = db.Where(attributeNumber("price")+" >= ?", n)
		}
		if n, ok := digits(q.MaxPrice); ok {
			if n > 0 {
				db = db.Where(attributeNumber("price")+" <= ?", n)
			} else {
				db = db.Where(attributeFlag("no_price"))
			}
		}

		// 排序：未指定或不在白名單內時，預設以更新時間由新到舊
		return q.applySort(db, extraRangeSlugs)
	}
}

func (q ItemSearchQuery) applySort(db *gorm.DB, extraRangeSlugs []string) *gorm.DB {
	if q.Sort == "recommended" {
		// 推薦順：以收藏數作為人氣指標
		return db.Order("(SELECT COUNT(*) FROM bookmarks WHERE bookmarks.item_id = items.id AND bookmarks.deleted_at IS NULL) DESC")
	}
	slugs := append(append([]string{}, builtinRangeSlugs...), extraRangeSlugs...)
	for _, slug := range slugs {
		switch q.Sort {
		case slug + "_asc":
			return db.Order(attributeNumber(slug) + " ASC")
		case slug + "_desc":
			return db.Order(attributeNumber(slug) + " DESC")
		}
	}
	return db.Order("items.updated_at DESC")
}

// fixedItemIDs 是持有「fixed」推廣的物品 id 子查詢
// 推廣到期是以刪除列的方式執行，因此列存在即代表推廣生效中
const fixedItemIDs = "SELECT promotions.item_id FROM promotions " +
	"JOIN promotion_types ON promotion_types.id = promotions.type_id " +
	"WHERE promotion_types.slug = 'fixed' AND promotions.deleted_at IS NULL"

// FixedScope 篩選出持有 fixed 推廣的物品，以更新時間排序
func FixedScope(db *gorm.DB) *gorm.DB {
	return db.Where("items.id IN ("+fixedItemIDs+")").Order("items.updated_at DESC")
}

// UnfixedScope 篩選出未持有 fixed 推廣的物品（FixedScope 的補集）
func UnfixedScope(db *gorm.DB) *gorm.DB {
	return db.Where("items.id NOT IN (" + fixedItemIDs + ")")
}

// RelatedScope 篩選出與指定物品相關的物品：
// 相同的父分類且相同的父地區，排除物品本身，最多 8 筆
func RelatedScope(item *Item) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if item.Category == nil || item.Category.ParentID == nil ||
			item.Location == nil || item.Location.ParentID == nil {
			return db.Where("1 = 0")
		}
		return db.
			Where("items.category_id IN (SELECT id FROM categories WHERE parent_id = ? AND deleted_at IS NULL)", *item.Category.ParentID).
			Where("items.location_id IN (SELECT id FROM locations WHERE parent_id = ? AND deleted_at IS NULL)", *item.Location.ParentID).
			Where("items.id <> ?", item.ID).
			Limit(8)
	}
}
