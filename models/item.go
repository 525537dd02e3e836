package models

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Item 代表一筆刊登物品
// attributes 是半結構化的屬性資料，其格式由所屬分類的動態欄位結構決定；
// 分類被刪除時物品會保留（category_id 設為 NULL）
type Item struct {
	gorm.Model

	AuthorID    uint `gorm:"not null;<-:create"`
	CategoryID  *uint
	Title       string            `gorm:"type:varchar(80);not null"`
	Description string            `gorm:"type:text;not null"`
	Attributes  datatypes.JSONMap `gorm:"type:jsonb"`
	LocationID  *uint
	Views       int `gorm:"not null;default:0"`

	Author     User
	Category   *Category `gorm:"foreignKey:CategoryID"`
	Location   *Location `gorm:"foreignKey:LocationID"`
	Images     []Image   `gorm:"foreignKey:ItemID"`
	Promotions []Promotion
}

// Image 代表刊登物品的圖片
// temp_id 用於物品建立前先行上傳的圖片，建立物品時再關聯
type Image struct {
	gorm.Model

	ItemID     *uint
	UploaderID uint      `gorm:"not null;<-:create"`
	Index      int       `gorm:"not null;default:0"`
	URL        string    `gorm:"type:text;not null;<-:create"`
	TempID     uuid.UUID `gorm:"type:uuid"`
}

// ValidateAttributes 依照分類的動態欄位結構檢查屬性資料
// 不在結構內的鍵值與缺少的必填欄位會以欄位錯誤回報
func ValidateAttributes(category *Category, attributes datatypes.JSONMap) map[string]string {
	fieldErrors := make(map[string]string)
	slugs := category.FieldAttributeSlugs()
	for key := range attributes {
		if _, ok := slugs[key]; !ok {
			fieldErrors[key] = "unknown attribute"
		}
	}
	for _, attribute := range category.FieldAttributes {
		if !attribute.Required {
			continue
		}
		value, ok := attributes[attribute.Slug]
		if !ok || value == nil || value == "" {
			fieldErrors[attribute.Slug] = "this field is required"
		}
	}
	return fieldErrors
}

// PruneAttributes 移除不在分類動態欄位結構內的鍵值
// 分類的欄位結構變更後，更新物品時用來清除過期的屬性資料
func PruneAttributes(category *Category, attributes datatypes.JSONMap) datatypes.JSONMap {
	slugs := category.FieldAttributeSlugs()
	pruned := make(datatypes.JSONMap, len(attributes))
	for key, value := range attributes {
		if _, ok := slugs[key]; ok {
			pruned[key] = value
		}
	}
	return pruned
}

// DefaultAttributeValue 回傳動態欄位在表單上的預設值
func DefaultAttributeValue(attribute Attribute) any {
	if attribute.Slug == "rent_type" {
		return 1
	}
	switch attribute.FieldType {
	case FieldTypeBoolean:
		return false
	case FieldTypeMultipleCheckbox:
		return []any{}
	default:
		return ""
	}
}

// DeleteItem 刪除刊登物品並連帶刪除其圖片與推廣
func DeleteItem(db *gorm.DB, item *Item) error {
	const op = "DeleteItem"
	return db.Transaction(func(tx *gorm.DB) error {
		if result := tx.Where("item_id = ?", item.ID).Delete(&Image{}); result.Error != nil {
			return fmt.Errorf("[%s] Fail to delete item images, err=%w", op, result.Error)
		}
		if result := tx.Where("item_id = ?", item.ID).Delete(&Promotion{}); result.Error != nil {
			return fmt.Errorf("[%s] Fail to delete item promotions, err=%w", op, result.Error)
		}
		if result := tx.Delete(item); result.Error != nil {
			return fmt.Errorf("[%s] Fail to delete item, err=%w", op, result.Error)
		}
		return nil
	})
}
