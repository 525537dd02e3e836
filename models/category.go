package models

import (
	"gorm.io/gorm"
)

// 動態欄位的型別
const (
	FieldTypeText             = "text"
	FieldTypeInteger          = "integer"
	FieldTypeOption           = "option"
	FieldTypeMultipleCheckbox = "multiple_checkbox"
	FieldTypeBoolean          = "boolean"
	FieldTypeRadio            = "radio"
	FieldTypeDate             = "date"
	FieldTypeDecimal          = "decimal"
)

// 搜尋篩選欄位的呈現方式
const (
	FilterTypeSelect     = "select"
	FilterTypeRangeInput = "range_input"
)

// Category 代表刊登分類的樹狀節點
// 分類為兩層結構，第二層分類一定有第一層的父分類；
// 每個分類擁有自己的動態欄位結構（刊登用）與篩選欄位結構（搜尋用）
type Category struct {
	gorm.Model

	ParentID    *uint
	Name        string `gorm:"type:varchar(255)"`
	Title       string `gorm:"type:varchar(255)"`
	Description string `gorm:"type:varchar(255)"`
	Level       int    `gorm:"not null"`

	Parent           *Category       `gorm:"foreignKey:ParentID"`
	Children         []Category      `gorm:"foreignKey:ParentID"`
	FieldAttributes  []Attribute     `gorm:"many2many:category_field_attributes"`
	FilterAttributes []Attribute     `gorm:"many2many:category_filter_attributes"`
	Promotions       []PromotionType `gorm:"many2many:category_promotion_types"`
}

// Attribute 代表分類底下動態欄位的結構定義
// slug 是物品屬性資料中的穩定鍵值；filter_type 只有在該欄位可作為搜尋篩選時才有值
type Attribute struct {
	gorm.Model

	Name       string `gorm:"type:varchar(255);not null"`
	Slug       string `gorm:"type:varchar(255);not null"`
	FieldType  string `gorm:"type:varchar(50);not null"`
	Required   bool   `gorm:"not null;default:false"`
	FilterType string `gorm:"type:varchar(50)"`
	Index      int    `gorm:"not null;default:0"`
	Note       string `gorm:"type:varchar(255)"`

	Options []AttributeOption `gorm:"foreignKey:AttributeID"`
}

// HasOptions 回傳該欄位型別是否帶有選項清單
func (a Attribute) HasOptions() bool {
	switch a.FieldType {
	case FieldTypeOption, FieldTypeMultipleCheckbox, FieldTypeRadio:
		return true
	}
	return false
}

// AttributeOption 代表選項型欄位的單一選項（值與顯示名稱）
type AttributeOption struct {
	gorm.Model

	AttributeID uint   `gorm:"not null;<-:create"`
	Name        string `gorm:"type:varchar(255);not null"`
	Value       string `gorm:"type:varchar(255);not null"`
}

// FieldAttributeSlugs 回傳分類的動態欄位 slug 集合
func (c Category) FieldAttributeSlugs() map[string]struct{} {
	slugs := make(map[string]struct{}, len(c.FieldAttributes))
	for _, attribute := range c.FieldAttributes {
		slugs[attribute.Slug] = struct{}{}
	}
	return slugs
}

// RangeFilterSlugs 回傳分類中可作為數值範圍篩選與排序的欄位 slug
func (c Category) RangeFilterSlugs() []string {
	var slugs []string
	for _, attribute := range c.FilterAttributes {
		if attribute.FilterType == FilterTypeRangeInput {
			slugs = append(slugs, attribute.Slug)
		}
	}
	return slugs
}
