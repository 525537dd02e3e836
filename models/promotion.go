package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// 推廣類型的 slug
const (
	PromotionSlugFixed     = "fixed"
	PromotionSlugHighlight = "highlight"
)

// PromotionType 代表付費推廣的類型（例如置頂、標色）
type PromotionType struct {
	gorm.Model

	Slug        string `gorm:"type:varchar(255);not null"`
	Name        string `gorm:"type:varchar(255);not null"`
	Description string `gorm:"type:text;not null"`
	Index       int    `gorm:"not null;default:0"`
	Note        string `gorm:"type:varchar(255)"`

	Options []PromotionOption `gorm:"foreignKey:TypeID"`
}

// PromotionOption 代表推廣類型的付費方案（天數與價格）
// 價格以分為單位儲存，避免浮點誤差
type PromotionOption struct {
	gorm.Model

	TypeID     uint  `gorm:"not null;<-:create"`
	TermDays   int   `gorm:"not null"`
	PriceCents int64 `gorm:"not null"`

	Type PromotionType `gorm:"foreignKey:TypeID"`
}

// Promotion 代表物品與推廣類型的關聯
// disabled_at 是推廣的失效時間；到期時由排程任務刪除此列，
// 因此「生效中」的定義就是列尚未被刪除
type Promotion struct {
	gorm.Model

	ItemID     uint `gorm:"not null;<-:create"`
	TypeID     *uint
	DisabledAt time.Time

	Item Item           `gorm:"foreignKey:ItemID"`
	Type *PromotionType `gorm:"foreignKey:TypeID"`
}

// PaymentHistory 代表付款完成後的稽核紀錄（不可變）
// 物品之後被刪除時 item_id 會設為 NULL，紀錄本身保留
type PaymentHistory struct {
	gorm.Model

	PaymentIntent string `gorm:"type:varchar(255);not null"`
	UserID        *uint
	ItemID        *uint
	TotalCents    int64 `gorm:"not null"`

	User    *User             `gorm:"foreignKey:UserID"`
	Item    *Item             `gorm:"foreignKey:ItemID"`
	Options []PromotionOption `gorm:"many2many:payment_history_options"`
}

// EligiblePromotionOptions 計算物品仍可購買的推廣方案
// 只保留同時滿足以下條件的方案：
//  1. 方案屬於物品分類所允許的推廣類型
//  2. 同一推廣類型只保留請求順序中的第一個方案
//  3. 物品尚未持有同類型的生效中推廣
//
// 回傳保留的方案（依請求順序）與其價格總和
func EligiblePromotionOptions(db *gorm.DB, item *Item, requestedIDs []uint) ([]PromotionOption, int64, error) {
	const op = "EligiblePromotionOptions"
	if item.CategoryID == nil || len(requestedIDs) == 0 {
		return nil, 0, nil
	}

	// 分類允許的推廣方案 id
	var allowedIDs []uint
	result := db.Model(&PromotionOption{}).
		Where("type_id IN (SELECT promotion_type_id FROM category_promotion_types WHERE category_id = ?)", *item.CategoryID).
		Pluck("id", &allowedIDs)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("[%s] Fail to list allowed option ids, err=%w", op, result.Error)
	}
	allowed := make(map[uint]struct{}, len(allowedIDs))
	for _, id := range allowedIDs {
		allowed[id] = struct{}{}
	}

	// 物品已持有的推廣類型 slug
	var activeSlugs []string
	result = db.Model(&Promotion{}).
		Joins("JOIN promotion_types ON promotion_types.id = promotions.type_id").
		Where("promotions.item_id = ?", item.ID).
		Pluck("promotion_types.slug", &activeSlugs)
	if result.Error != nil {
		return nil, 0, fmt.Errorf("[%s] Fail to list active promotion types, err=%w", op, result.Error)
	}
	activeTypes := make(map[string]struct{}, len(activeSlugs))
	for _, slug := range activeSlugs {
		activeTypes[slug] = struct{}{}
	}

	// 一次取出請求的方案，再依請求順序逐一檢查
	var options []PromotionOption
	if result := db.Preload("Type").Where("id IN ?", requestedIDs).Find(&options); result.Error != nil {
		return nil, 0, fmt.Errorf("[%s] Fail to load requested options, err=%w", op, result.Error)
	}
	byID := make(map[uint]PromotionOption, len(options))
	for _, option := range options {
		byID[option.ID] = option
	}

	var kept []PromotionOption
	keptTypes := make(map[string]struct{})
	var total int64
	for _, id := range requestedIDs {
		option, ok := byID[id]
		if !ok {
			continue
		}
		if _, ok := allowed[option.ID]; !ok {
			continue
		}
		if _, ok := keptTypes[option.Type.Slug]; ok {
			continue
		}
		if _, ok := activeTypes[option.Type.Slug]; ok {
			continue
		}
		keptTypes[option.Type.Slug] = struct{}{}
		kept = append(kept, option)
		total += option.PriceCents
	}
	return kept, total, nil
}
