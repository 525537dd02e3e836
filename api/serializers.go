package api

import (
	"fmt"
	"time"

	"github.com/samber/lo"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gorm.io/datatypes"

	"furima/models"
)

var pricePrinter = message.NewPrinter(language.English)

// formatPrice 將物品屬性中的租金或售價轉為顯示用字串
// 帶有 no_price 旗標的物品顯示為 Free；兩者皆無時回傳 nil
func formatPrice(attributes datatypes.JSONMap) *string {
	if value, ok := attributeInt(attributes, "rent"); ok {
		return lo.ToPtr(pricePrinter.Sprintf("$%d", value))
	}
	if value, ok := attributeInt(attributes, "price"); ok {
		if flag, _ := attributes["no_price"].(bool); flag {
			return lo.ToPtr("Free")
		}
		return lo.ToPtr(pricePrinter.Sprintf("$%d", value))
	}
	return nil
}

func attributeInt(attributes datatypes.JSONMap, key string) (int64, bool) {
	switch value := attributes[key].(type) {
	case float64:
		return int64(value), true
	case int64:
		return value, true
	case int:
		return int64(value), true
	}
	return 0, false
}

type itemSummary struct {
	ID          uint      `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Location    string    `json:"location"`
	Price       *string   `json:"price"`
	Image       *string   `json:"image"`
	UpdatedAt   time.Time `json:"updated_at"`
	Promotions  []string  `json:"promotions"`
}

// newItemSummary 組出物品列表的單筆回應
// 需要預先載入 Category、Location、Images 與 Promotions.Type
func newItemSummary(item models.Item) itemSummary {
	summary := itemSummary{
		ID:          item.ID,
		Title:       item.Title,
		Description: item.Description,
		Price:       formatPrice(item.Attributes),
		UpdatedAt:   item.UpdatedAt,
		Promotions:  []string{},
	}
	if item.Category != nil {
		summary.Category = item.Category.Name
	}
	if item.Location != nil {
		summary.Location = fmt.Sprintf("%s, %s", item.Location.Name, item.Location.StateCode)
	}
	if len(item.Images) > 0 {
		summary.Image = lo.ToPtr(item.Images[0].URL)
	}
	for _, promotion := range item.Promotions {
		if promotion.Type != nil {
			summary.Promotions = append(summary.Promotions, promotion.Type.Slug)
		}
	}
	return summary
}

func newItemSummaries(items []models.Item) []itemSummary {
	return lo.Map(items, func(item models.Item, _ int) itemSummary {
		return newItemSummary(item)
	})
}

type categoryPayload struct {
	ID       uint   `json:"id"`
	Name     string `json:"name"`
	Title    string `json:"title"`
	Level    int    `json:"level"`
	ParentID *uint  `json:"parent"`
}

func newCategoryPayload(category models.Category) categoryPayload {
	return categoryPayload{
		ID:       category.ID,
		Name:     category.Name,
		Title:    category.Title,
		Level:    category.Level,
		ParentID: category.ParentID,
	}
}

type attributeOptionPayload struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type fieldAttributePayload struct {
	Name      string                   `json:"name"`
	Slug      string                   `json:"slug"`
	FieldType string                   `json:"field_type"`
	Options   []attributeOptionPayload `json:"options"`
}

func newFieldAttributePayload(attribute models.Attribute) fieldAttributePayload {
	payload := fieldAttributePayload{
		Name:      attribute.Name,
		Slug:      attribute.Slug,
		FieldType: attribute.FieldType,
		Options:   []attributeOptionPayload{},
	}
	if attribute.HasOptions() {
		for _, option := range attribute.Options {
			payload.Options = append(payload.Options, attributeOptionPayload{Name: option.Name, Value: option.Value})
		}
	}
	return payload
}

type filterAttributePayload struct {
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	FilterType string `json:"filter_type"`
}

type promotionOptionPayload struct {
	ID         uint  `json:"id"`
	TermDays   int   `json:"term"`
	PriceCents int64 `json:"price"`
}

type promotionTypePayload struct {
	Slug        string                   `json:"slug"`
	Name        string                   `json:"name"`
	Description string                   `json:"description"`
	Options     []promotionOptionPayload `json:"options"`
}

func newPromotionTypePayload(promotionType models.PromotionType) promotionTypePayload {
	payload := promotionTypePayload{
		Slug:        promotionType.Slug,
		Name:        promotionType.Name,
		Description: promotionType.Description,
		Options:     []promotionOptionPayload{},
	}
	for _, option := range promotionType.Options {
		payload.Options = append(payload.Options, promotionOptionPayload{
			ID:         option.ID,
			TermDays:   option.TermDays,
			PriceCents: option.PriceCents,
		})
	}
	return payload
}

type locationPayload struct {
	ID               uint   `json:"id"`
	Name             string `json:"name"`
	NameWithPostcode string `json:"name_with_postcode"`
	StateCode        string `json:"state_code"`
	Level            int    `json:"level"`
	ParentID         *uint  `json:"parent"`
}

func newLocationPayload(location models.Location) locationPayload {
	return locationPayload{
		ID:               location.ID,
		Name:             location.Name,
		NameWithPostcode: location.NameWithPostcode,
		StateCode:        location.StateCode,
		Level:            location.Level,
		ParentID:         location.ParentID,
	}
}

type responsePayload struct {
	ID         uint      `json:"id"`
	SenderID   *uint     `json:"sender"`
	ReceiverID *uint     `json:"receiver"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

func newResponsePayload(response models.Response) responsePayload {
	return responsePayload{
		ID:         response.ID,
		SenderID:   response.SenderID,
		ReceiverID: response.ReceiverID,
		Content:    response.Content,
		CreatedAt:  response.CreatedAt,
	}
}

type participantPayload struct {
	ID           uint             `json:"id"`
	ThreadID     uint             `json:"thread"`
	ItemID       *uint            `json:"item"`
	ItemTitle    string           `json:"item_title"`
	OpponentID   *uint            `json:"opponent"`
	OpponentName string           `json:"opponent_name"`
	LastResponse *responsePayload `json:"last_response"`
	IsRead       bool             `json:"is_read"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// newParticipantPayload 組出私訊串列表的單筆回應
// 需要預先載入 Thread.Item、Opponent 與 LastResponse
func newParticipantPayload(participant models.Participant) participantPayload {
	payload := participantPayload{
		ID:        participant.ID,
		ThreadID:  participant.ThreadID,
		ItemID:    participant.Thread.ItemID,
		IsRead:    participant.IsRead,
		UpdatedAt: participant.UpdatedAt,
	}
	if participant.Thread.Item != nil {
		payload.ItemTitle = participant.Thread.Item.Title
	}
	payload.OpponentID = participant.OpponentID
	if participant.Opponent != nil {
		payload.OpponentName = participant.Opponent.Username
	}
	if participant.LastResponse != nil {
		payload.LastResponse = lo.ToPtr(newResponsePayload(*participant.LastResponse))
	}
	return payload
}
