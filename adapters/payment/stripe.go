package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// CheckoutMetadata 是嵌入付款 session 的不透明中繼資料
// 付款完成的 webhook 事件會帶回相同內容，用於還原購買的物品與方案
type CheckoutMetadata struct {
	ItemID     uint
	OptionIDs  []uint
	TotalCents int64
}

// Encode 將中繼資料轉為付款服務接受的字串鍵值對
func (m CheckoutMetadata) Encode() map[string]string {
	ids := make([]string, len(m.OptionIDs))
	for i, id := range m.OptionIDs {
		ids[i] = strconv.FormatUint(uint64(id), 10)
	}
	return map[string]string{
		"item_id":     strconv.FormatUint(uint64(m.ItemID), 10),
		"option_ids":  strings.Join(ids, ","),
		"total_price": strconv.FormatInt(m.TotalCents, 10),
	}
}

// DecodeCheckoutMetadata 從付款服務回傳的鍵值對還原中繼資料
func DecodeCheckoutMetadata(values map[string]string) (CheckoutMetadata, error) {
	const op = "DecodeCheckoutMetadata"
	var meta CheckoutMetadata
	itemID, err := strconv.ParseUint(values["item_id"], 10, 64)
	if err != nil {
		return meta, fmt.Errorf("[%s] Invalid item_id %q, err=%w", op, values["item_id"], err)
	}
	meta.ItemID = uint(itemID)
	for _, raw := range strings.Split(values["option_ids"], ",") {
		if raw == "" {
			continue
		}
		optionID, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return meta, fmt.Errorf("[%s] Invalid option id %q, err=%w", op, raw, err)
		}
		meta.OptionIDs = append(meta.OptionIDs, uint(optionID))
	}
	if len(meta.OptionIDs) == 0 {
		return meta, fmt.Errorf("[%s] Empty option_ids", op)
	}
	total, err := strconv.ParseInt(values["total_price"], 10, 64)
	if err != nil {
		return meta, fmt.Errorf("[%s] Invalid total_price %q, err=%w", op, values["total_price"], err)
	}
	meta.TotalCents = total
	return meta, nil
}

// LineItem 是付款 session 中的單一收費項目
type LineItem struct {
	Name       string
	PriceCents int64
}

// Gateway 封裝對 Stripe 的操作
// 包含建立 checkout session 與驗證 webhook 事件簽章
type Gateway struct {
	api           *client.API
	currency      string
	webhookSecret string
}

func NewGateway(secretKey, webhookSecret, currency string) *Gateway {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &Gateway{
		api:           api,
		currency:      currency,
		webhookSecret: webhookSecret,
	}
}

// CreateCheckoutSession 建立一次性的付款 session 並回傳其 id
// 收費金額一律使用呼叫端提供的現價，失敗時不重試
func (g *Gateway) CreateCheckoutSession(ctx context.Context, lines []LineItem, meta CheckoutMetadata, successURL, cancelURL string) (string, error) {
	const op = "CreateCheckoutSession"
	lineItems := make([]*stripe.CheckoutSessionLineItemParams, len(lines))
	for i, line := range lines {
		lineItems[i] = &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(g.currency),
				UnitAmount: stripe.Int64(line.PriceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
			},
			Quantity: stripe.Int64(1),
		}
	}
	params := &stripe.CheckoutSessionParams{
		Params: stripe.Params{
			Context: ctx,
		},
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems:          lineItems,
		SuccessURL:         stripe.String(successURL),
		CancelURL:          stripe.String(cancelURL),
	}
	for key, value := range meta.Encode() {
		params.AddMetadata(key, value)
	}
	checkoutSession, err := g.api.CheckoutSessions.New(params)
	if err != nil {
		return "", fmt.Errorf("[%s] Fail to create checkout session, err=%w", op, err)
	}
	return checkoutSession.ID, nil
}

// CompletedCheckout 是驗證過的付款完成事件內容
type CompletedCheckout struct {
	PaymentIntentID string
	Metadata        CheckoutMetadata
}

// VerifyEvent 驗證 webhook 請求的簽章並解析事件
// 簽章不合法或內容無法解析時回傳錯誤，呼叫端不應產生任何副作用
func (g *Gateway) VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error) {
	const op = "VerifyEvent"
	event, err := webhook.ConstructEvent(payload, signatureHeader, g.webhookSecret)
	if err != nil {
		return stripe.Event{}, fmt.Errorf("[%s] Fail to verify webhook event, err=%w", op, err)
	}
	return event, nil
}

// ParseCompletedCheckout 從 checkout.session.completed 事件取出付款內容
func ParseCompletedCheckout(event stripe.Event) (CompletedCheckout, error) {
	const op = "ParseCompletedCheckout"
	var checkoutSession stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &checkoutSession); err != nil {
		return CompletedCheckout{}, fmt.Errorf("[%s] Fail to parse checkout session, err=%w", op, err)
	}
	meta, err := DecodeCheckoutMetadata(checkoutSession.Metadata)
	if err != nil {
		return CompletedCheckout{}, err
	}
	var intentID string
	if checkoutSession.PaymentIntent != nil {
		intentID = checkoutSession.PaymentIntent.ID
	}
	return CompletedCheckout{
		PaymentIntentID: intentID,
		Metadata:        meta,
	}, nil
}
