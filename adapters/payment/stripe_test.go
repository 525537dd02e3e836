package payment_test

import (
	"encoding/json"
	"testing"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"furima/adapters/payment"
)

func TestCheckoutMetadata(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("編碼與解碼保持一致", func(t *testing.T) {
		meta := payment.CheckoutMetadata{
			ItemID:     42,
			OptionIDs:  []uint{1, 2, 3},
			TotalCents: 4500,
		}
		encoded := meta.Encode()
		assert.Equal(t, "42", encoded["item_id"])
		assert.Equal(t, "1,2,3", encoded["option_ids"])
		assert.Equal(t, "4500", encoded["total_price"])

		decoded, err := payment.DecodeCheckoutMetadata(encoded)
		require.NoError(t, err)
		assert.Equal(t, meta, decoded)
	})

	t.Run("缺少方案id時回傳錯誤", func(t *testing.T) {
		_, err := payment.DecodeCheckoutMetadata(map[string]string{
			"item_id":     "42",
			"option_ids":  "",
			"total_price": "4500",
		})
		assert.Error(t, err)
	})

	t.Run("格式不正確時回傳錯誤", func(t *testing.T) {
		_, err := payment.DecodeCheckoutMetadata(map[string]string{
			"item_id":     "abc",
			"option_ids":  "1",
			"total_price": "4500",
		})
		assert.Error(t, err)

		_, err = payment.DecodeCheckoutMetadata(map[string]string{
			"item_id":     "42",
			"option_ids":  "1,x",
			"total_price": "4500",
		})
		assert.Error(t, err)
	})
}

func TestParseCompletedCheckout(t *testing.T) {
	defer goleak.VerifyNone(t)

	raw, err := json.Marshal(map[string]any{
		"payment_intent": "pi_123",
		"metadata": map[string]string{
			"item_id":     "42",
			"option_ids":  "1,2",
			"total_price": "3000",
		},
	})
	require.NoError(t, err)
	event := stripe.Event{
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: raw},
	}

	completed, err := payment.ParseCompletedCheckout(event)
	require.NoError(t, err)
	assert.Equal(t, "pi_123", completed.PaymentIntentID)
	assert.Equal(t, uint(42), completed.Metadata.ItemID)
	assert.Equal(t, []uint{1, 2}, completed.Metadata.OptionIDs)
	assert.Equal(t, int64(3000), completed.Metadata.TotalCents)
}
