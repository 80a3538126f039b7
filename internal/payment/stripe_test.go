package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopsphere/shopsphere-api/internal/service"
)

const testWebhookSecret = "whsec_test"

func sign(payload []byte, secret string, ts time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts.Unix(), payload)
	return fmt.Sprintf("t=%d,v1=%s", ts.Unix(), hex.EncodeToString(mac.Sum(nil)))
}

func eventPayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "evt_1",
		"object":      "event",
		"type":        service.EventCheckoutCompleted,
		"api_version": "2020-08-27",
		"data": map[string]any{
			"object": map[string]any{
				"id":       "cs_test_1",
				"object":   "checkout.session",
				"metadata": map[string]string{"orderId": "order-1"},
			},
		},
	})
	require.NoError(t, err)
	return payload
}

func TestStripeGateway_ParseWebhook(t *testing.T) {
	g := NewStripeGateway("", testWebhookSecret)
	payload := eventPayload(t)

	ev, err := g.ParseWebhook(payload, sign(payload, testWebhookSecret, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, service.EventCheckoutCompleted, ev.Type)

	var obj struct {
		Metadata map[string]string `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(ev.Data, &obj))
	assert.Equal(t, "order-1", obj.Metadata["orderId"])
}

func TestStripeGateway_ParseWebhook_Rejects(t *testing.T) {
	g := NewStripeGateway("", testWebhookSecret)
	payload := eventPayload(t)

	_, err := g.ParseWebhook(payload, sign(payload, "whsec_other", time.Now()))
	assert.Error(t, err)

	_, err = g.ParseWebhook(payload, sign(payload, testWebhookSecret, time.Now().Add(-time.Hour)))
	assert.Error(t, err, "stale timestamp")

	tampered := append([]byte{}, payload...)
	tampered[len(tampered)-2] = ' '
	_, err = g.ParseWebhook(tampered, sign(payload, testWebhookSecret, time.Now()))
	assert.Error(t, err)

	_, err = NewStripeGateway("", "").ParseWebhook(payload, "t=1,v1=00")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestStripeGateway_CheckoutWithoutKey(t *testing.T) {
	_, err := NewStripeGateway("", "").CreateCheckoutSession(context.Background(), service.CheckoutRequest{})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLineItems(t *testing.T) {
	items := lineItems(service.CheckoutRequest{
		Currency: "usd",
		Lines: []service.CheckoutLine{
			{Name: "Widget", Image: "/img.jpg", ProductID: "p1", UnitAmount: 1999, Quantity: 2},
			{Name: "Sales Tax", UnitAmount: 400, Quantity: 1},
		},
	})
	require.Len(t, items, 2)
	assert.Equal(t, int64(1999), *items[0].PriceData.UnitAmount)
	assert.Equal(t, int64(2), *items[0].Quantity)
	assert.Equal(t, "p1", items[0].PriceData.ProductData.Metadata["productId"])
	assert.Nil(t, items[1].PriceData.ProductData.Images)
}
