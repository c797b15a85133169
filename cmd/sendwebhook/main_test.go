package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/PayHook/internal/pkg/webhook"
)

func TestBuildDelivery_SignatureVerifies(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	d := delivery{
		Secret:      "test-secret",
		ID:          "1dd2854e-3a79-4548-ae36-97e4a18ebf81",
		Amount:      "100.50",
		Currency:    "ETB",
		Cause:       "Payment",
		FullName:    "Abebe Kebede",
		AccountName: "abebekebede1",
		InvoiceURL:  "https://yayawallet.com/en/invoice/xxxx",
	}

	body, signature, err := buildDelivery(d, now)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"amount":100.50`)
	assert.Contains(t, string(body), `"timestamp":1700000000`)

	p, err := webhook.ParsePayload(body)
	require.NoError(t, err)
	require.NoError(t, p.Validate())

	verifier := webhook.NewSignatureService(webhook.SignatureConfig{
		Secret: "test-secret",
		Now:    func() time.Time { return now },
	})
	ok, err := verifier.Verify(signature, p)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBuildDelivery_GeneratesID(t *testing.T) {
	d := delivery{Secret: "s", Amount: "1"}
	body, _, err := buildDelivery(d, time.Now())
	require.NoError(t, err)

	p, err := webhook.ParsePayload(body)
	require.NoError(t, err)
	assert.Len(t, p.ID, 36)
}

func TestBuildDelivery_RejectsBadAmount(t *testing.T) {
	_, _, err := buildDelivery(delivery{Secret: "s", Amount: "ten"}, time.Now())
	assert.Error(t, err)
}
