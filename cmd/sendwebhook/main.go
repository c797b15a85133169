package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/PayHook/internal/pkg/env"
	"github.com/ManuelReschke/PayHook/internal/pkg/webhook"
)

// delivery holds everything needed to build and post one signed notification.
type delivery struct {
	URL     string
	Header  string
	Secret  string
	Timeout time.Duration

	ID          string
	Amount      string
	Currency    string
	CreatedAt   int64
	Timestamp   int64
	Cause       string
	FullName    string
	AccountName string
	InvoiceURL  string
}

var opts delivery

var rootCmd = &cobra.Command{
	Use:   "sendwebhook",
	Short: "Send a signed test notification to a PayHook endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if opts.Secret == "" {
			return fmt.Errorf("--secret is required (or set WEBHOOK_SECRET_KEY)")
		}
		body, signature, err := buildDelivery(opts, time.Now())
		if err != nil {
			return err
		}

		status, response, err := post(opts, body, signature)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Status: %d\n%s\n", status, response)
		if status != fiber.StatusOK {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	env.SetupEnvFile()

	f := rootCmd.Flags()
	f.StringVar(&opts.URL, "url", "http://localhost:4000/webhooks/yaya-wallet/", "endpoint to post to")
	f.StringVar(&opts.Header, "header", env.GetEnv("WEBHOOK_SIGNATURE_HEADER", "YAYA-SIGNATURE"), "signature header name")
	f.StringVar(&opts.Secret, "secret", env.GetEnv("WEBHOOK_SECRET_KEY", ""), "shared signing secret")
	f.DurationVar(&opts.Timeout, "timeout", 10*time.Second, "request timeout")

	f.StringVar(&opts.ID, "id", "", "event id (random UUID when empty)")
	f.StringVar(&opts.Amount, "amount", "100", "amount as sent on the wire")
	f.StringVar(&opts.Currency, "currency", "ETB", "currency code")
	f.Int64Var(&opts.CreatedAt, "created-at", 0, "created_at_time in epoch seconds (now when zero)")
	f.Int64Var(&opts.Timestamp, "timestamp", 0, "timestamp in epoch seconds (now when zero)")
	f.StringVar(&opts.Cause, "cause", "Payment", "transaction cause")
	f.StringVar(&opts.FullName, "full-name", "Abebe Kebede", "payer full name")
	f.StringVar(&opts.AccountName, "account-name", "abebekebede1", "payer account name")
	f.StringVar(&opts.InvoiceURL, "invoice-url", "https://yayawallet.com/en/invoice/xxxx", "invoice URL")
}

// buildDelivery renders the JSON body and its signature. Amount and the two
// timestamps go out as JSON numbers, like the provider sends them.
func buildDelivery(d delivery, now time.Time) ([]byte, string, error) {
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}
	if _, err := strconv.ParseFloat(d.Amount, 64); err != nil {
		return nil, "", fmt.Errorf("invalid --amount %q: %w", d.Amount, err)
	}
	createdAt := d.CreatedAt
	if createdAt == 0 {
		createdAt = now.Unix()
	}
	timestamp := d.Timestamp
	if timestamp == 0 {
		timestamp = now.Unix()
	}

	body, err := json.Marshal(map[string]interface{}{
		"id":              id,
		"amount":          json.Number(d.Amount),
		"currency":        d.Currency,
		"created_at_time": json.Number(strconv.FormatInt(createdAt, 10)),
		"timestamp":       json.Number(strconv.FormatInt(timestamp, 10)),
		"cause":           d.Cause,
		"full_name":       d.FullName,
		"account_name":    d.AccountName,
		"invoice_url":     d.InvoiceURL,
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode payload: %w", err)
	}

	// Sign what the receiver will parse, not what we think we sent.
	payload, err := webhook.ParsePayload(body)
	if err != nil {
		return nil, "", err
	}
	return body, webhook.SignPayload(payload, d.Secret), nil
}

func post(d delivery, body []byte, signature string) (int, string, error) {
	agent := fiber.Post(d.URL).
		ContentType(fiber.MIMEApplicationJSON).
		Set(d.Header, signature).
		Body(body).
		Timeout(d.Timeout)

	status, response, errs := agent.Bytes()
	if len(errs) > 0 {
		return 0, "", fmt.Errorf("request to %s failed: %w", d.URL, errs[0])
	}
	return status, string(response), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
