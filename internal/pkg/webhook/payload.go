package webhook

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Field names in signing order. The order and the absence of a separator
// are shared with every sender and must not change.
var signedFields = []string{
	"id",
	"amount",
	"currency",
	"created_at_time",
	"timestamp",
	"cause",
	"full_name",
	"account_name",
	"invoice_url",
}

// Payload is a provider notification with every signed field kept in the
// textual form the sender used. Numbers keep their JSON literal, so
// 100 stays "100" and 100.50 stays "100.50".
type Payload struct {
	ID            string `json:"id" validate:"required,uuid"`
	Amount        string `json:"amount" validate:"required,amount"`
	Currency      string `json:"currency" validate:"omitempty,max=3"`
	CreatedAtTime string `json:"created_at_time" validate:"required,epoch"`
	Timestamp     string `json:"timestamp" validate:"required,epoch"`
	Cause         string `json:"cause" validate:"required,max=255"`
	FullName      string `json:"full_name" validate:"required,max=255"`
	AccountName   string `json:"account_name" validate:"required,max=100"`
	InvoiceURL    string `json:"invoice_url" validate:"required,max=200,http_url"`

	typeErrors map[string]string
}

// ParsePayload decodes a JSON object body. It fails only when the body is not
// a single JSON object; wrong value types are reported later by Validate.
func ParsePayload(body []byte) (*Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil || raw == nil {
		return nil, ErrMalformedPayload
	}
	if dec.More() {
		return nil, ErrMalformedPayload
	}

	p := &Payload{}
	targets := p.fieldTargets()
	for _, name := range signedFields {
		value, ok := raw[name]
		if !ok || value == nil {
			continue
		}
		switch v := value.(type) {
		case string:
			*targets[name] = v
		case json.Number:
			*targets[name] = v.String()
		default:
			if p.typeErrors == nil {
				p.typeErrors = map[string]string{}
			}
			p.typeErrors[name] = "type"
		}
	}
	return p, nil
}

func (p *Payload) fieldTargets() map[string]*string {
	return map[string]*string{
		"id":              &p.ID,
		"amount":          &p.Amount,
		"currency":        &p.Currency,
		"created_at_time": &p.CreatedAtTime,
		"timestamp":       &p.Timestamp,
		"cause":           &p.Cause,
		"full_name":       &p.FullName,
		"account_name":    &p.AccountName,
		"invoice_url":     &p.InvoiceURL,
	}
}

// Values returns the signed field values in signing order.
func (p *Payload) Values() []string {
	targets := p.fieldTargets()
	out := make([]string, 0, len(signedFields))
	for _, name := range signedFields {
		out = append(out, *targets[name])
	}
	return out
}

// TimestampUnix returns the freshness anchor in epoch seconds.
func (p *Payload) TimestampUnix() (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(p.Timestamp), 10, 64)
}

// CreatedAtUnix returns the provider creation time in epoch seconds.
func (p *Payload) CreatedAtUnix() (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(p.CreatedAtTime), 10, 64)
}

// CurrencyOr returns the sent currency, or def when the sender omitted it.
func (p *Payload) CurrencyOr(def string) string {
	if c := strings.TrimSpace(p.Currency); c != "" {
		return strings.ToUpper(c)
	}
	return def
}
