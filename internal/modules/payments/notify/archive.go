package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"multipay.dev/app/internal/modules/payments"
	"multipay.dev/app/internal/storage"
)

// Archive writes a JSON receipt per successful payment to object storage
// under receipts/YYYY/MM/<reference>.json.
type Archive struct {
	store storage.Storage
	mult  MultiplierFunc
}

func NewArchive(store storage.Storage, mult MultiplierFunc) *Archive {
	return &Archive{store: store, mult: mult}
}

type archivedReceipt struct {
	PaymentID            string         `json:"payment_id"`
	TransactionReference string         `json:"transaction_reference"`
	ProviderReference    string         `json:"provider_reference,omitempty"`
	Gateway              string         `json:"gateway"`
	Amount               string         `json:"amount"`
	Currency             string         `json:"currency"`
	ProviderAmount       string         `json:"provider_amount,omitempty"`
	ResponseCode         string         `json:"response_code,omitempty"`
	ResponseDescription  string         `json:"response_description,omitempty"`
	ProviderDate         *time.Time     `json:"provider_date,omitempty"`
	Channel              string         `json:"channel"`
	SettledAt            time.Time      `json:"settled_at"`
	Metadata             map[string]any `json:"metadata,omitempty"`
}

// Key returns the object key a payment's receipt is stored under.
func Key(p payments.Payment) string {
	t := p.CreatedAt
	if t.IsZero() {
		t = time.Now()
	}
	return "receipts/" + t.UTC().Format("2006/01") + "/" + p.TransactionReference + ".json"
}

func (a *Archive) Publish(ctx context.Context, ev payments.PaymentSettled) error {
	p := ev.Payment
	rec := archivedReceipt{
		PaymentID:            p.ID,
		TransactionReference: p.TransactionReference,
		Gateway:              p.Gateway,
		Amount:               p.Amount.StringFixed(2),
		Currency:             p.Currency,
		ProviderAmount:       majorAmount(p, a.mult),
		ProviderDate:         p.ProviderDate,
		Channel:              string(ev.Channel),
		SettledAt:            ev.SettledAt.UTC(),
		Metadata:             p.Metadata,
	}
	if p.ProviderReference != nil {
		rec.ProviderReference = *p.ProviderReference
	}
	if p.ResponseCode != nil {
		rec.ResponseCode = *p.ResponseCode
	}
	if p.ResponseDescription != nil {
		rec.ResponseDescription = *p.ResponseDescription
	}

	body, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return sinkErr("archive", p, err)
	}
	if _, err := a.store.Put(ctx, bytes.NewReader(body), storage.PutInput{
		Key:         Key(p),
		Filename:    p.TransactionReference + ".json",
		ContentType: "application/json",
		Size:        int64(len(body)),
	}); err != nil {
		return sinkErr("archive", p, err)
	}
	return nil
}
