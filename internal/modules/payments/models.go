package payments

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Status string

const (
	StatusUnsettled Status = "unsettled"
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
)

// Metadata keys read by the payer helpers.
const (
	MetaPayerName  = "payer_name"
	MetaPayerEmail = "payer_email"
	MetaPayerPhone = "payer_phone"
)

// Payment is one attempt to move money through a single gateway.
// Amount is always the value the payer was shown; gateway minor units never
// reach this struct.
type Payment struct {
	ID     string  `gorm:"type:char(36);primaryKey" json:"id"`
	UserID *string `gorm:"type:varchar(64);index:ix_payments_user_id" json:"user_id,omitempty"`

	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency    string          `gorm:"type:char(3);not null" json:"currency"`
	Description string          `gorm:"type:varchar(255);not null" json:"description"`

	TransactionReference string  `gorm:"type:varchar(128);not null;uniqueIndex:ux_payments_transaction_reference" json:"transaction_reference"`
	Gateway              string  `gorm:"type:varchar(64);not null;index:ix_payments_gateway_provider_ref,priority:1" json:"gateway"`
	ProviderReference    *string `gorm:"type:varchar(128);index:ix_payments_gateway_provider_ref,priority:2" json:"provider_reference,omitempty"`

	Status              Status              `gorm:"type:varchar(16);not null;index:ix_payments_status_created,priority:1" json:"status"`
	ResponseCode        *string             `gorm:"type:varchar(64)" json:"response_code,omitempty"`
	ResponseDescription *string             `gorm:"type:text" json:"response_description,omitempty"`
	ProviderAmount      decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"provider_amount"`
	ProviderDate        *time.Time          `gorm:"precision:3" json:"provider_date,omitempty"`

	RetriesCount  int               `gorm:"not null;default:0" json:"retries_count"`
	CompletionURL string            `gorm:"type:varchar(512)" json:"completion_url,omitempty"`
	CustomerIP    string            `gorm:"type:varchar(64)" json:"-"`
	Metadata      datatypes.JSONMap `json:"metadata,omitempty"`

	CreatedAt time.Time      `gorm:"precision:3;not null;index:ix_payments_status_created,priority:2" json:"created_at"`
	UpdatedAt time.Time      `gorm:"precision:3;not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) IsSettled() bool { return p.Status != StatusUnsettled }

func (p *Payment) IsSuccessful() bool { return p.Status == StatusSuccess }

// MetaString returns a string metadata value, or "" when missing.
func (p *Payment) MetaString(key string) string {
	if p.Metadata == nil {
		return ""
	}
	v, ok := p.Metadata[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (p *Payment) PayerName() (string, error)  { return p.payerDetail(MetaPayerName) }
func (p *Payment) PayerEmail() (string, error) { return p.payerDetail(MetaPayerEmail) }
func (p *Payment) PayerPhone() (string, error) { return p.payerDetail(MetaPayerPhone) }

func (p *Payment) payerDetail(key string) (string, error) {
	if v := p.MetaString(key); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s (payment %s)", ErrMissingPayerDetail, key, p.ID)
}

// ProviderAmountInMajorUnits converts the provider-returned amount back to the
// unit the payer saw, using the gateway's multiplier.
func (p *Payment) ProviderAmountInMajorUnits(multiplier decimal.Decimal) decimal.NullDecimal {
	if !p.ProviderAmount.Valid {
		return decimal.NullDecimal{}
	}
	if multiplier.IsZero() {
		return p.ProviderAmount
	}
	return decimal.NewNullDecimal(p.ProviderAmount.Decimal.Div(multiplier))
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
