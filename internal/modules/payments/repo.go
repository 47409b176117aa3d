package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store is the keyed record store the engine reconciles against.
// ConditionalUpdate is the only way an outcome is written: it must be a
// single compare-and-swap on the current status.
type Store interface {
	Create(ctx context.Context, p *Payment) error
	Find(ctx context.Context, id string) (*Payment, error)
	FindByTransactionReference(ctx context.Context, ref string) (*Payment, error)
	FindByProviderReference(ctx context.Context, gateway, ref string) (*Payment, error)
	ConditionalUpdate(ctx context.Context, id string, expected Status, o Outcome) (bool, error)
	AttachInitiation(ctx context.Context, id string, providerRef string, metadata map[string]any) error
	IncrementRetries(ctx context.Context, id string) error
	ListUnsettled(ctx context.Context, createdBefore time.Time, limit int) ([]Payment, error)
}

type Repo struct{ db *gorm.DB }

func NewRepo(db *gorm.DB) *Repo { return &Repo{db: db} }

func (r *Repo) Create(ctx context.Context, p *Payment) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		if isDup(err) {
			return fmt.Errorf("%w: %s", ErrReferenceTaken, p.TransactionReference)
		}
		return err
	}
	return nil
}

func (r *Repo) Find(ctx context.Context, id string) (*Payment, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *Repo) FindByTransactionReference(ctx context.Context, ref string) (*Payment, error) {
	return r.first(ctx, "transaction_reference = ?", ref)
}

// FindByProviderReference matches any gateway when gateway is empty.
func (r *Repo) FindByProviderReference(ctx context.Context, gateway, ref string) (*Payment, error) {
	if gateway == "" {
		return r.first(ctx, "provider_reference = ?", ref)
	}
	return r.first(ctx, "gateway = ? AND provider_reference = ?", gateway, ref)
}

func (r *Repo) first(ctx context.Context, query string, args ...any) (*Payment, error) {
	var p Payment
	if err := r.db.WithContext(ctx).First(&p, append([]any{query}, args...)...).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *Repo) ConditionalUpdate(ctx context.Context, id string, expected Status, o Outcome) (bool, error) {
	upd := map[string]any{
		"status":               o.Status,
		"response_code":        strPtr(o.Code),
		"response_description": strPtr(o.Description),
		"provider_amount":      o.Amount,
		"provider_date":        o.Date,
		"updated_at":           time.Now(),
	}
	res := r.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(upd)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// AttachInitiation records the provider reference and merges adapter
// metadata. An already-set provider reference is never overwritten.
func (r *Repo) AttachInitiation(ctx context.Context, id string, providerRef string, metadata map[string]any) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p Payment
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}

		upd := map[string]any{"updated_at": time.Now()}
		if providerRef != "" {
			if p.ProviderReference != nil && *p.ProviderReference != providerRef {
				return fmt.Errorf("%w: provider reference already set for payment %s", ErrInvalidPayment, id)
			}
			upd["provider_reference"] = providerRef
		}
		if len(metadata) > 0 {
			merged := datatypes.JSONMap{}
			for k, v := range p.Metadata {
				merged[k] = v
			}
			for k, v := range metadata {
				merged[k] = v
			}
			upd["metadata"] = merged
		}

		q := tx.Model(&Payment{}).Where("id = ?", id)
		if providerRef != "" {
			q = q.Where("provider_reference IS NULL OR provider_reference = ?", providerRef)
		}
		return q.Updates(upd).Error
	})
}

func (r *Repo) IncrementRetries(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Payment{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"retries_count": gorm.Expr("retries_count + 1"),
			"updated_at":    time.Now(),
		}).Error
}

func (r *Repo) ListUnsettled(ctx context.Context, createdBefore time.Time, limit int) ([]Payment, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}
	var out []Payment
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", StatusUnsettled, createdBefore).
		Order("created_at ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func isDup(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1062
	}
	// sqlite without error translation
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
