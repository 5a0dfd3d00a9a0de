package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lithammer/shortuuid/v3"
	extErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ManagerOptions contains the configuration for Manager
type ManagerOptions struct {
	DB     *gorm.DB
	Logger *zap.Logger
	Clock  func() time.Time // defaults to time.Now, injectable for tests
}

// Manager owns the subscription lifecycle: creation validation, renewal-date
// derivation, status transitions, and frequency-change application
type Manager struct {
	ManagerOptions
}

// NewManager returns a new Manager for subscriptions
func NewManager(option ManagerOptions) (*Manager, error) {
	if option.DB == nil {
		return nil, fmt.Errorf("nil DB is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	if option.Clock == nil {
		option.Clock = time.Now
	}
	if err := option.DB.AutoMigrate(&Subscription{}); err != nil {
		return nil, extErrors.Wrap(err, "Cannot initialize subscription.Manager")
	}
	return &Manager{
		ManagerOptions: option,
	}, nil
}

// CreateOption contains the fields for creating a subscription.
// A zero StartDate means "now".
type CreateOption struct {
	UserID        string
	Name          string
	Price         float64
	Currency      Currency
	Frequency     Frequency
	Category      Category
	PaymentMethod string
	StartDate     time.Time
}

// Create validates the fields, rejects duplicate active subscriptions by
// name, derives the renewal date, and persists the record as active
func (m *Manager) Create(ctx context.Context, opt CreateOption) (*Subscription, error) {
	if len(opt.UserID) == 0 {
		return nil, fmt.Errorf("empty UserID is invalid")
	}
	if opt.Currency == "" {
		opt.Currency = CurrencyUSD
	}
	if err := validateFields(opt.Name, opt.Price, opt.Currency, opt.Frequency, opt.Category, opt.PaymentMethod); err != nil {
		return nil, err
	}

	existing, err := m.findActiveByName(ctx, opt.UserID, opt.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		conflict := &ConflictError{
			Name:              opt.Name,
			ExistingFrequency: existing.Frequency,
		}
		if existing.Frequency != opt.Frequency {
			// caller is expected to update or cancel the existing one first
			conflict.ExistingID = existing.ID
		}
		return nil, conflict
	}

	start := opt.StartDate
	if start.IsZero() {
		start = m.Clock()
	}
	renewal, err := CalculateRenewalDate(start, opt.Frequency)
	if err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:            shortuuid.New(),
		UserID:        opt.UserID,
		Name:          opt.Name,
		Price:         opt.Price,
		Currency:      opt.Currency,
		Frequency:     opt.Frequency,
		Category:      opt.Category,
		PaymentMethod: opt.PaymentMethod,
		Status:        StatusActive,
		StartDate:     start,
		RenewalDate:   renewal,
	}
	// a backdated start can place the whole first period in the past; the
	// expiry check applies at creation like on every other write
	if sub.expiredAt(m.Clock()) {
		sub.Status = StatusExpired
	}
	result := m.DB.WithContext(ctx).Create(sub)
	if result.Error != nil {
		m.Logger.Error("Unable to create new subscription in database",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot create subscription")
	}
	return sub, nil
}

// GetOption identifies one subscription scoped to its owner
type GetOption struct {
	UserID         string
	SubscriptionID string
}

// Get returns the subscription, applying the expiry check first. A record
// owned by somebody else returns ErrNotFound.
func (m *Manager) Get(ctx context.Context, opt GetOption) (*Subscription, error) {
	if len(opt.UserID) == 0 {
		return nil, fmt.Errorf("empty UserID is invalid")
	}
	if len(opt.SubscriptionID) == 0 {
		return nil, fmt.Errorf("empty SubscriptionID is invalid")
	}

	var sub Subscription
	result := m.DB.WithContext(ctx).
		Where("id = ?", opt.SubscriptionID).
		Where("user_id = ?", opt.UserID).
		First(&sub)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get subscription by id")
	}

	if err := m.refreshExpiry(ctx, &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// GetByID is the unscoped, side-effect-free read used by the reminder
// sequence and the renewal rollover. nil without error means not found.
func (m *Manager) GetByID(ctx context.Context, id string) (*Subscription, error) {
	if len(id) == 0 {
		return nil, fmt.Errorf("empty id is invalid")
	}

	var sub Subscription
	result := m.DB.WithContext(ctx).First(&sub, "id = ?", id)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot get subscription by id")
	}
	return &sub, nil
}

// List returns all subscriptions of the user, newest first, applying the
// expiry check to each before returning
func (m *Manager) List(ctx context.Context, userID string) ([]Subscription, error) {
	if len(userID) == 0 {
		return nil, fmt.Errorf("empty UserID is invalid")
	}

	results := make([]Subscription, 0, 1)
	result := m.DB.WithContext(ctx).
		Order("created_at desc").
		Find(&results, "user_id = ?", userID)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, result.Error
	}

	for k := range results {
		if err := m.refreshExpiry(ctx, &results[k]); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Patch contains the updatable fields; nil pointers are left untouched.
// Setting PendingFrequency to an empty Frequency clears a pending change.
type Patch struct {
	Name             *string
	Price            *float64
	Currency         *Currency
	Frequency        *Frequency
	PendingFrequency *Frequency
	Category         *Category
	PaymentMethod    *string
}

// Update applies the patch with the same field-level validation as Create.
// A frequency change takes effect immediately: the renewal date is
// recomputed from the existing start date, not deferred to the next cycle.
// Callers wanting a deferred change set PendingFrequency instead.
func (m *Manager) Update(ctx context.Context, opt GetOption, patch Patch) (*Subscription, error) {
	sub, err := m.Get(ctx, opt)
	if err != nil {
		return nil, err
	}

	if patch.Frequency != nil && *patch.Frequency != sub.Frequency {
		if !validFrequencies[*patch.Frequency] {
			return nil, &ValidationError{Field: "frequency", Reason: "must be one of daily, weekly, monthly, yearly"}
		}
		renewal, err := CalculateRenewalDate(sub.StartDate, *patch.Frequency)
		if err != nil {
			return nil, err
		}
		m.Logger.Info("Frequency changed, renewal date recomputed",
			zap.String("SubscriptionID", sub.ID),
			zap.String("From", string(sub.Frequency)),
			zap.String("To", string(*patch.Frequency)),
			zap.Time("RenewalDate", renewal),
		)
		sub.Frequency = *patch.Frequency
		sub.RenewalDate = renewal
	}

	if patch.Name != nil {
		sub.Name = *patch.Name
	}
	if patch.Price != nil {
		sub.Price = *patch.Price
	}
	if patch.Currency != nil {
		sub.Currency = *patch.Currency
	}
	if patch.Category != nil {
		sub.Category = *patch.Category
	}
	if patch.PaymentMethod != nil {
		sub.PaymentMethod = *patch.PaymentMethod
	}
	if patch.PendingFrequency != nil {
		if len(*patch.PendingFrequency) == 0 {
			sub.PendingFrequency = nil
		} else {
			if !validFrequencies[*patch.PendingFrequency] {
				return nil, &ValidationError{Field: "pendingFrequency", Reason: "must be one of daily, weekly, monthly, yearly"}
			}
			pending := *patch.PendingFrequency
			sub.PendingFrequency = &pending
		}
	}

	if err := validateFields(sub.Name, sub.Price, sub.Currency, sub.Frequency, sub.Category, sub.PaymentMethod); err != nil {
		return nil, err
	}
	if sub.PendingFrequency != nil && *sub.PendingFrequency == sub.Frequency {
		return nil, &ValidationError{Field: "pendingFrequency", Reason: "must differ from frequency"}
	}
	if !sub.RenewalDate.After(sub.StartDate) {
		return nil, &ValidationError{Field: "renewalDate", Reason: "must be after the start date"}
	}

	if err := m.save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Cancel marks the subscription cancelled, leaving the dates untouched.
// The reminder sequence observes the status on its next wake and stops.
func (m *Manager) Cancel(ctx context.Context, opt GetOption) (*Subscription, error) {
	sub, err := m.Get(ctx, opt)
	if err != nil {
		return nil, err
	}
	if sub.Status == StatusCancelled {
		return nil, &InvalidStateError{Op: "cancel", Status: sub.Status}
	}

	sub.Status = StatusCancelled
	if err := m.save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Delete removes the subscription permanently and returns the removed record
func (m *Manager) Delete(ctx context.Context, opt GetOption) (*Subscription, error) {
	sub, err := m.Get(ctx, opt)
	if err != nil {
		return nil, err
	}

	result := m.DB.WithContext(ctx).
		Where("user_id = ?", opt.UserID).
		Delete(&Subscription{}, "id = ?", sub.ID)
	if result.Error != nil {
		m.Logger.Error("Unable to delete subscription",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot delete subscription")
	}
	if result.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return sub, nil
}

// Renew rolls the subscription over into its next billing period: the old
// renewal date becomes the new start date. A pending frequency change is
// adopted here, cleared, and the renewal date recomputed under the new
// frequency. Renew does not reactivate cancelled or expired subscriptions.
func (m *Manager) Renew(ctx context.Context, id string) (*Subscription, error) {
	sub, err := m.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNotFound
	}

	sub.StartDate = sub.RenewalDate
	renewal, err := CalculateRenewalDate(sub.StartDate, sub.Frequency)
	if err != nil {
		return nil, err
	}
	sub.RenewalDate = renewal

	if sub.PendingFrequency != nil {
		sub.Frequency = *sub.PendingFrequency
		sub.PendingFrequency = nil
		renewal, err := CalculateRenewalDate(sub.StartDate, sub.Frequency)
		if err != nil {
			return nil, err
		}
		sub.RenewalDate = renewal
	}

	if err := m.save(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// findActiveByName returns the user's active subscription with the given
// name, or nil. A record whose renewal date already passed is expired on the
// spot and does not count as a conflict.
func (m *Manager) findActiveByName(ctx context.Context, userID, name string) (*Subscription, error) {
	var existing Subscription
	result := m.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("name = ?", name).
		Where("status = ?", StatusActive).
		First(&existing)

	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return nil, extErrors.Wrap(result.Error, "Cannot look up active subscription by name")
	}

	if err := m.refreshExpiry(ctx, &existing); err != nil {
		return nil, err
	}
	if existing.Status != StatusActive {
		return nil, nil
	}
	return &existing, nil
}

// refreshExpiry applies the time-driven active -> expired transition and
// persists it. Idempotent: an already expired record is left alone, so
// repeated reads flip the status exactly once.
func (m *Manager) refreshExpiry(ctx context.Context, sub *Subscription) error {
	if !sub.expiredAt(m.Clock()) {
		return nil
	}
	sub.Status = StatusExpired
	result := m.DB.WithContext(ctx).Model(&Subscription{}).
		Where("id = ?", sub.ID).
		Update("status", StatusExpired)
	if result.Error != nil {
		m.Logger.Error("Unable to persist expiry",
			zap.String("SubscriptionID", sub.ID),
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot persist expiry")
	}
	return nil
}

// save applies the expiry check before every write, then persists
func (m *Manager) save(ctx context.Context, sub *Subscription) error {
	if sub.expiredAt(m.Clock()) {
		sub.Status = StatusExpired
	}
	result := m.DB.WithContext(ctx).Save(sub)
	if result.Error != nil {
		m.Logger.Error("Database returned error",
			zap.Error(result.Error),
		)
		return extErrors.Wrap(result.Error, "Cannot save subscription")
	}
	return nil
}

func validateFields(name string, price float64, currency Currency, frequency Frequency, category Category, paymentMethod string) error {
	if len(name) < 2 || len(name) > 100 {
		return &ValidationError{Field: "name", Reason: "must be between 2 and 100 characters"}
	}
	if price < 0 {
		return &ValidationError{Field: "price", Reason: "must not be negative"}
	}
	if !validCurrencies[currency] {
		return &ValidationError{Field: "currency", Reason: "must be one of USD, EUR, GBP"}
	}
	if !validFrequencies[frequency] {
		return &ValidationError{Field: "frequency", Reason: "must be one of daily, weekly, monthly, yearly"}
	}
	if !validCategories[category] {
		return &ValidationError{Field: "category", Reason: "unknown category"}
	}
	if len(paymentMethod) == 0 {
		return &ValidationError{Field: "paymentMethod", Reason: "must not be empty"}
	}
	return nil
}
