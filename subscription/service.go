package subscription

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/zllovesuki/subtrack/auth"
	resp "github.com/zllovesuki/subtrack/response"
	"github.com/zllovesuki/subtrack/spec/broker"
	"github.com/zllovesuki/subtrack/spec/protocol"

	"github.com/go-chi/chi"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

var validate *validator.Validate = validator.New()

// ServiceOptions contains the configuration for Service router
type ServiceOptions struct {
	SubscriptionManager *Manager
	Producer            broker.Producer
	Logger              *zap.Logger
}

// Service is the subscription API router
type Service struct {
	ServiceOptions
}

// NewService will create an instance of the subscription API router
func NewService(option ServiceOptions) (*Service, error) {
	if option.SubscriptionManager == nil {
		return nil, fmt.Errorf("nil SubscriptionManager is invalid")
	}
	if option.Producer == nil {
		return nil, fmt.Errorf("nil Producer is invalid")
	}
	if option.Logger == nil {
		return nil, fmt.Errorf("nil Logger is invalid")
	}
	return &Service{
		ServiceOptions: option,
	}, nil
}

// CreateRequest is the model for creating a subscription
type CreateRequest struct {
	Name          string     `json:"name" validate:"required,min=2,max=100"`
	Price         *float64   `json:"price" validate:"required,gte=0"`
	Currency      string     `json:"currency" validate:"omitempty,oneof=USD EUR GBP"`
	Frequency     string     `json:"frequency" validate:"required,oneof=daily weekly monthly yearly"`
	Category      string     `json:"category" validate:"required"`
	PaymentMethod string     `json:"paymentMethod" validate:"required"`
	StartDate     *time.Time `json:"startDate"`
}

func (s *Service) createSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("UserID", claims.ID))

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Missing or invalid required fields"))
		return
	}

	opt := CreateOption{
		UserID:        claims.ID,
		Name:          req.Name,
		Price:         *req.Price,
		Currency:      Currency(req.Currency),
		Frequency:     Frequency(req.Frequency),
		Category:      Category(req.Category),
		PaymentMethod: req.PaymentMethod,
	}
	if req.StartDate != nil {
		opt.StartDate = *req.StartDate
	}

	sub, err := s.SubscriptionManager.Create(ctx, opt)
	if err != nil {
		s.writeManagerError(w, r, logger, err)
		return
	}

	logger = logger.With(zap.String("SubscriptionID", sub.ID))

	// reminder scheduling is deliberately non-transactional with creation:
	// the subscription stands even if the request cannot be enqueued
	if err := s.Producer.SendReminderStartRequest(&protocol.ReminderStartRequest{
		SubscriptionID: sub.ID,
	}); err != nil {
		logger.Error("Unable to enqueue reminder start request",
			zap.Error(err),
		)
	}

	resp.WriteResponse(w, r, sub, http.StatusCreated)
}

func (s *Service) getSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	subscriptionID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("UserID", claims.ID),
		zap.String("SubscriptionID", subscriptionID),
	)

	sub, err := s.SubscriptionManager.Get(ctx, GetOption{
		UserID:         claims.ID,
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		s.writeManagerError(w, r, logger, err)
		return
	}

	resp.WriteResponse(w, r, sub)
}

func (s *Service) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)

	logger := s.Logger.With(zap.String("UserID", claims.ID))

	results, err := s.SubscriptionManager.List(ctx, claims.ID)
	if err != nil {
		s.writeManagerError(w, r, logger, err)
		return
	}

	resp.WriteResponse(w, r, results)
}

// UpdateRequest is the model for patching a subscription. Omitted fields are
// left untouched; an empty pendingFrequency clears a pending change.
type UpdateRequest struct {
	Name             *string  `json:"name" validate:"omitempty,min=2,max=100"`
	Price            *float64 `json:"price" validate:"omitempty,gte=0"`
	Currency         *string  `json:"currency" validate:"omitempty,oneof=USD EUR GBP"`
	Frequency        *string  `json:"frequency" validate:"omitempty,oneof=daily weekly monthly yearly"`
	PendingFrequency *string  `json:"pendingFrequency" validate:"omitempty,oneof=daily weekly monthly yearly"`
	Category         *string  `json:"category"`
	PaymentMethod    *string  `json:"paymentMethod" validate:"omitempty,min=1"`
}

func (s *Service) updateSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	subscriptionID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("UserID", claims.ID),
		zap.String("SubscriptionID", subscriptionID),
	)

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		resp.WriteError(w, r, resp.ErrInvalidJson())
		return
	}
	if err := validate.Struct(&req); err != nil {
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages("Invalid field values"))
		return
	}

	patch := Patch{
		Name:          req.Name,
		Price:         req.Price,
		PaymentMethod: req.PaymentMethod,
	}
	if req.Currency != nil {
		currency := Currency(*req.Currency)
		patch.Currency = &currency
	}
	if req.Frequency != nil {
		frequency := Frequency(*req.Frequency)
		patch.Frequency = &frequency
	}
	if req.PendingFrequency != nil {
		pending := Frequency(*req.PendingFrequency)
		patch.PendingFrequency = &pending
	}
	if req.Category != nil {
		category := Category(*req.Category)
		patch.Category = &category
	}

	sub, err := s.SubscriptionManager.Update(ctx, GetOption{
		UserID:         claims.ID,
		SubscriptionID: subscriptionID,
	}, patch)
	if err != nil {
		s.writeManagerError(w, r, logger, err)
		return
	}

	resp.WriteResponse(w, r, sub)
}

func (s *Service) cancelSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	subscriptionID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("UserID", claims.ID),
		zap.String("SubscriptionID", subscriptionID),
	)

	sub, err := s.SubscriptionManager.Cancel(ctx, GetOption{
		UserID:         claims.ID,
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		s.writeManagerError(w, r, logger, err)
		return
	}

	resp.WriteResponse(w, r, sub)
}

func (s *Service) renewSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	subscriptionID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("UserID", claims.ID),
		zap.String("SubscriptionID", subscriptionID),
	)

	// the rollover itself operates by bare id, so ownership is checked first
	if _, err := s.SubscriptionManager.Get(ctx, GetOption{
		UserID:         claims.ID,
		SubscriptionID: subscriptionID,
	}); err != nil {
		s.writeManagerError(w, r, logger, err)
		return
	}

	sub, err := s.SubscriptionManager.Renew(ctx, subscriptionID)
	if err != nil {
		s.writeManagerError(w, r, logger, err)
		return
	}

	// the new billing period gets its own reminder sequence, with the same
	// non-transactional coupling as creation
	if err := s.Producer.SendReminderStartRequest(&protocol.ReminderStartRequest{
		SubscriptionID: sub.ID,
	}); err != nil {
		logger.Error("Unable to enqueue reminder start request",
			zap.Error(err),
		)
	}

	resp.WriteResponse(w, r, sub)
}

func (s *Service) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := ctx.Value(auth.Context).(*auth.Claims)
	subscriptionID := chi.URLParam(r, "id")

	logger := s.Logger.With(
		zap.String("UserID", claims.ID),
		zap.String("SubscriptionID", subscriptionID),
	)

	sub, err := s.SubscriptionManager.Delete(ctx, GetOption{
		UserID:         claims.ID,
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		s.writeManagerError(w, r, logger, err)
		return
	}

	resp.WriteResponse(w, r, sub)
}

// writeManagerError maps the Manager's typed errors onto the HTTP vocabulary
func (s *Service) writeManagerError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var vErr *ValidationError
	var cErr *ConflictError
	var sErr *InvalidStateError
	var aErr *InvalidArgumentError

	switch {
	case errors.Is(err, ErrNotFound):
		resp.WriteError(w, r, resp.ErrNotFound().AddMessages("Cannot find subscription with specific ID"))
	case errors.As(err, &vErr):
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(vErr.Error()))
	case errors.As(err, &cErr):
		e := resp.ErrConflict().AddMessages(cErr.Error())
		if len(cErr.ExistingID) > 0 {
			e = e.WithResult(map[string]string{
				"existingSubscriptionId": cErr.ExistingID,
			})
		}
		resp.WriteError(w, r, e)
	case errors.As(err, &sErr):
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(sErr.Error()))
	case errors.As(err, &aErr):
		resp.WriteError(w, r, resp.ErrBadRequest().AddMessages(aErr.Error()))
	default:
		logger.Error("Unable to complete subscription operation",
			zap.Error(err),
		)
		resp.WriteError(w, r, resp.ErrUnexpected())
	}
}

// Router will return the routes under subscription API
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.listSubscriptions)
	r.Post("/", s.createSubscription)
	r.Get("/{id}", s.getSubscription)
	r.Put("/{id}", s.updateSubscription)
	r.Put("/{id}/cancel", s.cancelSubscription)
	r.Put("/{id}/renew", s.renewSubscription)
	r.Delete("/{id}", s.deleteSubscription)

	return r
}
