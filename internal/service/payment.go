package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atinyakov/CourseKeeper/internal/logger"
	"github.com/atinyakov/CourseKeeper/internal/models"
	"github.com/atinyakov/CourseKeeper/internal/repository"
)

// PaymentRepository defines the payment session persistence operations.
type PaymentRepository interface {
	CreatePayment(ctx context.Context, p models.Payment) error
	GetPayment(ctx context.Context, id string) (models.Payment, error)
	TransitionPayment(ctx context.Context, id string, from, to models.PaymentStatus) (bool, error)
}

// Catalog resolves what a paid order grants.
type Catalog interface {
	Stages() []models.Stage
	FindStageByID(id int) (models.Stage, bool)
	FindCourseByID(id int) (models.CourseWithStage, bool)
}

// FullAccessOrderPrefix marks orders that grant the whole catalog.
const FullAccessOrderPrefix = "full_access"

// PaymentRequest is a request to open a payment session.
type PaymentRequest struct {
	Amount      float64
	Currency    string
	Description string
	OrderID     string
	CourseID    int
	StageID     int
}

// PaymentService opens payment sessions and grants purchases on success.
type PaymentService struct {
	payments PaymentRepository
	users    UserRepository
	catalog  Catalog
	log      *zap.Logger
	now      func() time.Time
}

// NewPaymentService constructs a PaymentService.
func NewPaymentService(payments PaymentRepository, users UserRepository, catalog Catalog, log *zap.Logger) *PaymentService {
	return &PaymentService{payments: payments, users: users, catalog: catalog, log: log, now: time.Now}
}

// Create opens a pending payment for userID, which may be empty for
// unauthenticated checkouts.
func (s *PaymentService) Create(ctx context.Context, userID string, req PaymentRequest) (models.Payment, error) {
	switch {
	case req.Amount <= 0:
		return models.Payment{}, fmt.Errorf("%w: amount must be positive", ErrInvalidInput)
	case strings.TrimSpace(req.Currency) == "":
		return models.Payment{}, fmt.Errorf("%w: currency is required", ErrInvalidInput)
	case strings.TrimSpace(req.OrderID) == "":
		return models.Payment{}, fmt.Errorf("%w: orderId is required", ErrInvalidInput)
	case req.CourseID != 0 && req.StageID != 0:
		return models.Payment{}, fmt.Errorf("%w: courseId and stageId are exclusive", ErrInvalidInput)
	}
	if req.CourseID != 0 {
		if _, ok := s.catalog.FindCourseByID(req.CourseID); !ok {
			return models.Payment{}, fmt.Errorf("%w: unknown course %d", ErrInvalidInput, req.CourseID)
		}
	}
	if req.StageID != 0 {
		if _, ok := s.catalog.FindStageByID(req.StageID); !ok {
			return models.Payment{}, fmt.Errorf("%w: unknown stage %d", ErrInvalidInput, req.StageID)
		}
	}

	p := models.Payment{
		ID:          uuid.NewString(),
		UserID:      userID,
		OrderID:     req.OrderID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		CourseID:    req.CourseID,
		StageID:     req.StageID,
		Status:      models.PaymentPending,
		CreatedAt:   s.now(),
	}
	if err := s.payments.CreatePayment(ctx, p); err != nil {
		return models.Payment{}, err
	}
	s.log.Info("payment created",
		zap.String(logger.FieldPaymentID, p.ID),
		zap.String(logger.FieldOrderID, p.OrderID),
		zap.String(logger.FieldUserID, userID),
	)
	return p, nil
}

// Get returns the payment with id.
func (s *PaymentService) Get(ctx context.Context, id string) (models.Payment, error) {
	p, err := s.payments.GetPayment(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return models.Payment{}, ErrNotFound
	}
	return p, err
}

// Complete settles a pending payment. Settling an already settled payment
// returns it unchanged. A successful payment owned by a user grants the
// purchased courses and stages.
func (s *PaymentService) Complete(ctx context.Context, id string, success bool) (models.Payment, error) {
	to := models.PaymentFailed
	if success {
		to = models.PaymentSuccess
	}

	moved, err := s.payments.TransitionPayment(ctx, id, models.PaymentPending, to)
	if err != nil {
		return models.Payment{}, err
	}
	p, err := s.Get(ctx, id)
	if err != nil {
		return models.Payment{}, err
	}
	if !moved {
		return p, nil
	}

	s.log.Info("payment settled",
		zap.String(logger.FieldPaymentID, p.ID),
		zap.String(logger.FieldStatus, string(p.Status)),
	)
	if p.Status != models.PaymentSuccess || p.UserID == "" {
		return p, nil
	}

	courses, stages := s.grants(p)
	if len(courses) == 0 && len(stages) == 0 {
		return p, nil
	}
	if _, err := s.users.GrantPurchases(ctx, p.UserID, courses, stages); err != nil {
		s.log.Error("failed to grant purchase",
			zap.String(logger.FieldPaymentID, p.ID),
			zap.String(logger.FieldUserID, p.UserID),
			zap.Error(err),
		)
		return p, fmt.Errorf("grant purchase: %w", err)
	}
	return p, nil
}

// grants lists the course and stage ids a paid order unlocks.
func (s *PaymentService) grants(p models.Payment) (courses, stages []int) {
	switch {
	case p.CourseID != 0:
		return []int{p.CourseID}, nil
	case p.StageID != 0:
		st, ok := s.catalog.FindStageByID(p.StageID)
		if !ok {
			return nil, nil
		}
		return st.CourseIDs(), []int{st.ID}
	case strings.HasPrefix(p.OrderID, FullAccessOrderPrefix):
		for _, st := range s.catalog.Stages() {
			courses = append(courses, st.CourseIDs()...)
			stages = append(stages, st.ID)
		}
	}
	return courses, stages
}
