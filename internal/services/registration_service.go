package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"event-portal/internal/status"
	"event-portal/models"
	"event-portal/monitoring"

	"go.uber.org/zap"
)

type RegistrationResult struct {
	EventID         models.ID `json:"event_id"`
	ParticipantID   models.ID `json:"participant_id"`
	RequiresPayment bool      `json:"requires_payment"`
}

type RegistrationService struct {
	backend Backend
	cache   *StatusCache
	monitor *monitoring.Monitor
	logger  *zap.Logger
	now     func() time.Time
}

func NewRegistrationService(backend Backend, cache *StatusCache, monitor *monitoring.Monitor, logger *zap.Logger) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		backend: backend,
		cache:   cache,
		monitor: monitor,
		logger:  logger,
		now:     time.Now,
	}
}

// Register submits a registration for the session's user. Local checks
// (sign-in, required answers, deadline) run before any network call. The
// current registration status is then re-read from the backend, bypassing
// the cache, and an active registration short-circuits with
// status.ErrAlreadyRegistered.
func (s *RegistrationService) Register(ctx context.Context, sess models.Session, ev *models.Event, answers []models.Answer) (*RegistrationResult, error) {
	if !sess.Authenticated() {
		s.monitor.TrackRegistration("unauthenticated")
		return nil, status.ErrUnauthenticated
	}

	if ev.RequireRegistrationForm {
		if err := ValidateAnswers(ev.Questions, answers); err != nil {
			s.monitor.TrackRegistration("invalid")
			return nil, err
		}
		answers = orderAnswers(ev.Questions, answers)
	} else {
		answers = nil
	}

	if !ev.AcceptsRegistrations(s.now()) {
		s.monitor.TrackRegistration("closed")
		return nil, status.ErrRegistrationClosed
	}

	current, err := s.cache.Load(ctx, s.backend, sess, ev.ID, true)
	if err != nil {
		s.monitor.TrackRegistration("error")
		return nil, fmt.Errorf("register: status: %w", err)
	}
	if current.Active() {
		s.monitor.TrackRegistration("conflict")
		return nil, status.ErrAlreadyRegistered
	}

	receipt, err := s.backend.RegisterParticipant(ctx, sess, models.RegistrationRequest{
		EventID: ev.ID,
		Answers: answers,
	})
	if err != nil {
		if errors.Is(err, status.ErrAlreadyRegistered) {
			s.cache.Invalidate(ctx, ev.ID, sess.Subject())
			s.monitor.TrackRegistration("conflict")
			return nil, status.ErrAlreadyRegistered
		}
		s.monitor.TrackRegistration("error")
		s.logger.Warn("registration failed", zap.String("event_id", ev.ID.String()), zap.Error(err))
		return nil, fmt.Errorf("register: %w", err)
	}

	s.cache.Invalidate(ctx, ev.ID, sess.Subject())
	s.monitor.TrackRegistration("created")
	s.logger.Info("registered participant",
		zap.String("event_id", ev.ID.String()),
		zap.String("participant_id", receipt.ParticipantID.String()),
	)

	return &RegistrationResult{
		EventID:         ev.ID,
		ParticipantID:   receipt.ParticipantID,
		RequiresPayment: ev.RequiresPayment() || receipt.RequiresPayment,
	}, nil
}

// ValidateAnswers reports every required question without a non-empty
// answer, in question order.
func ValidateAnswers(questions []models.Question, answers []models.Answer) error {
	given := make(map[models.ID]models.AnswerValue, len(answers))
	for _, a := range answers {
		given[a.QuestionID] = a.Value
	}

	var missing []string
	for _, q := range questions {
		if !q.Required {
			continue
		}
		if v, ok := given[q.ID]; !ok || v.IsEmpty() {
			missing = append(missing, q.Label)
		}
	}
	if len(missing) > 0 {
		return &status.MissingFieldsError{Labels: missing}
	}
	return nil
}

// orderAnswers keeps answers to known questions, in question order, and
// drops blank optional ones.
func orderAnswers(questions []models.Question, answers []models.Answer) []models.Answer {
	given := make(map[models.ID]models.AnswerValue, len(answers))
	for _, a := range answers {
		given[a.QuestionID] = a.Value
	}

	ordered := make([]models.Answer, 0, len(answers))
	for _, q := range questions {
		v, ok := given[q.ID]
		if !ok || v.IsEmpty() {
			continue
		}
		ordered = append(ordered, models.Answer{QuestionID: q.ID, Value: v})
	}
	return ordered
}
