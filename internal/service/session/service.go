package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/timemachine/backend/internal/model/emotion"
	"github.com/zhouzirui/timemachine/backend/internal/model/scenario"
	"github.com/zhouzirui/timemachine/backend/internal/service/reasoning"
)

var (
	ErrValidation           = errors.New("validation failed")
	ErrPhaseConflict        = errors.New("operation not allowed in current phase")
	ErrSessionNotFound      = scenario.ErrSessionNotFound
	ErrStoreUnavailable     = scenario.ErrStoreUnavailable
	ErrReasoningUnavailable = reasoning.ErrUnavailable
)

// Config tunes the controller's partial-failure policy.
type Config struct {
	// RollbackFailedTurns drops the user's message when the engine fails mid-turn.
	// By default the message is persisted before the engine is called and kept.
	RollbackFailedTurns bool
}

// Service owns the session lifecycle: created -> active -> reflecting -> reported.
type Service struct {
	store    scenario.Store
	reasoner reasoning.Client
	locks    *keyedMutex
	cfg      Config
	logger   *zap.Logger
	now      func() time.Time
}

// NewService wires the controller to its store and reasoning engine.
func NewService(store scenario.Store, reasoner reasoning.Client, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		reasoner: reasoner,
		locks:    newKeyedMutex(),
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Created is returned when a new session starts.
type Created struct {
	ID          string
	OpeningLine string
}

// InitialView rehydrates a chat client that reloads mid-session.
type InitialView struct {
	State       emotion.Vector
	ActorName   string
	OpeningLine string
}

// TurnResult is the actor's reply and the state that replaced the previous one.
type TurnResult struct {
	Reply    string
	NewState emotion.Vector
}

// CreateSession validates the rules, asks the engine for an opening and stores the new session.
// Nothing is written when validation or the engine fails.
func (s *Service) CreateSession(ctx context.Context, rules scenario.Rules) (Created, error) {
	normalized, err := rules.Normalize()
	if err != nil {
		return Created{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	opening, err := s.reasoner.StartSimulation(ctx, normalized)
	if err != nil {
		s.logger.Warn("start simulation failed", zap.Error(err))
		return Created{}, fmt.Errorf("start simulation: %w", err)
	}

	state := opening.InitialState.Clamp()
	record := &scenario.Session{
		Rules:        normalized,
		InitialState: state,
		CurrentState: state,
		ChatLog: []scenario.Message{{
			Sender:    normalized.ActorName,
			Text:      opening.OpeningLine,
			Timestamp: s.now(),
		}},
		Phase: scenario.PhaseCreated,
	}

	id, err := s.store.Create(ctx, record)
	if err != nil {
		return Created{}, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("session created",
		zap.String("session", id),
		zap.String("core_emotion", string(normalized.CoreEmotion)))
	return Created{ID: id, OpeningLine: opening.OpeningLine}, nil
}

// LoadInitialView returns the current state, actor name and opening line.
func (s *Service) LoadInitialView(ctx context.Context, id string) (InitialView, error) {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return InitialView{}, err
	}
	return InitialView{
		State:       record.CurrentState,
		ActorName:   record.Rules.ActorName,
		OpeningLine: record.OpeningLine(),
	}, nil
}

// GetSession returns a read-only snapshot of the whole session.
func (s *Service) GetSession(ctx context.Context, id string) (*scenario.Session, error) {
	return s.store.Get(ctx, id)
}

// SubmitTurn appends the user's message, asks the engine for the actor's reply
// and replaces the current state wholesale with the engine's state. Turns on the
// same session are serialised.
func (s *Service) SubmitTurn(ctx context.Context, id, message string) (TurnResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return TurnResult{}, fmt.Errorf("%w: message is required", ErrValidation)
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return TurnResult{}, err
	}
	defer unlock()

	record, err := s.store.Get(ctx, id)
	if err != nil {
		return TurnResult{}, err
	}
	if !record.Phase.AcceptsTurns() {
		return TurnResult{}, fmt.Errorf("%w: session is %s", ErrPhaseConflict, record.Phase)
	}

	userMsg := scenario.Message{Sender: scenario.SenderUser, Text: message, Timestamp: s.now()}
	if !s.cfg.RollbackFailedTurns {
		if err := s.store.Update(ctx, id, appendMessages(userMsg)); err != nil {
			return TurnResult{}, err
		}
	}

	transcript := append(record.ChatLog, userMsg)
	result, err := s.reasoner.ContinueSimulation(ctx, reasoning.Turn{
		Rules:       record.Rules,
		State:       record.CurrentState,
		Transcript:  transcript,
		UserMessage: message,
	})
	if err != nil {
		s.logger.Warn("continue simulation failed",
			zap.String("session", id),
			zap.Bool("user_message_kept", !s.cfg.RollbackFailedTurns),
			zap.Error(err))
		return TurnResult{}, fmt.Errorf("continue simulation: %w", err)
	}

	newState := result.NewState.Clamp()
	actorMsg := scenario.Message{Sender: record.Rules.ActorName, Text: result.Reply, Timestamp: s.now()}
	pending := []scenario.Message{actorMsg}
	if s.cfg.RollbackFailedTurns {
		pending = []scenario.Message{userMsg, actorMsg}
	}

	err = s.store.Update(ctx, id, func(sess *scenario.Session) error {
		if err := appendMessages(pending...)(sess); err != nil {
			return err
		}
		sess.CurrentState = newState
		sess.Phase = sess.Phase.Advance(scenario.PhaseActive)
		return nil
	})
	if err != nil {
		return TurnResult{}, err
	}

	s.logger.Debug("turn completed",
		zap.String("session", id),
		zap.Int("transcript", len(transcript)+1))
	return TurnResult{Reply: result.Reply, NewState: newState}, nil
}

// RequestHint asks the engine for advice without touching the session.
func (s *Service) RequestHint(ctx context.Context, id string) (reasoning.Hint, error) {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return reasoning.Hint{}, err
	}
	if !record.Phase.AcceptsTurns() {
		return reasoning.Hint{}, fmt.Errorf("%w: session is %s", ErrPhaseConflict, record.Phase)
	}

	hint, err := s.reasoner.GenerateHint(ctx, reasoning.Turn{
		Rules:       record.Rules,
		State:       record.CurrentState,
		Transcript:  record.ChatLog,
		UserMessage: scenario.LastUserMessage(record.ChatLog),
	})
	if err != nil {
		return reasoning.Hint{}, fmt.Errorf("generate hint: %w", err)
	}
	return hint, nil
}

// EndSimulation freezes the transcript. Calling it again is a no-op.
func (s *Service) EndSimulation(ctx context.Context, id string) (scenario.Phase, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return "", err
	}
	defer unlock()

	var phase scenario.Phase
	err = s.store.Update(ctx, id, func(sess *scenario.Session) error {
		sess.Phase = sess.Phase.Advance(scenario.PhaseReflecting)
		phase = sess.Phase
		return nil
	})
	if err != nil {
		return "", err
	}
	return phase, nil
}

// SaveReflection overwrites the user's reflection and freezes the transcript.
func (s *Service) SaveReflection(ctx context.Context, id, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: reflection is required", ErrValidation)
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	return s.store.Update(ctx, id, func(sess *scenario.Session) error {
		sess.Reflection = text
		sess.Phase = sess.Phase.Advance(scenario.PhaseReflecting)
		return nil
	})
}

// RequestAnalysis asks the engine for a reflection guide or final report and
// returns its result unmodified. Only the phase is advanced, and only on success.
func (s *Service) RequestAnalysis(ctx context.Context, id string, kind reasoning.AnalysisKind) (reasoning.Analysis, error) {
	if !kind.Valid() {
		return reasoning.Analysis{}, fmt.Errorf("%w: unknown analysis kind %q", ErrValidation, kind)
	}

	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return reasoning.Analysis{}, err
	}
	defer unlock()

	record, err := s.store.Get(ctx, id)
	if err != nil {
		return reasoning.Analysis{}, err
	}

	analysis, err := s.reasoner.GenerateAnalysis(ctx, reasoning.AnalysisRequest{
		Kind:         kind,
		Rules:        record.Rules,
		InitialState: record.InitialState,
		FinalState:   record.CurrentState,
		Reflection:   record.Reflection,
		Transcript:   record.ChatLog,
	})
	if err != nil {
		s.logger.Warn("generate analysis failed",
			zap.String("session", id),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return reasoning.Analysis{}, fmt.Errorf("generate %s: %w", kind, err)
	}

	target := scenario.PhaseReflecting
	if kind == reasoning.KindFinalReport {
		target = scenario.PhaseReported
	}
	if !record.Phase.AtLeast(target) {
		err = s.store.Update(ctx, id, func(sess *scenario.Session) error {
			sess.Phase = sess.Phase.Advance(target)
			return nil
		})
		if err != nil {
			return reasoning.Analysis{}, err
		}
	}
	return analysis, nil
}

func appendMessages(messages ...scenario.Message) scenario.Mutation {
	return func(sess *scenario.Session) error {
		if !sess.Phase.AcceptsTurns() {
			return fmt.Errorf("%w: session is %s", ErrPhaseConflict, sess.Phase)
		}
		sess.ChatLog = append(sess.ChatLog, messages...)
		return nil
	}
}
