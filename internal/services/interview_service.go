package services

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/cache"
	"github.com/yoockh/yoointerview/internal/events"
	"github.com/yoockh/yoointerview/internal/export"
	"github.com/yoockh/yoointerview/internal/gateway"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/orchestrator"
	"github.com/yoockh/yoointerview/internal/transcode"
	"github.com/yoockh/yoointerview/internal/utils"
)

type StartInput struct {
	CandidateName  string
	JobDescription models.Document
	Resume         models.Document
	KnowledgeBase  []models.Document
}

// Session is a live interview held in memory for its owner.
type Session struct {
	ID        string
	OwnerID   string
	StartedAt time.Time

	Orchestrator *orchestrator.Orchestrator

	mu         sync.Mutex
	finishedAt time.Time
}

func (s *Session) FinishedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finishedAt
}

type InterviewService interface {
	Start(ctx context.Context, ownerID string, in StartInput) (*Session, gateway.Question, error)
	Get(ctx context.Context, ownerID, sessionID string) (*Session, error)
	SubmitAnswer(ctx context.Context, ownerID, sessionID string, a orchestrator.Answer) (orchestrator.SubmitResult, error)
	Finish(ctx context.Context, ownerID, sessionID string) (models.Report, error)
	Report(ctx context.Context, ownerID, sessionID string) (models.Report, error)
	Bundle(ctx context.Context, ownerID, sessionID string) (export.Bundle, error)
	Close(ctx context.Context, ownerID, sessionID string) error
	Shutdown()
}

type interviewService struct {
	gw       orchestrator.Gateway
	pool     orchestrator.Analyzer
	bus      events.Publisher
	exporter ExportService     // optional
	reports  cache.ReportCache // optional
	cfg      orchestrator.Config
	log      *logrus.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewInterviewService(gw orchestrator.Gateway, pool orchestrator.Analyzer, bus events.Publisher, exporter ExportService, reports cache.ReportCache, cfg orchestrator.Config, log *logrus.Logger) InterviewService {
	if log == nil {
		log = logrus.New()
	}
	return &interviewService{
		gw:       gw,
		pool:     pool,
		bus:      bus,
		exporter: exporter,
		reports:  reports,
		cfg:      cfg,
		log:      log,
		sessions: make(map[string]*Session),
	}
}

func (s *interviewService) Start(ctx context.Context, ownerID string, in StartInput) (*Session, gateway.Question, error) {
	const op = "InterviewService.Start"

	if ownerID == "" {
		return nil, gateway.Question{}, utils.E(utils.CodeUnauthorized, op, "unauthorized", nil)
	}
	in.CandidateName = strings.TrimSpace(in.CandidateName)
	if in.CandidateName == "" {
		return nil, gateway.Question{}, utils.E(utils.CodeInvalidArgument, op, "candidate_name is required", nil)
	}
	if err := transcode.ValidateDocument("job_description", in.JobDescription); err != nil {
		return nil, gateway.Question{}, err
	}
	if err := transcode.ValidateDocument("resume", in.Resume); err != nil {
		return nil, gateway.Question{}, err
	}
	for i, d := range in.KnowledgeBase {
		if err := transcode.ValidateDocument("knowledge["+strconv.Itoa(i)+"]", d); err != nil {
			return nil, gateway.Question{}, err
		}
	}

	ic := models.InterviewContext{
		CandidateName:  in.CandidateName,
		JobDescription: in.JobDescription,
		Resume:         in.Resume,
		KnowledgeBase:  in.KnowledgeBase,
	}
	id := uuid.NewString()
	orch := orchestrator.New(id, ic, s.gw, s.pool, s.bus, s.cfg, s.log)

	q, err := orch.Begin(ctx)
	if err != nil {
		orch.Close()
		return nil, gateway.Question{}, err
	}

	sess := &Session{ID: id, OwnerID: ownerID, StartedAt: time.Now().UTC(), Orchestrator: orch}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"session_id": id, "owner_id": ownerID, "knowledge_docs": len(in.KnowledgeBase)}).Info("interview started")
	return sess, q, nil
}

func (s *interviewService) Get(_ context.Context, ownerID, sessionID string) (*Session, error) {
	const op = "InterviewService.Get"

	if sessionID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "session_id is required", nil)
	}
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, utils.E(utils.CodeNotFound, op, "session not found", utils.ErrNotFound)
	}
	if sess.OwnerID != ownerID {
		return nil, utils.E(utils.CodeForbidden, op, "forbidden", nil)
	}
	return sess, nil
}

func (s *interviewService) SubmitAnswer(ctx context.Context, ownerID, sessionID string, a orchestrator.Answer) (orchestrator.SubmitResult, error) {
	sess, err := s.Get(ctx, ownerID, sessionID)
	if err != nil {
		return orchestrator.SubmitResult{}, err
	}
	return sess.Orchestrator.SubmitAnswer(ctx, a)
}

func (s *interviewService) Finish(ctx context.Context, ownerID, sessionID string) (models.Report, error) {
	sess, err := s.Get(ctx, ownerID, sessionID)
	if err != nil {
		return models.Report{}, err
	}
	_, already := sess.Orchestrator.Report()

	rep, err := sess.Orchestrator.Finish(ctx)
	if err != nil {
		return models.Report{}, err
	}

	sess.mu.Lock()
	if sess.finishedAt.IsZero() {
		sess.finishedAt = time.Now().UTC()
	}
	sess.mu.Unlock()

	if already {
		return rep, nil
	}
	if s.reports != nil {
		if err := s.reports.Put(ctx, sessionID, cache.CachedReport{OwnerID: ownerID, Report: rep}); err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Warn("failed to cache report")
		}
	}
	if s.exporter != nil {
		if b, err := s.Bundle(ctx, ownerID, sessionID); err == nil {
			go func() { _ = s.exporter.Persist(context.Background(), b) }()
		}
	}
	return rep, nil
}

// Report returns the finished report of a live session, or the cached copy once the
// session has been closed.
func (s *interviewService) Report(ctx context.Context, ownerID, sessionID string) (models.Report, error) {
	const op = "InterviewService.Report"

	sess, err := s.Get(ctx, ownerID, sessionID)
	if err == nil {
		rep, ok := sess.Orchestrator.Report()
		if !ok {
			return models.Report{}, utils.E(utils.CodeFailedPrecondition, op, "the interview has not finished", nil)
		}
		return rep, nil
	}
	if !utils.IsCode(err, utils.CodeNotFound) || s.reports == nil {
		return models.Report{}, err
	}

	cached, hit, cerr := s.reports.Get(ctx, sessionID)
	if cerr != nil {
		return models.Report{}, utils.E(utils.CodeUnavailable, op, "report cache unavailable", cerr)
	}
	if !hit {
		return models.Report{}, err
	}
	if cached.OwnerID != ownerID {
		return models.Report{}, utils.E(utils.CodeForbidden, op, "forbidden", nil)
	}
	return cached.Report, nil
}

func (s *interviewService) Bundle(ctx context.Context, ownerID, sessionID string) (export.Bundle, error) {
	const op = "InterviewService.Bundle"

	sess, err := s.Get(ctx, ownerID, sessionID)
	if err != nil {
		return export.Bundle{}, err
	}
	rep, ok := sess.Orchestrator.Report()
	if !ok {
		return export.Bundle{}, utils.E(utils.CodeFailedPrecondition, op, "the interview has not finished", nil)
	}
	return export.Bundle{
		SessionID:  sess.ID,
		OwnerID:    sess.OwnerID,
		Context:    sess.Orchestrator.Context(),
		Report:     rep,
		History:    sess.Orchestrator.History().Snapshot(),
		StartedAt:  sess.StartedAt,
		FinishedAt: sess.FinishedAt(),
	}, nil
}

func (s *interviewService) Close(ctx context.Context, ownerID, sessionID string) error {
	sess, err := s.Get(ctx, ownerID, sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()

	sess.Orchestrator.Close()
	s.log.WithField("session_id", sessionID).Info("interview closed")
	return nil
}

// Shutdown closes every live session.
func (s *interviewService) Shutdown() {
	s.mu.Lock()
	all := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, sess := range all {
		sess.Orchestrator.Close()
	}
}
