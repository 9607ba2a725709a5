package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yoockh/yoointerview/internal/events"
	"github.com/yoockh/yoointerview/internal/gateway"
	"github.com/yoockh/yoointerview/internal/history"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/providers/llm"
	"github.com/yoockh/yoointerview/internal/transcode"
	"github.com/yoockh/yoointerview/internal/utils"
	"github.com/yoockh/yoointerview/internal/workers"
)

// ErrNoAnswer is returned for recordings too small to hold an answer.
var ErrNoAnswer = errors.New("no answer recorded")

const (
	DefaultMinAnswerBytes = 1000
	DefaultDrainTimeout   = 20 * time.Second
)

// Gateway is the part of the analysis gateway the orchestrator drives.
type Gateway interface {
	OpeningQuestion(ctx context.Context, ic models.InterviewContext) (gateway.Question, error)
	RequestNextTurn(ctx context.Context, ic models.InterviewContext, recent []models.Turn, current gateway.Question, answer gateway.Media) (gateway.NextTurn, error)
	RequestDeepAnalysis(ctx context.Context, ic models.InterviewContext, in gateway.DeepAnalysisInput) (models.AnalysisMetrics, error)
	SynthesizeReport(ctx context.Context, ic models.InterviewContext, history []models.Turn) (models.Report, error)
}

// Analyzer schedules Phase 2 jobs. TrySubmit never blocks; Submit waits for queue room.
type Analyzer interface {
	Submit(ctx context.Context, job workers.Job) error
	TrySubmit(job workers.Job) error
}

type Config struct {
	MinAnswerBytes int
	HistoryWindow  int
	DrainTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.MinAnswerBytes <= 0 {
		c.MinAnswerBytes = DefaultMinAnswerBytes
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = gateway.DefaultHistoryWindow
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	return c
}

// Answer is one finished recording plus what the candidate submitted with it.
type Answer struct {
	Media gateway.Media
	Frame *gateway.Media
	Code  string
	Notes string
}

type SubmitResult struct {
	Turn models.Turn
	Next gateway.Question
}

// State is a read-only view of a session.
type State struct {
	SessionID     string              `json:"session_id"`
	CandidateName string              `json:"candidate_name"`
	Phase         models.SessionPhase `json:"phase"`
	Current       *gateway.Question   `json:"current_question,omitempty"`
	Turns         []models.Turn       `json:"turns"`
	Report        *models.Report      `json:"report,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// Orchestrator drives the turn loop of one interview session.
type Orchestrator struct {
	id    string
	ic    models.InterviewContext
	gw    Gateway
	pool  Analyzer
	bus   events.Publisher
	store *history.Store
	cfg   Config
	log   *logrus.Entry

	ctx     context.Context
	cancel  context.CancelFunc
	patches chan workers.Result
	patched chan struct{}
	stop    chan struct{}
	stopped sync.Once
	loop    sync.WaitGroup

	mu      sync.Mutex
	phase   models.SessionPhase
	current gateway.Question
	report  *models.Report
	fatal   error
}

func New(sessionID string, ic models.InterviewContext, gw Gateway, pool Analyzer, bus events.Publisher, cfg Config, log *logrus.Logger) *Orchestrator {
	if log == nil {
		log = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		id:      sessionID,
		ic:      ic,
		gw:      gw,
		pool:    pool,
		bus:     bus,
		store:   history.NewStore(),
		cfg:     cfg.withDefaults(),
		log:     log.WithField("session_id", sessionID),
		ctx:     ctx,
		cancel:  cancel,
		patches: make(chan workers.Result, 32),
		patched: make(chan struct{}, 1),
		stop:    make(chan struct{}),
		phase:   models.PhaseIdle,
	}
	o.loop.Add(1)
	go o.applyLoop()
	return o
}

func (o *Orchestrator) ID() string { return o.id }

func (o *Orchestrator) Context() models.InterviewContext { return o.ic }

// History is the live turn store. Callers only read from it.
func (o *Orchestrator) History() *history.Store { return o.store }

// Begin asks for the opening question and moves the session to AwaitingAnswer.
func (o *Orchestrator) Begin(ctx context.Context) (gateway.Question, error) {
	const op = "Orchestrator.Begin"

	o.mu.Lock()
	if o.phase != models.PhaseIdle {
		o.mu.Unlock()
		return gateway.Question{}, utils.E(utils.CodeFailedPrecondition, op, "the interview has already started", nil)
	}
	o.phase = models.PhasePhase1Pending
	o.mu.Unlock()
	o.publish(events.Event{Type: events.TypePhase, Phase: string(models.PhasePhase1Pending)})

	q, err := o.gw.OpeningQuestion(ctx, o.ic)
	if err != nil {
		o.failOrReset(err, models.PhaseIdle)
		return gateway.Question{}, err
	}

	o.mu.Lock()
	o.current = q
	o.phase = models.PhaseAwaitingAnswer
	o.mu.Unlock()
	o.publish(events.Event{Type: events.TypeQuestion, Question: q.Text, Complexity: q.Complexity})
	return q, nil
}

// SubmitAnswer runs Phase 1 for the current question, commits the turn and schedules
// its deep analysis in the background.
func (o *Orchestrator) SubmitAnswer(ctx context.Context, a Answer) (SubmitResult, error) {
	const op = "Orchestrator.SubmitAnswer"
	start := time.Now()

	o.mu.Lock()
	if o.phase != models.PhaseAwaitingAnswer {
		err := o.phaseError(op)
		o.mu.Unlock()
		return SubmitResult{}, err
	}
	if len(a.Media.Data) < o.cfg.MinAnswerBytes {
		o.mu.Unlock()
		o.publish(events.Event{Type: events.TypeNoAnswer, Message: "No answer was recorded. Please try again."})
		return SubmitResult{}, utils.E(utils.CodeInvalidArgument, op, "no answer was recorded, please try again", ErrNoAnswer)
	}
	current := o.current
	o.phase = models.PhasePhase1Pending
	o.mu.Unlock()
	o.publish(events.Event{Type: events.TypePhase, Phase: string(models.PhasePhase1Pending)})

	nt, err := o.gw.RequestNextTurn(ctx, o.ic, o.store.Recent(o.cfg.HistoryWindow), current, a.Media)
	if err != nil {
		o.failOrReset(err, models.PhaseAwaitingAnswer)
		return SubmitResult{}, err
	}

	turn, err := o.store.Append(models.Turn{
		Question:      current.Text,
		Complexity:    current.Complexity,
		AnswerMedia:   transcode.EncodeBytes(a.Media.Data),
		AnswerMIME:    a.Media.MIMEType,
		Transcript:    nt.Transcript,
		AnswerQuality: nt.AnswerQuality,
		Code:          a.Code,
		Notes:         a.Notes,
		Metrics:       models.PlaceholderMetrics(nt.AnswerQuality),
	})
	if err != nil {
		o.setPhase(models.PhaseAwaitingAnswer)
		return SubmitResult{}, utils.E(utils.CodeFailedPrecondition, op, "the interview has ended", err)
	}

	next := gateway.Question{
		Text:       nt.NextQuestion,
		Complexity: NextComplexity(current.Complexity, nt.AnswerQuality, nt.NextComplexity),
	}
	o.mu.Lock()
	o.current = next
	if o.phase == models.PhasePhase1Pending {
		o.phase = models.PhaseAwaitingAnswer
	}
	o.mu.Unlock()

	o.log.WithFields(logrus.Fields{
		"turn_id":         turn.ID,
		"answer_quality":  turn.AnswerQuality,
		"next_complexity": next.Complexity,
		"latency_ms":      time.Since(start).Milliseconds(),
	}).Info("turn committed")

	o.publish(events.Event{Type: events.TypeTurnCommitted, TurnID: turn.ID, Turn: &turn})
	o.publish(events.Event{Type: events.TypeQuestion, Question: next.Text, Complexity: next.Complexity})

	o.schedule(turn, a)
	return SubmitResult{Turn: turn, Next: next}, nil
}

// schedule hands Phase 2 for turn to the pool without waiting for it. When the shared
// queue is full the submit continues in the background until the session stops.
func (o *Orchestrator) schedule(turn models.Turn, a Answer) {
	in := gateway.DeepAnalysisInput{
		Question:      turn.Question,
		Transcript:    turn.Transcript,
		Answer:        a.Media,
		Frame:         a.Frame,
		Code:          a.Code,
		AnswerQuality: turn.AnswerQuality,
	}
	job := workers.Job{
		SessionID: o.id,
		TurnID:    turn.ID,
		Run: func(ctx context.Context) (models.AnalysisMetrics, error) {
			ctx, cancel := context.WithCancel(ctx)
			defer cancel()
			defer context.AfterFunc(o.ctx, cancel)()
			return o.gw.RequestDeepAnalysis(ctx, o.ic, in)
		},
		Deliver: o.deliver,
	}
	failed := func(err error) workers.Result {
		return workers.Result{SessionID: o.id, TurnID: turn.ID, Err: err}
	}

	err := o.pool.TrySubmit(job)
	switch {
	case err == nil:
	case errors.Is(err, workers.ErrQueueFull):
		o.log.WithField("turn_id", turn.ID).Warn("analysis queue full, waiting for room")
		go func() {
			if err := o.pool.Submit(o.ctx, job); err != nil {
				o.deliver(failed(err))
			}
		}()
	default:
		go o.deliver(failed(err))
	}
}

func (o *Orchestrator) deliver(r workers.Result) {
	select {
	case o.patches <- r:
	case <-o.stop:
	}
}

// applyLoop applies analysis results. Turns get final metrics through PatchPending only.
func (o *Orchestrator) applyLoop() {
	defer o.loop.Done()
	for {
		select {
		case <-o.stop:
			return
		case r := <-o.patches:
			o.apply(r)
		}
	}
}

func (o *Orchestrator) apply(r workers.Result) {
	log := o.log.WithField("turn_id", r.TurnID)

	turn, ok := o.store.Get(r.TurnID)
	if !ok {
		log.Warn("analysis result for unknown turn")
		return
	}
	m := r.Metrics
	if r.Err != nil {
		if llm.IsFatal(r.Err) {
			o.fail(r.Err)
			return
		}
		m = models.FailedMetrics(turn.AnswerQuality, utils.SafeMessage(r.Err))
	}

	patched, err := o.store.PatchPending(r.TurnID, m)
	if errors.Is(err, history.ErrSealed) || errors.Is(err, history.ErrFinal) {
		log.Debug("late analysis result discarded")
		return
	}
	if err != nil {
		log.WithError(err).Warn("failed to apply analysis result")
		return
	}
	o.notifyPatched()
	o.publish(events.Event{Type: events.TypeTurnAnalyzed, TurnID: patched.ID, Turn: &patched})
}

func (o *Orchestrator) notifyPatched() {
	select {
	case o.patched <- struct{}{}:
	default:
	}
}

// Finish waits for outstanding analyses, seals the history and synthesizes the report.
// A finished session returns its report again. Once started, finishing carries on past
// cancellation of ctx and stops only at the drain timeout or when the session closes.
func (o *Orchestrator) Finish(ctx context.Context) (models.Report, error) {
	const op = "Orchestrator.Finish"

	o.mu.Lock()
	switch o.phase {
	case models.PhaseFinished:
		rep := *o.report
		o.mu.Unlock()
		return rep, nil
	case models.PhaseIdle, models.PhaseAwaitingAnswer, models.PhaseReportFailed:
	default:
		err := o.phaseError(op)
		o.mu.Unlock()
		return models.Report{}, err
	}
	o.phase = models.PhaseFinishing
	o.mu.Unlock()
	o.publish(events.Event{Type: events.TypePhase, Phase: string(models.PhaseFinishing)})

	work, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	defer context.AfterFunc(o.ctx, cancel)()

	o.drain()
	snapshot := o.store.Seal()

	o.mu.Lock()
	if o.phase == models.PhaseClosed {
		err := o.phaseError(op)
		o.mu.Unlock()
		return models.Report{}, err
	}
	o.mu.Unlock()

	rep, err := o.gw.SynthesizeReport(work, o.ic, snapshot)
	if err != nil {
		o.failOrReset(err, models.PhaseReportFailed)
		return models.Report{}, err
	}

	o.mu.Lock()
	o.report = &rep
	o.phase = models.PhaseFinished
	o.mu.Unlock()

	o.log.WithFields(logrus.Fields{
		"turns":       len(snapshot),
		"valid_turns": len(rep.Turns),
		"overall":     rep.OverallScore,
		"no_data":     rep.NoData,
	}).Info("interview finished")
	o.publish(events.Event{Type: events.TypeReport, Report: &rep})
	return rep, nil
}

// drain waits for pending analyses up to the drain timeout. Turns still pending
// afterwards are marked failed so the report never reads placeholder zeros as scores.
func (o *Orchestrator) drain() {
	timer := time.NewTimer(o.cfg.DrainTimeout)
	defer timer.Stop()

	for len(o.store.Pending()) > 0 {
		select {
		case <-o.patched:
		case <-timer.C:
			o.expirePending()
			return
		case <-o.stop:
			return
		}
	}
}

// expirePending fails the turns still pending. A result the apply loop lands first wins.
func (o *Orchestrator) expirePending() {
	for _, id := range o.store.Pending() {
		turn, ok := o.store.Get(id)
		if !ok {
			continue
		}
		if _, err := o.store.PatchPending(id, models.FailedMetrics(turn.AnswerQuality, "analysis did not finish before the report")); err == nil {
			o.log.WithField("turn_id", id).Warn("analysis expired at finish")
		}
	}
}

func (o *Orchestrator) Report() (models.Report, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.report == nil {
		return models.Report{}, false
	}
	return *o.report, true
}

func (o *Orchestrator) Phase() models.SessionPhase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	st := State{
		SessionID:     o.id,
		CandidateName: o.ic.CandidateName,
		Phase:         o.phase,
		Report:        o.report,
	}
	if o.current.Text != "" && o.phase != models.PhaseFinished {
		q := o.current
		st.Current = &q
	}
	if o.fatal != nil {
		st.Error = utils.SafeMessage(o.fatal)
	}
	o.mu.Unlock()
	st.Turns = o.store.Snapshot()
	return st
}

// Close stops the session. Its in-flight analyses are cancelled and their results dropped.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.phase != models.PhaseFinished {
		o.phase = models.PhaseClosed
	}
	o.mu.Unlock()
	o.shutdown()
}

func (o *Orchestrator) shutdown() {
	o.stopped.Do(func() {
		close(o.stop)
		o.cancel()
	})
	o.loop.Wait()
}

// fail closes the session after an error no retry can fix.
func (o *Orchestrator) fail(err error) {
	o.mu.Lock()
	if o.fatal == nil {
		o.fatal = err
	}
	o.phase = models.PhaseClosed
	o.mu.Unlock()

	o.log.WithError(err).Error("session closed after fatal model error")
	o.publish(events.Event{Type: events.TypeError, Code: string(utils.CodeUnauthorized), Message: utils.SafeMessage(err)})
	o.stopped.Do(func() {
		close(o.stop)
		o.cancel()
	})
}

// failOrReset closes the session on fatal errors, otherwise returns to phase so the
// same step can be retried.
func (o *Orchestrator) failOrReset(err error, phase models.SessionPhase) {
	if llm.IsFatal(err) {
		o.fail(err)
		return
	}
	o.setPhase(phase)
	o.log.WithError(err).Warn("gateway call failed")
	o.publish(events.Event{Type: events.TypeError, Code: string(utils.CodeOf(err)), Message: utils.SafeMessage(err)})
}

func (o *Orchestrator) setPhase(p models.SessionPhase) {
	o.mu.Lock()
	if o.phase != models.PhaseClosed {
		o.phase = p
	}
	o.mu.Unlock()
}

// phaseError explains why the current phase rejects op. Callers hold o.mu.
func (o *Orchestrator) phaseError(op string) error {
	switch o.phase {
	case models.PhaseIdle:
		return utils.E(utils.CodeFailedPrecondition, op, "the interview has not started", nil)
	case models.PhasePhase1Pending:
		return utils.E(utils.CodeFailedPrecondition, op, "the previous answer is still being processed", nil)
	case models.PhaseFinishing:
		return utils.E(utils.CodeFailedPrecondition, op, "the report is being generated", nil)
	case models.PhaseFinished, models.PhaseReportFailed:
		return utils.E(utils.CodeFailedPrecondition, op, "the interview has ended", nil)
	case models.PhaseClosed:
		if o.fatal != nil {
			return utils.E(utils.CodeUnauthorized, op, "the session was closed: "+utils.SafeMessage(o.fatal), o.fatal)
		}
		return utils.E(utils.CodeFailedPrecondition, op, "the session was closed", nil)
	default:
		return utils.E(utils.CodeFailedPrecondition, op, "unexpected session phase", nil)
	}
}

func (o *Orchestrator) publish(e events.Event) {
	if o.bus == nil {
		return
	}
	e.SessionID = o.id
	if err := o.bus.Publish(o.ctx, e); err != nil && !errors.Is(err, context.Canceled) {
		o.log.WithError(err).WithField("type", e.Type).Warn("failed to publish event")
	}
}
