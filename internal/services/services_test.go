package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yoockh/yoointerview/internal/cache"
	"github.com/yoockh/yoointerview/internal/events"
	"github.com/yoockh/yoointerview/internal/export"
	"github.com/yoockh/yoointerview/internal/gateway"
	"github.com/yoockh/yoointerview/internal/logger"
	"github.com/yoockh/yoointerview/internal/models"
	"github.com/yoockh/yoointerview/internal/orchestrator"
	"github.com/yoockh/yoointerview/internal/utils"
	"github.com/yoockh/yoointerview/internal/workers"
)

type stubGateway struct {
	openErr error
}

func (g *stubGateway) OpeningQuestion(context.Context, models.InterviewContext) (gateway.Question, error) {
	if g.openErr != nil {
		return gateway.Question{}, g.openErr
	}
	return gateway.Question{Text: "Walk me through your last project.", Complexity: models.ComplexityBasic}, nil
}

func (g *stubGateway) RequestNextTurn(context.Context, models.InterviewContext, []models.Turn, gateway.Question, gateway.Media) (gateway.NextTurn, error) {
	return gateway.NextTurn{
		Transcript:     "I built a billing pipeline in Go.",
		AnswerQuality:  models.ComplexityIntermediate,
		NextQuestion:   "How did you test it?",
		NextComplexity: models.ComplexityIntermediate,
	}, nil
}

func (g *stubGateway) RequestDeepAnalysis(context.Context, models.InterviewContext, gateway.DeepAnalysisInput) (models.AnalysisMetrics, error) {
	m := models.PlaceholderMetrics(models.ComplexityIntermediate)
	m.Status = models.AnalysisComplete
	m.TechnicalAccuracy = 80
	m.DemonstratedSkills = []string{"Go", "SQL"}
	return m, nil
}

func (g *stubGateway) SynthesizeReport(_ context.Context, ic models.InterviewContext, history []models.Turn) (models.Report, error) {
	return models.Report{CandidateName: ic.CandidateName, OverallScore: 74, Recommendation: models.RecommendationHire, Turns: history}, nil
}

func startPool(t *testing.T) *workers.AnalysisWorkerPool {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	p := &workers.AnalysisWorkerPool{NumWorkers: 2, Logger: logger.Discard()}
	require.NoError(t, p.Start(ctx))
	t.Cleanup(func() { cancel(); p.Wait() })
	return p
}

func validInput() StartInput {
	return StartInput{
		CandidateName:  "Ada",
		JobDescription: models.Document{Name: "jd.txt", MIMEType: "text/plain", Text: "Backend engineer, Go."},
		Resume:         models.Document{Name: "cv.md", MIMEType: "text/markdown", Text: "# Ada\nGo, Postgres"},
	}
}

func answer() orchestrator.Answer {
	return orchestrator.Answer{Media: gateway.Media{MIMEType: "video/webm", Data: bytes.Repeat([]byte{1}, 2048)}}
}

func newService(t *testing.T, gw orchestrator.Gateway, exp ExportService, rc cache.ReportCache) InterviewService {
	t.Helper()
	svc := NewInterviewService(gw, startPool(t), events.NewMemoryBus(logger.Discard()), exp, rc,
		orchestrator.Config{DrainTimeout: time.Second}, logger.Discard())
	t.Cleanup(svc.Shutdown)
	return svc
}

func TestInterviewService_StartValidates(t *testing.T) {
	svc := newService(t, &stubGateway{}, nil, nil)
	ctx := context.Background()

	in := validInput()
	in.CandidateName = "  "
	_, _, err := svc.Start(ctx, "u1", in)
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))

	in = validInput()
	in.Resume = models.Document{}
	_, _, err = svc.Start(ctx, "u1", in)
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))
	assert.Contains(t, utils.SafeMessage(err), "resume")

	in = validInput()
	in.KnowledgeBase = []models.Document{{Name: "kb.pdf", Data: []byte("%PDF"), Text: "also text"}}
	_, _, err = svc.Start(ctx, "u1", in)
	assert.True(t, utils.IsCode(err, utils.CodeInvalidArgument))

	_, _, err = svc.Start(ctx, "", validInput())
	assert.True(t, utils.IsCode(err, utils.CodeUnauthorized))
}

func TestInterviewService_StartFailsWithoutOpeningQuestion(t *testing.T) {
	svc := newService(t, &stubGateway{openErr: utils.E(utils.CodeUnavailable, "test", "model down", nil)}, nil, nil)
	_, _, err := svc.Start(context.Background(), "u1", validInput())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
}

func TestInterviewService_Ownership(t *testing.T) {
	svc := newService(t, &stubGateway{}, nil, nil)
	ctx := context.Background()

	sess, q, err := svc.Start(ctx, "u1", validInput())
	require.NoError(t, err)
	assert.Equal(t, models.ComplexityBasic, q.Complexity)

	_, err = svc.Get(ctx, "u2", sess.ID)
	assert.True(t, utils.IsCode(err, utils.CodeForbidden))
	_, err = svc.SubmitAnswer(ctx, "u2", sess.ID, answer())
	assert.True(t, utils.IsCode(err, utils.CodeForbidden))
	_, err = svc.Get(ctx, "u1", "missing")
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))
	assert.True(t, utils.IsCode(svc.Close(ctx, "u2", sess.ID), utils.CodeForbidden))
}

func TestInterviewService_FullCycle(t *testing.T) {
	exp := &recordingExporter{done: make(chan export.Bundle, 1)}
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	rc := cache.NewRedisReportCache(rdb, time.Hour)

	svc := newService(t, &stubGateway{}, exp, rc)
	ctx := context.Background()

	sess, _, err := svc.Start(ctx, "u1", validInput())
	require.NoError(t, err)

	_, err = svc.Bundle(ctx, "u1", sess.ID)
	assert.True(t, utils.IsCode(err, utils.CodeFailedPrecondition))
	_, err = svc.Report(ctx, "u1", sess.ID)
	assert.True(t, utils.IsCode(err, utils.CodeFailedPrecondition))

	res, err := svc.SubmitAnswer(ctx, "u1", sess.ID, answer())
	require.NoError(t, err)
	assert.Equal(t, "How did you test it?", res.Next.Text)

	rep, err := svc.Finish(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 74, rep.OverallScore)
	assert.False(t, sess.FinishedAt().IsZero())

	select {
	case b := <-exp.done:
		assert.Equal(t, sess.ID, b.SessionID)
		assert.Equal(t, "u1", b.OwnerID)
		require.Len(t, b.History, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("finished interview was not exported")
	}

	again, err := svc.Finish(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, rep.OverallScore, again.OverallScore)
	assert.Equal(t, 1, exp.count(), "export runs once")

	require.NoError(t, svc.Close(ctx, "u1", sess.ID))
	cached, err := svc.Report(ctx, "u1", sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 74, cached.OverallScore)
	_, err = svc.Report(ctx, "u2", sess.ID)
	assert.True(t, utils.IsCode(err, utils.CodeForbidden))
}

type recordingExporter struct {
	mu   sync.Mutex
	n    int
	done chan export.Bundle
}

func (e *recordingExporter) Persist(_ context.Context, b export.Bundle) error {
	e.mu.Lock()
	e.n++
	e.mu.Unlock()
	e.done <- b
	return nil
}

func (e *recordingExporter) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.n
}

type fakeDumps struct{ saved []*models.SessionDump }

func (f *fakeDumps) Save(_ context.Context, d *models.SessionDump) error {
	f.saved = append(f.saved, d)
	return nil
}
func (f *fakeDumps) GetBySessionID(context.Context, string) (*models.SessionDump, error) {
	return nil, utils.ErrNotFound
}
func (f *fakeDumps) ListByOwner(context.Context, string, int64) ([]models.SessionDump, error) {
	return nil, nil
}

type fakeReports struct {
	rows map[string]*models.ReportRecord
}

func (f *fakeReports) Upsert(_ context.Context, r *models.ReportRecord) error {
	f.rows[r.SessionID] = r
	return nil
}
func (f *fakeReports) GetBySessionID(_ context.Context, id string) (*models.ReportRecord, error) {
	if r, ok := f.rows[id]; ok {
		return r, nil
	}
	return nil, utils.ErrNotFound
}
func (f *fakeReports) ListByOwner(context.Context, string, int) ([]models.ReportRecord, error) {
	return nil, nil
}
func (f *fakeReports) SetArchiveURL(_ context.Context, id, url string) error {
	if r, ok := f.rows[id]; ok {
		r.ArchiveURL = url
	}
	return nil
}

type fakeUploader struct {
	err    error
	object string
	body   []byte
}

func (u *fakeUploader) Upload(_ context.Context, object, _ string, r io.Reader) (string, error) {
	if u.err != nil {
		return "", u.err
	}
	u.object = object
	u.body, _ = io.ReadAll(r)
	return "gs://bucket/" + object, nil
}

func finishedBundle() export.Bundle {
	turn := models.Turn{ID: 1, Question: "Q", Transcript: "An answer", Complexity: models.ComplexityBasic,
		AnswerQuality: models.ComplexityBasic, AnswerMedia: "AAEC", AnswerMIME: "video/webm"}
	turn.Metrics = models.PlaceholderMetrics(models.ComplexityBasic)
	turn.Metrics.DemonstratedSkills = []string{"Go", "Kafka"}
	second := turn
	second.ID = 2
	second.Metrics.DemonstratedSkills = []string{"Go"}
	return export.Bundle{
		SessionID: "s1",
		OwnerID:   "u1",
		Context:   validInput().toContext(),
		Report: models.Report{CandidateName: "Ada", OverallScore: 66, Recommendation: models.RecommendationMaybe,
			Turns: []models.Turn{turn, second}},
		History:    []models.Turn{turn, second},
		StartedAt:  time.Now().Add(-time.Hour),
		FinishedAt: time.Now(),
	}
}

func (in StartInput) toContext() models.InterviewContext {
	return models.InterviewContext{CandidateName: in.CandidateName, JobDescription: in.JobDescription, Resume: in.Resume}
}

func TestExportService_AllSinks(t *testing.T) {
	dumps, reports, up := &fakeDumps{}, &fakeReports{rows: map[string]*models.ReportRecord{}}, &fakeUploader{}
	svc := NewExportService(dumps, reports, up, logger.Discard())
	require.NotNil(t, svc)

	require.NoError(t, svc.Persist(context.Background(), finishedBundle()))

	require.Len(t, dumps.saved, 1)
	row := reports.rows["s1"]
	require.NotNil(t, row)
	assert.Equal(t, 66, row.OverallScore)
	assert.Equal(t, "MAYBE", row.Recommendation)
	assert.Equal(t, []string{"Go", "Kafka"}, []string(row.Skills))
	assert.Equal(t, 2, row.ValidTurns)
	assert.Contains(t, up.object, "s1")
	assert.NotEmpty(t, up.body)
	assert.Equal(t, "gs://bucket/"+up.object, row.ArchiveURL)

	var cats map[string]any
	require.NoError(t, json.Unmarshal(row.Categories, &cats))
}

func TestExportService_UploadFailureKeepsOtherSinks(t *testing.T) {
	dumps, reports := &fakeDumps{}, &fakeReports{rows: map[string]*models.ReportRecord{}}
	svc := NewExportService(dumps, reports, &fakeUploader{err: errors.New("bucket gone")}, logger.Discard())

	err := svc.Persist(context.Background(), finishedBundle())
	require.Error(t, err)
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
	assert.Len(t, dumps.saved, 1)
	assert.Empty(t, reports.rows["s1"].ArchiveURL)
}

func TestNewExportService_NoSinks(t *testing.T) {
	assert.Nil(t, NewExportService(nil, nil, nil, nil))
}

type storedDumps struct {
	fakeDumps
	byID map[string]*models.SessionDump
}

func (f *storedDumps) GetBySessionID(_ context.Context, id string) (*models.SessionDump, error) {
	if d, ok := f.byID[id]; ok {
		return d, nil
	}
	return nil, utils.ErrNotFound
}

func TestHistoryService(t *testing.T) {
	ctx := context.Background()
	dump := export.SessionDump(finishedBundle())
	dumps := &storedDumps{byID: map[string]*models.SessionDump{"s1": &dump}}
	reports := &fakeReports{rows: map[string]*models.ReportRecord{}}
	svc := NewHistoryService(reports, dumps)

	got, err := svc.GetSession(ctx, "u1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "Ada", got.CandidateName)

	_, err = svc.GetSession(ctx, "u2", "s1")
	assert.True(t, utils.IsCode(err, utils.CodeForbidden))
	_, err = svc.GetSession(ctx, "u1", "nope")
	assert.True(t, utils.IsCode(err, utils.CodeNotFound))

	rows, err := svc.ListReports(ctx, "u1", 10)
	require.NoError(t, err)
	assert.NotNil(t, rows)

	_, err = NewHistoryService(nil, nil).ListReports(ctx, "u1", 10)
	assert.True(t, utils.IsCode(err, utils.CodeUnavailable))
}
