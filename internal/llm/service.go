package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bioviz/bioviz/internal/ai"
	"github.com/bioviz/bioviz/internal/common"
	"github.com/bioviz/bioviz/internal/dataset"
	"github.com/bioviz/bioviz/internal/sandbox"
)

const promptSampleRows = 5

var ErrSessionNotFound = errors.New("session not found")

// datasetStore is the slice of the dataset registry the pipeline needs.
type datasetStore interface {
	Load(ctx context.Context, fileID string) (*dataset.Frame, error)
	SchemaSummary(ctx context.Context, fileID string) (*dataset.SchemaInfo, error)
}

// JobPublisher enqueues a job id for asynchronous execution.
type JobPublisher interface {
	PublishJob(ctx context.Context, jobID string) error
}

type Service struct {
	datasets     datasetStore
	registry     *ai.Registry
	runner       *sandbox.Runner
	repo         *Repo
	builder      *Builder
	backend      string
	model        string
	llmTimeout   time.Duration
	contextTurns int
}

func NewService(datasets datasetStore, registry *ai.Registry, runner *sandbox.Runner, repo *Repo, builder *Builder, backend, model string, llmTimeout time.Duration, contextTurns int) *Service {
	if llmTimeout <= 0 {
		llmTimeout = 90 * time.Second
	}
	if contextTurns <= 0 || contextTurns > 100 {
		contextTurns = 20
	}
	return &Service{
		datasets:     datasets,
		registry:     registry,
		runner:       runner,
		repo:         repo,
		builder:      builder,
		backend:      backend,
		model:        model,
		llmTimeout:   llmTimeout,
		contextTurns: contextTurns,
	}
}

// QueryRequest is the input to one pipeline invocation. Either SessionID
// (a persisted session) or Transcript (a caller-owned in-memory session)
// carries the conversation; both may be nil for a one-shot query.
type QueryRequest struct {
	DatasetID  string
	Query      string
	SessionID  string
	Transcript *Transcript
}

type QueryResponse struct {
	SessionID          string          `json:"session_id,omitempty"`
	Explanation        string          `json:"explanation"`
	Code               string          `json:"code,omitempty"`
	Result             *sandbox.Result `json:"result,omitempty"`
	QueryTime          float64         `json:"query_time"`
	AssistantMessageID uint64          `json:"-"`
}

func (s *Service) CreateSession(ctx context.Context, datasetID string) (*Session, error) {
	if _, err := s.datasets.Load(ctx, datasetID); err != nil {
		return nil, err
	}
	sid, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	sess := &Session{
		SessionID: sid,
		DatasetID: datasetID,
		Backend:   s.backend,
		Model:     s.model,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Service) ListMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if _, err := s.session(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.repo.ListMessages(ctx, sessionID, limit)
}

func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

// RunQuery executes one full pipeline invocation. Messages are appended
// only once the invocation reaches a terminal outcome: exactly one user
// message plus one assistant (success) or system (pre-execution failure)
// message. A cancelled invocation appends nothing.
func (s *Service) RunQuery(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	start := time.Now()

	sess, history, datasetID, err := s.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	frame, schema, err := s.loadDataset(ctx, datasetID)
	if err != nil {
		s.commit(ctx, req, sess, ChatMessage{Role: RoleSystem, Content: err.Error()})
		return nil, err
	}

	prompt := s.builder.Build(req.Query, schema, frame.Rows(0, promptSampleRows), history)

	provider, err := s.registry.Get(ctx, s.backend, s.model)
	if err != nil {
		err = errors.Join(ai.ErrUnavailable, err)
		s.commit(ctx, req, sess, ChatMessage{Role: RoleSystem, Content: err.Error()})
		return nil, err
	}

	cctx, cancel := context.WithTimeout(ctx, s.llmTimeout)
	raw, err := provider.Chat(cctx, []ai.Message{{Role: RoleUser, Content: prompt}})
	cancel()
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, ai.ErrTimeout) && !errors.Is(err, ai.ErrUnavailable) {
			// caller cancelled: append nothing
			return nil, ctx.Err()
		}
		s.commit(ctx, req, sess, ChatMessage{Role: RoleSystem, Content: err.Error()})
		return nil, err
	}

	parsed := Parse(raw)
	resp := &QueryResponse{
		SessionID:   req.SessionID,
		Explanation: parsed.Explanation,
		Code:        parsed.Code,
	}

	if parsed.HasCode() {
		result, err := s.runner.Run(ctx, parsed.Code, frame)
		if err != nil {
			// external cancellation: append nothing
			return nil, err
		}
		resp.Result = result
	}

	msgID := s.commit(ctx, req, sess, ChatMessage{Role: RoleAssistant, Content: raw})
	resp.AssistantMessageID = msgID
	resp.QueryTime = time.Since(start).Seconds()
	return resp, nil
}

// RunCode executes caller-supplied code directly, bypassing the model.
// It touches no session state.
func (s *Service) RunCode(ctx context.Context, datasetID, code string) (*sandbox.Result, error) {
	frame, err := s.datasets.Load(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return s.runner.Run(ctx, code, frame)
}

// EnqueueQuery persists a job and publishes its id. When an idempotency
// key matches an existing job, that job is returned and nothing new is
// published.
func (s *Service) EnqueueQuery(ctx context.Context, publisher JobPublisher, sessionID, query string, idempotencyKey *string) (*Job, error) {
	sess, err := s.session(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	jobID, err := common.NewULID()
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:             jobID,
		SessionID:      sessionID,
		DatasetID:      sess.DatasetID,
		Query:          query,
		IdempotencyKey: idempotencyKey,
		Status:         JobQueued,
	}
	job, created, err := s.repo.CreateJobOrGetExisting(ctx, job)
	if err != nil {
		return nil, err
	}
	if !created {
		return job, nil
	}

	if err := publisher.PublishJob(ctx, job.ID); err != nil {
		_ = s.repo.MarkJobFailed(ctx, job.ID, fmt.Sprintf("publish: %v", err))
		return nil, err
	}
	return job, nil
}

// ProcessJob is the worker-side entry point: it runs the pipeline for a
// queued job and records the terminal status.
func (s *Service) ProcessJob(ctx context.Context, jobID string) error {
	job, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == JobSucceeded || job.Status == JobFailed {
		return nil
	}
	if err := s.repo.UpdateJobStatusRunning(ctx, jobID); err != nil {
		return err
	}

	resp, err := s.RunQuery(ctx, QueryRequest{
		DatasetID: job.DatasetID,
		Query:     job.Query,
		SessionID: job.SessionID,
	})
	if err != nil {
		if ctx.Err() != nil {
			return err // abandoned; a redelivery retries it
		}
		return s.repo.MarkJobFailed(ctx, jobID, err.Error())
	}
	return s.repo.MarkJobSucceeded(ctx, jobID, resp.AssistantMessageID)
}

// StreamQuery streams raw model chunks, then executes any extracted code
// and delivers the final response. All three channels are closed when
// the invocation ends; at most one value arrives on final or errs.
func (s *Service) StreamQuery(ctx context.Context, req QueryRequest) (<-chan string, <-chan *QueryResponse, <-chan error) {
	chunks := make(chan string, 16)
	final := make(chan *QueryResponse, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(final)
		defer close(errs)

		start := time.Now()

		sess, history, datasetID, err := s.resolveSession(ctx, req)
		if err != nil {
			errs <- err
			return
		}

		frame, schema, err := s.loadDataset(ctx, datasetID)
		if err != nil {
			s.commit(ctx, req, sess, ChatMessage{Role: RoleSystem, Content: err.Error()})
			errs <- err
			return
		}

		prompt := s.builder.Build(req.Query, schema, frame.Rows(0, promptSampleRows), history)

		provider, err := s.registry.Get(ctx, s.backend, s.model)
		if err != nil {
			err = errors.Join(ai.ErrUnavailable, err)
			s.commit(ctx, req, sess, ChatMessage{Role: RoleSystem, Content: err.Error()})
			errs <- err
			return
		}
		sp, ok := provider.(ai.StreamProvider)
		if !ok {
			err = errors.Join(ai.ErrUnavailable, errors.New("backend does not support streaming"))
			s.commit(ctx, req, sess, ChatMessage{Role: RoleSystem, Content: err.Error()})
			errs <- err
			return
		}

		pChunks, pErrs := sp.StreamChat(ctx, []ai.Message{{Role: RoleUser, Content: prompt}})

		var b strings.Builder
		for c := range pChunks {
			b.WriteString(c)
			select {
			case chunks <- c:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
		if err := <-pErrs; err != nil {
			if ctx.Err() != nil && !errors.Is(err, ai.ErrTimeout) && !errors.Is(err, ai.ErrUnavailable) {
				errs <- ctx.Err()
				return
			}
			s.commit(ctx, req, sess, ChatMessage{Role: RoleSystem, Content: err.Error()})
			errs <- err
			return
		}

		raw := b.String()
		parsed := Parse(raw)
		resp := &QueryResponse{
			SessionID:   req.SessionID,
			Explanation: parsed.Explanation,
			Code:        parsed.Code,
		}
		if parsed.HasCode() {
			result, err := s.runner.Run(ctx, parsed.Code, frame)
			if err != nil {
				errs <- err
				return
			}
			resp.Result = result
		}

		resp.AssistantMessageID = s.commit(ctx, req, sess, ChatMessage{Role: RoleAssistant, Content: raw})
		resp.QueryTime = time.Since(start).Seconds()
		final <- resp
	}()

	return chunks, final, errs
}

// resolveSession loads the persisted session (when one is referenced)
// and the prompt history window.
func (s *Service) resolveSession(ctx context.Context, req QueryRequest) (*Session, []ChatMessage, string, error) {
	datasetID := req.DatasetID

	var sess *Session
	var history []ChatMessage

	if req.SessionID != "" {
		var err error
		sess, err = s.session(ctx, req.SessionID)
		if err != nil {
			return nil, nil, "", err
		}
		if datasetID == "" {
			datasetID = sess.DatasetID
		}

		recent, err := s.repo.ListRecentMessagesDesc(ctx, req.SessionID, s.contextTurns)
		if err != nil {
			return nil, nil, "", err
		}
		for i := len(recent) - 1; i >= 0; i-- {
			history = append(history, ChatMessage{
				Role:      recent[i].Role,
				Content:   recent[i].Content,
				Timestamp: recent[i].CreatedAt,
			})
		}
	} else if req.Transcript != nil {
		history = req.Transcript.History()
		if len(history) > s.contextTurns {
			history = history[len(history)-s.contextTurns:]
		}
	}

	return sess, history, datasetID, nil
}

func (s *Service) session(ctx context.Context, sessionID string) (*Session, error) {
	sess, err := s.repo.GetSessionBySessionID(ctx, sessionID)
	if err != nil {
		return nil, errors.Join(ErrSessionNotFound, err)
	}
	return sess, nil
}

func (s *Service) loadDataset(ctx context.Context, datasetID string) (*dataset.Frame, *dataset.SchemaInfo, error) {
	frame, err := s.datasets.Load(ctx, datasetID)
	if err != nil {
		return nil, nil, err
	}
	schema, err := s.datasets.SchemaSummary(ctx, datasetID)
	if err != nil {
		return nil, nil, err
	}
	return frame, schema, nil
}

// commit appends the invocation's user message and its terminal message
// as one unit, to the persisted session and the in-memory transcript as
// applicable. Returns the terminal message's DB id, if persisted.
func (s *Service) commit(ctx context.Context, req QueryRequest, sess *Session, terminal ChatMessage) uint64 {
	user := ChatMessage{Role: RoleUser, Content: req.Query, Timestamp: time.Now()}
	if terminal.Timestamp.IsZero() {
		terminal.Timestamp = time.Now()
	}

	if req.Transcript != nil {
		req.Transcript.Append(user)
		req.Transcript.Append(terminal)
	}

	if sess == nil {
		return 0
	}

	// Persist with a context detached from the caller's cancellation so
	// a disconnect after the model finished does not lose the turn.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.repo.InsertMessage(pctx, &Message{
		SessionID: sess.SessionID,
		Role:      user.Role,
		Content:   user.Content,
	}); err != nil {
		return 0
	}
	m := &Message{
		SessionID: sess.SessionID,
		Role:      terminal.Role,
		Content:   terminal.Content,
	}
	if err := s.repo.InsertMessage(pctx, m); err != nil {
		return 0
	}
	return m.ID
}
