// Package service runs the ingest and question answering flows for one
// interactive session.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"documind/internal/answer"
	"documind/internal/chunker"
	"documind/internal/domain"
	"documind/internal/indexer"
	"documind/internal/loader"
	"documind/internal/logging"
	"documind/internal/retriever"
	"documind/internal/summarizer"
	"documind/internal/vectorstore"
)

// Replies shown to the user when a question cannot be answered normally.
const (
	ReplyIndexMissing    = "Please index the knowledge base first!"
	ReplyNoRelevantInfo  = "I couldn't find any relevant information."
	ReplyGenerationError = "An error occurred while generating the answer."
)

const (
	StatusReady   = "Vector DB Ready"
	StatusMissing = "Vector DB Missing"
)

// Stage is a step of the ingest pipeline. Stages only move forward.
type Stage int

const (
	StageScanning Stage = iota
	StageLoaded
	StageChunked
	StageIndexing
	StageDone
	StageEmpty
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageScanning:
		return "scanning"
	case StageLoaded:
		return "loaded"
	case StageChunked:
		return "chunked"
	case StageIndexing:
		return "indexing"
	case StageDone:
		return "done"
	case StageEmpty:
		return "empty"
	case StageFailed:
		return "failed"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Progress is one ingest status update.
type Progress struct {
	Stage     Stage
	Files     int
	Documents int
	Chunks    int
	Message   string
}

type Outcome int

const (
	IngestSucceeded Outcome = iota
	IngestEmpty
	IngestFailed
)

func (o Outcome) String() string {
	switch o {
	case IngestSucceeded:
		return "succeeded"
	case IngestEmpty:
		return "empty"
	}
	return "failed"
}

// IngestReport summarises one ingest run.
type IngestReport struct {
	Outcome   Outcome
	Files     int
	Documents int
	Chunks    int
	Failures  []*domain.LoadError
	Summary   string
	Took      time.Duration
}

// Reply is what the user sees for one question.
type Reply struct {
	Text     string
	Evidence []domain.Chunk
}

// Status describes whether questions can be answered.
type Status struct {
	Ready bool
	Label string
	Index vectorstore.Meta
}

type Options struct {
	DataDir             string
	TopK                int
	MaxNewTokens        int
	BatchSize           int
	EmbedTimeout        time.Duration
	GenerateTimeout     time.Duration
	SummaryMaxSentences int

	Loader     *loader.Loader
	Chunker    domain.Chunker
	Summarizer summarizer.Summarizer
	Logger     *zap.Logger
}

// Service is the session orchestrator.
type Service struct {
	res  *Resources
	opts Options
	log  *zap.Logger

	indexer   lazy[*indexer.Indexer]
	retriever lazy[*retriever.Retriever]
	composer  lazy[*answer.Composer]

	idxMu sync.Mutex
	idx   *indexer.Index

	mu         sync.Mutex
	transcript Transcript
}

func New(res *Resources, opts Options) (*Service, error) {
	if opts.DataDir == "" {
		opts.DataDir = "./data"
	}
	log := logging.OrNop(opts.Logger)
	if opts.Loader == nil {
		opts.Loader = loader.New(loader.WithLogger(log))
	}
	if opts.Chunker == nil {
		c, err := chunker.NewWindowChunker(chunker.DefaultSize, chunker.DefaultOverlap)
		if err != nil {
			return nil, err
		}
		opts.Chunker = c
	}
	if opts.Summarizer == nil {
		opts.Summarizer = summarizer.NewFrequencySummarizer()
	}

	s := &Service{res: res, opts: opts, log: log}
	s.indexer = lazy[*indexer.Indexer]{name: "indexer", build: func() (*indexer.Indexer, error) {
		emb, err := res.Embedder()
		if err != nil {
			return nil, err
		}
		store, err := res.Store()
		if err != nil {
			return nil, err
		}
		return indexer.New(emb, store,
			indexer.WithBatchSize(opts.BatchSize),
			indexer.WithTimeout(opts.EmbedTimeout),
			indexer.WithLogger(log),
		), nil
	}}
	s.retriever = lazy[*retriever.Retriever]{name: "retriever", build: func() (*retriever.Retriever, error) {
		emb, err := res.Embedder()
		if err != nil {
			return nil, err
		}
		return retriever.New(emb, opts.TopK, opts.EmbedTimeout), nil
	}}
	s.composer = lazy[*answer.Composer]{name: "composer", build: func() (*answer.Composer, error) {
		gen, err := res.Generator()
		if err != nil {
			return nil, err
		}
		return answer.New(gen, opts.MaxNewTokens, opts.GenerateTimeout), nil
	}}
	return s, nil
}

// DataDir is where documents are read from and uploads are written to.
func (s *Service) DataDir() string { return s.opts.DataDir }

// Ingest loads every supported file in dir, chunks it and replaces the index.
// An empty corpus is reported through the outcome, not as an error; the
// existing index is left alone in that case and on failure.
func (s *Service) Ingest(ctx context.Context, dir string, progress func(Progress)) (IngestReport, error) {
	started := time.Now()
	if dir == "" {
		dir = s.opts.DataDir
	}
	if progress == nil {
		progress = func(Progress) {}
	}
	report := IngestReport{}
	emit := func(stage Stage, msg string) {
		progress(Progress{Stage: stage, Files: report.Files, Documents: report.Documents, Chunks: report.Chunks, Message: msg})
	}
	fail := func(err error) (IngestReport, error) {
		report.Outcome = IngestFailed
		report.Took = time.Since(started)
		emit(StageFailed, err.Error())
		s.log.Error("ingest failed", zap.String("dir", dir), zap.Error(err))
		return report, err
	}
	empty := func(msg string) (IngestReport, error) {
		report.Outcome = IngestEmpty
		report.Took = time.Since(started)
		emit(StageEmpty, msg)
		s.log.Warn(msg, zap.String("dir", dir), zap.Int("files", report.Files))
		return report, nil
	}

	emit(StageScanning, "scanning "+dir)
	res, err := s.opts.Loader.Load(ctx, dir)
	if err != nil {
		return fail(err)
	}
	report.Files = len(res.Files)
	report.Documents = len(res.Documents)
	report.Failures = res.Failures
	emit(StageLoaded, fmt.Sprintf("loaded %d documents from %d files", report.Documents, report.Files))
	if report.Documents == 0 {
		return empty("no documents to index")
	}

	var chunks []domain.Chunk
	for _, doc := range res.Documents {
		chunks = append(chunks, s.opts.Chunker.Chunk(doc)...)
	}
	report.Chunks = len(chunks)
	emit(StageChunked, fmt.Sprintf("split into %d chunks", report.Chunks))
	if report.Chunks == 0 {
		return empty("documents contain no text to index")
	}

	ix, err := s.indexer.get()
	if err != nil {
		return fail(err)
	}
	emit(StageIndexing, "embedding and indexing")
	idx, err := ix.Reindex(ctx, chunks)
	if err != nil {
		return fail(err)
	}
	s.idxMu.Lock()
	s.idx = idx
	s.idxMu.Unlock()

	if summary, err := summarizer.Corpus(s.opts.Summarizer, res.Documents, s.opts.SummaryMaxSentences); err != nil {
		s.log.Warn("summarize corpus", zap.Error(err))
	} else {
		report.Summary = summary
	}
	report.Outcome = IngestSucceeded
	report.Took = time.Since(started)
	emit(StageDone, fmt.Sprintf("indexed %d chunks", report.Chunks))
	s.log.Info("ingest complete",
		zap.Int("files", report.Files),
		zap.Int("documents", report.Documents),
		zap.Int("chunks", report.Chunks),
		zap.Int("failures", len(report.Failures)),
		zap.Duration("took", report.Took),
	)
	return report, nil
}

// IngestUploads writes the uploads into the data directory and reindexes it.
func (s *Service) IngestUploads(ctx context.Context, uploads []loader.Upload, progress func(Progress)) (IngestReport, error) {
	saved, err := loader.SaveUploads(s.opts.DataDir, uploads)
	if err != nil {
		return IngestReport{Outcome: IngestFailed}, err
	}
	s.log.Info("uploads saved", zap.Strings("files", saved))
	return s.Ingest(ctx, s.opts.DataDir, progress)
}

// Query answers question from the index. The question and the reply text are
// always recorded together, including when answering fails.
func (s *Service) Query(ctx context.Context, question string) (Reply, error) {
	reply, err := s.answer(ctx, question)
	s.record(question, reply.Text)
	return reply, err
}

func (s *Service) answer(ctx context.Context, question string) (Reply, error) {
	idx, err := s.index(ctx)
	if errors.Is(err, domain.ErrIndexMissing) {
		return Reply{Text: ReplyIndexMissing}, err
	}
	if err != nil {
		s.log.Error("open index", zap.Error(err))
		return Reply{Text: ReplyGenerationError}, err
	}

	r, err := s.retriever.get()
	if err != nil {
		return Reply{Text: ReplyGenerationError}, err
	}
	results, err := r.Query(ctx, idx, question, 0)
	if errors.Is(err, vectorstore.ErrDimensionMismatch) {
		s.log.Error("embedder does not match the index; reindex required",
			zap.String("index_model", idx.Info().Model), zap.Error(err))
		return Reply{Text: ReplyGenerationError}, err
	}
	if err != nil {
		s.log.Error("retrieve", zap.Error(err))
		return Reply{Text: ReplyGenerationError}, err
	}
	if len(results) == 0 {
		return Reply{Text: ReplyNoRelevantInfo}, nil
	}

	c, err := s.composer.get()
	if err != nil {
		s.log.Error("build answer composer", zap.Error(err))
		return Reply{Text: ReplyGenerationError}, fmt.Errorf("answer composer: %w", err)
	}
	ans, err := c.Answer(ctx, question, results)
	if err != nil {
		s.log.Error("generate answer", zap.Error(err))
		return Reply{Text: ReplyGenerationError, Evidence: ans.Evidence}, err
	}
	s.log.Debug("answered", zap.Int("evidence", len(ans.Evidence)))
	return Reply{Text: ans.Text, Evidence: ans.Evidence}, nil
}

// index returns the index built in this process or the persisted one.
func (s *Service) index(ctx context.Context) (*indexer.Index, error) {
	s.idxMu.Lock()
	defer s.idxMu.Unlock()
	if s.idx != nil {
		return s.idx, nil
	}
	ix, err := s.indexer.get()
	if err != nil {
		return nil, err
	}
	idx, err := ix.LoadExisting(ctx)
	if err != nil {
		return nil, err
	}
	s.idx = idx
	return idx, nil
}

func (s *Service) record(question, reply string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript,
		domain.ConversationTurn{Role: domain.RoleUser, Content: question},
		domain.ConversationTurn{Role: domain.RoleAssistant, Content: reply},
	)
}

// Transcript returns a copy of the conversation so far.
func (s *Service) Transcript() Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(Transcript(nil), s.transcript...)
}

// Status reports whether an index exists, without building the embedder.
func (s *Service) Status(ctx context.Context) (Status, error) {
	s.idxMu.Lock()
	idx := s.idx
	s.idxMu.Unlock()
	if idx != nil {
		return Status{Ready: true, Label: StatusReady, Index: idx.Info()}, nil
	}
	store, err := s.res.Store()
	if err != nil {
		return Status{Label: StatusMissing}, err
	}
	meta, ok, err := store.Meta(ctx)
	if err != nil {
		return Status{Label: StatusMissing}, err
	}
	if !ok {
		return Status{Label: StatusMissing}, nil
	}
	return Status{Ready: true, Label: StatusReady, Index: meta}, nil
}

func (s *Service) Close() error { return s.res.Close() }
