package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"documind/internal/domain"
	"documind/internal/embedding/hashing"
	"documind/internal/generation/extractive"
	"documind/internal/loader"
	"documind/internal/vectorstore"
	"documind/internal/vectorstore/memory"
	"documind/internal/vectorstore/sqlite"
)

type switchableEmbedder struct {
	inner domain.Embedder
	fail  atomic.Bool
}

func (e *switchableEmbedder) Name() string { return e.inner.Name() }

func (e *switchableEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.fail.Load() {
		return nil, errors.New("embedding server down")
	}
	return e.inner.Embed(ctx, texts)
}

type failingGenerator struct{}

func (failingGenerator) Name() string { return "broken-model" }

func (failingGenerator) Generate(context.Context, string, int) (string, error) {
	return "", errors.New("model crashed")
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newTestService(t *testing.T, emb domain.Embedder, gen domain.Generator, store vectorstore.Storage) (*Service, string) {
	t.Helper()
	dataDir := filepath.Join(t.TempDir(), "data")
	svc, err := New(Static(emb, gen, store), Options{DataDir: dataDir, TopK: 2})
	require.NoError(t, err)
	return svc, dataDir
}

func TestRAGDocumentEndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, dataDir := newTestService(t, hashing.NewEmbedder(256), extractive.New(), memory.NewStorage())
	writeFile(t, dataDir, "rag.md", "# Glossary\n\nRAG stands for Retrieval Augmented Generation.\n")

	var stages []Stage
	report, err := svc.Ingest(ctx, dataDir, func(p Progress) { stages = append(stages, p.Stage) })
	require.NoError(t, err)
	assert.Equal(t, IngestSucceeded, report.Outcome)
	assert.Equal(t, 1, report.Files)
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, 1, report.Chunks)
	assert.NotEmpty(t, report.Summary)
	assert.Equal(t, []Stage{StageScanning, StageLoaded, StageChunked, StageIndexing, StageDone}, stages)

	reply, err := svc.Query(ctx, "What is RAG?")
	require.NoError(t, err)
	require.NotEmpty(t, reply.Evidence)
	assert.Equal(t, filepath.Join(dataDir, "rag.md"), reply.Evidence[0].SourcePath)
	assert.Contains(t, reply.Text, "Retrieval Augmented Generation")
	for _, w := range strings.Fields(strings.ToLower(reply.Text)) {
		w = strings.Trim(w, ".,!?")
		assert.Contains(t, strings.ToLower(reply.Evidence[0].Text), w, "answer word %q not in evidence", w)
	}

	tr := svc.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, domain.ConversationTurn{Role: domain.RoleUser, Content: "What is RAG?"}, tr[0])
	assert.Equal(t, domain.ConversationTurn{Role: domain.RoleAssistant, Content: reply.Text}, tr[1])
}

func TestQueryBeforeIngest(t *testing.T) {
	svc, _ := newTestService(t, hashing.NewEmbedder(64), extractive.New(), memory.NewStorage())

	reply, err := svc.Query(context.Background(), "What is RAG?")
	assert.ErrorIs(t, err, domain.ErrIndexMissing)
	assert.Equal(t, ReplyIndexMissing, reply.Text)
	assert.Empty(t, reply.Evidence)

	tr := svc.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, domain.RoleUser, tr[0].Role)
	assert.Equal(t, ReplyIndexMissing, tr[1].Content)

	status, err := svc.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Ready)
	assert.Equal(t, StatusMissing, status.Label)
}

func TestGreetingWithIndex(t *testing.T) {
	ctx := context.Background()
	svc, dataDir := newTestService(t, hashing.NewEmbedder(64), extractive.New(), memory.NewStorage())
	writeFile(t, dataDir, "finance.md", "Quarterly revenue grew by four percent.")
	_, err := svc.Ingest(ctx, dataDir, nil)
	require.NoError(t, err)

	reply, err := svc.Query(ctx, "hello")
	require.NoError(t, err)
	assert.Contains(t, strings.ToLower(reply.Text), "hello")
}

func TestIngest_EmptyCorpus(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStorage()
	svc, dataDir := newTestService(t, hashing.NewEmbedder(64), extractive.New(), store)
	writeFile(t, dataDir, "notes.txt", "plain text is not indexed")
	writeFile(t, dataDir, "blank.md", "   \n\n")

	var last Progress
	report, err := svc.Ingest(ctx, dataDir, func(p Progress) { last = p })
	require.NoError(t, err)
	assert.Equal(t, IngestEmpty, report.Outcome)
	assert.Equal(t, StageEmpty, last.Stage)

	_, built, err := store.Meta(ctx)
	require.NoError(t, err)
	assert.False(t, built)
}

func TestIngest_CreatesMissingDataDir(t *testing.T) {
	svc, dataDir := newTestService(t, hashing.NewEmbedder(64), extractive.New(), memory.NewStorage())

	report, err := svc.Ingest(context.Background(), dataDir, nil)
	require.NoError(t, err)
	assert.Equal(t, IngestEmpty, report.Outcome)
	assert.DirExists(t, dataDir)
}

func TestIngest_EmbeddingFailureKeepsOldIndex(t *testing.T) {
	ctx := context.Background()
	emb := &switchableEmbedder{inner: hashing.NewEmbedder(128)}
	svc, dataDir := newTestService(t, emb, extractive.New(), memory.NewStorage())
	writeFile(t, dataDir, "go.md", "Goroutines are lightweight threads managed by the Go runtime.")
	_, err := svc.Ingest(ctx, dataDir, nil)
	require.NoError(t, err)

	writeFile(t, dataDir, "more.md", "Channels connect goroutines.")
	emb.fail.Store(true)
	var stages []Stage
	report, err := svc.Ingest(ctx, dataDir, func(p Progress) { stages = append(stages, p.Stage) })
	assert.ErrorContains(t, err, "embedding server down")
	assert.Equal(t, IngestFailed, report.Outcome)
	assert.Equal(t, StageFailed, stages[len(stages)-1])
	for i := 1; i < len(stages); i++ {
		assert.Greater(t, stages[i], stages[i-1])
	}

	emb.fail.Store(false)
	reply, err := svc.Query(ctx, "What are goroutines?")
	require.NoError(t, err)
	require.Len(t, reply.Evidence, 1)
	assert.Equal(t, filepath.Join(dataDir, "go.md"), reply.Evidence[0].SourcePath)
}

func TestQuery_GenerationErrorIsRecorded(t *testing.T) {
	ctx := context.Background()
	svc, dataDir := newTestService(t, hashing.NewEmbedder(64), failingGenerator{}, memory.NewStorage())
	writeFile(t, dataDir, "doc.md", "Some indexed knowledge.")
	_, err := svc.Ingest(ctx, dataDir, nil)
	require.NoError(t, err)

	reply, err := svc.Query(ctx, "What knowledge?")
	var ge *domain.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "broken-model", ge.Model)
	assert.Equal(t, ReplyGenerationError, reply.Text)

	tr := svc.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, ReplyGenerationError, tr[1].Content)
}

func TestQuery_LoadsPersistedIndex(t *testing.T) {
	ctx := context.Background()
	indexDir := t.TempDir()
	emb := hashing.NewEmbedder(128)

	store, err := sqlite.Open(indexDir)
	require.NoError(t, err)
	first, dataDir := newTestService(t, emb, extractive.New(), store)
	writeFile(t, dataDir, "rag.md", "RAG stands for Retrieval Augmented Generation.")
	_, err = first.Ingest(ctx, dataDir, nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	reopened, err := sqlite.Open(indexDir)
	require.NoError(t, err)
	second, _ := newTestService(t, emb, extractive.New(), reopened)
	defer second.Close()

	status, err := second.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Ready)
	assert.Equal(t, StatusReady, status.Label)
	assert.Equal(t, 1, status.Index.Count)

	reply, err := second.Query(ctx, "What is RAG?")
	require.NoError(t, err)
	assert.Contains(t, reply.Text, "Retrieval Augmented Generation")
}

func TestQuery_EmbedderOfOtherDimensionIsRejected(t *testing.T) {
	ctx := context.Background()
	indexDir := t.TempDir()

	store, err := sqlite.Open(indexDir)
	require.NoError(t, err)
	first, dataDir := newTestService(t, hashing.NewEmbedder(384), extractive.New(), store)
	writeFile(t, dataDir, "a.md", "Goroutines are lightweight threads managed by the Go runtime.")
	writeFile(t, dataDir, "b.md", "Sourdough bread needs a starter and a long fermentation.")
	_, err = first.Ingest(ctx, dataDir, nil)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	reopened, err := sqlite.Open(indexDir)
	require.NoError(t, err)
	second, _ := newTestService(t, hashing.NewEmbedder(16), extractive.New(), reopened)
	defer second.Close()

	reply, err := second.Query(ctx, "sourdough bread starter")
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	assert.Equal(t, ReplyGenerationError, reply.Text)
	assert.Empty(t, reply.Evidence)

	tr := second.Transcript()
	require.Len(t, tr, 2)
	assert.Equal(t, "sourdough bread starter", tr[0].Content)
	assert.Equal(t, ReplyGenerationError, tr[1].Content)
}

func TestQuery_ComposerBuildFailure(t *testing.T) {
	ctx := context.Background()
	res := NewResources(
		func() (domain.Embedder, error) { return hashing.NewEmbedder(64), nil },
		func() (domain.Generator, error) { return nil, errors.New("HF_TOKEN not set") },
		func() (vectorstore.Storage, error) { return memory.NewStorage(), nil },
	)
	dataDir := filepath.Join(t.TempDir(), "data")
	svc, err := New(res, Options{DataDir: dataDir})
	require.NoError(t, err)
	writeFile(t, dataDir, "doc.md", "Some indexed knowledge.")
	_, err = svc.Ingest(ctx, dataDir, nil)
	require.NoError(t, err)

	reply, err := svc.Query(ctx, "What knowledge?")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init generator: HF_TOKEN not set")
	assert.NotContains(t, err.Error(), "generation with  failed")
	assert.Equal(t, ReplyGenerationError, reply.Text)
}

func TestIngestUploads(t *testing.T) {
	ctx := context.Background()
	svc, dataDir := newTestService(t, hashing.NewEmbedder(64), extractive.New(), memory.NewStorage())

	_, err := svc.IngestUploads(ctx, []loader.Upload{{Name: "evil.exe", Data: []byte("x")}}, nil)
	assert.ErrorIs(t, err, loader.ErrUnsupportedUpload)

	report, err := svc.IngestUploads(ctx, []loader.Upload{
		{Name: "a.md", Data: []byte("Alpha document text.")},
		{Name: "b.md", Data: []byte("Beta document text.")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Files)
	assert.FileExists(t, filepath.Join(dataDir, "a.md"))
}

func TestResourcesAreBuiltOnce(t *testing.T) {
	ctx := context.Background()
	var embedders, generators, stores atomic.Int32
	res := NewResources(
		func() (domain.Embedder, error) {
			embedders.Add(1)
			return hashing.NewEmbedder(64), nil
		},
		func() (domain.Generator, error) {
			generators.Add(1)
			return extractive.New(), nil
		},
		func() (vectorstore.Storage, error) {
			stores.Add(1)
			return memory.NewStorage(), nil
		},
	)
	dataDir := filepath.Join(t.TempDir(), "data")
	svc, err := New(res, Options{DataDir: dataDir})
	require.NoError(t, err)
	assert.Zero(t, embedders.Load())

	writeFile(t, dataDir, "doc.md", "Lazy resources are constructed on first use.")
	_, err = svc.Ingest(ctx, dataDir, nil)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = svc.Query(ctx, "When are resources constructed?")
		require.NoError(t, err)
	}
	_, err = svc.Ingest(ctx, dataDir, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(1), embedders.Load())
	assert.Equal(t, int32(1), generators.Load())
	assert.Equal(t, int32(1), stores.Load())
}

func TestResources_RetriesFailedBuild(t *testing.T) {
	calls := 0
	res := NewResources(func() (domain.Embedder, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("missing token")
		}
		return hashing.NewEmbedder(8), nil
	}, nil, nil)

	_, err := res.Embedder()
	assert.ErrorContains(t, err, "init embedder")
	e, err := res.Embedder()
	require.NoError(t, err)
	assert.NotNil(t, e)

	_, err = res.Generator()
	assert.ErrorContains(t, err, "no generator configured")
}

func TestTranscriptIsACopy(t *testing.T) {
	svc, _ := newTestService(t, hashing.NewEmbedder(64), extractive.New(), memory.NewStorage())
	_, _ = svc.Query(context.Background(), "anything")

	tr := svc.Transcript()
	tr[0].Content = "changed"
	assert.Equal(t, "anything", svc.Transcript()[0].Content)
	assert.Equal(t, 1, tr.Exchanges())
}
