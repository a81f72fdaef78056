package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"newsetl/internal/config"
	"newsetl/internal/logger"
	"newsetl/internal/newsapi"
	"newsetl/internal/pipeline"
	"newsetl/internal/state"
	"newsetl/internal/storage"
)

// fakeNewsAPI serves a sources listing and per-source or per-keyword headlines.
func fakeNewsAPI(t *testing.T, sources string) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/v2/sources":
			fmt.Fprint(w, sources)
		case "/v2/top-headlines":
			q := r.URL.Query()

			switch {
			case q.Get("sources") == "abc-news":
				fmt.Fprint(w, `{"status":"ok","articles":[{"title":"Markets rally"},{"title":"Storm ahead"}]}`)
			case q.Get("sources") == "broken":
				w.WriteHeader(http.StatusInternalServerError)
			case q.Get("sources") != "":
				fmt.Fprint(w, `{"status":"ok","articles":[]}`)
			case q.Get("q") != "":
				fmt.Fprintf(w, `{"status":"ok","articles":[{"title":"About %s"}]}`, q.Get("q"))
			default:
				w.WriteHeader(http.StatusBadRequest)
			}
		default:
			http.NotFound(w, r)
		}
	}))

	t.Cleanup(srv.Close)

	return srv
}

const twoSources = `{"status":"ok","sources":[{"id":"abc-news","name":"ABC News"},{"id":"bbc-news","name":"BBC News"}]}`

func newRunner(t *testing.T, srv *httptest.Server, keywords []string) *Runner {
	t.Helper()

	home := t.TempDir()
	store := storage.NewFileStorage(home, "", logger.Discard())
	vars := state.NewFileVariables(filepath.Join(home, "tempdata", "variables.json"))

	cfg := config.Default().NewsAPI
	cfg.APIKey = "test-key"
	cfg.SourcesURL = srv.URL + "/v2/sources?language=en"
	cfg.HeadlinesURL = srv.URL + "/v2/top-headlines?"

	client := newsapi.NewClientWithDoer(srv.Client(), cfg, store, vars, logger.Discard())

	return NewRunnerWithDeps(store, client, vars, keywords, logger.Discard())
}

func TestNewRunContext(t *testing.T) {
	rc, err := NewRunContext("tempus_challenge_dag")
	require.NoError(t, err)
	assert.Equal(t, pipeline.Challenge, rc.Pipeline)
	assert.NotEmpty(t, rc.RunID)
	assert.False(t, rc.StartedAt.IsZero())

	_, err = NewRunContext("wrong_pipeline_name_dag")
	require.ErrorIs(t, err, pipeline.ErrUnknownPipeline)
}

func TestResolveRunContext_FromPublishedState(t *testing.T) {
	vars := state.NewFileVariables(filepath.Join(t.TempDir(), "variables.json"))
	require.NoError(t, vars.Set(state.KeyPipeline, "tempus_bonus_challenge_dag"))
	require.NoError(t, vars.Set(state.KeyRunID, "run-42"))

	rc, err := ResolveRunContext(vars, "")
	require.NoError(t, err)
	assert.Equal(t, pipeline.BonusChallenge, rc.Pipeline)
	assert.Equal(t, "run-42", rc.RunID)

	rc, err = ResolveRunContext(vars, "tempus_bonus_challenge_dag")
	require.NoError(t, err)
	assert.Equal(t, "run-42", rc.RunID)

	// Another pipeline's run id is not borrowed.
	rc, err = ResolveRunContext(vars, "tempus_challenge_dag")
	require.NoError(t, err)
	assert.Equal(t, pipeline.Challenge, rc.Pipeline)
	assert.NotEqual(t, "run-42", rc.RunID)
	assert.NotEmpty(t, rc.RunID)
}

func TestResolveRunContext_NothingPublished(t *testing.T) {
	vars := state.NewFileVariables(filepath.Join(t.TempDir(), "variables.json"))

	_, err := ResolveRunContext(vars, "")
	require.ErrorIs(t, err, state.ErrVariableNotFound)

	_, err = ResolveRunContext(nil, "")
	require.ErrorIs(t, err, pipeline.ErrBlankPipeline)

	rc, err := ResolveRunContext(vars, "tempus_challenge_dag")
	require.NoError(t, err)
	assert.NotEmpty(t, rc.RunID)
}

func TestCreateStorage_PublishesRunIdentity(t *testing.T) {
	r := newRunner(t, fakeNewsAPI(t, twoSources), nil)

	rc, err := NewRunContext("tempus_challenge_dag")
	require.NoError(t, err)
	require.NoError(t, r.CreateStorage(context.Background(), rc))

	name, err := r.Variables().Get(state.KeyPipeline)
	require.NoError(t, err)
	assert.Equal(t, "tempus_challenge_dag", name)

	runID, err := r.Variables().Get(state.KeyRunID)
	require.NoError(t, err)
	assert.Equal(t, rc.RunID, runID)

	for _, role := range pipeline.Roles() {
		dir, err := pipeline.Challenge.Dir(r.Storage().Home(), r.Storage().Root(), role)
		require.NoError(t, err)
		assert.DirExists(t, dir)
	}
}

func TestFetchSources_StagesListing(t *testing.T) {
	r := newRunner(t, fakeNewsAPI(t, twoSources), nil)
	ctx := context.Background()

	rc, err := NewRunContext("tempus_challenge_dag")
	require.NoError(t, err)
	require.NoError(t, r.CreateStorage(ctx, rc))
	require.NoError(t, r.FetchSources(ctx, rc))

	dir, err := r.Storage().NewsDirectory(rc.Pipeline)
	require.NoError(t, err)

	files, err := r.Storage().ListJSONFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0], "_english_news_sources.json"))
}

func TestFetchSources_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	r := newRunner(t, srv, nil)
	ctx := context.Background()

	rc, err := NewRunContext("tempus_challenge_dag")
	require.NoError(t, err)
	require.NoError(t, r.CreateStorage(ctx, rc))

	err = r.FetchSources(ctx, rc)
	require.ErrorIs(t, err, ErrResponseCheckFailed)
	assert.Contains(t, err.Error(), "201")
}

func TestFetchSourceHeadlines(t *testing.T) {
	r := newRunner(t, fakeNewsAPI(t, twoSources), nil)
	ctx := context.Background()

	rc, err := NewRunContext("tempus_challenge_dag")
	require.NoError(t, err)
	require.NoError(t, r.CreateStorage(ctx, rc))
	require.NoError(t, r.FetchSources(ctx, rc))

	n, err := r.FetchSourceHeadlines(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	dir, err := r.Storage().HeadlinesDirectory(rc.Pipeline)
	require.NoError(t, err)

	files, err := r.Storage().ListJSONFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, strings.HasSuffix(files[0], "_abc-news_headlines.json"))

	doc, err := r.Storage().ReadJSON(filepath.Join(dir, files[0]))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "abc-news", "name": "ABC News"}, doc["source"])
	assert.Equal(t, []any{"Markets rally", "Storm ahead"}, doc["headlines"])
}

func TestFetchSourceHeadlines_AccumulatesFailures(t *testing.T) {
	sources := `{"status":"ok","sources":[{"id":"broken","name":"Broken"},{"id":"abc-news","name":"ABC News"}]}`
	r := newRunner(t, fakeNewsAPI(t, sources), nil)
	ctx := context.Background()

	rc, err := NewRunContext("tempus_challenge_dag")
	require.NoError(t, err)
	require.NoError(t, r.CreateStorage(ctx, rc))
	require.NoError(t, r.FetchSources(ctx, rc))

	n, err := r.FetchSourceHeadlines(ctx, rc)
	require.Error(t, err)
	require.ErrorIs(t, err, ErrUnexpectedStatus)
	assert.Contains(t, err.Error(), "source broken")
	assert.Equal(t, 1, n)
}

func TestFetchSourceHeadlines_NoNewsFiles(t *testing.T) {
	r := newRunner(t, fakeNewsAPI(t, twoSources), nil)
	ctx := context.Background()

	rc, err := NewRunContext("tempus_challenge_dag")
	require.NoError(t, err)
	require.NoError(t, r.CreateStorage(ctx, rc))

	_, err = r.FetchSourceHeadlines(ctx, rc)
	require.ErrorIs(t, err, ErrNoNewsFiles)
}

func TestFetchSourceHeadlines_WrongMode(t *testing.T) {
	r := newRunner(t, fakeNewsAPI(t, twoSources), nil)

	rc, err := NewRunContext("tempus_bonus_challenge_dag")
	require.NoError(t, err)

	_, err = r.FetchSourceHeadlines(context.Background(), rc)
	require.ErrorIs(t, err, ErrUnsupportedMode)
}

func TestFetchKeywordHeadlines(t *testing.T) {
	r := newRunner(t, fakeNewsAPI(t, twoSources), []string{"Tempus Labs", "Cancer"})
	ctx := context.Background()

	rc, err := NewRunContext("tempus_bonus_challenge_dag")
	require.NoError(t, err)
	require.NoError(t, r.CreateStorage(ctx, rc))

	n, err := r.FetchKeywordHeadlines(ctx, rc)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	dir, err := r.Storage().HeadlinesDirectory(rc.Pipeline)
	require.NoError(t, err)

	files, err := r.Storage().ListJSONFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)

	var labels []string
	for _, f := range files {
		labels = append(labels, f[strings.Index(f, "_")+1:])
	}

	assert.ElementsMatch(t, []string{"tempus_labs_headlines.json", "cancer_headlines.json"}, labels)
}

type fakeTransformer struct {
	files []string
	err   error
	dirs  []string
}

func (f *fakeTransformer) Flatten(_ context.Context, headlinesDir, csvDir string) ([]string, error) {
	f.dirs = []string{headlinesDir, csvDir}

	return f.files, f.err
}

type fakeUploader struct {
	buckets map[string][]string
	fail    string
}

func (f *fakeUploader) Upload(_ context.Context, bucket, path string) error {
	if path == f.fail {
		return errors.New("bucket unavailable")
	}

	if f.buckets == nil {
		f.buckets = map[string][]string{}
	}

	f.buckets[bucket] = append(f.buckets[bucket], path)

	return nil
}

func TestTransformAndUpload_SkippedWithoutCollaborators(t *testing.T) {
	r := newRunner(t, fakeNewsAPI(t, twoSources), nil)

	rc, err := NewRunContext("tempus_challenge_dag")
	require.NoError(t, err)

	files, err := r.Transform(context.Background(), rc)
	require.NoError(t, err)
	assert.Nil(t, files)

	uploaded, err := r.Upload(context.Background(), rc, []string{"a.csv"})
	require.NoError(t, err)
	assert.Nil(t, uploaded)
}

func TestUpload_TargetsPipelineBucket(t *testing.T) {
	r := newRunner(t, fakeNewsAPI(t, twoSources), nil)
	up := &fakeUploader{fail: "b.csv"}
	r.SetUploader(up)

	rc, err := NewRunContext("tempus_bonus_challenge_dag")
	require.NoError(t, err)

	uploaded, err := r.Upload(context.Background(), rc, []string{"a.csv", "b.csv"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upload b.csv")
	assert.Equal(t, []string{"a.csv"}, uploaded)
	assert.Equal(t, []string{"a.csv"}, up.buckets["tempus-bonus-challenge-csv-headlines"])
}

func TestRun_SourcesPipeline(t *testing.T) {
	r := newRunner(t, fakeNewsAPI(t, twoSources), nil)
	tr := &fakeTransformer{files: []string{"/tmp/abc-news.csv"}}
	up := &fakeUploader{}
	r.SetTransformer(tr)
	r.SetUploader(up)

	rc, err := NewRunContext("tempus_challenge_dag")
	require.NoError(t, err)

	summary, err := r.Run(context.Background(), rc)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.HeadlineFiles)
	assert.Equal(t, []string{"/tmp/abc-news.csv"}, summary.CSVFiles)
	assert.Equal(t, []string{"/tmp/abc-news.csv"}, up.buckets["tempus-challenge-csv-headlines"])

	csvDir, err := r.Storage().CSVDirectory(rc.Pipeline)
	require.NoError(t, err)
	assert.Equal(t, csvDir, tr.dirs[1])
}

func TestRun_TransformFailureStops(t *testing.T) {
	r := newRunner(t, fakeNewsAPI(t, twoSources), []string{"Immunotherapy"})
	r.SetTransformer(&fakeTransformer{err: os.ErrPermission})
	up := &fakeUploader{}
	r.SetUploader(up)

	rc, err := NewRunContext("tempus_bonus_challenge_dag")
	require.NoError(t, err)

	summary, err := r.Run(context.Background(), rc)
	require.ErrorIs(t, err, os.ErrPermission)
	assert.Equal(t, 1, summary.HeadlineFiles)
	assert.Empty(t, up.buckets)
}

func TestFetchSourceHeadlines_CollidingLabels(t *testing.T) {
	sources := `{"status":"ok","sources":[{"id":"Reuters","name":"Reuters"},{"id":"reuters","name":"reuters"}]}`

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/v2/sources" {
			fmt.Fprint(w, sources)

			return
		}

		fmt.Fprintf(w, `{"status":"ok","articles":[{"title":"From %s"}]}`, r.URL.Query().Get("sources"))
	}))
	t.Cleanup(srv.Close)

	r := newRunner(t, srv, nil)
	ctx := context.Background()

	rc, err := NewRunContext("tempus_challenge_dag")
	require.NoError(t, err)
	require.NoError(t, r.CreateStorage(ctx, rc))
	require.NoError(t, r.FetchSources(ctx, rc))

	n, err := r.FetchSourceHeadlines(ctx, rc)
	require.NoError(t, err)

	dir, err := r.Storage().HeadlinesDirectory(rc.Pipeline)
	require.NoError(t, err)

	files, err := r.Storage().ListJSONFiles(dir)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, len(files), n)

	var ids []any
	for _, f := range files {
		doc, err := r.Storage().ReadJSON(filepath.Join(dir, f))
		require.NoError(t, err)

		ids = append(ids, doc["source"].(map[string]any)["id"])
	}

	assert.ElementsMatch(t, []any{"Reuters", "reuters"}, ids)
}

func TestFetchKeywordHeadlines_CollidingLabels(t *testing.T) {
	r := newRunner(t, fakeNewsAPI(t, twoSources), []string{"Cancer", "cancer"})
	ctx := context.Background()

	rc, err := NewRunContext("tempus_bonus_challenge_dag")
	require.NoError(t, err)
	require.NoError(t, r.CreateStorage(ctx, rc))

	n, err := r.FetchKeywordHeadlines(ctx, rc)
	require.NoError(t, err)

	dir, err := r.Storage().HeadlinesDirectory(rc.Pipeline)
	require.NoError(t, err)

	files, err := r.Storage().ListJSONFiles(dir)
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.Equal(t, len(files), n)
}

func TestUniqueLabel(t *testing.T) {
	taken := map[string]bool{}

	assert.Equal(t, "reuters", uniqueLabel(taken, "reuters"))
	assert.Equal(t, "reuters_2", uniqueLabel(taken, "reuters"))

	taken["bbc_2"] = true
	assert.Equal(t, "bbc", uniqueLabel(taken, "bbc"))
	assert.Equal(t, "bbc_3", uniqueLabel(taken, "bbc"))
}

func TestRun_DurationOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	r := newRunner(t, srv, nil)

	rc, err := NewRunContext("tempus_challenge_dag")
	require.NoError(t, err)

	summary, err := r.Run(context.Background(), rc)
	require.ErrorIs(t, err, ErrResponseCheckFailed)
	assert.Positive(t, summary.Duration)
}
