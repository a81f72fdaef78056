// Package tasks holds the task bodies an external orchestrator invokes for
// each node of a news pipeline run.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-multierror"

	"newsetl/internal/config"
	"newsetl/internal/extract"
	"newsetl/internal/logger"
	"newsetl/internal/newsapi"
	"newsetl/internal/newsinfo"
	"newsetl/internal/pipeline"
	"newsetl/internal/state"
	"newsetl/internal/storage"
	"newsetl/pkg/utils"
)

// Task errors.
var (
	ErrResponseCheckFailed = errors.New("response check failed")
	ErrUnexpectedStatus    = errors.New("unexpected status code")
	ErrNoNewsFiles         = errors.New("no staged news files")
	ErrUnsupportedMode     = errors.New("pipeline mode not supported by this task")
)

// Runner executes the tasks of a pipeline run.
type Runner struct {
	storage     *storage.FileStorage
	news        *newsapi.Client
	vars        state.Variables
	logger      *logger.Logger
	strings     *utils.StringHelper
	transformer Transformer
	uploader    Uploader
	keywords    []string
}

// Summary reports what a full run produced.
type Summary struct {
	Uploaded      []string
	CSVFiles      []string
	HeadlineFiles int
	Duration      time.Duration
}

// NewRunner wires storage, shared state and the news client from cfg.
func NewRunner(cfg *config.Config, log *logger.Logger) (*Runner, error) {
	store := storage.NewFileStorage(cfg.Storage.HomeDir, cfg.Storage.Root, log)

	vars, err := state.New(cfg.State.Backend, cfg.Storage.HomeDir, store.Root())
	if err != nil {
		return nil, err
	}

	client := newsapi.NewClient(cfg.NewsAPI, store, vars, log)

	return NewRunnerWithDeps(store, client, vars, cfg.NewsAPI.Keywords, log), nil
}

// NewRunnerWithDeps creates a runner with injected dependencies.
func NewRunnerWithDeps(store *storage.FileStorage, client *newsapi.Client, vars state.Variables, keywords []string, log *logger.Logger) *Runner {
	return &Runner{
		storage:  store,
		news:     client,
		vars:     vars,
		logger:   log,
		strings:  utils.NewStringHelper(),
		keywords: keywords,
	}
}

// SetTransformer installs the CSV flattening collaborator.
func (r *Runner) SetTransformer(t Transformer) {
	r.transformer = t
}

// SetUploader installs the object store collaborator.
func (r *Runner) SetUploader(u Uploader) {
	r.uploader = u
}

// Variables returns the shared state the runner publishes to.
func (r *Runner) Variables() state.Variables {
	return r.vars
}

// Storage returns the runner's file storage.
func (r *Runner) Storage() *storage.FileStorage {
	return r.storage
}

func (r *Runner) log(rc RunContext) *logger.Logger {
	return r.logger.With("pipeline", string(rc.Pipeline), "run_id", rc.RunID)
}

// CreateStorage prepares the staging tree and publishes the run identity.
func (r *Runner) CreateStorage(_ context.Context, rc RunContext) error {
	if err := r.storage.CreateStorage(rc.Pipeline, r.vars); err != nil {
		return err
	}

	if r.vars != nil && rc.RunID != "" {
		if err := r.vars.Set(state.KeyRunID, rc.RunID); err != nil {
			return fmt.Errorf("failed to publish run id: %w", err)
		}
	}

	r.log(rc).Info("Storage ready")

	return nil
}

// FetchSources requests the english sources listing and stages it through
// the GetNews response check.
func (r *Runner) FetchSources(ctx context.Context, rc RunContext) error {
	log := r.log(rc)
	log.Info("Running fetch_sources")

	resp, err := r.news.GetSources(ctx)
	if err != nil {
		return err
	}

	ok, status, err := r.news.GetNews(resp, "", rc.Pipeline)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("%w: status %d", ErrResponseCheckFailed, status)
	}

	return nil
}

// FetchSourceHeadlines fetches the top headlines of every staged source and
// writes one <source>_headlines.json record per source. A failing source does
// not stop the others; all failures are returned together. Sources without
// headlines are skipped.
func (r *Runner) FetchSourceHeadlines(ctx context.Context, rc RunContext) (int, error) {
	log := r.log(rc)
	log.Info("Running fetch_source_headlines")

	if rc.Pipeline.Mode() != pipeline.ModeSources {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedMode, rc.Pipeline)
	}

	info, err := newsinfo.New(string(rc.Pipeline), r.storage)
	if err != nil {
		return 0, err
	}

	if len(info.NewsFiles()) == 0 {
		return 0, ErrNoNewsFiles
	}

	newsDir, err := info.NewsDirectory()
	if err != nil {
		return 0, err
	}

	headlinesDir, err := info.HeadlinesDirectory()
	if err != nil {
		return 0, err
	}

	sources, err := extract.ExtractJSONsSourceInfo(info.NewsFiles(), newsDir, r.storage)
	if err != nil {
		return 0, err
	}

	log.Info("Total news sources retrieved", "count", len(sources))

	var (
		result  *multierror.Error
		written int
		seen    = map[string]bool{}
		labels  = map[string]bool{}
		stamp   = time.Now().Format(storage.TimestampLayout)
	)

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return written, multierror.Append(result, err).ErrorOrNil()
		}

		if seen[src.ID] {
			continue
		}

		seen[src.ID] = true

		name := src.Name
		if name == "" {
			name = src.ID
		}

		resp, err := r.news.GetSourceHeadlines(ctx, src.ID, "", "")
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("source %s: %w", src.ID, err))

			continue
		}

		headlines, err := headlinesFrom(resp)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("source %s: %w", src.ID, err))

			continue
		}

		if len(headlines) == 0 {
			log.Info("No headlines for source", "source", src.ID)

			continue
		}

		record, err := extract.CreateTopHeadlinesJSON(src.ID, name, headlines)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("source %s: %w", src.ID, err))

			continue
		}

		label := uniqueLabel(labels, r.strings.SafeFileLabel(src.ID))

		if _, err := r.storage.WriteJSON(record, headlinesDir, stamp, label+"_headlines"); err != nil {
			result = multierror.Append(result, fmt.Errorf("source %s: %w", src.ID, err))

			continue
		}

		written++
	}

	log.Info("Staged source headlines", "files", written)

	return written, result.ErrorOrNil()
}

// FetchKeywordHeadlines fetches the top headlines of each configured keyword
// and writes one <keyword>_headlines.json record per keyword.
func (r *Runner) FetchKeywordHeadlines(ctx context.Context, rc RunContext) (int, error) {
	log := r.log(rc)
	log.Info("Running fetch_keyword_headlines", "keywords", len(r.keywords))

	if rc.Pipeline.Mode() != pipeline.ModeKeywords {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedMode, rc.Pipeline)
	}

	headlinesDir, err := r.storage.HeadlinesDirectory(rc.Pipeline)
	if err != nil {
		return 0, err
	}

	var (
		result  *multierror.Error
		written int
		labels  = map[string]bool{}
		stamp   = time.Now().Format(storage.TimestampLayout)
	)

	for _, keyword := range r.keywords {
		if err := ctx.Err(); err != nil {
			return written, multierror.Append(result, err).ErrorOrNil()
		}

		resp, err := r.news.GetKeywordHeadlines(ctx, keyword, "", "")
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("keyword %q: %w", keyword, err))

			continue
		}

		label := keywordLabel(resp, keyword)

		headlines, err := headlinesFrom(resp)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("keyword %q: %w", keyword, err))

			continue
		}

		if len(headlines) == 0 {
			log.Info("No headlines for keyword", "keyword", label)

			continue
		}

		record, err := extract.CreateKeywordHeadlinesJSON(label, headlines)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("keyword %q: %w", keyword, err))

			continue
		}

		fileLabel := uniqueLabel(labels, r.strings.SafeFileLabel(label))

		if _, err := r.storage.WriteJSON(record, headlinesDir, stamp, fileLabel+"_headlines"); err != nil {
			result = multierror.Append(result, fmt.Errorf("keyword %q: %w", keyword, err))

			continue
		}

		written++
	}

	log.Info("Staged keyword headlines", "files", written)

	return written, result.ErrorOrNil()
}

// uniqueLabel claims label in taken, appending _2, _3, ... when an earlier
// record of the same run already holds it.
func uniqueLabel(taken map[string]bool, label string) string {
	candidate := label
	for n := 2; taken[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d", label, n)
	}

	taken[candidate] = true

	return candidate
}

// keywordLabel prefers the keyword recorded in the request URL of resp.
func keywordLabel(resp *http.Response, keyword string) string {
	if resp.Request == nil {
		return keyword
	}

	if label, err := extract.ExtractHeadlineKeyword(resp.Request.URL); err == nil {
		return label
	}

	return keyword
}

// headlinesFrom checks for an exact 200 and extracts the article titles.
func headlinesFrom(resp *http.Response) ([]string, error) {
	if resp.StatusCode != http.StatusOK {
		if resp.Body != nil {
			_ = resp.Body.Close()
		}

		return nil, fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	doc, err := newsapi.DecodeJSON(resp)
	if err != nil {
		return nil, err
	}

	return extract.ExtractNewsHeadlines(doc)
}

// Transform hands the staged headlines to the configured Transformer.
// Without one the stage is skipped.
func (r *Runner) Transform(ctx context.Context, rc RunContext) ([]string, error) {
	log := r.log(rc)

	if r.transformer == nil {
		log.Info("No transformer configured, skipping transform stage")

		return nil, nil
	}

	headlinesDir, err := r.storage.HeadlinesDirectory(rc.Pipeline)
	if err != nil {
		return nil, err
	}

	csvDir, err := r.storage.CSVDirectory(rc.Pipeline)
	if err != nil {
		return nil, err
	}

	files, err := r.transformer.Flatten(ctx, headlinesDir, csvDir)
	if err != nil {
		return nil, fmt.Errorf("transform failed: %w", err)
	}

	log.Info("Transformed headlines", "files", len(files))

	return files, nil
}

// Upload hands each file to the configured Uploader, targeting the
// pipeline's bucket. Without one the stage is skipped.
func (r *Runner) Upload(ctx context.Context, rc RunContext, files []string) ([]string, error) {
	log := r.log(rc)

	if r.uploader == nil {
		log.Info("No uploader configured, skipping upload stage")

		return nil, nil
	}

	bucket, err := rc.Pipeline.Bucket()
	if err != nil {
		return nil, err
	}

	var (
		result   *multierror.Error
		uploaded []string
	)

	for _, path := range files {
		if err := r.uploader.Upload(ctx, bucket, path); err != nil {
			result = multierror.Append(result, fmt.Errorf("upload %s: %w", path, err))

			continue
		}

		uploaded = append(uploaded, path)
	}

	log.Info("Uploaded files", "bucket", bucket, "files", len(uploaded))

	return uploaded, result.ErrorOrNil()
}

// Run executes every stage of rc's pipeline in order, stopping at the first
// failing stage.
func (r *Runner) Run(ctx context.Context, rc RunContext) (*Summary, error) {
	start := time.Now()
	summary := &Summary{}

	defer func() { summary.Duration = time.Since(start) }()

	if err := r.CreateStorage(ctx, rc); err != nil {
		return summary, fmt.Errorf("create storage: %w", err)
	}

	switch rc.Pipeline.Mode() {
	case pipeline.ModeSources:
		if err := r.FetchSources(ctx, rc); err != nil {
			return summary, fmt.Errorf("fetch sources: %w", err)
		}

		n, err := r.FetchSourceHeadlines(ctx, rc)
		summary.HeadlineFiles = n

		if err != nil {
			return summary, fmt.Errorf("fetch source headlines: %w", err)
		}
	case pipeline.ModeKeywords:
		n, err := r.FetchKeywordHeadlines(ctx, rc)
		summary.HeadlineFiles = n

		if err != nil {
			return summary, fmt.Errorf("fetch keyword headlines: %w", err)
		}
	default:
		return summary, fmt.Errorf("%w: %s", ErrUnsupportedMode, rc.Pipeline)
	}

	csvFiles, err := r.Transform(ctx, rc)
	summary.CSVFiles = csvFiles

	if err != nil {
		return summary, err
	}

	uploaded, err := r.Upload(ctx, rc, csvFiles)
	summary.Uploaded = uploaded

	if err != nil {
		return summary, err
	}

	return summary, nil
}
