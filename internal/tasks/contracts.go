package tasks

import "context"

// Transformer flattens the staged headline documents of headlinesDir into
// CSV files under csvDir and returns their paths. Rows for a raw headlines
// response come from extract.ExtractArticles.
type Transformer interface {
	Flatten(ctx context.Context, headlinesDir, csvDir string) ([]string, error)
}

// Uploader copies one local file into a bucket of the remote object store.
type Uploader interface {
	Upload(ctx context.Context, bucket, path string) error
}
