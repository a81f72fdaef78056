// Package newsinfo describes the staged news data of one pipeline.
package newsinfo

import (
	"fmt"

	"newsetl/internal/pipeline"
	"newsetl/internal/storage"
)

// NewsInfo bundles a pipeline's directories, bucket and staged news files.
type NewsInfo struct {
	store     *storage.FileStorage
	id        pipeline.ID
	newsFiles []string
}

// New validates name and, for pipelines that work from a sources listing,
// loads the staged news files.
func New(name string, store *storage.FileStorage) (*NewsInfo, error) {
	id, err := pipeline.Parse(name)
	if err != nil {
		return nil, err
	}

	info := &NewsInfo{store: store, id: id}

	if id.Mode() == pipeline.ModeSources {
		files, err := info.LoadNewsFiles("")
		if err != nil {
			return nil, err
		}

		info.newsFiles = files
	}

	return info, nil
}

// LoadNewsFiles lists the .json files of dir, or of the pipeline's news
// directory when dir is empty.
func (n *NewsInfo) LoadNewsFiles(dir string) ([]string, error) {
	if dir == "" {
		var err error

		dir, err = n.NewsDirectory()
		if err != nil {
			return nil, err
		}
	}

	files, err := n.store.ListJSONFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load news files: %w", err)
	}

	return files, nil
}

// Pipeline returns the pipeline identity.
func (n *NewsInfo) Pipeline() pipeline.ID { return n.id }

// NewsFiles returns the staged news file names loaded at construction.
func (n *NewsInfo) NewsFiles() []string { return n.newsFiles }

// NewsDirectory returns the pipeline's news directory.
func (n *NewsInfo) NewsDirectory() (string, error) { return n.store.NewsDirectory(n.id) }

// HeadlinesDirectory returns the pipeline's headlines directory.
func (n *NewsInfo) HeadlinesDirectory() (string, error) { return n.store.HeadlinesDirectory(n.id) }

// CSVDirectory returns the pipeline's csv directory.
func (n *NewsInfo) CSVDirectory() (string, error) { return n.store.CSVDirectory(n.id) }

// Bucket returns the bucket the pipeline's CSV output belongs in.
func (n *NewsInfo) Bucket() (string, error) { return n.id.Bucket() }
