// Package extract pulls sources, headlines and articles out of decoded news
// API documents.
//
// Every extractor requires its top-level key to be present. An empty
// container is a valid empty result, except for the sources listing where
// an empty list is an error.
package extract

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"newsetl/internal/models"
)

// Extraction errors.
var (
	ErrMissingKey    = errors.New("missing expected key")
	ErrEmptyData     = errors.New("required collection is empty")
	ErrBlankArgument = errors.New("argument cannot be blank")
	ErrParse         = errors.New("parsing error")
)

// JSONReader loads one staged JSON object.
type JSONReader interface {
	ReadJSON(path string) (map[string]any, error)
}

// ExtractNewsSourceID returns the id of every source, in input order.
func ExtractNewsSourceID(doc map[string]any) ([]string, error) {
	sources, err := ExtractSources(doc)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(sources))
	for _, src := range sources {
		ids = append(ids, src.ID)
	}

	return ids, nil
}

// ExtractSources returns the {id, name} of every source, in input order.
func ExtractSources(doc map[string]any) ([]models.Source, error) {
	raw, ok := doc["sources"]
	if !ok {
		return nil, fmt.Errorf("%w: news json has no 'sources' data", ErrMissingKey)
	}

	items, ok := raw.([]any)
	if !ok && raw != nil {
		return nil, fmt.Errorf("%w: 'sources' is not a list", ErrParse)
	}

	if len(items) == 0 {
		return nil, fmt.Errorf("%w: 'sources' tag in json is empty", ErrEmptyData)
	}

	sources := make([]models.Source, 0, len(items))

	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: sources[%d] is not an object", ErrParse, i)
		}

		id, ok := stringField(obj, "id")
		if !ok || id == "" {
			return nil, fmt.Errorf("%w: sources[%d] has no 'id'", ErrMissingKey, i)
		}

		name, _ := stringField(obj, "name")
		sources = append(sources, models.Source{ID: id, Name: name})
	}

	return sources, nil
}

// ExtractNewsHeadlines returns the title of every article. A document with
// an empty 'articles' list yields an empty slice.
func ExtractNewsHeadlines(doc map[string]any) ([]string, error) {
	items, err := articles(doc)
	if err != nil {
		return nil, err
	}

	headlines := make([]string, 0, len(items))

	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: articles[%d] is not an object", ErrParse, i)
		}

		title, ok := stringField(obj, "title")
		if !ok {
			return nil, fmt.Errorf("%w: articles[%d] has no 'title'", ErrMissingKey, i)
		}

		headlines = append(headlines, title)
	}

	return headlines, nil
}

// ExtractArticles flattens every article into a row. It is the row source
// for a tasks.Transformer building CSV output.
func ExtractArticles(doc map[string]any) ([]models.Article, error) {
	items, err := articles(doc)
	if err != nil {
		return nil, err
	}

	rows := make([]models.Article, 0, len(items))

	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: articles[%d] is not an object", ErrParse, i)
		}

		row := models.Article{}

		if src, ok := obj["source"].(map[string]any); ok {
			row.SourceID, _ = stringField(src, "id")
			row.SourceName, _ = stringField(src, "name")
		}

		row.Author, _ = stringField(obj, "author")
		row.Title, _ = stringField(obj, "title")
		row.Description, _ = stringField(obj, "description")
		row.URL, _ = stringField(obj, "url")
		row.URLToImage, _ = stringField(obj, "urlToImage")
		row.PublishedAt, _ = stringField(obj, "publishedAt")
		row.Content, _ = stringField(obj, "content")

		rows = append(rows, row)
	}

	return rows, nil
}

func articles(doc map[string]any) ([]any, error) {
	raw, ok := doc["articles"]
	if !ok {
		return nil, fmt.Errorf("%w: news json has no 'articles' data", ErrMissingKey)
	}

	if raw == nil {
		return nil, nil
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: 'articles' is not a list", ErrParse)
	}

	return items, nil
}

// ExtractHeadlineKeyword returns the lower-cased 'q' query parameter of the
// URL a keyword headlines request was sent to.
func ExtractHeadlineKeyword(u *url.URL) (string, error) {
	if u == nil {
		return "", fmt.Errorf("%w: request URL", ErrBlankArgument)
	}

	keyword := u.Query().Get("q")
	if keyword == "" {
		return "", fmt.Errorf("%w: query param not found in URL %s", ErrMissingKey, redact(u))
	}

	return strings.ToLower(keyword), nil
}

// ExtractJSONsSourceInfo reads each staged sources file in dir and returns
// all of their sources in file order.
func ExtractJSONsSourceInfo(files []string, dir string, reader JSONReader) ([]models.Source, error) {
	var all []models.Source

	for _, name := range files {
		path := filepath.Join(dir, name)

		doc, err := reader.ReadJSON(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrParse, path, err)
		}

		sources, err := ExtractSources(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrParse, path, err)
		}

		all = append(all, sources...)
	}

	return all, nil
}

// CreateTopHeadlinesJSON assembles the staged record of one source's headlines.
func CreateTopHeadlinesJSON(sourceID, sourceName string, headlines []string) (models.HeadlineRecord, error) {
	if strings.TrimSpace(sourceID) == "" {
		return models.HeadlineRecord{}, fmt.Errorf("%w: 'source_id'", ErrBlankArgument)
	}

	if strings.TrimSpace(sourceName) == "" {
		return models.HeadlineRecord{}, fmt.Errorf("%w: 'source_name'", ErrBlankArgument)
	}

	if len(headlines) == 0 {
		return models.HeadlineRecord{}, fmt.Errorf("%w: 'headlines'", ErrBlankArgument)
	}

	return models.HeadlineRecord{
		Source:    models.Source{ID: sourceID, Name: sourceName},
		Headlines: headlines,
	}, nil
}

// CreateKeywordHeadlinesJSON assembles the staged record of one keyword's headlines.
func CreateKeywordHeadlinesJSON(keyword string, headlines []string) (models.KeywordHeadlineRecord, error) {
	if strings.TrimSpace(keyword) == "" {
		return models.KeywordHeadlineRecord{}, fmt.Errorf("%w: 'keyword'", ErrBlankArgument)
	}

	if len(headlines) == 0 {
		return models.KeywordHeadlineRecord{}, fmt.Errorf("%w: 'headlines'", ErrBlankArgument)
	}

	return models.KeywordHeadlineRecord{Keyword: keyword, Headlines: headlines}, nil
}

// stringField returns obj[key] as a string. JSON null counts as present but empty.
func stringField(obj map[string]any, key string) (string, bool) {
	raw, ok := obj[key]
	if !ok {
		return "", false
	}

	switch v := raw.(type) {
	case nil:
		return "", true
	case string:
		return v, true
	default:
		return fmt.Sprint(v), true
	}
}

// redact hides the API key in URLs that end up in error messages.
func redact(u *url.URL) string {
	c := *u
	q := c.Query()

	if q.Has("apiKey") {
		q.Set("apiKey", "REDACTED")
		c.RawQuery = q.Encode()
	}

	return c.String()
}
