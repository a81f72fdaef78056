// Package models defines the news API documents and the records staged between tasks.
package models

// Source is a news outlet from the sources listing.
type Source struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// HeadlineRecord is the staged per-source headline document.
type HeadlineRecord struct {
	Source    Source   `json:"source"`
	Headlines []string `json:"headlines"`
}

// KeywordHeadlineRecord is the staged per-keyword headline document.
type KeywordHeadlineRecord struct {
	Keyword   string   `json:"keyword"`
	Headlines []string `json:"headlines"`
}

// Article is one flattened top-headlines article.
type Article struct {
	SourceID    string `json:"source_id"`
	SourceName  string `json:"source_name"`
	Author      string `json:"author"`
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	URLToImage  string `json:"url_to_image"`
	PublishedAt string `json:"published_at"`
	Content     string `json:"content"`
}
