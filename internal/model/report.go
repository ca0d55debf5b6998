package model

import "time"

// Report describes one corrected page
type Report struct {
	RunID     string    `json:"run_id"`
	Subject   string    `json:"subject"`
	SourceURL string    `json:"source_url"`
	FetchedAt time.Time `json:"fetched_at"`
	FetchMeta FetchMeta `json:"fetch_meta"`
	FromCache bool      `json:"from_cache,omitempty"`

	Status       string       `json:"status"`
	Regions      []Region     `json:"regions"`
	Changes      ChangeCounts `json:"changes"`
	Replacements int          `json:"replacements"`
	Failed       int          `json:"failed,omitempty"`
	Duration     string       `json:"duration"`

	Table    TableInfo `json:"table"`
	Warnings []string  `json:"warnings,omitempty"`
}

// FetchMeta contains HTTP metadata from fetching the source
type FetchMeta struct {
	StatusCode   int               `json:"status_code,omitempty"`
	ContentType  string            `json:"content_type,omitempty"`
	LastModified string            `json:"last_modified,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// Region is one corrected (or failed) part of the page
type Region struct {
	Label   string       `json:"label"`
	Before  string       `json:"before"`
	After   string       `json:"after,omitempty"`
	Changes ChangeCounts `json:"changes"`
	Error   string       `json:"error,omitempty"`
}

// ChangeCounts breaks replacements down by kind. Separators are reported but
// are not replacements.
type ChangeCounts struct {
	TextSubstitutions int `json:"text_substitutions"`
	TargetRewrites    int `json:"target_rewrites"`
	LabelRewrites     int `json:"label_rewrites"`
	LinkRemovals      int `json:"link_removals"`
	Separators        int `json:"separators"`
}

// TableInfo identifies the name table a report was produced with
type TableInfo struct {
	Source   string `json:"source"`
	Mappings int    `json:"mappings"`
	Variants int    `json:"variants"`
}
