// Package transport holds the server response contract and a reference
// net/http client for submitting forms and paging remote collections.
package transport

import "github.com/goliatone/go-formengine/pkg/taxonomy"

// Response is the server reply to a submission.
type Response struct {
	Success  bool     `json:"success"`
	Message  string   `json:"message,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Status   string   `json:"status,omitempty"`
	ViewLink string   `json:"view_link,omitempty"`
	EditLink string   `json:"edit_link,omitempty"`
}

// Page is one page of a paginated collection.
type Page[T any] struct {
	Success bool   `json:"success"`
	Data    []T    `json:"data,omitempty"`
	HasMore bool   `json:"has_more,omitempty"`
	Message string `json:"message,omitempty"`
}

// TermPage is a page of taxonomy search results.
type TermPage = Page[taxonomy.Term]

// FileInfo describes a persisted attachment listed by the media browser.
type FileInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
	URL  string `json:"url,omitempty"`
}

// FilePage is a page of persisted attachments.
type FilePage = Page[FileInfo]
