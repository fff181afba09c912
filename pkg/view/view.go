// Package view defines the structured view-models produced by the widget
// controllers and the renderer interfaces that consume them. Presentation
// binds typed fields; there is no string templating.
package view

import (
	"strconv"
	"time"

	"github.com/pavel-ixxus/chemistry-cmis/pkg/cmis"
)

// SortOrder is a column sort direction.
type SortOrder string

const (
	Ascending  SortOrder = "ASC"
	Descending SortOrder = "DESC"
)

// Sort is the single active column sort of a list.
type Sort struct {
	Field string
	Order SortOrder
}

// TreeNode is the view-model of one rendered tree item.
type TreeNode struct {
	ObjectID   string
	Label      string
	IsDocument bool
	Expanded   bool
	Selected   bool
	Actions    map[string]bool
	Children   []*TreeNode
}

// ChildCount returns the number of rendered children.
func (n *TreeNode) ChildCount() int {
	if n == nil {
		return 0
	}
	return len(n.Children)
}

// Row is the view-model of one document-list row.
type Row struct {
	ObjectID        string
	VersionSeriesID string
	MimeType        string
	Fields          map[string]string
	Actions         map[string]bool
	DownloadURL     string

	// PreviewURL is set only for documents whose MIME type is configured
	// as previewable; the stream is served inline.
	PreviewURL string
}

// Pagination describes the page controls under a list.
type Pagination struct {
	Current   int
	PageCount int
}

// Pages enumerates the page indexes to render, 1-based.
func (p Pagination) Pages() []int {
	pages := make([]int, 0, p.PageCount)
	for i := 1; i <= p.PageCount; i++ {
		pages = append(pages, i)
	}
	return pages
}

// List is the view-model of the document list pane.
type List struct {
	Mode       string
	FolderID   string
	Rows       []Row
	Empty      bool
	Pagination Pagination
	Sort       Sort
	CanUpload  bool
}

// Field is one rendered property of a detail view.
type Field struct {
	ID    string
	Value string
}

// Detail is the view-model of a single object's property sheet.
type Detail struct {
	ObjectID string
	Fields   []Field
	Actions  map[string]bool
}

// Versions is the view-model of a version-history listing.
type Versions struct {
	Rows []Row
}

// TreeRenderer binds tree view-models to a presentation.
type TreeRenderer interface {
	RenderTree(root *TreeNode)
}

// ListRenderer binds list view-models to a presentation.
type ListRenderer interface {
	RenderList(l List)
	RenderDetail(d Detail)
	RenderVersions(v Versions)
}

// StatusSink receives busy and error signals. Busy is shown before a
// request is issued and hidden exactly once on every completion path.
type StatusSink interface {
	BusyShown()
	BusyHidden()
	ErrorAdded(msg string)
}

// NopSink discards all status signals.
type NopSink struct{}

func (NopSink) BusyShown()        {}
func (NopSink) BusyHidden()       {}
func (NopSink) ErrorAdded(string) {}

// Formatter renders one raw property value for display.
type Formatter func(p cmis.Property) string

// Formatters resolves the display form of a property, by property id first
// and by property type second.
type Formatters struct {
	ByProperty map[string]Formatter
	ByType     map[string]Formatter
}

// DefaultFormatters renders datetime properties from epoch milliseconds;
// everything else passes through.
func DefaultFormatters() Formatters {
	return Formatters{
		ByType: map[string]Formatter{
			"datetime": func(p cmis.Property) string {
				ms, err := strconv.ParseInt(p.String(), 10, 64)
				if err != nil {
					return p.String()
				}
				return time.UnixMilli(ms).UTC().Format(time.RFC3339)
			},
		},
	}
}

// Format renders a property through the configured formatters.
func (f Formatters) Format(id string, p cmis.Property) string {
	if fn, ok := f.ByProperty[id]; ok {
		return fn(p)
	}
	if fn, ok := f.ByType[p.Type]; ok {
		return fn(p)
	}
	return p.String()
}
