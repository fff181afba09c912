package view

import (
	"testing"

	"github.com/pavel-ixxus/chemistry-cmis/pkg/cmis"
)

func TestDefaultFormatters_Datetime(t *testing.T) {
	f := DefaultFormatters()

	tests := []struct {
		name string
		id   string
		prop cmis.Property
		want string
	}{
		{
			name: "epoch millis to RFC3339",
			id:   "cmis:lastModificationDate",
			prop: cmis.Property{Type: "datetime", Value: float64(1704164645000)},
			want: "2024-01-02T03:04:05Z",
		},
		{
			name: "non-numeric datetime passes through",
			id:   "cmis:lastModificationDate",
			prop: cmis.Property{Type: "datetime", Value: "yesterday"},
			want: "yesterday",
		},
		{
			name: "string untouched",
			id:   "cmis:name",
			prop: cmis.Property{Type: "string", Value: "report.txt"},
			want: "report.txt",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Format(tt.id, tt.prop); got != tt.want {
				t.Errorf("Format(%s) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestFormatters_PropertyOverridesType(t *testing.T) {
	f := Formatters{
		ByProperty: map[string]Formatter{
			"cmis:name": func(cmis.Property) string { return "by-property" },
		},
		ByType: map[string]Formatter{
			"string": func(cmis.Property) string { return "by-type" },
		},
	}
	p := cmis.Property{Type: "string", Value: "x"}
	if got := f.Format("cmis:name", p); got != "by-property" {
		t.Errorf("property formatter should win, got %q", got)
	}
	if got := f.Format("cmis:other", p); got != "by-type" {
		t.Errorf("type formatter should apply, got %q", got)
	}
}

func TestPaginationPages(t *testing.T) {
	p := Pagination{Current: 2, PageCount: 4}
	pages := p.Pages()
	if len(pages) != 4 {
		t.Fatalf("expected 4 pages, got %v", pages)
	}
	for i, n := range pages {
		if n != i+1 {
			t.Errorf("page %d = %d, want %d", i, n, i+1)
		}
	}
	if got := (Pagination{}).Pages(); len(got) != 0 {
		t.Errorf("empty pagination should have no pages, got %v", got)
	}
}

func TestTreeNodeChildCount(t *testing.T) {
	var nilNode *TreeNode
	if nilNode.ChildCount() != 0 {
		t.Error("nil node should count zero children")
	}
	n := &TreeNode{Children: []*TreeNode{{}, {}}}
	if n.ChildCount() != 2 {
		t.Errorf("ChildCount() = %d, want 2", n.ChildCount())
	}
}
