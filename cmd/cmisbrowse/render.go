package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pavel-ixxus/chemistry-cmis/pkg/view"
)

// treePrinter renders the folder tree as indented text.
type treePrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *treePrinter) RenderTree(root *view.TreeNode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, "== tree ==")
	if root == nil {
		fmt.Fprintln(p.out, "(empty)")
		return
	}
	p.printNode(root, 0)
}

func (p *treePrinter) printNode(n *view.TreeNode, depth int) {
	marker := "-"
	switch {
	case n.IsDocument:
		marker = "*"
	case n.Expanded:
		marker = "+"
	}
	sel := ""
	if n.Selected {
		sel = " <"
	}
	fmt.Fprintf(p.out, "%s%s %s%s\n", strings.Repeat("  ", depth), marker, n.Label, sel)
	for _, child := range n.Children {
		p.printNode(child, depth+1)
	}
}

// listPrinter renders list, detail and version view-models as text tables.
type listPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func (p *listPrinter) RenderList(l view.List) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "== list [%s] folder=%s page %d/%d ==\n",
		l.Mode, l.FolderID, l.Pagination.Current, l.Pagination.PageCount)
	if l.Empty {
		fmt.Fprintln(p.out, "no items to display")
		return
	}
	for _, row := range l.Rows {
		fmt.Fprintf(p.out, "%s  %s\n", row.ObjectID, row.Fields["cmis:name"])
	}
}

func (p *listPrinter) RenderDetail(d view.Detail) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, "== detail %s ==\n", d.ObjectID)
	for _, f := range d.Fields {
		fmt.Fprintf(p.out, "%-40s %s\n", f.ID, f.Value)
	}
}

func (p *listPrinter) RenderVersions(v view.Versions) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, "== versions ==")
	for _, row := range v.Rows {
		fmt.Fprintf(p.out, "%s  %s\n", row.ObjectID, row.Fields["cmis:name"])
	}
}

// consoleStatus prints busy transitions and errors to stderr-like output.
type consoleStatus struct {
	mu   sync.Mutex
	busy int
}

func (s *consoleStatus) BusyShown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.busy++
	if s.busy == 1 {
		fmt.Println("working...")
	}
}

func (s *consoleStatus) BusyHidden() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy > 0 {
		s.busy--
	}
}

func (s *consoleStatus) ErrorAdded(msg string) {
	fmt.Println("error: " + msg)
}
