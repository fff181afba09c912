// Package browser implements the folder-tree widget controller.
//
// Each expanded folder runs a small state machine
// (Collapsed → Expanding → Expanded) with a two-stage child fetch: the
// folder's subfolders first, then its documents, merged folders-first in
// name order. State changes are broadcast so a peer document list can
// follow along.
package browser

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pavel-ixxus/chemistry-cmis/pkg/cmis"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/events"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/logging"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/session"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/view"
	"go.uber.org/zap"
)

type phase int

const (
	collapsed phase = iota
	expanding
	expanded
	collapsing
)

// folderState tracks one folder's expansion state and ordered children.
type folderState struct {
	node     *cmis.Node
	phase    phase
	gen      uint64
	children []*cmis.Node
}

// Config wires one Browser widget.
type Config struct {
	Gateway  *session.Gateway
	Bus      events.Bus
	Registry *events.Registry
	Renderer view.TreeRenderer
	Status   view.StatusSink

	// ExcludedTypeIDs are object type ids never rendered.
	ExcludedTypeIDs []string

	// OpenRootNode expands the root during the first load.
	OpenRootNode bool
}

// Browser is the folder-tree widget controller.
type Browser struct {
	cfg      Config
	gateway  *session.Gateway
	bus      events.Bus
	renderer view.TreeRenderer
	status   view.StatusSink
	excluded map[string]struct{}

	mu       sync.Mutex
	root     *folderState
	states   map[string]*folderState
	parents  map[string]string
	selected string
}

// New creates a Browser and registers it on the registry.
func New(cfg Config) (*Browser, error) {
	if cfg.Gateway == nil || cfg.Bus == nil || cfg.Registry == nil {
		return nil, fmt.Errorf("browser: gateway, bus and registry are required")
	}
	if cfg.Renderer == nil {
		cfg.Renderer = nopTreeRenderer{}
	}
	if cfg.Status == nil {
		cfg.Status = view.NopSink{}
	}

	b := &Browser{
		cfg:      cfg,
		gateway:  cfg.Gateway,
		bus:      cfg.Bus,
		renderer: cfg.Renderer,
		status:   cfg.Status,
		excluded: make(map[string]struct{}, len(cfg.ExcludedTypeIDs)),
		states:   make(map[string]*folderState),
		parents:  make(map[string]string),
	}
	for _, id := range cfg.ExcludedTypeIDs {
		b.excluded[id] = struct{}{}
	}

	cfg.Registry.Register(events.Component{
		Kind: events.KindBrowser,
		Emits: []events.EventName{
			events.EventClickFolder,
			events.EventCreateFolder,
			events.EventDeleteFolder,
			events.EventEditFolder,
			events.EventCheckedOutDocs,
		},
		Handlers: map[events.EventName]events.Handler{
			events.EventLogin: func(param string) {
				b.gateway.ApplyLogin(param)
				if err := b.Load(context.Background()); err != nil {
					logging.Warn("browser load after login failed", zap.Error(err))
				}
			},
			events.EventLogout: func(string) {
				b.handleLogout()
			},
			events.EventDeleteChildren: func(folderID string) {
				if b.gateway.Current() == nil {
					return
				}
				if err := b.open(context.Background(), folderID, false); err != nil {
					logging.Warn("browser refresh after delete failed",
						zap.String("folder", folderID), zap.Error(err))
				}
			},
		},
	})
	return b, nil
}

// Load establishes the session, displays the root folder, and expands it
// when configured to.
func (b *Browser) Load(ctx context.Context) error {
	sess, err := b.gateway.Ensure(ctx)
	if err != nil {
		if _, ok := cmis.AsConfiguration(err); ok {
			b.status.ErrorAdded("Configure the browser before loading it.")
		} else {
			b.status.ErrorAdded("Error during the connection: " + err.Error())
		}
		return err
	}

	root, err := sess.Root(ctx)
	if err != nil {
		b.status.ErrorAdded("Can't get the root object in the repository.")
		return err
	}

	b.mu.Lock()
	b.root = &folderState{node: root}
	b.states = map[string]*folderState{root.ObjectID(): b.root}
	b.parents = map[string]string{}
	b.selected = ""
	b.mu.Unlock()
	b.render()

	if b.cfg.OpenRootNode {
		return b.Open(ctx, root.ObjectID())
	}
	return nil
}

// Open expands a folder and broadcasts the click to peers.
func (b *Browser) Open(ctx context.Context, folderID string) error {
	return b.open(ctx, folderID, true)
}

// Close collapses a folder, clearing its rendered children without issuing
// any request.
func (b *Browser) Close(folderID string) {
	b.mu.Lock()
	fs := b.states[folderID]
	if fs == nil || fs.phase != expanded {
		b.mu.Unlock()
		return
	}
	fs.phase = collapsing
	fs.gen++
	for _, child := range fs.children {
		b.forgetSubtree(child)
	}
	fs.children = nil
	fs.phase = collapsed
	b.mu.Unlock()
	b.render()
}

// Toggle closes the folder only when it is expanded and currently selected;
// otherwise it opens it.
func (b *Browser) Toggle(ctx context.Context, folderID string) error {
	b.mu.Lock()
	fs := b.states[folderID]
	shouldClose := fs != nil && fs.phase == expanded && b.selected == folderID
	b.mu.Unlock()

	if shouldClose {
		b.Close(folderID)
		return nil
	}
	return b.open(ctx, folderID, true)
}

func (b *Browser) open(ctx context.Context, folderID string, propagate bool) error {
	sess := b.gateway.Current()
	if sess == nil {
		return &cmis.ConfigurationError{Reason: "no session"}
	}

	b.mu.Lock()
	fs := b.states[folderID]
	if fs == nil {
		b.mu.Unlock()
		return &cmis.NotFoundError{Ref: folderID}
	}
	if fs.phase == expanding {
		// At most one outstanding expand per folder.
		b.mu.Unlock()
		return nil
	}
	fs.phase = expanding
	fs.gen++
	gen := fs.gen
	b.selected = folderID
	b.mu.Unlock()

	b.status.BusyShown()
	defer b.status.BusyHidden()

	// Peers can begin loading in parallel with the child fetch.
	if propagate {
		if err := b.bus.Broadcast(events.EventClickFolder, folderID); err != nil {
			logging.Warn("broadcast failed",
				zap.String("event", string(events.EventClickFolder)), zap.Error(err))
		}
	}

	folders, documents, err := b.fetchChildren(ctx, sess, folderID)

	b.mu.Lock()
	if fs.gen != gen || fs.phase != expanding {
		// A newer expand or collapse superseded this request.
		b.mu.Unlock()
		return nil
	}
	if err != nil {
		fs.phase = collapsed
		fs.children = nil
		b.mu.Unlock()
		b.status.ErrorAdded(err.Error())
		b.render()
		return err
	}

	fs.children = nil
	for i := range folders {
		b.appendChild(fs, folderID, &folders[i])
	}
	for i := range documents {
		b.appendChild(fs, folderID, &documents[i])
	}
	fs.phase = expanded
	b.mu.Unlock()
	b.render()
	return nil
}

// fetchChildren runs the two-stage pipeline: subfolders first, documents
// only after the subfolder query succeeded. Both orders are name-ascending.
func (b *Browser) fetchChildren(ctx context.Context, sess *session.Session, folderID string) ([]cmis.Node, []cmis.Node, error) {
	folderStmt := fmt.Sprintf(
		"select * from cmis:folder where IN_FOLDER('%s') order by cmis:name", folderID)
	folderPage, err := sess.Client().Query(ctx, folderStmt, false, cmis.Paging{})
	if err != nil {
		return nil, nil, fmt.Errorf("can't get subfolders of %s: %w", folderID, err)
	}

	docStmt := fmt.Sprintf(
		"select * from cmis:document where IN_FOLDER('%s') order by cmis:name", folderID)
	docPage, err := sess.Client().Query(ctx, docStmt, false, cmis.Paging{})
	if err != nil {
		return nil, nil, fmt.Errorf("can't get files of %s: %w", folderID, err)
	}
	return folderPage.Nodes, docPage.Nodes, nil
}

// appendChild records a child under its parent, skipping excluded types and
// registering folder children for later expansion.
func (b *Browser) appendChild(fs *folderState, parentID string, node *cmis.Node) {
	if _, skip := b.excluded[node.TypeID()]; skip {
		return
	}
	fs.children = append(fs.children, node)
	b.parents[node.ObjectID()] = parentID
	if node.IsFolder() {
		if _, ok := b.states[node.ObjectID()]; !ok {
			b.states[node.ObjectID()] = &folderState{node: node}
		} else {
			b.states[node.ObjectID()].node = node
		}
	}
}

// forgetSubtree drops the state of a no-longer-rendered child recursively.
func (b *Browser) forgetSubtree(node *cmis.Node) {
	id := node.ObjectID()
	delete(b.parents, id)
	if st, ok := b.states[id]; ok {
		for _, child := range st.children {
			b.forgetSubtree(child)
		}
		delete(b.states, id)
	}
}

func (b *Browser) handleLogout() {
	b.gateway.Reset()
	b.mu.Lock()
	b.root = nil
	b.states = make(map[string]*folderState)
	b.parents = make(map[string]string)
	b.selected = ""
	b.mu.Unlock()
	b.render()
}

// render snapshots the tree under the lock and hands it to the renderer.
func (b *Browser) render() {
	b.mu.Lock()
	var root *view.TreeNode
	if b.root != nil {
		root = b.buildNode(b.root.node)
	}
	b.mu.Unlock()
	b.renderer.RenderTree(root)
}

func (b *Browser) buildNode(node *cmis.Node) *view.TreeNode {
	vn := &view.TreeNode{
		ObjectID:   node.ObjectID(),
		Label:      node.Name(),
		IsDocument: !node.IsFolder(),
		Selected:   b.selected == node.ObjectID(),
		Actions:    node.AllowableActions,
	}
	if st := b.states[node.ObjectID()]; st != nil {
		vn.Expanded = st.phase == expanded
		for _, child := range st.children {
			vn.Children = append(vn.Children, b.buildNode(child))
		}
	}
	return vn
}

type nopTreeRenderer struct{}

func (nopTreeRenderer) RenderTree(*view.TreeNode) {}

// sortSiblings orders a child list ascending by case-insensitive label.
// Re-running it on a sorted list is a no-op.
func sortSiblings(children []*cmis.Node) {
	sort.SliceStable(children, func(i, j int) bool {
		return strings.ToLower(children[i].Name()) < strings.ToLower(children[j].Name())
	})
}
