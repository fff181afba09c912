// Package library implements the document-list widget: a view-state
// machine cycling between browsing a folder, showing search results, and
// showing the checked-out documents, with pagination and a single column
// sort layered on top. All remote access goes through the session gateway;
// rendering goes through structured view-models.
package library

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/pavel-ixxus/chemistry-cmis/pkg/cmis"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/events"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/logging"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/session"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/view"
)

// List modes. Exactly one is active at a time.
const (
	ModeBrowse     = "browse"
	ModeSearch     = "search"
	ModeCheckedOut = "checkedout"
)

const defaultPageSize = 10

// defaultOrderBy keeps folders ahead of documents, then sorts by name.
const defaultOrderBy = "cmis:baseTypeId DESC,cmis:name"

// DefaultColumns are the property ids rendered when none are configured.
var DefaultColumns = []string{
	cmis.PropName,
	"cmis:lastModificationDate",
	"cmis:lastModifiedBy",
	"cmis:contentStreamLength",
}

// CredentialStore persists login credentials between sessions.
type CredentialStore interface {
	Save(username, password string)
}

// NopStore discards credentials.
type NopStore struct{}

func (NopStore) Save(string, string) {}

// Config wires one Library widget.
type Config struct {
	Gateway  *session.Gateway
	Bus      events.Bus
	Registry *events.Registry
	Renderer view.ListRenderer
	Status   view.StatusSink

	// Columns are the property ids shown per row; DefaultColumns when nil.
	Columns []string

	// Formatters render raw property values; DefaultFormatters when zero.
	Formatters view.Formatters

	// SearchObjectTypeID is the type queried by searches, cmis:document
	// when empty.
	SearchObjectTypeID string

	// ExcludedTypeIDs are object type ids never rendered.
	ExcludedTypeIDs []string

	// InitQuery, when set, is run on the widget's first display instead
	// of browsing the root folder.
	InitQuery string

	// DefaultSort is the sort active before the user picks a column.
	// Zero-valued means the built-in folders-first name order.
	DefaultSort view.Sort

	// PreviewableMimeTypes are the content MIME types that get an inline
	// preview link on their rows.
	PreviewableMimeTypes []string

	PageSize    int
	Credentials CredentialStore
}

// viewState is the canonical "what is displayed" of one Library widget.
type viewState struct {
	mode         string
	folderID     string
	prevFolderID string
	statement    string
	page         int
	sort         view.Sort
	items        []*cmis.Node
	total        int
	canUpload    bool
}

// Library is the document-list widget controller.
type Library struct {
	cfg         Config
	gateway     *session.Gateway
	bus         events.Bus
	renderer    view.ListRenderer
	status      view.StatusSink
	store       CredentialStore
	formatters  view.Formatters
	columns     []string
	searchType  string
	initQuery   string
	defaultSort view.Sort
	pageSize    int
	excluded    map[string]struct{}
	previewable map[string]struct{}

	mu    sync.Mutex
	state viewState
	gen   uint64
}

// New creates a Library and registers it on the registry.
func New(cfg Config) (*Library, error) {
	if cfg.Gateway == nil || cfg.Bus == nil || cfg.Registry == nil {
		return nil, fmt.Errorf("library: gateway, bus and registry are required")
	}
	if cfg.Renderer == nil {
		cfg.Renderer = nopListRenderer{}
	}
	if cfg.Status == nil {
		cfg.Status = view.NopSink{}
	}
	if cfg.Credentials == nil {
		cfg.Credentials = NopStore{}
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.SearchObjectTypeID == "" {
		cfg.SearchObjectTypeID = cmis.BaseTypeDocument
	}
	if len(cfg.Columns) == 0 {
		cfg.Columns = DefaultColumns
	}
	if cfg.Formatters.ByProperty == nil && cfg.Formatters.ByType == nil {
		cfg.Formatters = view.DefaultFormatters()
	}

	l := &Library{
		cfg:         cfg,
		gateway:     cfg.Gateway,
		bus:         cfg.Bus,
		renderer:    cfg.Renderer,
		status:      cfg.Status,
		store:       cfg.Credentials,
		formatters:  cfg.Formatters,
		columns:     cfg.Columns,
		searchType:  cfg.SearchObjectTypeID,
		initQuery:   cfg.InitQuery,
		defaultSort: cfg.DefaultSort,
		pageSize:    cfg.PageSize,
		excluded:    make(map[string]struct{}, len(cfg.ExcludedTypeIDs)),
		previewable: make(map[string]struct{}, len(cfg.PreviewableMimeTypes)),
	}
	for _, id := range cfg.ExcludedTypeIDs {
		l.excluded[id] = struct{}{}
	}
	for _, mt := range cfg.PreviewableMimeTypes {
		l.previewable[mt] = struct{}{}
	}
	l.state = viewState{mode: ModeBrowse, page: 1, sort: l.defaultSort}

	rebrowse := func(folderID string) {
		if l.gateway.Current() == nil {
			return
		}
		if err := l.ShowFolder(context.Background(), folderID); err != nil {
			logging.Warn("library refresh failed",
				zap.String("folder", folderID), zap.Error(err))
		}
	}
	cfg.Registry.Register(events.Component{
		Kind: events.KindLibrary,
		Emits: []events.EventName{
			events.EventLogin,
			events.EventLogout,
			events.EventDeleteChildren,
		},
		Handlers: map[events.EventName]events.Handler{
			events.EventClickFolder:  rebrowse,
			events.EventCreateFolder: rebrowse,
			events.EventDeleteFolder: rebrowse,
			events.EventEditFolder:   rebrowse,
			events.EventCheckedOutDocs: func(string) {
				if l.gateway.Current() == nil {
					return
				}
				if err := l.ShowCheckedOut(context.Background()); err != nil {
					logging.Warn("library checked-out refresh failed", zap.Error(err))
				}
			},
			events.EventLogin: func(param string) {
				l.gateway.ApplyLogin(param)
				if err := l.ShowInitial(context.Background()); err != nil {
					logging.Warn("library load after login failed", zap.Error(err))
				}
			},
			events.EventLogout: func(string) {
				l.handleLogout()
			},
		},
	})
	return l, nil
}

// ShowFolder switches to Browse mode on the given folder and loads its
// first page. Re-showing the current folder refreshes the current page.
func (l *Library) ShowFolder(ctx context.Context, folderID string) error {
	sess, err := l.gateway.Ensure(ctx)
	if err != nil {
		l.status.ErrorAdded(loginErrorMessage(err))
		return err
	}

	l.mu.Lock()
	if l.state.mode != ModeBrowse || l.state.folderID != folderID {
		l.state.mode = ModeBrowse
		l.state.page = 1
		l.state.items = nil
	}
	l.state.folderID = folderID
	l.state.statement = ""
	gen := l.bumpGen()
	page := l.state.page
	orderBy := l.orderBy()
	l.mu.Unlock()

	l.status.BusyShown()
	defer l.status.BusyHidden()

	folder, err := sess.Client().GetObject(ctx, folderID)
	if err != nil {
		l.status.ErrorAdded("Can't get the content of the folder " + folderID + ".")
		return err
	}
	result, err := sess.Client().GetChildren(ctx, folderID, l.paging(page), orderBy)
	if err != nil {
		l.status.ErrorAdded("Can't get the content of the folder " + folderID + ".")
		return err
	}

	l.apply(gen, result, folder.Allowed("canCreateDocument"))
	return nil
}

// ShowCheckedOut switches to the checked-out documents mode.
func (l *Library) ShowCheckedOut(ctx context.Context) error {
	sess, err := l.gateway.Ensure(ctx)
	if err != nil {
		l.status.ErrorAdded(loginErrorMessage(err))
		return err
	}

	l.mu.Lock()
	if l.state.mode != ModeCheckedOut {
		l.state.mode = ModeCheckedOut
		l.state.page = 1
		l.state.items = nil
	}
	gen := l.bumpGen()
	page := l.state.page
	l.mu.Unlock()

	l.status.BusyShown()
	defer l.status.BusyHidden()

	result, err := sess.Client().GetCheckedOutDocs(ctx, l.paging(page))
	if err != nil {
		l.status.ErrorAdded("Can't get the checked out documents.")
		return err
	}

	l.apply(gen, result, false)
	return nil
}

// SelectPage re-issues the current mode's query for the requested page,
// replacing the displayed items.
func (l *Library) SelectPage(ctx context.Context, n int) error {
	if n < 1 {
		n = 1
	}
	l.mu.Lock()
	l.state.page = n
	l.mu.Unlock()
	return l.refresh(ctx)
}

// SortBy toggles the order when the field is already active and resets to
// ascending on a new field, then re-issues the current mode's query.
func (l *Library) SortBy(ctx context.Context, field string) error {
	l.mu.Lock()
	if l.state.sort.Field == field {
		if l.state.sort.Order == view.Ascending {
			l.state.sort.Order = view.Descending
		} else {
			l.state.sort.Order = view.Ascending
		}
	} else {
		l.state.sort = view.Sort{Field: field, Order: view.Ascending}
	}
	l.mu.Unlock()
	return l.refresh(ctx)
}

// refresh re-runs the fetch of whatever mode is current.
func (l *Library) refresh(ctx context.Context) error {
	l.mu.Lock()
	mode := l.state.mode
	folderID := l.state.folderID
	statement := l.state.statement
	l.mu.Unlock()

	switch mode {
	case ModeSearch:
		return l.runSearch(ctx, statement)
	case ModeCheckedOut:
		return l.ShowCheckedOut(ctx)
	default:
		return l.ShowFolder(ctx, folderID)
	}
}

// ShowInitial performs the widget's first display: the configured
// initial query when present, the root folder listing otherwise.
func (l *Library) ShowInitial(ctx context.Context) error {
	if l.initQuery != "" {
		return l.search(ctx, l.initQuery)
	}
	return l.showRoot(ctx)
}

func (l *Library) showRoot(ctx context.Context) error {
	sess, err := l.gateway.Ensure(ctx)
	if err != nil {
		return err
	}
	root, err := sess.Root(ctx)
	if err != nil {
		l.status.ErrorAdded("Can't get the root folder.")
		return err
	}
	return l.ShowFolder(ctx, root.ObjectID())
}

func (l *Library) handleLogout() {
	l.gateway.Reset()
	l.mu.Lock()
	l.state = viewState{mode: ModeBrowse, page: 1, sort: l.defaultSort}
	l.gen++
	l.mu.Unlock()
	l.render()
}

// bumpGen advances the render generation. Caller holds the lock.
func (l *Library) bumpGen() uint64 {
	l.gen++
	return l.gen
}

// apply installs a fetch result unless a newer fetch superseded it.
func (l *Library) apply(gen uint64, result cmis.ResultPage, canUpload bool) {
	l.mu.Lock()
	if gen != l.gen {
		l.mu.Unlock()
		return
	}
	l.state.items = l.state.items[:0]
	for i := range result.Nodes {
		node := &result.Nodes[i]
		if _, skip := l.excluded[node.TypeID()]; skip {
			continue
		}
		l.state.items = append(l.state.items, node)
	}
	l.state.total = result.NumItems
	l.state.canUpload = canUpload
	l.mu.Unlock()
	l.render()
}

func (l *Library) paging(page int) cmis.Paging {
	return cmis.Paging{SkipCount: (page - 1) * l.pageSize, MaxItems: l.pageSize}
}

// orderBy returns the active order-by clause. Caller holds the lock.
func (l *Library) orderBy() string {
	if l.state.sort.Field == "" {
		return defaultOrderBy
	}
	return fmt.Sprintf("%s %s", l.state.sort.Field, l.state.sort.Order)
}

// render snapshots the state under the lock and hands it to the renderer.
func (l *Library) render() {
	l.mu.Lock()
	out := view.List{
		Mode:      l.state.mode,
		FolderID:  l.state.folderID,
		Empty:     len(l.state.items) == 0,
		Sort:      l.state.sort,
		CanUpload: l.state.canUpload,
		Pagination: view.Pagination{
			Current:   l.state.page,
			PageCount: pageCount(l.state.total, l.pageSize),
		},
	}
	for _, node := range l.state.items {
		out.Rows = append(out.Rows, l.buildRow(node))
	}
	l.mu.Unlock()
	l.renderer.RenderList(out)
}

func (l *Library) buildRow(node *cmis.Node) view.Row {
	row := view.Row{
		ObjectID:        node.ObjectID(),
		VersionSeriesID: node.VersionSeriesID(),
		MimeType:        node.MimeType(),
		Fields:          make(map[string]string, len(l.columns)),
		Actions:         node.AllowableActions,
	}
	for _, id := range l.columns {
		row.Fields[id] = l.formatters.Format(id, node.Properties[id])
	}
	if !node.IsFolder() {
		if sess := l.gateway.Current(); sess != nil {
			if u, err := sess.Client().ContentStreamURL(node.ObjectID(), "attachment"); err == nil {
				row.DownloadURL = u
			}
			if _, ok := l.previewable[node.MimeType()]; ok {
				if u, err := sess.Client().ContentStreamURL(node.ObjectID(), "inline"); err == nil {
					row.PreviewURL = u
				}
			}
		}
	}
	return row
}

func pageCount(total, pageSize int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Ceil(float64(total) / float64(pageSize)))
}

func loginErrorMessage(err error) string {
	if _, ok := cmis.AsConfiguration(err); ok {
		return "Missing connection settings."
	}
	return "Can't connect to the server."
}

type nopListRenderer struct{}

func (nopListRenderer) RenderList(view.List)         {}
func (nopListRenderer) RenderDetail(view.Detail)     {}
func (nopListRenderer) RenderVersions(view.Versions) {}
