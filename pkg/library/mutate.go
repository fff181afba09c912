package library

import (
	"context"
	"io"
	"sort"

	"go.uber.org/zap"

	"github.com/pavel-ixxus/chemistry-cmis/pkg/cmis"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/events"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/logging"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/view"
)

// Upload creates a new document in the currently browsed folder and
// refreshes the list.
func (l *Library) Upload(ctx context.Context, name string, content io.Reader, mimeType string) error {
	sess := l.gateway.Current()
	if sess == nil {
		return &cmis.ConfigurationError{Reason: "no session"}
	}

	l.mu.Lock()
	folderID := l.state.folderID
	l.mu.Unlock()

	l.status.BusyShown()
	defer l.status.BusyHidden()

	_, err := sess.Client().CreateDocument(ctx, folderID, name, content, mimeType, "", cmis.VersioningMajor)
	if err != nil {
		l.status.ErrorAdded("Can't create the document " + name + ".")
		return err
	}
	return l.refresh(ctx)
}

// CheckOut creates a private working copy of a document.
func (l *Library) CheckOut(ctx context.Context, objectID string) error {
	return l.mutate(ctx, "Can't check out the document.", func(ctx context.Context, c *cmis.Client) error {
		_, err := c.CheckOut(ctx, objectID)
		return err
	})
}

// CheckIn checks in a private working copy as a new version.
func (l *Library) CheckIn(ctx context.Context, objectID string, major bool, name string, content io.Reader, mimeType, comment string) error {
	return l.mutate(ctx, "Can't check in the document.", func(ctx context.Context, c *cmis.Client) error {
		_, err := c.CheckIn(ctx, objectID, major, name, content, mimeType, comment)
		return err
	})
}

// CancelCheckOut discards a private working copy.
func (l *Library) CancelCheckOut(ctx context.Context, objectID string) error {
	return l.mutate(ctx, "Can't cancel the check out.", func(ctx context.Context, c *cmis.Client) error {
		return c.CancelCheckOut(ctx, objectID)
	})
}

// UpdateContent replaces a document's content stream.
func (l *Library) UpdateContent(ctx context.Context, objectID string, content io.Reader, mimeType string) error {
	return l.mutate(ctx, "Can't update the document content.", func(ctx context.Context, c *cmis.Client) error {
		_, err := c.SetContentStream(ctx, objectID, content, mimeType, true)
		return err
	})
}

// DeleteDocument deletes a document with all its versions and tells the
// peer widget to refresh the containing folder.
func (l *Library) DeleteDocument(ctx context.Context, objectID string) error {
	err := l.mutate(ctx, "Can't delete the document.", func(ctx context.Context, c *cmis.Client) error {
		return c.DeleteObject(ctx, objectID, true)
	})
	if err != nil {
		return err
	}
	l.mu.Lock()
	folderID := l.state.folderID
	l.mu.Unlock()
	if err := l.bus.Broadcast(events.EventDeleteChildren, folderID); err != nil {
		logging.Warn("broadcast failed",
			zap.String("event", string(events.EventDeleteChildren)), zap.Error(err))
	}
	return nil
}

// mutate runs one remote mutation; on success the current mode's fetch is
// re-run, on failure the prior render is kept and the error surfaced.
func (l *Library) mutate(ctx context.Context, errMsg string, fn func(context.Context, *cmis.Client) error) error {
	sess := l.gateway.Current()
	if sess == nil {
		return &cmis.ConfigurationError{Reason: "no session"}
	}

	l.status.BusyShown()
	defer l.status.BusyHidden()

	if err := fn(ctx, sess.Client()); err != nil {
		l.status.ErrorAdded(errMsg)
		return err
	}
	return l.refresh(ctx)
}

// Versions renders the version history of a version series.
func (l *Library) Versions(ctx context.Context, objectID string) error {
	sess := l.gateway.Current()
	if sess == nil {
		return &cmis.ConfigurationError{Reason: "no session"}
	}

	l.status.BusyShown()
	defer l.status.BusyHidden()

	nodes, err := sess.Client().GetAllVersions(ctx, objectID)
	if err != nil {
		l.status.ErrorAdded("Can't get the versions of the document.")
		return err
	}

	var v view.Versions
	for i := range nodes {
		v.Rows = append(v.Rows, l.buildRow(&nodes[i]))
	}
	l.renderer.RenderVersions(v)
	return nil
}

// Details renders the full property sheet of one object.
func (l *Library) Details(ctx context.Context, objectID string) error {
	sess := l.gateway.Current()
	if sess == nil {
		return &cmis.ConfigurationError{Reason: "no session"}
	}

	l.status.BusyShown()
	defer l.status.BusyHidden()

	node, err := sess.Client().GetObject(ctx, objectID)
	if err != nil {
		l.status.ErrorAdded("Can't get the properties of " + objectID + ".")
		return err
	}

	ids := node.PropertyIDs()
	sort.Strings(ids)
	d := view.Detail{ObjectID: node.ObjectID(), Actions: node.AllowableActions}
	for _, id := range ids {
		d.Fields = append(d.Fields, view.Field{
			ID:    id,
			Value: l.formatters.Format(id, node.Properties[id]),
		})
	}
	l.renderer.RenderDetail(d)
	return nil
}

// Login validates the credentials against the repository and, on success,
// announces them so every widget establishes its session.
func (l *Library) Login(ctx context.Context, username, password string) error {
	return l.login(ctx, username+":"+password, func() {
		l.store.Save(username, password)
	})
}

// LoginWithToken validates a JSON login token and announces it.
func (l *Library) LoginWithToken(ctx context.Context, tokenJSON string) error {
	return l.login(ctx, tokenJSON, func() {})
}

func (l *Library) login(ctx context.Context, param string, persist func()) error {
	l.gateway.Reset()
	l.gateway.ApplyLogin(param)
	if _, err := l.gateway.Ensure(ctx); err != nil {
		l.status.ErrorAdded(loginErrorMessage(err))
		return err
	}
	persist()
	if err := l.bus.Broadcast(events.EventLogin, param); err != nil {
		logging.Warn("broadcast failed",
			zap.String("event", string(events.EventLogin)), zap.Error(err))
	}
	return nil
}

// Logout announces the logout; the widgets reset through their handlers.
func (l *Library) Logout() error {
	return l.bus.Broadcast(events.EventLogout, "")
}
