package browser

import (
	"context"
	"fmt"

	"github.com/pavel-ixxus/chemistry-cmis/pkg/cmis"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/events"
	"github.com/pavel-ixxus/chemistry-cmis/pkg/logging"
	"go.uber.org/zap"
)

// Rename updates a displayed node's name. The new label is applied
// optimistically; a failed update reverts it. Either way the containing
// sibling list is re-sorted case-insensitively, which is a no-op when the
// order did not change.
func (b *Browser) Rename(ctx context.Context, objectID, newName string) error {
	sess := b.gateway.Current()
	if sess == nil {
		return &cmis.ConfigurationError{Reason: "no session"}
	}

	b.mu.Lock()
	node := b.findNode(objectID)
	if node == nil {
		b.mu.Unlock()
		return &cmis.NotFoundError{Ref: objectID}
	}
	parentID := b.parents[objectID]
	oldName := node.Name()
	node.Properties[cmis.PropName] = cmis.Property{Type: "string", Value: newName}
	b.resortChildren(parentID)
	b.mu.Unlock()
	b.render()

	updated, err := sess.Client().UpdateProperties(ctx, objectID, map[string]string{
		cmis.PropName: newName,
	})

	b.mu.Lock()
	if err != nil {
		node.Properties[cmis.PropName] = cmis.Property{Type: "string", Value: oldName}
		b.resortChildren(parentID)
		b.mu.Unlock()
		b.status.ErrorAdded("Error during the update: " + err.Error())
		b.render()
		return err
	}
	b.replaceNode(parentID, objectID, updated)
	b.resortChildren(parentID)
	b.mu.Unlock()
	b.render()

	if err := b.bus.Broadcast(events.EventEditFolder, parentID); err != nil {
		logging.Warn("broadcast failed",
			zap.String("event", string(events.EventEditFolder)), zap.Error(err))
	}
	return nil
}

// Delete removes a folder subtree. The rendered node is removed only when
// the repository reports a complete delete; a partial failure keeps the
// tree untouched and surfaces the undeleted ids.
func (b *Browser) Delete(ctx context.Context, folderID string) error {
	sess := b.gateway.Current()
	if sess == nil {
		return &cmis.ConfigurationError{Reason: "no session"}
	}

	b.status.BusyShown()
	defer b.status.BusyHidden()

	err := sess.Client().DeleteTree(ctx, folderID)
	if err != nil {
		if pe, ok := cmis.AsPartialDelete(err); ok {
			b.status.ErrorAdded("Can't delete these object(s): " + pe.FailedList() + ".")
		} else {
			b.status.ErrorAdded("Can't delete the object " + folderID + ".")
		}
		return err
	}

	b.mu.Lock()
	parentID := b.parents[folderID]
	if parent := b.states[parentID]; parent != nil {
		kept := parent.children[:0]
		for _, child := range parent.children {
			if child.ObjectID() == folderID {
				b.forgetSubtree(child)
				continue
			}
			kept = append(kept, child)
		}
		parent.children = kept
	}
	if b.selected == folderID {
		b.selected = parentID
	}
	b.mu.Unlock()
	b.render()

	if err := b.bus.Broadcast(events.EventDeleteFolder, parentID); err != nil {
		logging.Warn("broadcast failed",
			zap.String("event", string(events.EventDeleteFolder)), zap.Error(err))
	}
	return nil
}

// CreateFolder creates a child folder with a unique default name and
// appends it to the parent's rendered children.
func (b *Browser) CreateFolder(ctx context.Context, parentID string) (*cmis.Node, error) {
	sess := b.gateway.Current()
	if sess == nil {
		return nil, &cmis.ConfigurationError{Reason: "no session"}
	}

	b.mu.Lock()
	name := b.uniqueFolderName(parentID)
	b.mu.Unlock()

	b.status.BusyShown()
	defer b.status.BusyHidden()

	created, err := sess.Client().CreateFolder(ctx, parentID, name, "")
	if err != nil {
		b.status.ErrorAdded("Can't create new folder " + name + ".")
		return nil, err
	}

	// Re-fetch: the create response may omit allowable actions.
	node, err := sess.Client().GetObject(ctx, created.ObjectID())
	if err != nil {
		b.status.ErrorAdded("Can't get properties of " + created.ObjectID() + ".")
		return nil, err
	}

	b.mu.Lock()
	if parent := b.states[parentID]; parent != nil {
		b.appendChild(parent, parentID, node)
	}
	b.mu.Unlock()
	b.render()

	if err := b.bus.Broadcast(events.EventCreateFolder, parentID); err != nil {
		logging.Warn("broadcast failed",
			zap.String("event", string(events.EventCreateFolder)), zap.Error(err))
	}
	return node, nil
}

// DownloadURL returns the content URL of a displayed document.
func (b *Browser) DownloadURL(objectID string) (string, error) {
	sess := b.gateway.Current()
	if sess == nil {
		return "", &cmis.ConfigurationError{Reason: "no session"}
	}
	return sess.Client().ContentStreamURL(objectID, "attachment")
}

// uniqueFolderName picks "New Folder", then "New Folder (1)", … avoiding
// the labels already present under the parent. Caller holds the lock.
func (b *Browser) uniqueFolderName(parentID string) string {
	taken := make(map[string]struct{})
	if parent := b.states[parentID]; parent != nil {
		for _, child := range parent.children {
			taken[child.Name()] = struct{}{}
		}
	}
	name := "New Folder"
	for i := 1; ; i++ {
		if _, exists := taken[name]; !exists {
			return name
		}
		name = fmt.Sprintf("New Folder (%d)", i)
	}
}

// findNode locates a displayed node by id. Caller holds the lock.
func (b *Browser) findNode(objectID string) *cmis.Node {
	if st, ok := b.states[objectID]; ok {
		return st.node
	}
	if parentID, ok := b.parents[objectID]; ok {
		if parent := b.states[parentID]; parent != nil {
			for _, child := range parent.children {
				if child.ObjectID() == objectID {
					return child
				}
			}
		}
	}
	return nil
}

// replaceNode swaps in a freshly fetched snapshot. Caller holds the lock.
func (b *Browser) replaceNode(parentID, objectID string, node *cmis.Node) {
	if st, ok := b.states[objectID]; ok {
		st.node = node
	}
	if parent := b.states[parentID]; parent != nil {
		for i, child := range parent.children {
			if child.ObjectID() == objectID {
				parent.children[i] = node
				return
			}
		}
	}
}

// resortChildren re-sorts a parent's children by label. Caller holds the
// lock.
func (b *Browser) resortChildren(parentID string) {
	if parent := b.states[parentID]; parent != nil {
		sortSiblings(parent.children)
	}
}
