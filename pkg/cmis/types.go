package cmis

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Well-known CMIS property ids.
const (
	PropObjectID        = "cmis:objectId"
	PropName            = "cmis:name"
	PropObjectTypeID    = "cmis:objectTypeId"
	PropBaseTypeID      = "cmis:baseTypeId"
	PropVersionSeriesID = "cmis:versionSeriesId"
	PropMimeType        = "cmis:contentStreamMimeType"
	PropVersionLabel    = "cmis:versionLabel"
	PropModifiedAt      = "cmis:lastModificationDate"
)

// Base type ids.
const (
	BaseTypeFolder   = "cmis:folder"
	BaseTypeDocument = "cmis:document"
)

// Property is a single typed property value on a repository object.
type Property struct {
	ID    string `json:"id,omitempty"`
	Type  string `json:"type,omitempty"`
	Value any    `json:"value"`
}

// String renders the property value for display.
func (p Property) String() string {
	switch v := p.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		// JSON numbers decode as float64; integral values render without
		// a fractional part.
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// Node is an immutable snapshot of a repository object (folder or document).
// It is re-fetched after every mutation, never patched in place.
type Node struct {
	Properties       map[string]Property `json:"properties"`
	AllowableActions map[string]bool     `json:"allowableActions"`
}

// Prop returns the display string of a property, or "" when absent.
func (n *Node) Prop(id string) string {
	if n == nil {
		return ""
	}
	return n.Properties[id].String()
}

// ObjectID returns the unique object id.
func (n *Node) ObjectID() string { return n.Prop(PropObjectID) }

// Name returns the display name.
func (n *Node) Name() string { return n.Prop(PropName) }

// TypeID returns the object type id.
func (n *Node) TypeID() string { return n.Prop(PropObjectTypeID) }

// BaseTypeID returns the base type id (cmis:folder or cmis:document).
func (n *Node) BaseTypeID() string { return n.Prop(PropBaseTypeID) }

// VersionSeriesID returns the version series id, or "" for folders.
func (n *Node) VersionSeriesID() string { return n.Prop(PropVersionSeriesID) }

// MimeType returns the content stream MIME type, or "" for folders.
func (n *Node) MimeType() string { return n.Prop(PropMimeType) }

// IsFolder reports whether the node is a folder.
func (n *Node) IsFolder() bool { return n.BaseTypeID() == BaseTypeFolder }

// Allowed reports whether the named allowable action is permitted.
func (n *Node) Allowed(action string) bool {
	if n == nil {
		return false
	}
	return n.AllowableActions[action]
}

// PropertyIDs returns the node's property ids in sorted order.
func (n *Node) PropertyIDs() []string {
	ids := make([]string, 0, len(n.Properties))
	for id := range n.Properties {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RepositoryInfo describes one repository discovered on the server.
type RepositoryInfo struct {
	ID            string `json:"repositoryId"`
	Name          string `json:"repositoryName"`
	RootFolderID  string `json:"rootFolderId"`
	RepositoryURL string `json:"repositoryUrl"`
	RootFolderURL string `json:"rootFolderUrl"`
}

// Paging selects a window of a larger result set.
type Paging struct {
	SkipCount int
	MaxItems  int
}

// ResultPage is one page of nodes with the repository's total count.
type ResultPage struct {
	Nodes        []Node
	HasMoreItems bool
	NumItems     int
}

// childrenEnvelope is the wire form of a getChildren response, where each
// entry wraps the node.
type childrenEnvelope struct {
	Objects []struct {
		Object Node `json:"object"`
	} `json:"objects"`
	HasMoreItems bool `json:"hasMoreItems"`
	NumItems     int  `json:"numItems"`
}

func (e childrenEnvelope) page() ResultPage {
	page := ResultPage{
		HasMoreItems: e.HasMoreItems,
		NumItems:     e.NumItems,
		Nodes:        make([]Node, 0, len(e.Objects)),
	}
	for _, o := range e.Objects {
		page.Nodes = append(page.Nodes, o.Object)
	}
	return page
}

// queryEnvelope is the wire form of a query response.
type queryEnvelope struct {
	Results      []Node `json:"results"`
	HasMoreItems bool   `json:"hasMoreItems"`
	NumItems     int    `json:"numItems"`
}

func (e queryEnvelope) page() ResultPage {
	return ResultPage{Nodes: e.Results, HasMoreItems: e.HasMoreItems, NumItems: e.NumItems}
}

// checkedOutEnvelope is the wire form of a checked-out listing, where nodes
// appear unwrapped.
type checkedOutEnvelope struct {
	Objects      []Node `json:"objects"`
	HasMoreItems bool   `json:"hasMoreItems"`
	NumItems     int    `json:"numItems"`
}

func (e checkedOutEnvelope) page() ResultPage {
	return ResultPage{Nodes: e.Objects, HasMoreItems: e.HasMoreItems, NumItems: e.NumItems}
}
