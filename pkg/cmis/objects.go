package cmis

import (
	"context"
	"net/url"
	"strconv"
	"strings"
)

// GetObject fetches one object by id, including its allowable actions.
func (c *Client) GetObject(ctx context.Context, objectID string) (*Node, error) {
	root, err := c.rootFolderURL()
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("objectId", objectID)
	q.Set("cmisselector", "object")
	q.Set("includeAllowableActions", "true")

	var node Node
	if err := c.getJSON(ctx, "getObject", root, q, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// GetObjectByPath resolves an object by repository path.
func (c *Client) GetObjectByPath(ctx context.Context, path string) (*Node, error) {
	root, err := c.rootFolderURL()
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	q := url.Values{}
	q.Set("cmisselector", "object")
	q.Set("includeAllowableActions", "true")

	var node Node
	if err := c.getJSON(ctx, "getObjectByPath", root+escapePath(path), q, &node); err != nil {
		if IsNotFound(err) {
			return nil, &NotFoundError{Ref: path}
		}
		return nil, err
	}
	return &node, nil
}

// GetChildren lists the direct children of a folder with paging and an
// order-by clause.
func (c *Client) GetChildren(ctx context.Context, folderID string, p Paging, orderBy string) (ResultPage, error) {
	root, err := c.rootFolderURL()
	if err != nil {
		return ResultPage{}, err
	}
	q := url.Values{}
	q.Set("objectId", folderID)
	q.Set("cmisselector", "children")
	q.Set("includeAllowableActions", "true")
	q.Set("skipCount", strconv.Itoa(p.SkipCount))
	if p.MaxItems > 0 {
		q.Set("maxItems", strconv.Itoa(p.MaxItems))
	}
	if orderBy != "" {
		q.Set("orderBy", orderBy)
	}

	var env childrenEnvelope
	if err := c.getJSON(ctx, "getChildren", root, q, &env); err != nil {
		return ResultPage{}, err
	}
	return env.page(), nil
}

// Query executes a CMIS QL statement.
func (c *Client) Query(ctx context.Context, statement string, searchAllVersions bool, p Paging) (ResultPage, error) {
	repo, err := c.repositoryURL()
	if err != nil {
		return ResultPage{}, err
	}
	form := url.Values{}
	form.Set("cmisaction", "query")
	form.Set("statement", statement)
	form.Set("searchAllVersions", strconv.FormatBool(searchAllVersions))
	form.Set("includeAllowableActions", "true")
	form.Set("skipCount", strconv.Itoa(p.SkipCount))
	if p.MaxItems > 0 {
		form.Set("maxItems", strconv.Itoa(p.MaxItems))
	}

	var env queryEnvelope
	if err := c.postForm(ctx, "query", repo, form, &env); err != nil {
		return ResultPage{}, err
	}
	return env.page(), nil
}

// GetCheckedOutDocs lists documents currently checked out in the repository.
func (c *Client) GetCheckedOutDocs(ctx context.Context, p Paging) (ResultPage, error) {
	repo, err := c.repositoryURL()
	if err != nil {
		return ResultPage{}, err
	}
	q := url.Values{}
	q.Set("cmisselector", "checkedout")
	q.Set("includeAllowableActions", "true")
	q.Set("skipCount", strconv.Itoa(p.SkipCount))
	if p.MaxItems > 0 {
		q.Set("maxItems", strconv.Itoa(p.MaxItems))
	}

	var env checkedOutEnvelope
	if err := c.getJSON(ctx, "getCheckedOutDocs", repo, q, &env); err != nil {
		return ResultPage{}, err
	}
	return env.page(), nil
}

// GetAllVersions lists all versions of a version series, newest first as
// returned by the repository.
func (c *Client) GetAllVersions(ctx context.Context, objectID string) ([]Node, error) {
	root, err := c.rootFolderURL()
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("objectId", objectID)
	q.Set("cmisselector", "versions")
	q.Set("includeAllowableActions", "true")

	var versions []Node
	if err := c.getJSON(ctx, "getAllVersions", root, q, &versions); err != nil {
		return nil, err
	}
	return versions, nil
}

// escapePath percent-encodes each path segment, keeping separators.
func escapePath(path string) string {
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
