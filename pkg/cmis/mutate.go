package cmis

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
)

// VersioningState values accepted by CreateDocument.
const (
	VersioningMajor = "major"
	VersioningMinor = "minor"
	VersioningNone  = "none"
)

// CreateFolder creates a child folder and returns its snapshot.
func (c *Client) CreateFolder(ctx context.Context, parentID, name, typeID string) (*Node, error) {
	root, err := c.rootFolderURL()
	if err != nil {
		return nil, err
	}
	if typeID == "" {
		typeID = BaseTypeFolder
	}
	form := url.Values{}
	form.Set("cmisaction", "createFolder")
	form.Set("objectId", parentID)
	encodeProperties(form, map[string]string{
		PropName:         name,
		PropObjectTypeID: typeID,
	})

	var node Node
	if err := c.postForm(ctx, "createFolder", root, form, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// CreateDocument uploads a new document with a content stream.
func (c *Client) CreateDocument(ctx context.Context, folderID, name string, content io.Reader, mimeType, typeID, versioningState string) (*Node, error) {
	root, err := c.rootFolderURL()
	if err != nil {
		return nil, err
	}
	if typeID == "" {
		typeID = BaseTypeDocument
	}
	if versioningState == "" {
		versioningState = VersioningMajor
	}
	fields := url.Values{}
	fields.Set("cmisaction", "createDocument")
	fields.Set("objectId", folderID)
	fields.Set("versioningState", versioningState)
	encodeProperties(fields, map[string]string{
		PropName:         name,
		PropObjectTypeID: typeID,
	})

	var node Node
	if err := c.postMultipart(ctx, "createDocument", root, fields, name, mimeType, content, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// DeleteObject deletes a single object.
func (c *Client) DeleteObject(ctx context.Context, objectID string, allVersions bool) error {
	root, err := c.rootFolderURL()
	if err != nil {
		return err
	}
	form := url.Values{}
	form.Set("cmisaction", "delete")
	form.Set("objectId", objectID)
	form.Set("allVersions", strconv.FormatBool(allVersions))
	return c.postForm(ctx, "deleteObject", root, form, nil)
}

// DeleteTree deletes a folder subtree. When the repository reports ids it
// could not delete, a PartialDeleteError carries them and the caller must
// treat the tree as still present.
func (c *Client) DeleteTree(ctx context.Context, objectID string) error {
	root, err := c.rootFolderURL()
	if err != nil {
		return err
	}
	form := url.Values{}
	form.Set("cmisaction", "deleteTree")
	form.Set("objectId", objectID)
	form.Set("allVersions", "true")
	form.Set("unfileObjects", "deletesinglefiled")
	form.Set("continueOnFailure", "true")

	var result struct {
		IDs []string `json:"ids"`
	}
	body, err := c.postFormRaw(ctx, "deleteTree", root, form)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return &OperationError{Op: "deleteTree", ObjectID: objectID, Message: "malformed response", Err: err}
	}
	if len(result.IDs) > 0 {
		return &PartialDeleteError{IDs: result.IDs}
	}
	return nil
}

// UpdateProperties updates properties on an object and returns the new
// snapshot.
func (c *Client) UpdateProperties(ctx context.Context, objectID string, props map[string]string) (*Node, error) {
	root, err := c.rootFolderURL()
	if err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("cmisaction", "update")
	form.Set("objectId", objectID)
	encodeProperties(form, props)

	var node Node
	if err := c.postForm(ctx, "updateProperties", root, form, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// CheckOut creates a private working copy of a document.
func (c *Client) CheckOut(ctx context.Context, objectID string) (*Node, error) {
	root, err := c.rootFolderURL()
	if err != nil {
		return nil, err
	}
	form := url.Values{}
	form.Set("cmisaction", "checkOut")
	form.Set("objectId", objectID)

	var node Node
	if err := c.postForm(ctx, "checkOut", root, form, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// CheckIn checks in a private working copy with new content.
func (c *Client) CheckIn(ctx context.Context, objectID string, major bool, name string, content io.Reader, mimeType, comment string) (*Node, error) {
	root, err := c.rootFolderURL()
	if err != nil {
		return nil, err
	}
	fields := url.Values{}
	fields.Set("cmisaction", "checkIn")
	fields.Set("objectId", objectID)
	fields.Set("major", strconv.FormatBool(major))
	if comment != "" {
		fields.Set("checkinComment", comment)
	}
	encodeProperties(fields, map[string]string{PropName: name})

	var node Node
	if err := c.postMultipart(ctx, "checkIn", root, fields, name, mimeType, content, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// CancelCheckOut discards a private working copy.
func (c *Client) CancelCheckOut(ctx context.Context, objectID string) error {
	root, err := c.rootFolderURL()
	if err != nil {
		return err
	}
	form := url.Values{}
	form.Set("cmisaction", "cancelCheckOut")
	form.Set("objectId", objectID)
	return c.postForm(ctx, "cancelCheckOut", root, form, nil)
}

// SetContentStream replaces a document's content stream.
func (c *Client) SetContentStream(ctx context.Context, objectID string, content io.Reader, mimeType string, overwrite bool) (*Node, error) {
	root, err := c.rootFolderURL()
	if err != nil {
		return nil, err
	}
	fields := url.Values{}
	fields.Set("cmisaction", "setContent")
	fields.Set("objectId", objectID)
	fields.Set("overwriteFlag", strconv.FormatBool(overwrite))

	var node Node
	if err := c.postMultipart(ctx, "setContentStream", root, fields, "content", mimeType, content, &node); err != nil {
		return nil, err
	}
	return &node, nil
}

// encodeProperties appends propertyId[n]/propertyValue[n] pairs in sorted
// property order so forms are deterministic.
func encodeProperties(form url.Values, props map[string]string) {
	ids := make([]string, 0, len(props))
	for id := range props {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for i, id := range ids {
		idx := strconv.Itoa(i)
		form.Set("propertyId["+idx+"]", id)
		form.Set("propertyValue["+idx+"]", props[id])
	}
}

// postFormRaw posts a cmisaction form and returns the raw response body.
func (c *Client) postFormRaw(ctx context.Context, op, rawURL string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL,
		bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var raw json.RawMessage
	if err := c.doRaw(op, req, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// postMultipart posts a cmisaction form with an attached content stream.
func (c *Client) postMultipart(ctx context.Context, op, rawURL string, fields url.Values, filename, mimeType string, content io.Reader, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for key, vals := range fields {
		for _, v := range vals {
			if err := mw.WriteField(key, v); err != nil {
				return err
			}
		}
	}
	if content != nil {
		part, err := mw.CreateFormFile("content", filename)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, content); err != nil {
			return err
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if mimeType != "" {
		req.Header.Set("X-Content-Mime-Type", mimeType)
	}
	return c.do(op, req, out)
}
