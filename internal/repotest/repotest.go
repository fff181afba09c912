// Package repotest runs an in-memory CMIS browser-binding repository over
// httptest for controller and gateway tests. It implements just enough of
// the binding to satisfy the client: discovery, object/children/versions
// selectors, query and checked-out listings, and the mutating cmisactions.
package repotest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RepoID is the id of the single repository every server exposes.
const RepoID = "test-repo"

// RootID is the object id of the root folder.
const RootID = "root"

// Object is one stored repository object.
type Object struct {
	ID         string
	ParentID   string
	Name       string
	TypeID     string
	BaseTypeID string
	MimeType   string
	Content    []byte
	CheckedOut bool
	Actions    map[string]bool
	Extra      map[string]any
}

// Server is an in-memory repository behind an httptest server.
type Server struct {
	srv *httptest.Server

	mu       sync.Mutex
	objects  map[string]*Object
	seq      int
	requests int

	// LastStatement records the most recent query statement.
	LastStatement string
	// LastAuth records the most recent Authorization header or token
	// query parameter.
	LastAuth string

	failStatus int
	failCount  int

	// FailHook, when set, is consulted per request; a non-zero status
	// fails that request. Lets tests break one stage of a multi-request
	// operation.
	FailHook func(r *http.Request) int

	// DeleteTreeFailIDs, when set for a folder id, makes deleteTree on
	// that folder report those ids as undeletable.
	DeleteTreeFailIDs map[string][]string
}

// New starts a server holding only the root folder.
func New() *Server {
	s := &Server{
		objects: map[string]*Object{
			RootID: {
				ID:         RootID,
				Name:       "root",
				TypeID:     "cmis:folder",
				BaseTypeID: "cmis:folder",
				Actions:    map[string]bool{"canCreateDocument": true, "canCreateFolder": true},
			},
		},
		DeleteTreeFailIDs: make(map[string][]string),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	return s
}

// URL is the discovery endpoint of the repository.
func (s *Server) URL() string { return s.srv.URL }

// Close shuts the server down.
func (s *Server) Close() { s.srv.Close() }

// Requests returns the number of HTTP requests served so far.
func (s *Server) Requests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests
}

// FailNext makes the next n requests answer with the given status.
func (s *Server) FailNext(status, n int) {
	s.mu.Lock()
	s.failStatus = status
	s.failCount = n
	s.mu.Unlock()
}

// AddFolder stores a folder under the parent and returns its id.
func (s *Server) AddFolder(parentID, name string) string {
	return s.add(parentID, name, "cmis:folder", "cmis:folder", "", nil)
}

// AddTypedFolder stores a folder with a non-base object type id.
func (s *Server) AddTypedFolder(parentID, name, typeID string) string {
	return s.add(parentID, name, typeID, "cmis:folder", "", nil)
}

// AddDocument stores a document under the parent and returns its id.
func (s *Server) AddDocument(parentID, name, content string) string {
	return s.add(parentID, name, "cmis:document", "cmis:document", "text/plain", []byte(content))
}

// Object returns the stored object, or nil.
func (s *Server) Object(id string) *Object {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[id]
}

// Children returns the stored child ids of a folder, name-ordered.
func (s *Server) Children(folderID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kids := s.childrenLocked(folderID, "")
	ids := make([]string, len(kids))
	for i, o := range kids {
		ids[i] = o.ID
	}
	return ids
}

func (s *Server) add(parentID, name, typeID, baseTypeID, mimeType string, content []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	id := fmt.Sprintf("obj-%d", s.seq)
	actions := map[string]bool{"canDeleteObject": true, "canUpdateProperties": true}
	if baseTypeID == "cmis:folder" {
		actions["canCreateDocument"] = true
		actions["canCreateFolder"] = true
	} else {
		actions["canCheckOut"] = true
		actions["canSetContentStream"] = true
	}
	s.objects[id] = &Object{
		ID:         id,
		ParentID:   parentID,
		Name:       name,
		TypeID:     typeID,
		BaseTypeID: baseTypeID,
		MimeType:   mimeType,
		Content:    content,
		Actions:    actions,
	}
	return id
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.requests++
	if auth := r.Header.Get("Authorization"); auth != "" {
		s.LastAuth = auth
	} else if t := r.URL.Query().Get("token"); t != "" {
		s.LastAuth = t
	}
	if s.failCount > 0 {
		status := s.failStatus
		s.failCount--
		s.mu.Unlock()
		writeError(w, status, "injected failure")
		return
	}
	hook := s.FailHook
	s.mu.Unlock()

	if hook != nil {
		if status := hook(r); status != 0 {
			writeError(w, status, "injected failure")
			return
		}
	}

	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/":
		s.writeJSON(w, map[string]any{RepoID: s.repoInfo()})
	case strings.HasPrefix(r.URL.Path, "/repo/"+RepoID+"/root"):
		s.handleRoot(w, r)
	case strings.HasPrefix(r.URL.Path, "/repo/"+RepoID):
		s.handleRepo(w, r)
	default:
		writeError(w, http.StatusNotFound, "unknown endpoint")
	}
}

func (s *Server) repoInfo() map[string]any {
	return map[string]any{
		"repositoryId":   RepoID,
		"repositoryName": "test repository",
		"rootFolderId":   RootID,
		"repositoryUrl":  s.srv.URL + "/repo/" + RepoID,
		"rootFolderUrl":  s.srv.URL + "/repo/" + RepoID + "/root",
	}
}

func (s *Server) handleRepo(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		r.ParseForm()
		if r.PostFormValue("cmisaction") == "query" {
			s.handleQuery(w, r)
			return
		}
		writeError(w, http.StatusBadRequest, "unknown cmisaction")
		return
	}
	if r.URL.Query().Get("cmisselector") == "checkedout" {
		s.handleCheckedOut(w, r)
		return
	}
	writeError(w, http.StatusBadRequest, "unknown selector")
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		s.handleAction(w, r)
		return
	}

	q := r.URL.Query()
	if sub := strings.TrimPrefix(r.URL.Path, "/repo/"+RepoID+"/root"); sub != "" && sub != "/" {
		s.handleByPath(w, r, sub)
		return
	}

	id := q.Get("objectId")
	s.mu.Lock()
	obj := s.objects[id]
	s.mu.Unlock()
	if obj == nil {
		writeError(w, http.StatusNotFound, "object not found: "+id)
		return
	}

	switch q.Get("cmisselector") {
	case "object":
		s.writeJSON(w, s.nodeJSON(obj))
	case "children":
		s.mu.Lock()
		kids := s.childrenLocked(id, "")
		s.mu.Unlock()
		// The default order-by lists folders ahead of documents.
		if strings.Contains(q.Get("orderBy"), "cmis:baseTypeId DESC") {
			sort.SliceStable(kids, func(i, j int) bool {
				return kids[i].BaseTypeID > kids[j].BaseTypeID
			})
		}
		s.writePage(w, r, kids, func(objs []*Object) any {
			entries := make([]map[string]any, len(objs))
			for i, o := range objs {
				entries[i] = map[string]any{"object": s.nodeJSON(o)}
			}
			return entries
		}, "objects")
	case "versions":
		s.writeJSON(w, []any{s.nodeJSON(obj)})
	case "content":
		w.Header().Set("Content-Type", obj.MimeType)
		w.Write(obj.Content)
	default:
		writeError(w, http.StatusBadRequest, "unknown selector")
	}
}

func (s *Server) handleByPath(w http.ResponseWriter, r *http.Request, path string) {
	s.mu.Lock()
	cur := s.objects[RootID]
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		var next *Object
		for _, o := range s.childrenLocked(cur.ID, "") {
			if o.Name == seg {
				next = o
				break
			}
		}
		if next == nil {
			s.mu.Unlock()
			writeError(w, http.StatusNotFound, "path not found: "+path)
			return
		}
		cur = next
	}
	s.mu.Unlock()
	s.writeJSON(w, s.nodeJSON(cur))
}

var (
	fromRe     = regexp.MustCompile(`(?i)FROM\s+(\S+)`)
	inFolderRe = regexp.MustCompile(`IN_FOLDER\('([^']+)'\)`)
	containsRe = regexp.MustCompile(`CONTAINS\('([^']+)'\)`)
)

// handleQuery understands the statement shapes the controllers build:
// IN_FOLDER listings split by base type, CONTAINS full-text search, and
// LIKE predicates matched against names. Anything else returns every
// object of the FROM type.
func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	stmt := r.PostFormValue("statement")

	s.mu.Lock()
	s.LastStatement = stmt

	typeID := "cmis:document"
	if m := fromRe.FindStringSubmatch(stmt); m != nil {
		typeID = m[1]
	}
	var match []*Object
	if m := inFolderRe.FindStringSubmatch(stmt); m != nil {
		match = s.childrenLocked(m[1], typeID)
	} else if m := containsRe.FindStringSubmatch(stmt); m != nil {
		for _, o := range s.sortedLocked() {
			if o.BaseTypeID == "cmis:document" && strings.Contains(o.Name, m[1]) {
				match = append(match, o)
			}
		}
	} else {
		for _, o := range s.sortedLocked() {
			if o.BaseTypeID == typeID || o.TypeID == typeID {
				match = append(match, o)
			}
		}
	}
	s.mu.Unlock()

	s.writePage(w, r, match, func(objs []*Object) any {
		results := make([]map[string]any, len(objs))
		for i, o := range objs {
			results[i] = s.nodeJSON(o)
		}
		return results
	}, "results")
}

func (s *Server) handleCheckedOut(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	var match []*Object
	for _, o := range s.sortedLocked() {
		if o.CheckedOut {
			match = append(match, o)
		}
	}
	s.mu.Unlock()

	s.writePage(w, r, match, func(objs []*Object) any {
		results := make([]map[string]any, len(objs))
		for i, o := range objs {
			results[i] = s.nodeJSON(o)
		}
		return results
	}, "objects")
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); strings.HasPrefix(ct, "multipart/") {
		r.ParseMultipartForm(16 << 20)
	} else {
		r.ParseForm()
	}
	action := r.PostFormValue("cmisaction")
	objectID := r.PostFormValue("objectId")
	props := decodeProperties(r)

	switch action {
	case "createFolder":
		id := s.AddFolder(objectID, props["cmis:name"])
		if t := props["cmis:objectTypeId"]; t != "" && t != "cmis:folder" {
			s.Object(id).TypeID = t
		}
		s.writeJSON(w, s.nodeJSON(s.Object(id)))
	case "createDocument":
		content := readUpload(r)
		id := s.AddDocument(objectID, props["cmis:name"], string(content))
		if mt := r.Header.Get("X-Content-Mime-Type"); mt != "" {
			s.Object(id).MimeType = mt
		}
		s.writeJSON(w, s.nodeJSON(s.Object(id)))
	case "delete":
		s.mu.Lock()
		_, ok := s.objects[objectID]
		delete(s.objects, objectID)
		s.mu.Unlock()
		if !ok {
			writeError(w, http.StatusNotFound, "object not found: "+objectID)
			return
		}
		w.WriteHeader(http.StatusOK)
	case "deleteTree":
		s.mu.Lock()
		if failed := s.DeleteTreeFailIDs[objectID]; len(failed) > 0 {
			s.mu.Unlock()
			s.writeJSON(w, map[string]any{"ids": failed})
			return
		}
		s.deleteSubtreeLocked(objectID)
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	case "update":
		obj := s.Object(objectID)
		if obj == nil {
			writeError(w, http.StatusNotFound, "object not found: "+objectID)
			return
		}
		s.mu.Lock()
		if name, ok := props["cmis:name"]; ok {
			obj.Name = name
		}
		for id, v := range props {
			if !strings.HasPrefix(id, "cmis:") {
				if obj.Extra == nil {
					obj.Extra = make(map[string]any)
				}
				obj.Extra[id] = v
			}
		}
		s.mu.Unlock()
		s.writeJSON(w, s.nodeJSON(obj))
	case "checkOut":
		obj := s.Object(objectID)
		if obj == nil {
			writeError(w, http.StatusNotFound, "object not found: "+objectID)
			return
		}
		s.mu.Lock()
		obj.CheckedOut = true
		s.mu.Unlock()
		s.writeJSON(w, s.nodeJSON(obj))
	case "checkIn", "cancelCheckOut":
		obj := s.Object(objectID)
		if obj == nil {
			writeError(w, http.StatusNotFound, "object not found: "+objectID)
			return
		}
		s.mu.Lock()
		obj.CheckedOut = false
		if action == "checkIn" {
			if c := readUpload(r); len(c) > 0 {
				obj.Content = c
			}
		}
		s.mu.Unlock()
		s.writeJSON(w, s.nodeJSON(obj))
	case "setContent":
		obj := s.Object(objectID)
		if obj == nil {
			writeError(w, http.StatusNotFound, "object not found: "+objectID)
			return
		}
		s.mu.Lock()
		obj.Content = readUpload(r)
		s.mu.Unlock()
		s.writeJSON(w, s.nodeJSON(obj))
	default:
		writeError(w, http.StatusBadRequest, "unknown cmisaction "+action)
	}
}

func (s *Server) deleteSubtreeLocked(id string) {
	for _, o := range s.childrenLocked(id, "") {
		s.deleteSubtreeLocked(o.ID)
	}
	delete(s.objects, id)
}

// childrenLocked returns a folder's children name-ordered, optionally
// filtered by base type.
func (s *Server) childrenLocked(folderID, baseType string) []*Object {
	var kids []*Object
	for _, o := range s.objects {
		if o.ParentID != folderID {
			continue
		}
		if baseType != "" && o.BaseTypeID != baseType {
			continue
		}
		kids = append(kids, o)
	}
	sort.Slice(kids, func(i, j int) bool { return kids[i].Name < kids[j].Name })
	return kids
}

func (s *Server) sortedLocked() []*Object {
	all := make([]*Object, 0, len(s.objects))
	for _, o := range s.objects {
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return all
}

// writePage applies skipCount/maxItems and wraps the window in the named
// envelope with the full count.
func (s *Server) writePage(w http.ResponseWriter, r *http.Request, objs []*Object, wrap func([]*Object) any, key string) {
	skip, _ := strconv.Atoi(formOrQuery(r, "skipCount"))
	max, _ := strconv.Atoi(formOrQuery(r, "maxItems"))
	total := len(objs)
	if skip > total {
		skip = total
	}
	window := objs[skip:]
	if max > 0 && len(window) > max {
		window = window[:max]
	}
	s.writeJSON(w, map[string]any{
		key:            wrap(window),
		"hasMoreItems": skip+len(window) < total,
		"numItems":     total,
	})
}

func (s *Server) nodeJSON(o *Object) map[string]any {
	props := map[string]any{
		"cmis:objectId":        prop("cmis:objectId", "id", o.ID),
		"cmis:name":            prop("cmis:name", "string", o.Name),
		"cmis:objectTypeId":    prop("cmis:objectTypeId", "id", o.TypeID),
		"cmis:baseTypeId":      prop("cmis:baseTypeId", "id", o.BaseTypeID),
		"cmis:versionSeriesId": prop("cmis:versionSeriesId", "id", o.ID),
		"cmis:lastModificationDate": prop("cmis:lastModificationDate", "datetime",
			time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC).UnixMilli()),
	}
	if o.BaseTypeID == "cmis:document" {
		props["cmis:contentStreamMimeType"] = prop("cmis:contentStreamMimeType", "string", o.MimeType)
		props["cmis:contentStreamLength"] = prop("cmis:contentStreamLength", "integer", len(o.Content))
	}
	for id, v := range o.Extra {
		props[id] = prop(id, "string", v)
	}
	return map[string]any{
		"properties":       props,
		"allowableActions": o.Actions,
	}
}

func prop(id, typ string, value any) map[string]any {
	return map[string]any{"id": id, "type": typ, "value": value}
}

func decodeProperties(r *http.Request) map[string]string {
	props := make(map[string]string)
	for i := 0; ; i++ {
		id := r.PostFormValue(fmt.Sprintf("propertyId[%d]", i))
		if id == "" {
			break
		}
		props[id] = r.PostFormValue(fmt.Sprintf("propertyValue[%d]", i))
	}
	return props
}

func readUpload(r *http.Request) []byte {
	if r.MultipartForm == nil {
		return nil
	}
	f, _, err := r.FormFile("content")
	if err != nil {
		return nil
	}
	defer f.Close()
	b, _ := io.ReadAll(f)
	return b
}

func formOrQuery(r *http.Request, key string) string {
	if v := r.PostFormValue(key); v != "" {
		return v
	}
	return r.URL.Query().Get(key)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"exception": "runtime",
		"message":   msg,
	})
}
