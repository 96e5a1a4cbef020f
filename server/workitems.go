package server

import (
	"net/http"
	"strconv"

	"github.com/c360studio/traceline/workitem"
)

// WorkItemAPI serves the versioned work item surface: CRUD, history,
// compare, restore, and comments. Typed aliases (/v1/requirements, …)
// reuse the same handlers with the type pinned.
type WorkItemAPI struct {
	store *workitem.Store
}

// NewWorkItemAPI builds the handler group over the work item store.
func NewWorkItemAPI(store *workitem.Store) *WorkItemAPI {
	return &WorkItemAPI{store: store}
}

// typeAliases maps URL path segments to pinned work item types.
var typeAliases = map[string]workitem.Type{
	"workitems":    "",
	"requirements": workitem.TypeRequirement,
	"tasks":        workitem.TypeTask,
	"risks":        workitem.TypeRisk,
	"test-specs":   workitem.TypeTestSpec,
	"test-runs":    workitem.TypeTestRun,
	"documents":    workitem.TypeDocument,
}

// RegisterHTTPHandlers registers the work item routes under the given
// prefix (typically "/v1").
func (a *WorkItemAPI) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	for segment, pinned := range typeAliases {
		base := prefix + "/" + segment
		mux.HandleFunc("POST "+base, a.handleCreate(pinned))
		mux.HandleFunc("GET "+base, a.handleSearch(pinned))
		mux.HandleFunc("GET "+base+"/{id}", a.handleGet)
		mux.HandleFunc("PATCH "+base+"/{id}", a.handleUpdate)
		mux.HandleFunc("DELETE "+base+"/{id}", a.handleDelete)
		mux.HandleFunc("GET "+base+"/{id}/history", a.handleHistory)
		mux.HandleFunc("GET "+base+"/{id}/versions/{version}", a.handleGetVersion)
		mux.HandleFunc("GET "+base+"/{id}/compare", a.handleCompare)
		mux.HandleFunc("POST "+base+"/{id}/restore", a.handleRestore)
		mux.HandleFunc("POST "+base+"/{id}/comments", a.handleAddComment)
		mux.HandleFunc("GET "+base+"/{id}/comments", a.handleComments)
	}
}

type createWorkItemRequest struct {
	workitem.CreateInput
	// Type is validated by the store; the alias route overrides it.
}

func (a *WorkItemAPI) handleCreate(pinned workitem.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := actor(w, r)
		if !ok {
			return
		}
		var req createWorkItemRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if pinned != "" {
			req.Type = pinned
		}
		item, err := a.store.Create(r.Context(), req.CreateInput, user)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, item)
	}
}

func (a *WorkItemAPI) handleSearch(pinned workitem.Type) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := workitem.Filter{
			Text:       q.Get("q"),
			Type:       workitem.Type(q.Get("type")),
			Status:     workitem.Status(q.Get("status")),
			AssignedTo: q.Get("assigned_to"),
			CreatedBy:  q.Get("created_by"),
			Source:     q.Get("source"),
			ProjectID:  q.Get("project_id"),
		}
		if pinned != "" {
			filter.Type = pinned
		}
		if v := q.Get("priority"); v != "" {
			filter.Priority, _ = strconv.Atoi(v)
		}
		filter.HasAcceptanceCriteria = q.Get("has_acceptance_criteria") == "true"
		if v := q.Get("limit"); v != "" {
			filter.Limit, _ = strconv.Atoi(v)
		}
		if v := q.Get("offset"); v != "" {
			filter.Offset, _ = strconv.Atoi(v)
		}

		items, err := a.store.Search(r.Context(), filter)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

func (a *WorkItemAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	item, err := a.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *WorkItemAPI) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	item, err := a.store.GetVersion(r.Context(), r.PathValue("id"), r.PathValue("version"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *WorkItemAPI) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var upd workitem.Update
	if !decodeJSON(w, r, &upd) {
		return
	}
	if v := r.URL.Query().Get("change_description"); v != "" {
		upd.ChangeDescription = v
	}
	item, err := a.store.Update(r.Context(), r.PathValue("id"), upd, user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *WorkItemAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	force := r.URL.Query().Get("force") == "true"
	if err := a.store.Delete(r.Context(), r.PathValue("id"), force, user); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *WorkItemAPI) handleHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.store.History(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (a *WorkItemAPI) handleCompare(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	comparison, err := a.store.Compare(r.Context(), r.PathValue("id"), q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comparison)
}

type restoreRequest struct {
	Version string `json:"version" validate:"required"`
}

func (a *WorkItemAPI) handleRestore(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req restoreRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	item, err := a.store.Restore(r.Context(), r.PathValue("id"), req.Version, user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

type addCommentRequest struct {
	Text string `json:"text" validate:"required"`
}

func (a *WorkItemAPI) handleAddComment(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req addCommentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	comment, err := a.store.AddComment(r.Context(), r.PathValue("id"), req.Text, user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (a *WorkItemAPI) handleComments(w http.ResponseWriter, r *http.Request) {
	comments, err := a.store.Comments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comments)
}
