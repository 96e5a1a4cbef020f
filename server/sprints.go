package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/c360studio/traceline/sprint"
)

// SprintAPI serves sprint lifecycle, task assignment, backlog, velocity,
// and burndown routes.
type SprintAPI struct {
	coordinator *sprint.Coordinator
}

// NewSprintAPI builds the handler group over the sprint coordinator.
func NewSprintAPI(coordinator *sprint.Coordinator) *SprintAPI {
	return &SprintAPI{coordinator: coordinator}
}

// RegisterHTTPHandlers registers the sprint and project routes under the
// given prefix (typically "/v1").
func (a *SprintAPI) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	mux.HandleFunc("POST "+prefix+"/sprints", a.handleCreate)
	mux.HandleFunc("POST "+prefix+"/projects/{pid}/sprints", a.handleCreateForProject)
	mux.HandleFunc("GET "+prefix+"/sprints/{id}", a.handleGet)
	mux.HandleFunc("PATCH "+prefix+"/sprints/{id}", a.handleUpdate)
	mux.HandleFunc("DELETE "+prefix+"/sprints/{id}", a.handleDelete)
	mux.HandleFunc("POST "+prefix+"/sprints/{id}/start", a.handleStart)
	mux.HandleFunc("POST "+prefix+"/sprints/{id}/complete", a.handleComplete)
	mux.HandleFunc("POST "+prefix+"/sprints/{id}/cancel", a.handleCancel)
	mux.HandleFunc("POST "+prefix+"/sprints/{id}/tasks/{tid}", a.handleAddTask)
	mux.HandleFunc("DELETE "+prefix+"/sprints/{id}/tasks/{tid}", a.handleRemoveTask)
	mux.HandleFunc("GET "+prefix+"/sprints/{id}/tasks", a.handleTasks)
	mux.HandleFunc("GET "+prefix+"/sprints/{id}/velocity", a.handleVelocity)
	mux.HandleFunc("GET "+prefix+"/sprints/{id}/burndown", a.handleBurndown)
	mux.HandleFunc("GET "+prefix+"/projects/{pid}/velocity", a.handleProjectVelocity)
	mux.HandleFunc("GET "+prefix+"/projects/{pid}/velocity/history", a.handleVelocityHistory)
	mux.HandleFunc("GET "+prefix+"/projects/{pid}/backlog", a.handleBacklogTasks)
	mux.HandleFunc("POST "+prefix+"/projects/{pid}/backlog/{tid}", a.handleAddToBacklog)
}

type createSprintRequest struct {
	sprint.CreateInput
}

func (a *SprintAPI) createSprint(w http.ResponseWriter, r *http.Request, projectID string) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req createSprintRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if projectID != "" {
		req.ProjectID = projectID
	}
	created, err := a.coordinator.Create(r.Context(), req.CreateInput, user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *SprintAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	a.createSprint(w, r, "")
}

func (a *SprintAPI) handleCreateForProject(w http.ResponseWriter, r *http.Request) {
	a.createSprint(w, r, r.PathValue("pid"))
}

func (a *SprintAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	sp, err := a.coordinator.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

func (a *SprintAPI) handleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var upd sprint.Update
	if !decodeJSON(w, r, &upd) {
		return
	}
	sp, err := a.coordinator.Update(r.Context(), r.PathValue("id"), upd, user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

func (a *SprintAPI) handleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	if err := a.coordinator.Delete(r.Context(), r.PathValue("id"), user); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *SprintAPI) handleStart(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.coordinator.Start)
}

func (a *SprintAPI) handleComplete(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.coordinator.Complete)
}

func (a *SprintAPI) handleCancel(w http.ResponseWriter, r *http.Request) {
	a.transition(w, r, a.coordinator.Cancel)
}

// transition runs one of the start/complete/cancel state moves.
func (a *SprintAPI) transition(
	w http.ResponseWriter,
	r *http.Request,
	move func(ctx context.Context, id, actor string) (*sprint.Sprint, error),
) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	sp, err := move(r.Context(), r.PathValue("id"), user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sp)
}

func (a *SprintAPI) handleAddTask(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	if err := a.coordinator.AddTask(r.Context(), r.PathValue("id"), r.PathValue("tid"), user); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *SprintAPI) handleRemoveTask(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	returnToBacklog := r.URL.Query().Get("return_to_backlog") != "false"
	err := a.coordinator.RemoveTask(r.Context(), r.PathValue("id"), r.PathValue("tid"), returnToBacklog, user)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *SprintAPI) handleTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := a.coordinator.SprintTasks(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (a *SprintAPI) handleVelocity(w http.ResponseWriter, r *http.Request) {
	velocity, err := a.coordinator.SprintVelocity(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, velocity)
}

func (a *SprintAPI) handleBurndown(w http.ResponseWriter, r *http.Request) {
	points, err := a.coordinator.Burndown(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (a *SprintAPI) handleProjectVelocity(w http.ResponseWriter, r *http.Request) {
	n := 0
	if v := r.URL.Query().Get("n"); v != "" {
		n, _ = strconv.Atoi(v)
	}
	velocity, err := a.coordinator.TeamAverageVelocity(r.Context(), r.PathValue("pid"), n)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, velocity)
}

func (a *SprintAPI) handleVelocityHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	sprints, err := a.coordinator.CompletedSprints(r.Context(), r.PathValue("pid"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sprints)
}

func (a *SprintAPI) handleBacklogTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := a.coordinator.BacklogTasks(r.Context(), r.PathValue("pid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (a *SprintAPI) handleAddToBacklog(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	if err := a.coordinator.AddTaskToBacklog(r.Context(), r.PathValue("pid"), r.PathValue("tid"), user); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
