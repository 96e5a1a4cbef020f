package server

import (
	"net/http"

	"github.com/c360studio/traceline/resource"
	"github.com/c360studio/traceline/workitem"
)

// ResourceAPI serves resource, allocation, milestone, and skill-match
// routes.
type ResourceAPI struct {
	resources *resource.Service
	items     *workitem.Store
}

// NewResourceAPI builds the handler group over the resource service and
// the work item store used for task skill lookups.
func NewResourceAPI(resources *resource.Service, items *workitem.Store) *ResourceAPI {
	return &ResourceAPI{resources: resources, items: items}
}

// RegisterHTTPHandlers registers the resource routes under the given
// prefix (typically "/v1").
func (a *ResourceAPI) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	mux.HandleFunc("POST "+prefix+"/resources", a.handleCreate)
	mux.HandleFunc("GET "+prefix+"/resources/{id}", a.handleGet)
	mux.HandleFunc("PATCH "+prefix+"/resources/{id}/availability", a.handleSetAvailability)
	mux.HandleFunc("POST "+prefix+"/resources/{id}/allocations", a.handleAllocate)
	mux.HandleFunc("DELETE "+prefix+"/resources/{id}/allocations/{target}", a.handleDeallocate)
	mux.HandleFunc("POST "+prefix+"/resources/match", a.handleMatch)
	mux.HandleFunc("GET "+prefix+"/tasks/{id}/matches", a.handleMatchForTask)
	mux.HandleFunc("GET "+prefix+"/tasks/{id}/leads", a.handleLeadsForTask)
	mux.HandleFunc("POST "+prefix+"/milestones", a.handleCreateMilestone)
	mux.HandleFunc("GET "+prefix+"/milestones/{id}", a.handleGetMilestone)
	mux.HandleFunc("POST "+prefix+"/milestones/{id}/dependencies", a.handleAddDependency)
	mux.HandleFunc("POST "+prefix+"/milestones/{id}/before/{other}", a.handleAddBefore)
	mux.HandleFunc("POST "+prefix+"/projects/{pid}/departments/{did}", a.handleLinkDepartment)
}

type createResourceRequest struct {
	resource.Resource
}

func (a *ResourceAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req createResourceRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := a.resources.CreateResource(r.Context(), req.Resource, user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *ResourceAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	res, err := a.resources.GetResource(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type availabilityRequest struct {
	Availability string `json:"availability" validate:"required"`
}

func (a *ResourceAPI) handleSetAvailability(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req availabilityRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.resources.SetAvailability(r.Context(), r.PathValue("id"), req.Availability, user); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type allocateRequest struct {
	TargetType string              `json:"target_type" validate:"required,oneof=project task"`
	TargetID   string              `json:"target_id" validate:"required"`
	Allocation resource.Allocation `json:"allocation"`
}

func (a *ResourceAPI) handleAllocate(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req allocateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var err error
	if req.TargetType == "project" {
		err = a.resources.AllocateToProject(r.Context(), r.PathValue("id"), req.TargetID, req.Allocation, user)
	} else {
		err = a.resources.AllocateToTask(r.Context(), r.PathValue("id"), req.TargetID, req.Allocation, user)
	}
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *ResourceAPI) handleDeallocate(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	if err := a.resources.Deallocate(r.Context(), r.PathValue("id"), r.PathValue("target"), user); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type matchRequest struct {
	Skills            []string `json:"skills"`
	LinkedDepartments []string `json:"linked_departments,omitempty"`
}

func (a *ResourceAPI) handleMatch(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	matches, err := a.resources.Match(r.Context(), req.Skills, req.LinkedDepartments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (a *ResourceAPI) handleMatchForTask(w http.ResponseWriter, r *http.Request) {
	matches, err := a.resources.MatchForTask(r.Context(), a.items, r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, matches)
}

func (a *ResourceAPI) handleLeadsForTask(w http.ResponseWriter, r *http.Request) {
	leads, err := a.resources.LeadResourcesForTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, leads)
}

type createMilestoneRequest struct {
	resource.Milestone
}

func (a *ResourceAPI) handleCreateMilestone(w http.ResponseWriter, r *http.Request) {
	user, ok := actor(w, r)
	if !ok {
		return
	}
	var req createMilestoneRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	created, err := a.resources.CreateMilestone(r.Context(), req.Milestone, user)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *ResourceAPI) handleGetMilestone(w http.ResponseWriter, r *http.Request) {
	milestone, err := a.resources.GetMilestone(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, milestone)
}

type addDependencyRequest struct {
	DependsOn string `json:"depends_on" validate:"required"`
}

func (a *ResourceAPI) handleAddDependency(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	var req addDependencyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := a.resources.AddDependency(r.Context(), r.PathValue("id"), req.DependsOn); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *ResourceAPI) handleAddBefore(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	if err := a.resources.AddMilestoneBefore(r.Context(), r.PathValue("id"), r.PathValue("other")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (a *ResourceAPI) handleLinkDepartment(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	if err := a.resources.LinkDepartment(r.Context(), r.PathValue("pid"), r.PathValue("did")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}
