package server

import (
	"net/http"
	"time"

	"github.com/c360studio/traceline/metrics"
	"github.com/c360studio/traceline/scheduler"
)

// ScheduleAPI serves project scheduling: solve, fetch, and manual
// adjustment of the stored schedule.
type ScheduleAPI struct {
	solver *scheduler.Solver
	store  *scheduler.Store
}

// NewScheduleAPI builds the handler group over the solver and schedule store.
func NewScheduleAPI(solver *scheduler.Solver, store *scheduler.Store) *ScheduleAPI {
	return &ScheduleAPI{solver: solver, store: store}
}

// RegisterHTTPHandlers registers the schedule routes under the given
// prefix (typically "/v1").
func (a *ScheduleAPI) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	mux.HandleFunc("POST "+prefix+"/projects/{pid}/schedule", a.handleSolve)
	mux.HandleFunc("GET "+prefix+"/projects/{pid}/schedule", a.handleGet)
	mux.HandleFunc("PATCH "+prefix+"/projects/{pid}/schedule", a.handleUpdate)
}

type solveRequest struct {
	Tasks       []scheduler.Task           `json:"tasks" validate:"required,min=1"`
	Resources   []scheduler.Resource       `json:"resources,omitempty"`
	Milestones  []scheduler.MilestoneInput `json:"milestones,omitempty"`
	Constraints scheduler.Constraints      `json:"constraints"`
}

func (a *ScheduleAPI) handleSolve(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	var req solveRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	started := time.Now()
	sched, err := a.solver.Solve(r.Context(), scheduler.Problem{
		ProjectID:   r.PathValue("pid"),
		Tasks:       req.Tasks,
		Resources:   req.Resources,
		Milestones:  req.Milestones,
		Constraints: req.Constraints,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.SolverRuns.WithLabelValues(sched.Status).Inc()
	metrics.SolverDuration.Observe(time.Since(started).Seconds())

	a.store.Save(sched)
	writeJSON(w, http.StatusCreated, sched)
}

func (a *ScheduleAPI) handleGet(w http.ResponseWriter, r *http.Request) {
	sched, err := a.store.Get(r.PathValue("pid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}

type updateScheduleRequest struct {
	Adjustments map[string]scheduler.TaskAdjustment `json:"adjustments" validate:"required,min=1"`
}

func (a *ScheduleAPI) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if _, ok := actor(w, r); !ok {
		return
	}
	var req updateScheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	sched, err := a.store.Update(r.PathValue("pid"), req.Adjustments)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sched)
}
