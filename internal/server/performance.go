package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mhamzafaisal1/chitrac/internal/perf"
	"github.com/mhamzafaisal1/chitrac/internal/report"
	"github.com/mhamzafaisal1/chitrac/internal/session"
)

func (s *Server) handleListOperators(
	w http.ResponseWriter, r *http.Request,
) {
	ops, err := s.db.Operators(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		s.log.Error().Err(err).Msg("listing operators")
		writeError(w, http.StatusInternalServerError, "listing operators")
		return
	}
	if ops == nil {
		ops = []session.OperatorRef{}
	}
	writeJSON(w, http.StatusOK, ops)
}

func (s *Server) handleListMachines(
	w http.ResponseWriter, r *http.Request,
) {
	machines, err := s.db.Machines(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		s.log.Error().Err(err).Msg("listing machines")
		writeError(w, http.StatusInternalServerError, "listing machines")
		return
	}
	if machines == nil {
		machines = []session.MachineRef{}
	}
	writeJSON(w, http.StatusOK, machines)
}

// servePerformance runs one report request and writes it.
func (s *Server) servePerformance(
	w http.ResponseWriter, r *http.Request, req report.Request,
) {
	rep, err := s.builder.Build(r.Context(), req)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleOperatorFleet(
	w http.ResponseWriter, r *http.Request,
) {
	req, err := parseReportQuery(r, session.EntityOperator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.EntityIDs, err = queryIDs(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.servePerformance(w, r, req)
}

func (s *Server) handleOperatorPerformance(
	w http.ResponseWriter, r *http.Request,
) {
	id, err := pathInt(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := parseReportQuery(r, session.EntityOperator)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.EntityIDs = []int{id}
	s.servePerformance(w, r, req)
}

func (s *Server) handleMachineFleet(
	w http.ResponseWriter, r *http.Request,
) {
	req, err := parseReportQuery(r, session.EntityMachine)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.EntityIDs, err = queryIDs(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.servePerformance(w, r, req)
}

func (s *Server) handleMachinePerformance(
	w http.ResponseWriter, r *http.Request,
) {
	serial, err := pathInt(r, "serial")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := parseReportQuery(r, session.EntityMachine)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.EntityIDs = []int{serial}
	s.servePerformance(w, r, req)
}

func (s *Server) handleItemPerformance(
	w http.ResponseWriter, r *http.Request,
) {
	req, err := parseReportQuery(r, session.EntityItem)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.EntityIDs, err = queryIDs(r); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.EntityIDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids parameter is required")
		return
	}
	s.servePerformance(w, r, req)
}

func (s *Server) handleMachineFaults(
	w http.ResponseWriter, r *http.Request,
) {
	serial, err := pathInt(r, "serial")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	var operatorID *int
	if raw := q.Get("operator"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid operator")
			return
		}
		operatorID = &id
	}

	win, err := s.faultWindow(q.Get("start"), q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rep, err := s.builder.BuildFaults(r.Context(), serial, operatorID, win)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		s.log.Error().Err(err).Int("machine", serial).
			Msg("building fault report")
		writeError(w, http.StatusInternalServerError,
			"building fault report")
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// faultWindow parses an explicit fault query window, defaulting
// to the current day.
func (s *Server) faultWindow(startStr, endStr string) (perf.Range, error) {
	if startStr == "" && endStr == "" {
		return perf.ResolveTimeframe(
			perf.TimeframeToday, time.Now(), s.cfg.Location(),
		)
	}
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return perf.Range{}, err
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return perf.Range{}, err
	}
	if !end.After(start) {
		return perf.Range{}, errEndBeforeStart
	}
	return perf.Range{Start: start.UTC(), End: end.UTC()}, nil
}
