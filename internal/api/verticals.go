package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/rewired-gh/macrooracle/internal/fred"
	"github.com/rewired-gh/macrooracle/internal/logger"
	"github.com/rewired-gh/macrooracle/internal/models"
	"github.com/rewired-gh/macrooracle/internal/verticals"
)

// forceParam reads the optional ?force= flag.
func forceParam(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("force")
	if raw == "" {
		return false, nil
	}
	return strconv.ParseBool(raw)
}

type seriesResponse struct {
	SeriesID string        `json:"series_id"`
	Name     string        `json:"name"`
	Units    string        `json:"units,omitempty"`
	Data     models.Series `json:"data"`
	Count    int           `json:"count"`
}

// handleSeries serves one known series, from the cache when it holds observations.
func (s *Server) handleSeries(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	force, err := forceParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "force must be a boolean")
		return
	}

	resp := seriesResponse{SeriesID: id}
	if def, ok := fred.Lookup(id); ok {
		resp.Name, resp.Units = def.Name, def.Units
	} else if def, ok := verticals.LookupSeries(id); ok {
		resp.Name, resp.Units = def.Name, def.Units
	} else {
		writeError(w, http.StatusNotFound, "unknown series "+id)
		return
	}

	obs := s.source.Cached(id)
	if force || len(obs) == 0 {
		res, err := s.source.Fetch(r.Context(), []string{id}, force)
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		if len(res.Errors) > 0 {
			logger.Warn("Series %s fetch failed: %v", id, res.Errors[0])
			writeError(w, http.StatusBadGateway, res.Errors[0].Error())
			return
		}
		obs = res.Series[id]
	}
	if obs == nil {
		obs = models.Series{}
	}
	resp.Data = obs
	resp.Count = len(obs)
	writeJSON(w, http.StatusOK, resp)
}

type agentResponse struct {
	Agent         string        `json:"agent"`
	Signal        models.Signal `json:"signal"`
	SeriesFetched int           `json:"series_fetched"`
	FetchErrors   []string      `json:"fetch_errors,omitempty"`
	Cached        bool          `json:"cached"`
}

// handleAgent runs one agent on the current snapshot without touching the loop.
func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	agent, ok := s.agents.Agent(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":     "unknown agent " + name,
			"available": s.agents.AgentNames(),
		})
		return
	}
	force, err := forceParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "force must be a boolean")
		return
	}

	res, err := s.source.Fetch(r.Context(), s.series, force)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	fetched := 0
	for _, obs := range res.Series {
		if len(obs) > 0 {
			fetched++
		}
	}
	writeJSON(w, http.StatusOK, agentResponse{
		Agent:         name,
		Signal:        agent.Analyze(res.Series),
		SeriesFetched: fetched,
		FetchErrors:   res.ErrorStrings(),
		Cached:        res.Cached,
	})
}

func (s *Server) handleVerticals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"verticals": verticals.List()})
}

func (s *Server) handleVerticalConfig(w http.ResponseWriter, r *http.Request) {
	v, ok := verticals.Get(r.PathValue("vid"))
	if !ok {
		writeError(w, http.StatusNotFound, "vertical '"+r.PathValue("vid")+"' not found")
		return
	}
	writeJSON(w, http.StatusOK, v.Detail())
}

func (s *Server) handleVerticalData(w http.ResponseWriter, r *http.Request) {
	force, err := forceParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "force must be a boolean")
		return
	}
	data, err := s.sectors.Data(r.Context(), r.PathValue("vid"), force)
	if err != nil {
		writeVerticalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handleVerticalAnalysis(w http.ResponseWriter, r *http.Request) {
	force, err := forceParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "force must be a boolean")
		return
	}
	a, err := s.sectors.Analysis(r.Context(), r.PathValue("vid"), force)
	if err != nil {
		writeVerticalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func writeVerticalError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, verticals.ErrUnknownVertical):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, verticals.ErrNoData):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		logger.Warn("Vertical request failed: %v", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
