package governanceapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/c360studio/agora/governance"
	"github.com/c360studio/agora/stats"
	"github.com/c360studio/agora/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterHTTPHandlers registers HTTP handlers for the governance-api
// component. The prefix may or may not include a trailing slash.
func (c *Component) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	if !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	mux.HandleFunc(prefix+"proposals", c.handleListProposals)
	mux.HandleFunc(prefix+"proposals/", c.handleGetProposal)
	mux.HandleFunc(prefix+"decisions", c.handleListDecisions)
	mux.HandleFunc(prefix+"decisions/", c.handleGetDecision)
	mux.HandleFunc(prefix+"stats", c.handleStats)
	mux.HandleFunc(prefix+"healthz", c.handleHealthz)
	mux.Handle(prefix+"metrics", promhttp.Handler())
}

// ProposalView joins an observed proposal with its decision, if one exists.
type ProposalView struct {
	Proposal *governance.Proposal `json:"proposal"`
	Decision *governance.Decision `json:"decision,omitempty"`
}

// handleListProposals handles GET /proposals?dao={dao}
// Returns observed proposals joined with their ledger decisions.
func (c *Component) handleListProposals(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	store, err := c.getStore(r.Context())
	if err != nil {
		c.logger.Error("Store unavailable", "error", err)
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
		return
	}

	dao := r.URL.Query().Get("dao")
	proposals, err := store.ListProposals(r.Context(), dao)
	if err != nil {
		c.logger.Error("Failed to list proposals", "dao", dao, "error", err)
		http.Error(w, "Failed to list proposals", http.StatusInternalServerError)
		return
	}

	sort.Slice(proposals, func(i, j int) bool {
		return proposals[i].CreatedAt.After(proposals[j].CreatedAt)
	})
	if len(proposals) > c.config.MaxListResults {
		proposals = proposals[:c.config.MaxListResults]
	}

	views := make([]ProposalView, 0, len(proposals))
	for _, p := range proposals {
		view := ProposalView{Proposal: p}
		decision, derr := store.Get(r.Context(), p.DAO, p.ID)
		if derr != nil && !errors.Is(derr, storage.ErrNotFound) {
			c.logger.Warn("Failed to look up decision",
				"dao", p.DAO, "proposal", p.ID, "error", derr)
		}
		if derr == nil {
			view.Decision = decision
		}
		views = append(views, view)
	}

	c.writeJSON(w, views)
}

// handleGetProposal handles GET /proposals/{dao}/{proposal_id}
func (c *Component) handleGetProposal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dao, proposalID := extractKeyFromPath(r.URL.Path, "/proposals/")
	if dao == "" || proposalID == "" {
		http.Error(w, "DAO and proposal ID required", http.StatusBadRequest)
		return
	}

	store, err := c.getStore(r.Context())
	if err != nil {
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
		return
	}

	proposal, err := store.GetProposal(r.Context(), dao, proposalID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Proposal not found", http.StatusNotFound)
			return
		}
		c.logger.Error("Failed to get proposal",
			"dao", dao, "proposal", proposalID, "error", err)
		http.Error(w, "Failed to retrieve proposal", http.StatusInternalServerError)
		return
	}

	view := ProposalView{Proposal: proposal}
	if decision, derr := store.Get(r.Context(), dao, proposalID); derr == nil {
		view.Decision = decision
	}

	c.writeJSON(w, view)
}

// handleListDecisions handles
// GET /decisions?dao={dao}&classification={class}&from={ts}&until={ts}
// where from/until are RFC 3339 timestamps bounding DecidedAt.
func (c *Component) handleListDecisions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	filter := storage.DecisionFilter{
		DAO: r.URL.Query().Get("dao"),
	}
	if class := r.URL.Query().Get("classification"); class != "" {
		filter.Classification = governance.Classification(class)
		if !filter.Classification.IsValid() {
			http.Error(w, "Unknown classification", http.StatusBadRequest)
			return
		}
	}
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			http.Error(w, "Invalid from timestamp, use RFC 3339", http.StatusBadRequest)
			return
		}
		filter.From = t
	}
	if until := r.URL.Query().Get("until"); until != "" {
		t, err := time.Parse(time.RFC3339, until)
		if err != nil {
			http.Error(w, "Invalid until timestamp, use RFC 3339", http.StatusBadRequest)
			return
		}
		filter.Until = t
	}

	store, err := c.getStore(r.Context())
	if err != nil {
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
		return
	}

	decisions, err := store.List(r.Context(), filter)
	if err != nil {
		c.logger.Error("Failed to list decisions", "error", err)
		http.Error(w, "Failed to list decisions", http.StatusInternalServerError)
		return
	}

	sort.Slice(decisions, func(i, j int) bool {
		return decisions[i].DecidedAt.After(decisions[j].DecidedAt)
	})
	if len(decisions) > c.config.MaxListResults {
		decisions = decisions[:c.config.MaxListResults]
	}

	c.writeJSON(w, decisions)
}

// handleGetDecision handles GET /decisions/{dao}/{proposal_id}
func (c *Component) handleGetDecision(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	dao, proposalID := extractKeyFromPath(r.URL.Path, "/decisions/")
	if dao == "" || proposalID == "" {
		http.Error(w, "DAO and proposal ID required", http.StatusBadRequest)
		return
	}

	store, err := c.getStore(r.Context())
	if err != nil {
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
		return
	}

	decision, err := store.Get(r.Context(), dao, proposalID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "Decision not found", http.StatusNotFound)
			return
		}
		c.logger.Error("Failed to get decision",
			"dao", dao, "proposal", proposalID, "error", err)
		http.Error(w, "Failed to retrieve decision", http.StatusInternalServerError)
		return
	}

	c.writeJSON(w, decision)
}

// handleStats handles GET /stats?dao={dao}
// Statistics are recomputed from the ledger on every request.
func (c *Component) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	store, err := c.getStore(r.Context())
	if err != nil {
		http.Error(w, "Storage unavailable", http.StatusServiceUnavailable)
		return
	}

	filter := storage.DecisionFilter{DAO: r.URL.Query().Get("dao")}
	decisions, err := store.List(r.Context(), filter)
	if err != nil {
		c.logger.Error("Failed to list decisions for stats", "error", err)
		http.Error(w, "Failed to compute statistics", http.StatusInternalServerError)
		return
	}

	c.writeJSON(w, stats.Compute(decisions))
}

// handleHealthz handles GET /healthz
func (c *Component) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := c.Health()
	status := http.StatusOK
	if !health.Healthy {
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(map[string]string{"status": health.Status}); err != nil {
		c.logger.Warn("Failed to encode response", "error", err)
	}
}

func (c *Component) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		c.logger.Warn("Failed to encode response", "error", err)
	}
}

// extractKeyFromPath extracts the DAO and proposal ID from a path segment.
// Example: extractKeyFromPath("/governance-api/decisions/mango/p1", "/decisions/")
// returns ("mango", "p1").
func extractKeyFromPath(path, prefix string) (string, string) {
	idx := strings.Index(path, prefix)
	if idx == -1 {
		return "", ""
	}

	remainder := strings.Trim(path[idx+len(prefix):], "/")
	parts := strings.SplitN(remainder, "/", 2)
	if len(parts) != 2 {
		return "", ""
	}
	return parts[0], parts[1]
}
