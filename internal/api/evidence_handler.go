package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorecal/app"
	"gorecal/domain/core"
	"gorecal/ports"
)

// EvidenceHandler packages the forensic evidence behind a sealed decision:
// the chain entry, its independent verification, the full snapshot it was
// sealed over, and a cross-check that any embedded mutation was persisted
type EvidenceHandler struct {
	forensic  *app.ForensicService
	ledger    ports.ChainReaderPort
	mutations ports.MutationRepository
}

// NewEvidenceHandler creates a new evidence handler. Ledger and mutation
// repository may be nil; the evidence package degrades gracefully.
func NewEvidenceHandler(
	forensic *app.ForensicService,
	ledger ports.ChainReaderPort,
	mutations ports.MutationRepository,
) *EvidenceHandler {
	return &EvidenceHandler{
		forensic:  forensic,
		ledger:    ledger,
		mutations: mutations,
	}
}

// DecisionEvidence is the reviewable package for one sealed entry
type DecisionEvidence struct {
	Entry             interface{}            `json:"entry"`
	Verification      interface{}            `json:"verification"`
	Decision          map[string]interface{} `json:"decision,omitempty"`
	Snapshot          interface{}            `json:"snapshot,omitempty"`
	MutationPersisted *bool                  `json:"mutation_persisted,omitempty"`
}

// GetDecisionEvidence returns the evidence supporting a sealed chain entry
func (eh *EvidenceHandler) GetDecisionEvidence(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid entry index"})
		return
	}

	entry, err := eh.forensic.Entry(index)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Entry not found"})
		return
	}

	verification, err := eh.forensic.VerifyEntry(index)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Verification failed: " + err.Error()})
		return
	}

	evidence := DecisionEvidence{
		Entry:        entry,
		Verification: verification,
	}

	// Decode the decision payload so callers see structured fields rather
	// than a raw JSON blob
	var decision map[string]interface{}
	if err := json.Unmarshal(entry.Decision, &decision); err == nil {
		evidence.Decision = decision
	}

	// Attach the persisted snapshot when a ledger is configured
	if eh.ledger != nil {
		if snapshot, err := eh.ledger.GetSnapshot(c.Request.Context(), entry.SnapshotID); err == nil {
			evidence.Snapshot = snapshot
		}
	}

	// Cross-check that an embedded mutation made it to durable storage
	if eh.mutations != nil {
		if id := mutationIDFromDecision(evidence.Decision); id != "" {
			_, err := eh.mutations.GetMutation(c.Request.Context(), core.MutationID(id))
			persisted := err == nil
			evidence.MutationPersisted = &persisted
		}
	}

	c.JSON(http.StatusOK, evidence)
}

// mutationIDFromDecision digs the mutation id out of a decoded decision
// payload, returning "" when the decision carries no mutation
func mutationIDFromDecision(decision map[string]interface{}) string {
	if decision == nil {
		return ""
	}
	mutation, ok := decision["mutation"].(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := mutation["id"].(string)
	return id
}
