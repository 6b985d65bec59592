package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gasvaultlabs/gasvault/internal/domain"
	"github.com/gasvaultlabs/gasvault/internal/server/middleware"
	"github.com/gasvaultlabs/gasvault/internal/service"
)

// VenueFactory constructs a swap-venue adapter for a router contract
// address. Installed venues take effect immediately.
type VenueFactory func(address string) (domain.SwapVenue, error)

// BridgeFactory constructs a bridge adapter for a bridge contract address.
type BridgeFactory func(address string) (domain.Bridge, error)

// AdminHandler serves the administrative API: registry management,
// collaborator installation, fee sweeps, stuck-delivery remediation, and
// the audit log.
type AdminHandler struct {
	vault     *service.Vault
	audit     domain.AuditStore
	newVenue  VenueFactory
	newBridge BridgeFactory
	logger    *slog.Logger
}

// NewAdminHandler creates an AdminHandler. audit may be nil, in which case
// the audit endpoint returns an empty list.
func NewAdminHandler(
	vault *service.Vault,
	audit domain.AuditStore,
	newVenue VenueFactory,
	newBridge BridgeFactory,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		vault:     vault,
		audit:     audit,
		newVenue:  newVenue,
		newBridge: newBridge,
		logger:    logger.With(slog.String("handler", "admin")),
	}
}

type registerDestinationRequest struct {
	Name      string `json:"name"`
	NetworkID uint64 `json:"network_id"`
}

// RegisterDestination appends a destination to the registry.
// POST /api/admin/destinations
func (h *AdminHandler) RegisterDestination(w http.ResponseWriter, r *http.Request) {
	var body registerDestinationRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	caller := middleware.CallerFromContext(r.Context())
	dest, err := h.vault.RegisterDestination(r.Context(), caller, body.Name, body.NetworkID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, dest)
}

// ListDestinations returns the registry in registration order.
// GET /api/admin/destinations
func (h *AdminHandler) ListDestinations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"destinations": h.vault.Ledger().Destinations(),
	})
}

type setOperatorRequest struct {
	Operator string `json:"operator"`
}

// SetOperator designates the authorized operator address.
// PUT /api/admin/operator
func (h *AdminHandler) SetOperator(w http.ResponseWriter, r *http.Request) {
	var body setOperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Operator == "" {
		writeError(w, http.StatusBadRequest, "operator is required")
		return
	}

	caller := middleware.CallerFromContext(r.Context())
	if err := h.vault.SetOperator(r.Context(), caller, body.Operator); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"operator": body.Operator})
}

type setContractRequest struct {
	Address string `json:"address"`
}

// SetVenue installs a new price-execution venue by contract address.
// PUT /api/admin/venue
func (h *AdminHandler) SetVenue(w http.ResponseWriter, r *http.Request) {
	var body setContractRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	venue, err := h.newVenue(body.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid venue address: "+err.Error())
		return
	}

	caller := middleware.CallerFromContext(r.Context())
	if err := h.vault.SetVenue(r.Context(), caller, venue); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"venue": body.Address})
}

// SetBridge installs a new bridge by contract address.
// PUT /api/admin/bridge
func (h *AdminHandler) SetBridge(w http.ResponseWriter, r *http.Request) {
	var body setContractRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	bridge, err := h.newBridge(body.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bridge address: "+err.Error())
		return
	}

	caller := middleware.CallerFromContext(r.Context())
	if err := h.vault.SetBridge(r.Context(), caller, bridge); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"bridge": body.Address})
}

type sweepFeesRequest struct {
	Recipient string `json:"recipient"`
}

// SweepFees transfers the accumulated protocol fees to a recipient.
// POST /api/admin/fees/sweep
func (h *AdminHandler) SweepFees(w http.ResponseWriter, r *http.Request) {
	var body sweepFeesRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.Recipient == "" {
		writeError(w, http.StatusBadRequest, "recipient is required")
		return
	}

	caller := middleware.CallerFromContext(r.Context())
	swept, err := h.vault.SweepFees(r.Context(), caller, body.Recipient)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"recipient": body.Recipient,
		"amount":    swept.String(),
	})
}

// GetFees returns the current fee accumulator value.
// GET /api/admin/fees
func (h *AdminHandler) GetFees(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"accumulated": h.vault.AccumulatedFees().String(),
	})
}

// ListDeliveries returns all stuck deliveries awaiting remediation.
// GET /api/admin/deliveries
func (h *AdminHandler) ListDeliveries(w http.ResponseWriter, r *http.Request) {
	deliveries, err := h.vault.ListPendingDeliveries(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if deliveries == nil {
		deliveries = []domain.PendingDelivery{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deliveries": deliveries})
}

// RetryDelivery re-runs the delivery leg of a stuck redemption or claim.
// POST /api/admin/deliveries/{id}/retry
func (h *AdminHandler) RetryDelivery(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "delivery id is required")
		return
	}

	caller := middleware.CallerFromContext(r.Context())
	d, err := h.vault.RetryDelivery(r.Context(), caller, id)
	if err != nil {
		// Surface the updated attempt count even when the retry fails.
		if d.ID != "" && statusFromErr(err) >= http.StatusInternalServerError {
			writeJSON(w, statusFromErr(err), map[string]any{
				"error":    err.Error(),
				"delivery": d,
			})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// ListAudit returns audit log entries, newest first.
// GET /api/admin/audit?limit=&offset=
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []domain.AuditEntry{}})
		return
	}

	entries, err := h.audit.List(r.Context(), parseListOpts(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list audit entries")
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
