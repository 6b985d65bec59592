package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	vaultcrypto "github.com/gasvaultlabs/gasvault/internal/crypto"
	"github.com/gasvaultlabs/gasvault/internal/server/middleware"
	"github.com/gasvaultlabs/gasvault/internal/service"
)

// VaultHandler serves the three lifecycle flows: purchase, redeem, and
// claim-expired.
type VaultHandler struct {
	vault  *service.Vault
	logger *slog.Logger
}

// NewVaultHandler creates a VaultHandler for the given vault.
func NewVaultHandler(vault *service.Vault, logger *slog.Logger) *VaultHandler {
	return &VaultHandler{
		vault:  vault,
		logger: logger.With(slog.String("handler", "vault")),
	}
}

type purchaseRequest struct {
	Buyer         string `json:"buyer"`
	DepositAmount string `json:"deposit_amount"`
	MinOutput     string `json:"min_output"`
	Destination   string `json:"destination"`
	ExpiresAt     string `json:"expires_at,omitempty"` // RFC3339, optional
}

// Purchase converts a deposit into a new locked position.
// POST /api/purchase
func (h *VaultHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var body purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	deposit, err := parseAmount(body.DepositAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "deposit_amount: "+err.Error())
		return
	}
	minOut, err := parseAmount(body.MinOutput)
	if err != nil {
		writeError(w, http.StatusBadRequest, "min_output: "+err.Error())
		return
	}

	req := service.PurchaseRequest{
		Buyer:         body.Buyer,
		DepositAmount: deposit,
		MinOutput:     minOut,
		Destination:   body.Destination,
	}
	if body.ExpiresAt != "" {
		t, err := time.Parse(time.RFC3339, body.ExpiresAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "expires_at must be RFC3339")
			return
		}
		req.ExpiresAt = t
	}

	caller := middleware.CallerFromContext(r.Context())
	rec, err := h.vault.Purchase(r.Context(), caller, req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

type redeemRequest struct {
	PositionID uint64 `json:"position_id"`
	Amount     string `json:"amount"`
	Recipient  string `json:"recipient,omitempty"`
	RouteData  []byte `json:"route_data,omitempty"`
}

// Redeem debits a position and delivers the debited amount.
// POST /api/redeem
func (h *VaultHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	var body redeemRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	amount, err := parseAmount(body.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "amount: "+err.Error())
		return
	}

	caller := middleware.CallerFromContext(r.Context())
	rec, err := h.vault.Redeem(r.Context(), caller, service.RedeemRequest{
		PositionID: body.PositionID,
		Amount:     amount,
		Recipient:  body.Recipient,
		RouteData:  body.RouteData,
	})
	if err != nil {
		// A failed delivery still committed the debit: return the record
		// alongside the error status so the client sees the owed amount.
		if !rec.Delivered && rec.ID != "" {
			writeJSON(w, statusFromErr(err), map[string]any{
				"error":      err.Error(),
				"redemption": rec,
			})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type claimRequest struct {
	PositionID uint64 `json:"position_id"`
	IssuedAt   int64  `json:"issued_at"` // unix seconds of the signed message
	Signature  string `json:"signature"` // 65-byte hex personal-message signature
}

// Claim lets the holder of an expired position claim back its remaining
// balance. The caller proves control of the holder address with a signed
// message; no API key is required.
// POST /api/claim
func (h *VaultHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var body claimRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	signer, err := vaultcrypto.RecoverClaimSigner(
		body.PositionID, time.Unix(body.IssuedAt, 0), body.Signature, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	rec, err := h.vault.ClaimExpired(r.Context(), signer, body.PositionID)
	if err != nil {
		if !rec.Delivered && rec.ID != "" {
			writeJSON(w, statusFromErr(err), map[string]any{
				"error": err.Error(),
				"claim": rec,
			})
			return
		}
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}
