package http

import (
	"errors"
	"net/http"

	"github.com/ark-network/watchtower/internal/core/domain"
	"github.com/ark-network/watchtower/internal/core/ports"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type handlers struct {
	networks map[domain.NetworkID]NetworkServices
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorBody{Error: code, Message: message})
}

// vaultPayload mirrors the "vaults" entry of a register request body.
type vaultPayload struct {
	VaultID      string   `json:"vaultId" binding:"required"`
	VaultNumber  *int64   `json:"vaultNumber" binding:"required"`
	TriggerTxIds []string `json:"triggerTxIds" binding:"required,min=1"`
	Commitment   string   `json:"commitment"`
}

type registerRequest struct {
	PushToken    string         `json:"pushToken" binding:"required"`
	WalletID     string         `json:"walletId" binding:"required"`
	WalletName   string         `json:"walletName" binding:"required"`
	WatchtowerID string         `json:"watchtowerId" binding:"required"`
	Locale       string         `json:"locale"`
	Vaults       []vaultPayload `json:"vaults" binding:"required,min=1"`
}

// register implements POST /[{networkId}/]watchtower/register.
// Each vault in the body is registered in its own store transaction; a
// failure partway through leaves earlier vaults committed, matching the
// store's per-vault atomicity contract rather than wrapping
// the whole batch in one oversized transaction.
func (h *handlers) register(networkID domain.NetworkID) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := h.networks[networkID]
		if !ok {
			writeError(c, http.StatusBadRequest, "unknown_network", "network is not enabled on this watchtower")
			return
		}

		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}

		for _, v := range req.Vaults {
			if *v.VaultNumber < 0 {
				writeError(c, http.StatusBadRequest, "invalid_vault_number", "vaultNumber must be >= 0")
				return
			}

			reg := ports.VaultRegistration{
				VaultID:      v.VaultID,
				WalletID:     req.WalletID,
				WalletName:   req.WalletName,
				VaultNumber:  *v.VaultNumber,
				WatchtowerID: req.WatchtowerID,
				Locale:       req.Locale,
				PushToken:    req.PushToken,
				TriggerTxids: v.TriggerTxIds,
			}

			// A trigger txid is unique per network: the store keeps
			// whichever vault claimed it first and silently ignores the
			// rest. Surface the collision in the logs since the caller
			// otherwise gets a 200 with no hint its txid was dropped.
			for _, txid := range v.TriggerTxIds {
				existing, err := svc.Store.TriggerByTxid(c.Request.Context(), txid)
				if err != nil {
					logrus.WithError(err).WithField("txid", txid).Warn("register: trigger txid lookup failed")
					continue
				}
				if existing != nil && existing.VaultID != v.VaultID {
					logrus.WithFields(logrus.Fields{
						"txid": txid, "existingVaultId": existing.VaultID, "requestedVaultId": v.VaultID,
					}).Warn("register: trigger txid already bound to a different vault, ignoring for this vault")
				}
			}

			if v.Commitment != "" {
				if !svc.WithCommitments {
					writeError(c, http.StatusBadRequest, "commitments_disabled", "this watchtower was not started with --with-commitments")
					return
				}
				txid, err := svc.Verifier.VerifyAuthorization(c.Request.Context(), string(networkID), svc.DbFolder, v.VaultID, v.Commitment)
				if err != nil {
					status, code := commitmentErrorStatus(err)
					writeError(c, status, code, err.Error())
					return
				}
				reg.CommitmentTxid = txid
			} else if svc.WithCommitments {
				writeError(c, http.StatusForbidden, "commitment_required", "this watchtower requires a commitment on registration")
				return
			}

			if err := svc.Store.RegisterVault(c.Request.Context(), reg); err != nil {
				if errors.Is(err, ports.ErrCommitmentReused) {
					writeError(c, http.StatusForbidden, "commitment_reused", err.Error())
					return
				}
				logrus.WithError(err).WithField("vaultId", v.VaultID).Error("register vault")
				writeError(c, http.StatusInternalServerError, "internal_error", "failed to register vault")
				return
			}
		}

		c.Status(http.StatusOK)
	}
}

func commitmentErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ports.ErrUnauthorized):
		return http.StatusForbidden, "commitment_unauthorized"
	case errors.Is(err, ports.ErrCommitmentReusedVault):
		return http.StatusForbidden, "commitment_reused"
	case errors.Is(err, ports.ErrAuthorizationUnavailable):
		return http.StatusForbidden, "authorization_unavailable"
	default:
		return http.StatusBadRequest, "invalid_commitment"
	}
}

type ackRequest struct {
	PushToken string `json:"pushToken" binding:"required"`
	VaultID   string `json:"vaultId" binding:"required"`
}

// ack implements POST /[{networkId}/]watchtower/ack.
func (h *handlers) ack(networkID domain.NetworkID) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := h.networks[networkID]
		if !ok {
			writeError(c, http.StatusBadRequest, "unknown_network", "network is not enabled on this watchtower")
			return
		}

		var req ackRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}

		regs, err := svc.Store.NotificationsByPushToken(c.Request.Context(), req.PushToken)
		if err != nil {
			logrus.WithError(err).Error("ack: lookup registrations")
			writeError(c, http.StatusInternalServerError, "internal_error", "failed to acknowledge")
			return
		}
		found := false
		for _, r := range regs {
			if r.VaultID == req.VaultID {
				found = true
				break
			}
		}
		if !found {
			writeError(c, http.StatusNotFound, "not_found", "no such registration")
			return
		}

		if err := svc.Store.SetAcknowledged(c.Request.Context(), req.PushToken, req.VaultID); err != nil {
			logrus.WithError(err).Error("ack: set acknowledged")
			writeError(c, http.StatusInternalServerError, "internal_error", "failed to acknowledge")
			return
		}
		c.Status(http.StatusOK)
	}
}

type notificationsRequest struct {
	PushToken string `json:"pushToken" binding:"required"`
}

type notificationView struct {
	VaultID      string `json:"vaultId"`
	WalletID     string `json:"walletId"`
	WalletName   string `json:"walletName"`
	VaultNumber  int64  `json:"vaultNumber"`
	WatchtowerID string `json:"watchtowerId"`
	AttemptCount int64  `json:"attemptCount"`
}

// notifications implements POST /[{networkId}/]watchtower/notifications:
// unacknowledged, already-attempted registrations whose trigger is
// reversible or irreversible.
func (h *handlers) notifications(networkID domain.NetworkID) gin.HandlerFunc {
	return func(c *gin.Context) {
		svc, ok := h.networks[networkID]
		if !ok {
			writeError(c, http.StatusBadRequest, "unknown_network", "network is not enabled on this watchtower")
			return
		}

		var req notificationsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid_body", err.Error())
			return
		}

		regs, err := svc.Store.NotificationsByPushToken(c.Request.Context(), req.PushToken)
		if err != nil {
			logrus.WithError(err).Error("notifications: lookup registrations")
			writeError(c, http.StatusInternalServerError, "internal_error", "failed to list notifications")
			return
		}

		visible, err := svc.Store.TriggersByStatus(c.Request.Context(), domain.StatusReversible, domain.StatusIrreversible)
		if err != nil {
			logrus.WithError(err).Error("notifications: list triggers")
			writeError(c, http.StatusInternalServerError, "internal_error", "failed to list notifications")
			return
		}
		vaultsVisible := make(map[string]bool, len(visible))
		for _, t := range visible {
			vaultsVisible[t.VaultID] = true
		}

		out := make([]notificationView, 0, len(regs))
		for _, r := range regs {
			if r.Acknowledged || r.AttemptCount == 0 {
				continue
			}
			if !vaultsVisible[r.VaultID] {
				continue
			}
			out = append(out, notificationView{
				VaultID:      r.VaultID,
				WalletID:     r.WalletID,
				WalletName:   r.WalletName,
				VaultNumber:  r.VaultNumber,
				WatchtowerID: r.WatchtowerID,
				AttemptCount: r.AttemptCount,
			})
		}

		c.JSON(http.StatusOK, gin.H{"notifications": out})
	}
}
