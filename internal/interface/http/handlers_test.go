package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ark-network/watchtower/internal/core/domain"
	"github.com/ark-network/watchtower/internal/core/ports"
	httpinterface "github.com/ark-network/watchtower/internal/interface/http"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	registered    []ports.VaultRegistration
	commitmentErr error
	regs          []domain.NotificationRegistration
	triggers      []domain.TriggerTx
	acked         []string
}

func (s *fakeStore) RegisterVault(ctx context.Context, reg ports.VaultRegistration) error {
	if s.commitmentErr != nil {
		return s.commitmentErr
	}
	s.registered = append(s.registered, reg)
	return nil
}
func (s *fakeStore) LastCheckedHeight(ctx context.Context) (int64, bool, error) { panic("not used") }
func (s *fakeStore) SetLastCheckedHeight(ctx context.Context, height int64) error {
	panic("not used")
}
func (s *fakeStore) TriggersByStatus(ctx context.Context, statuses ...domain.TriggerStatus) ([]domain.TriggerTx, error) {
	want := make(map[domain.TriggerStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	var out []domain.TriggerTx
	for _, t := range s.triggers {
		if want[t.Status] {
			out = append(out, t)
		}
	}
	return out, nil
}
func (s *fakeStore) TriggerByTxid(ctx context.Context, txid string) (*domain.TriggerTx, error) {
	for _, t := range s.triggers {
		if t.Txid == txid {
			t := t
			return &t, nil
		}
	}
	return nil, nil
}
func (s *fakeStore) AnyTriggerNotUnchecked(ctx context.Context) (bool, error) { panic("not used") }
func (s *fakeStore) SetTriggerStatus(ctx context.Context, txid string, status domain.TriggerStatus) error {
	panic("not used")
}
func (s *fakeStore) CommitmentByTxid(ctx context.Context, txid string) (*domain.Commitment, error) {
	panic("not used")
}
func (s *fakeStore) DueNotifications(ctx context.Context, now time.Time) ([]domain.NotificationRegistration, error) {
	panic("not used")
}
func (s *fakeStore) RecordAttempt(ctx context.Context, pushToken, vaultID string, firstAttemptAt, lastAttemptAt time.Time, attemptCount int64) error {
	panic("not used")
}
func (s *fakeStore) SetAcknowledged(ctx context.Context, pushToken, vaultID string) error {
	s.acked = append(s.acked, pushToken+"|"+vaultID)
	return nil
}
func (s *fakeStore) ResetDeliveryBookkeeping(ctx context.Context, vaultID string) error {
	panic("not used")
}
func (s *fakeStore) NotificationsByPushToken(ctx context.Context, pushToken string) ([]domain.NotificationRegistration, error) {
	var out []domain.NotificationRegistration
	for _, r := range s.regs {
		if r.PushToken == pushToken {
			out = append(out, r)
		}
	}
	return out, nil
}
func (s *fakeStore) Close() error { return nil }

type fakeVerifier struct {
	txid string
	err  error
}

func (v *fakeVerifier) VerifyAuthorization(ctx context.Context, networkID, dbFolder, vaultID, commitmentHex string) (string, error) {
	if v.err != nil {
		return "", v.err
	}
	return v.txid, nil
}
func (v *fakeVerifier) VerifySpend(ctx context.Context, triggerTxid, commitmentTxid string) bool {
	panic("not used")
}

func newTestServer(store *fakeStore, verifier *fakeVerifier, withCommitments bool) http.Handler {
	networks := map[domain.NetworkID]httpinterface.NetworkServices{
		domain.Bitcoin: {
			Store:           store,
			Verifier:        verifier,
			DbFolder:        "",
			WithCommitments: withCommitments,
		},
	}
	srv := httpinterface.New(networks)
	return srv.Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGenerate204(t *testing.T) {
	h := newTestServer(&fakeStore{}, &fakeVerifier{}, false)
	req := httptest.NewRequest(http.MethodGet, "/generate_204", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestRegisterSucceedsWithoutCommitment(t *testing.T) {
	store := &fakeStore{}
	h := newTestServer(store, &fakeVerifier{}, false)

	body := map[string]any{
		"pushToken":    "tok1",
		"walletId":     "w1",
		"walletName":   "My Wallet",
		"watchtowerId": "wt1",
		"vaults": []map[string]any{
			{"vaultId": "v1", "vaultNumber": 0, "triggerTxIds": []string{"tx1"}},
		},
	}
	rec := doJSON(t, h, http.MethodPost, "/watchtower/register", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, store.registered, 1)
	require.Equal(t, "v1", store.registered[0].VaultID)
}

func TestRegisterRejectsMissingRequiredFields(t *testing.T) {
	h := newTestServer(&fakeStore{}, &fakeVerifier{}, false)
	rec := doJSON(t, h, http.MethodPost, "/watchtower/register", map[string]any{"pushToken": "tok1"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterRejectsNegativeVaultNumber(t *testing.T) {
	h := newTestServer(&fakeStore{}, &fakeVerifier{}, false)
	body := map[string]any{
		"pushToken":    "tok1",
		"walletId":     "w1",
		"walletName":   "My Wallet",
		"watchtowerId": "wt1",
		"vaults": []map[string]any{
			{"vaultId": "v1", "vaultNumber": -1, "triggerTxIds": []string{"tx1"}},
		},
	}
	rec := doJSON(t, h, http.MethodPost, "/watchtower/register", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterRequiresCommitmentWhenEnabled(t *testing.T) {
	h := newTestServer(&fakeStore{}, &fakeVerifier{}, true)
	body := map[string]any{
		"pushToken":    "tok1",
		"walletId":     "w1",
		"walletName":   "My Wallet",
		"watchtowerId": "wt1",
		"vaults": []map[string]any{
			{"vaultId": "v1", "vaultNumber": 0, "triggerTxIds": []string{"tx1"}},
		},
	}
	rec := doJSON(t, h, http.MethodPost, "/watchtower/register", body)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterRejectsCommitmentWhenDisabled(t *testing.T) {
	h := newTestServer(&fakeStore{}, &fakeVerifier{}, false)
	body := map[string]any{
		"pushToken":    "tok1",
		"walletId":     "w1",
		"walletName":   "My Wallet",
		"watchtowerId": "wt1",
		"vaults": []map[string]any{
			{"vaultId": "v1", "vaultNumber": 0, "triggerTxIds": []string{"tx1"}, "commitment": "deadbeef"},
		},
	}
	rec := doJSON(t, h, http.MethodPost, "/watchtower/register", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterSucceedsWithVerifiedCommitment(t *testing.T) {
	store := &fakeStore{}
	verifier := &fakeVerifier{txid: "commit1"}
	h := newTestServer(store, verifier, true)

	body := map[string]any{
		"pushToken":    "tok1",
		"walletId":     "w1",
		"walletName":   "My Wallet",
		"watchtowerId": "wt1",
		"vaults": []map[string]any{
			{"vaultId": "v1", "vaultNumber": 0, "triggerTxIds": []string{"tx1"}, "commitment": "deadbeef"},
		},
	}
	rec := doJSON(t, h, http.MethodPost, "/watchtower/register", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "commit1", store.registered[0].CommitmentTxid)
}

func TestRegisterRejectsUnauthorizedCommitment(t *testing.T) {
	verifier := &fakeVerifier{err: ports.ErrUnauthorized}
	h := newTestServer(&fakeStore{}, verifier, true)

	body := map[string]any{
		"pushToken":    "tok1",
		"walletId":     "w1",
		"walletName":   "My Wallet",
		"watchtowerId": "wt1",
		"vaults": []map[string]any{
			{"vaultId": "v1", "vaultNumber": 0, "triggerTxIds": []string{"tx1"}, "commitment": "deadbeef"},
		},
	}
	rec := doJSON(t, h, http.MethodPost, "/watchtower/register", body)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterRejectsCommitmentReuse(t *testing.T) {
	store := &fakeStore{commitmentErr: ports.ErrCommitmentReused}
	h := newTestServer(store, &fakeVerifier{}, false)

	body := map[string]any{
		"pushToken":    "tok1",
		"walletId":     "w1",
		"walletName":   "My Wallet",
		"watchtowerId": "wt1",
		"vaults": []map[string]any{
			{"vaultId": "v1", "vaultNumber": 0, "triggerTxIds": []string{"tx1"}},
		},
	}
	rec := doJSON(t, h, http.MethodPost, "/watchtower/register", body)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRegisterUnknownNetworkReturns400(t *testing.T) {
	h := newTestServer(&fakeStore{}, &fakeVerifier{}, false)
	rec := doJSON(t, h, http.MethodPost, "/testnet/watchtower/register", map[string]any{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAckSucceedsForExistingRegistration(t *testing.T) {
	store := &fakeStore{regs: []domain.NotificationRegistration{
		{PushToken: "tok1", VaultID: "v1"},
	}}
	h := newTestServer(store, &fakeVerifier{}, false)

	rec := doJSON(t, h, http.MethodPost, "/watchtower/ack", map[string]any{"pushToken": "tok1", "vaultId": "v1"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, store.acked, "tok1|v1")
}

func TestAckReturnsNotFoundForUnknownRegistration(t *testing.T) {
	store := &fakeStore{}
	h := newTestServer(store, &fakeVerifier{}, false)

	rec := doJSON(t, h, http.MethodPost, "/watchtower/ack", map[string]any{"pushToken": "tok1", "vaultId": "v1"})
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotificationsFiltersAcknowledgedAndUnattemptedAndInvisible(t *testing.T) {
	store := &fakeStore{
		regs: []domain.NotificationRegistration{
			{PushToken: "tok1", VaultID: "visible-due", WalletName: "A", AttemptCount: 1},
			{PushToken: "tok1", VaultID: "acked", WalletName: "B", AttemptCount: 1, Acknowledged: true},
			{PushToken: "tok1", VaultID: "never-attempted", WalletName: "C", AttemptCount: 0},
			{PushToken: "tok1", VaultID: "not-visible", WalletName: "D", AttemptCount: 1},
		},
		triggers: []domain.TriggerTx{
			{Txid: "tx1", VaultID: "visible-due", Status: domain.StatusReversible},
			{Txid: "tx2", VaultID: "acked", Status: domain.StatusReversible},
			{Txid: "tx3", VaultID: "never-attempted", Status: domain.StatusReversible},
			{Txid: "tx4", VaultID: "not-visible", Status: domain.StatusUnseen},
		},
	}
	h := newTestServer(store, &fakeVerifier{}, false)

	rec := doJSON(t, h, http.MethodPost, "/watchtower/notifications", map[string]any{"pushToken": "tok1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var parsed struct {
		Notifications []struct {
			VaultID string `json:"vaultId"`
		} `json:"notifications"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	require.Len(t, parsed.Notifications, 1)
	require.Equal(t, "visible-due", parsed.Notifications[0].VaultID)
}
