package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/tabdeal-exchange/wallet-ledger/internal/cache"
	"github.com/tabdeal-exchange/wallet-ledger/internal/identity"
	"github.com/tabdeal-exchange/wallet-ledger/internal/intake"
	"github.com/tabdeal-exchange/wallet-ledger/internal/ledger"
	"github.com/tabdeal-exchange/wallet-ledger/internal/lock"
	"github.com/tabdeal-exchange/wallet-ledger/internal/transfer"
)

type testServer struct {
	srv   *Server
	store *ledger.Store
	ident *identity.Registry
	cache *cache.Cache
	addr  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "wallet-api-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := ledger.New(&ledger.Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("ledger.New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run() error = %v", err)
	}
	t.Cleanup(mr.Close)

	c := cache.New(&cache.Config{Addr: mr.Addr()})
	t.Cleanup(func() { c.Close() })

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	lockMgr := lock.NewManager(redisClient, lock.Config{
		AppLockTimeout: 500 * time.Millisecond,
		LeaseTTL:       2 * time.Second,
		RetryAttempts:  10,
		RetryDelay:     10 * time.Millisecond,
	})

	reg := identity.New(store, c)
	eng := transfer.New(store, c, lockMgr, reg, transfer.Config{
		CASRetryAttempts:  3,
		CASRetryBaseDelay: 10 * time.Millisecond,
		WorkerPoolSize:    10,
	})
	t.Cleanup(eng.Stop)

	in := intake.New(store, reg, eng)
	srv := NewServer(in, reg)
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return &testServer{srv: srv, store: store, ident: reg, cache: c, addr: srv.listener.Addr().String()}
}

func (ts *testServer) post(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	resp, err := http.Post(fmt.Sprintf("http://%s%s", ts.addr, path), "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("POST %s error = %v", path, err)
	}
	return resp
}

func (ts *testServer) seedAccount(t *testing.T, phone string, role ledger.Role, balance decimal.Decimal) *ledger.Account {
	t.Helper()
	acct, err := ts.ident.EnsureAccount(phone, role)
	if err != nil {
		t.Fatalf("EnsureAccount(%s) error = %v", phone, err)
	}
	if _, err := ts.ident.EnsureWallet(context.Background(), acct); err != nil {
		t.Fatalf("EnsureWallet(%s) error = %v", phone, err)
	}
	if !balance.IsZero() {
		tx, err := ts.store.BeginTx()
		if err != nil {
			t.Fatalf("BeginTx() error = %v", err)
		}
		if err := ts.store.UpdateWalletBalance(tx, acct.ID, balance); err != nil {
			t.Fatalf("UpdateWalletBalance() error = %v", err)
		}
		tx.Commit()
		// EnsureWallet already seeded the cache at 0; overwrite so both
		// layers agree on the seeded balance.
		if err := ts.cache.HardSet(context.Background(), acct.ID, balance); err != nil {
			t.Fatalf("HardSet() error = %v", err)
		}
	}
	return acct
}

func TestHandleCreditRequestCreatesWaiting(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAccount(t, "09120000001", ledger.RoleSeller, decimal.Zero)

	resp := ts.post(t, "/credit_request", creditRequestBody{
		SellerPhoneNumber: "09120000001",
		Amount:            decimal.NewFromInt(5000),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var body codeResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body.Code == "" {
		t.Error("expected non-empty code")
	}
}

func TestHandleCreditRequestInvalidPhoneNumber(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, "/credit_request", creditRequestBody{
		SellerPhoneNumber: "123",
		Amount:            decimal.NewFromInt(5000),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleCreditRequestBelowMinimum(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, "/credit_request", creditRequestBody{
		SellerPhoneNumber: "09120000002",
		Amount:            decimal.NewFromInt(10),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandleCreditRequestUnknownSellerNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.post(t, "/credit_request", creditRequestBody{
		SellerPhoneNumber: "09120000099",
		Amount:            decimal.NewFromInt(5000),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHandleChargeSaleEndToEnd(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAccount(t, "09120000003", ledger.RoleSeller, decimal.NewFromInt(5000))

	resp := ts.post(t, "/charge_sale", chargeSaleBody{
		SellerPhoneNumber:   "09120000003",
		ReceiverPhoneNumber: "09120000004",
		Amount:              decimal.NewFromInt(1500),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
}

func TestHandleChargeSaleInsufficientBalance(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAccount(t, "09120000005", ledger.RoleSeller, decimal.NewFromInt(100))

	resp := ts.post(t, "/charge_sale", chargeSaleBody{
		SellerPhoneNumber:   "09120000005",
		ReceiverPhoneNumber: "09120000006",
		Amount:              decimal.NewFromInt(1500),
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

// TestHandleProcessCreditRequestStatusMapping exercises the known wire
// quirk: status 1 is a no-op WAITING echo, 2 approves, 3 rejects.
func TestHandleProcessCreditRequestStatusMapping(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.seedAccount(t, "09120000007", ledger.RoleAdmin, decimal.NewFromInt(100000))
	seller := ts.seedAccount(t, "09120000008", ledger.RoleSeller, decimal.Zero)

	cr, err := ts.store.CreateCreditRequest(seller.ID, decimal.NewFromInt(2000))
	if err != nil {
		t.Fatalf("CreateCreditRequest() error = %v", err)
	}

	// status==1 is a no-op echo: the request should remain WAITING.
	resp := ts.post(t, "/admin/process_credit_request", processCreditRequestBody{
		Status:      1,
		CreditID:    cr.ID,
		PhoneNumber: admin.PhoneNumber,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status==1: http status = %d, want 202", resp.StatusCode)
	}
	got, err := ts.store.GetCreditRequest(cr.ID)
	if err != nil {
		t.Fatalf("GetCreditRequest() error = %v", err)
	}
	if got.Status != ledger.CreditRequestWaiting {
		t.Fatalf("status==1 changed request state to %s, want still WAITING", got.Status)
	}

	// status==2 approves.
	resp = ts.post(t, "/admin/process_credit_request", processCreditRequestBody{
		Status:      2,
		CreditID:    cr.ID,
		PhoneNumber: admin.PhoneNumber,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status==2: http status = %d, want 202", resp.StatusCode)
	}
	got, err = ts.store.GetCreditRequest(cr.ID)
	if err != nil {
		t.Fatalf("GetCreditRequest() error = %v", err)
	}
	if got.Status != ledger.CreditRequestAccepted {
		t.Fatalf("status==2 left request at %s, want ACCEPTED", got.Status)
	}
}

func TestHandleProcessCreditRequestRejectMapping(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.seedAccount(t, "09120000009", ledger.RoleAdmin, decimal.NewFromInt(100000))
	seller := ts.seedAccount(t, "09120000010", ledger.RoleSeller, decimal.Zero)

	cr, err := ts.store.CreateCreditRequest(seller.ID, decimal.NewFromInt(2000))
	if err != nil {
		t.Fatalf("CreateCreditRequest() error = %v", err)
	}

	resp := ts.post(t, "/admin/process_credit_request", processCreditRequestBody{
		Status:      3,
		CreditID:    cr.ID,
		PhoneNumber: admin.PhoneNumber,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status==3: http status = %d, want 202", resp.StatusCode)
	}

	got, err := ts.store.GetCreditRequest(cr.ID)
	if err != nil {
		t.Fatalf("GetCreditRequest() error = %v", err)
	}
	if got.Status != ledger.CreditRequestRejected {
		t.Fatalf("status==3 left request at %s, want REJECTED", got.Status)
	}
}

func TestHandleProcessCreditRequestNonAdminDenied(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAccount(t, "09120000011", ledger.RoleUser, decimal.Zero)
	seller := ts.seedAccount(t, "09120000012", ledger.RoleSeller, decimal.Zero)

	cr, err := ts.store.CreateCreditRequest(seller.ID, decimal.NewFromInt(2000))
	if err != nil {
		t.Fatalf("CreateCreditRequest() error = %v", err)
	}

	resp := ts.post(t, "/admin/process_credit_request", processCreditRequestBody{
		Status:      2,
		CreditID:    cr.ID,
		PhoneNumber: "09120000011",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func TestHandleProcessCreditRequestInvalidStatus(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.seedAccount(t, "09120000013", ledger.RoleAdmin, decimal.NewFromInt(100000))

	resp := ts.post(t, "/admin/process_credit_request", processCreditRequestBody{
		Status:      9,
		CreditID:    1,
		PhoneNumber: admin.PhoneNumber,
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}
