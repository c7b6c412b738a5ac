package paygate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/azadk/ocrhub/internal/model"
	"github.com/azadk/ocrhub/internal/store"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeTokenSource struct {
	tokens []string
	calls  int
}

func (f *fakeTokenSource) FetchToken(ctx context.Context) (string, error) {
	token := f.tokens[f.calls%len(f.tokens)]
	f.calls++
	return token, nil
}

func TestTokenCacheReuse(t *testing.T) {
	src := &fakeTokenSource{tokens: []string{"t1", "t2"}}
	cache := NewTokenCache(src, time.Hour)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		token, err := cache.Token(ctx)
		if err != nil {
			t.Fatalf("Token() error = %v", err)
		}
		if token != "t1" {
			t.Fatalf("Token() = %q, want cached t1", token)
		}
	}
	if src.calls != 1 {
		t.Errorf("source fetched %d times, want 1", src.calls)
	}

	cache.Invalidate()
	token, _ := cache.Token(ctx)
	if token != "t2" {
		t.Errorf("Token() after Invalidate = %q, want t2", token)
	}
}

func TestTokenCacheExpiry(t *testing.T) {
	src := &fakeTokenSource{tokens: []string{"t1", "t2"}}
	cache := NewTokenCache(src, time.Minute)
	current := time.Now()
	cache.now = func() time.Time { return current }

	ctx := context.Background()
	cache.Token(ctx)
	current = current.Add(2 * time.Minute)
	token, _ := cache.Token(ctx)
	if token != "t2" {
		t.Errorf("Token() after expiry = %q, want t2", token)
	}
}

// providerServer simulates the payment API: signin plus a transaction
// history that rejects stale tokens with 401.
func providerServer(t *testing.T, validToken string) (*httptest.Server, *int) {
	t.Helper()
	signins := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/signin/step1", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("mobile_no") == "" {
			t.Errorf("signin form missing mobile_no")
		}
		signins++
		json.NewEncoder(w).Encode(map[string]any{"code": 200, "api_token": validToken})
	})
	mux.HandleFunc("/transaction-history", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+validToken {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"code": 401})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"code": 200,
			"data": []map[string]any{
				{"id": 11, "name": "Shad", "mobile_no": "07501234567", "flow": "in",
					"tx_type": "P2P Transfer", "amount": 5000, "status": "Success",
					"updated_at": "2024-03-01T10:00:00Z"},
				{"id": 12, "name": "Out", "mobile_no": "0750000000", "flow": "out",
					"tx_type": "P2P Transfer", "amount": 9000, "status": "Success",
					"updated_at": "2024-03-01T10:00:00Z"},
				{"id": 13, "name": "Topup", "mobile_no": "0750000001", "flow": "in",
					"tx_type": "Mobile Recharge", "amount": 2000, "status": "Success",
					"updated_at": "2024-03-01T10:00:00Z"},
			},
		})
	})
	return httptest.NewServer(mux), &signins
}

func TestClientFiltersIncomingTransfers(t *testing.T) {
	srv, _ := providerServer(t, "good-token")
	defer srv.Close()

	client := NewClient(ClientConfig{
		BaseURL:  srv.URL,
		MobileNo: "07509999999",
		Password: "secret",
		Logger:   quietLogger(),
	})

	transfers, err := client.IncomingTransfers(context.Background())
	if err != nil {
		t.Fatalf("IncomingTransfers() error = %v", err)
	}
	if len(transfers) != 1 {
		t.Fatalf("transfers = %d, want only the incoming P2P one", len(transfers))
	}
	got := transfers[0]
	if got.ID != 11 || got.Amount != 5000 || got.SenderMobile != "07501234567" {
		t.Errorf("transfer = %+v", got)
	}
}

func TestClientRefreshesTokenOn401(t *testing.T) {
	srv, signins := providerServer(t, "fresh-token")
	defer srv.Close()

	client := NewClient(ClientConfig{BaseURL: srv.URL, Logger: quietLogger()})
	// Poison the cache with a stale token so the first history call 401s.
	client.tokens.token = "stale-token"
	client.tokens.expires = time.Now().Add(time.Hour)

	transfers, err := client.IncomingTransfers(context.Background())
	if err != nil {
		t.Fatalf("IncomingTransfers() error = %v", err)
	}
	if len(transfers) != 1 {
		t.Errorf("transfers = %d after refresh, want 1", len(transfers))
	}
	if *signins != 1 {
		t.Errorf("signins = %d, want exactly one refresh", *signins)
	}
}

func TestPagesFor(t *testing.T) {
	tests := []struct {
		amount float64
		want   int
	}{
		{5000, 50},    // exactly the smallest plan
		{3000, 30},    // partial smallest plan: 100 IQD per page
		{8000, 100},   // second plan
		{6000, 75},    // between plans, second plan's 80 IQD per page
		{30000, 500},  // third plan
		{50000, 1000}, // largest plan
		{100000, 2000}, // above largest keeps 50 IQD per page
		{0, 0},
	}
	for _, tt := range tests {
		if got := PagesFor(tt.amount, DefaultRates); got != tt.want {
			t.Errorf("PagesFor(%v) = %d, want %d", tt.amount, got, tt.want)
		}
	}
}

type phoneBook map[string]int

func (p phoneBook) UserIDByPhone(ctx context.Context, phone string) (int, bool, error) {
	id, ok := p[phone]
	return id, ok, nil
}

func TestReconcilerApply(t *testing.T) {
	mem := store.NewMemoryStore()
	mem.AddUser(&model.User{ID: 7})

	rec := NewReconciler(ReconcilerConfig{
		Store:    mem,
		Resolver: phoneBook{"+9647501234567": 7},
		Logger:   quietLogger(),
	})

	transfers := []Transfer{
		{ID: 11, SenderMobile: "07501234567", Amount: 5000},
		{ID: 12, SenderMobile: "07509999999", Amount: 8000}, // unknown sender
	}

	applied, err := rec.Apply(context.Background(), transfers)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if applied != 1 {
		t.Fatalf("applied = %d, want 1", applied)
	}

	txs := mem.Transactions(7)
	if len(txs) != 1 {
		t.Fatalf("ledger entries = %d, want 1", len(txs))
	}
	entry := txs[0]
	if entry.PageCount != 50 || !entry.Confirmed ||
		entry.TransactionID != "11" ||
		entry.PaymentMediumID != model.PaymentMediumFastPay ||
		entry.TypeID != model.TransactionTypeRecharge {
		t.Errorf("entry = %+v", entry)
	}
	if entry.Amount == nil || *entry.Amount != 5000 {
		t.Errorf("Amount = %v, want 5000", entry.Amount)
	}

	// Re-applying the same transfers must not double-credit.
	applied, err = rec.Apply(context.Background(), transfers)
	if err != nil {
		t.Fatalf("second Apply() error = %v", err)
	}
	if applied != 0 {
		t.Errorf("second applied = %d, want 0", applied)
	}
	if txs := mem.Transactions(7); len(txs) != 1 {
		t.Errorf("ledger entries after reapply = %d, want 1", len(txs))
	}
}

func TestReconcilerResolverError(t *testing.T) {
	mem := store.NewMemoryStore()
	rec := NewReconciler(ReconcilerConfig{
		Store:    mem,
		Resolver: failingResolver{},
		Logger:   quietLogger(),
	})
	_, err := rec.Apply(context.Background(), []Transfer{{ID: 1, SenderMobile: "0750"}})
	if err == nil {
		t.Fatal("expected resolver error to propagate")
	}
}

type failingResolver struct{}

func (failingResolver) UserIDByPhone(ctx context.Context, phone string) (int, bool, error) {
	return 0, false, fmt.Errorf("directory offline")
}
