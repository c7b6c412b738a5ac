package paygate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/azadk/ocrhub/internal/model"
	"github.com/azadk/ocrhub/internal/store"
)

// Rate maps a transfer amount (IQD) to the page count it buys.
// Transfers above the largest amount still use the largest plan's
// per-page price.
type Rate struct {
	Amount float64
	Pages  float64
}

// DefaultRates are the published recharge plans.
var DefaultRates = []Rate{
	{Amount: 5000, Pages: 50},
	{Amount: 8000, Pages: 100},
	{Amount: 30000, Pages: 500},
	{Amount: 50000, Pages: 1000},
}

// PagesFor converts a transfer amount into pages using the cheapest
// plan the amount fits in.
func PagesFor(amount float64, rates []Rate) int {
	if len(rates) == 0 || amount <= 0 {
		return 0
	}
	rate := rates[len(rates)-1]
	for _, r := range rates {
		if amount <= r.Amount {
			rate = r
			break
		}
	}
	return int(math.Ceil(amount / (rate.Amount / rate.Pages)))
}

// UserResolver maps a sender's mobile number to a user id.
type UserResolver interface {
	UserIDByPhone(ctx context.Context, phone string) (int, bool, error)
}

// Reconciler converts provider transfers into confirmed recharge
// ledger entries. The store's duplicate guard makes Apply idempotent:
// a transfer already recorded is skipped.
type Reconciler struct {
	store    store.Store
	resolver UserResolver
	rates    []Rate
	logger   *slog.Logger
}

// ReconcilerConfig configures a Reconciler.
type ReconcilerConfig struct {
	Store    store.Store
	Resolver UserResolver
	Rates    []Rate // defaults to DefaultRates
	Logger   *slog.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(cfg ReconcilerConfig) *Reconciler {
	rates := cfg.Rates
	if len(rates) == 0 {
		rates = DefaultRates
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		store:    cfg.Store,
		resolver: cfg.Resolver,
		rates:    rates,
		logger:   logger.With("component", "paygate"),
	}
}

// Apply records each transfer as a confirmed recharge. Returns the
// number of new ledger entries. Transfers from unknown senders and
// already-recorded transfers are skipped, not errors.
func (r *Reconciler) Apply(ctx context.Context, transfers []Transfer) (int, error) {
	applied := 0
	for _, t := range transfers {
		logger := r.logger.With("transfer_id", t.ID, "sender", t.SenderMobile)

		userID, ok, err := r.resolver.UserIDByPhone(ctx, model.NormalizePhone(t.SenderMobile))
		if err != nil {
			return applied, fmt.Errorf("resolve sender for transfer %d: %w", t.ID, err)
		}
		if !ok {
			logger.Warn("no user for transfer sender")
			continue
		}

		amount := t.Amount
		entry := &model.UserTransaction{
			UserID:          userID,
			PageCount:       PagesFor(t.Amount, r.rates),
			Amount:          &amount,
			PaymentMediumID: model.PaymentMediumFastPay,
			TypeID:          model.TransactionTypeRecharge,
			Confirmed:       true,
			TransactionID:   strconv.Itoa(t.ID),
			AdminNote:       "paygate reconciler",
			CreatedAt:       time.Now().UTC(),
		}

		if err := r.insert(ctx, entry); err != nil {
			if errors.Is(err, store.ErrDuplicateTransaction) {
				logger.Debug("transfer already recorded")
				continue
			}
			return applied, fmt.Errorf("record transfer %d: %w", t.ID, err)
		}
		logger.Info("recharge recorded", "user_id", userID, "pages", entry.PageCount)
		applied++
	}
	return applied, nil
}

func (r *Reconciler) insert(ctx context.Context, entry *model.UserTransaction) error {
	tx, err := r.store.Begin(ctx)
	if err != nil {
		return err
	}
	if err := tx.InsertUserTransaction(ctx, entry); err != nil {
		tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}
