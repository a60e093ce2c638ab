// Package dashboard computes the back-office landing summary from the cached
// resource lists.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/erp/backoffice/internal/domain/backoffice"
	"github.com/erp/backoffice/internal/domain/querycache"
	domain "github.com/erp/backoffice/internal/domain/transfer"
	"github.com/erp/backoffice/internal/infrastructure/logger"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BalanceField is the cashbox field holding its current balance
const BalanceField = "balance"

// cashboxPageSize bounds the cashboxes summed into the total balance
const cashboxPageSize = "100"

// Lister lists one resource collection
type Lister interface {
	List(ctx context.Context, name string, params url.Values) (querycache.Entry, error)
}

// Summary is the dashboard payload
type Summary struct {
	Branches         int             `json:"branches"`
	Workshops        int             `json:"workshops"`
	Cashboxes        int             `json:"cashboxes"`
	PendingTransfers int             `json:"pending_transfers"`
	CashboxBalance   decimal.Decimal `json:"cashbox_balance"`
}

// Service builds the dashboard summary
type Service struct {
	lister Lister
}

// NewService creates a Service
func NewService(lister Lister) *Service {
	return &Service{lister: lister}
}

// Summary loads the summarised collections concurrently. Every list goes
// through the cache, so a warm dashboard costs no backend call.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	var (
		out       Summary
		cashboxes querycache.Paginated
	)

	g, gctx := errgroup.WithContext(ctx)
	count := func(name string, params url.Values, dst *int) {
		g.Go(func() error {
			page, err := s.page(gctx, name, params)
			if err != nil {
				return err
			}
			*dst = total(page)
			return nil
		})
	}
	count(backoffice.Branches, nil, &out.Branches)
	count(backoffice.Workshops, nil, &out.Workshops)
	count(backoffice.ClothesTransfers, url.Values{"status": {string(domain.StatusPending)}}, &out.PendingTransfers)
	g.Go(func() error {
		page, err := s.page(gctx, backoffice.Cashboxes, url.Values{"per_page": {cashboxPageSize}})
		if err != nil {
			return err
		}
		cashboxes = page
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.Cashboxes = total(cashboxes)
	out.CashboxBalance = SumBalances(ctx, cashboxes.Data)
	return &out, nil
}

func (s *Service) page(ctx context.Context, name string, params url.Values) (querycache.Paginated, error) {
	entry, err := s.lister.List(ctx, name, params)
	if err != nil {
		return querycache.Paginated{}, fmt.Errorf("loading %s: %w", name, err)
	}
	page, ok := entry.(querycache.Paginated)
	if !ok {
		return querycache.Paginated{}, fmt.Errorf("loading %s: response is not a list", name)
	}
	return page, nil
}

func total(p querycache.Paginated) int {
	if p.Total > 0 {
		return p.Total
	}
	return len(p.Data)
}

// SumBalances adds up the balance of every cashbox. Balances the backend
// sends as numbers or numeric strings are both accepted; anything else is
// skipped.
func SumBalances(ctx context.Context, cashboxes []querycache.Record) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range cashboxes {
		d, err := toDecimal(c[BalanceField])
		if err != nil {
			id, _ := c.ID()
			logger.L(ctx).Debug("Skipping cashbox balance", zap.Int64("cashbox_id", id), zap.Error(err))
			continue
		}
		sum = sum.Add(d)
	}
	return sum
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case json.Number:
		return decimal.NewFromString(n.String())
	case string:
		return decimal.NewFromString(n)
	case float64:
		return decimal.NewFromFloat(n), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case nil:
		return decimal.Zero, fmt.Errorf("no balance")
	default:
		return decimal.Zero, fmt.Errorf("unsupported balance type %T", v)
	}
}
