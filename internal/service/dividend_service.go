package service

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/ndewijer/depotsync/internal/model"
	"github.com/ndewijer/depotsync/internal/repository"
)

// DividendService handles dividend-related business logic operations.
type DividendService struct {
	dividendRepo *repository.DividendRepository
}

// NewDividendService creates a new DividendService with the provided repository dependencies.
func NewDividendService(dividendRepo *repository.DividendRepository) *DividendService {
	return &DividendService{dividendRepo: dividendRepo}
}

// GetDividends returns the events matching the filter ordered by payment date.
func (s *DividendService) GetDividends(ctx context.Context, f model.DividendFilter) ([]model.DividendEvent, error) {
	return s.dividendRepo.Query(ctx, f)
}

// GetDividend returns a single event by id.
func (s *DividendService) GetDividend(ctx context.Context, id string) (model.DividendEvent, error) {
	return s.dividendRepo.GetByID(ctx, id)
}

// GetTotals aggregates the matching events per payment year and currency.
// Amounts are summed exactly; the result is ordered by year, then currency.
func (s *DividendService) GetTotals(ctx context.Context, f model.DividendFilter) ([]model.DividendTotal, error) {
	events, err := s.dividendRepo.Query(ctx, f)
	if err != nil {
		return nil, err
	}
	return Totals(events), nil
}

// Totals aggregates events per payment year and currency.
func Totals(events []model.DividendEvent) []model.DividendTotal {
	type bucket struct {
		year     int
		currency string
	}
	byBucket := make(map[bucket]*model.DividendTotal)

	for _, e := range events {
		k := bucket{year: e.PaymentDate.Year(), currency: e.Currency}
		t, ok := byBucket[k]
		if !ok {
			t = &model.DividendTotal{
				Year:     k.year,
				Currency: k.currency,
				Gross:    decimal.Zero,
				Net:      decimal.Zero,
				Tax:      decimal.Zero,
			}
			byBucket[k] = t
		}
		t.Gross = t.Gross.Add(e.GrossAmount)
		t.Net = t.Net.Add(e.NetAmount)
		t.Tax = t.Tax.Add(e.TaxWithheld)
		t.Count++
	}

	totals := make([]model.DividendTotal, 0, len(byBucket))
	for _, t := range byBucket {
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Year != totals[j].Year {
			return totals[i].Year < totals[j].Year
		}
		return totals[i].Currency < totals[j].Currency
	})
	return totals
}
