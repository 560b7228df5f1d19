package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/candicepay/bot-service/internal/domain"
	"go.uber.org/zap"
)

const bankCountry = "nigeria"

// MatchBank returns the first bank whose lower-cased name contains query or is
// contained by it. The rule is a heuristic: overlapping names resolve to whichever
// bank is listed first, and abbreviations such as "GTBank" do not match
// "Guaranty Trust Bank".
func MatchBank(banks []domain.Bank, query string) (domain.Bank, bool) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return domain.Bank{}, false
	}
	for _, bank := range banks {
		name := strings.ToLower(strings.TrimSpace(bank.Name))
		if name == "" {
			continue
		}
		if strings.Contains(name, q) || strings.Contains(q, name) {
			return bank, true
		}
	}
	return domain.Bank{}, false
}

// Banks returns the cached bank list, falling back to the gateway when the cache is empty.
// Both paths return banks in gateway order so MatchBank picks the same bank either way.
func (s *Service) Banks(ctx context.Context) ([]domain.Bank, error) {
	cached, err := s.repo.ListBanks(ctx)
	if err != nil {
		s.logger.Warn("bank cache read failed; using gateway", zap.Error(err))
	} else if len(cached) > 0 {
		return cached, nil
	}
	return s.fetchBanks(ctx)
}

// RefreshBanks pulls the gateway bank list into the cache and returns how many banks were stored.
func (s *Service) RefreshBanks(ctx context.Context) (int, error) {
	banks, err := s.fetchBanks(ctx)
	if err != nil {
		return 0, err
	}
	return len(banks), nil
}

// PopularBanks returns the short list shown to users, in display order.
func (s *Service) PopularBanks(ctx context.Context) ([]domain.Bank, error) {
	banks, err := s.Banks(ctx)
	if err != nil {
		return nil, err
	}
	bySlug := make(map[string]domain.Bank, len(banks))
	for _, bank := range banks {
		bySlug[bank.Slug] = bank
	}
	popular := make([]domain.Bank, 0, len(domain.PopularBankSlugs))
	for _, slug := range domain.PopularBankSlugs {
		if bank, ok := bySlug[slug]; ok {
			popular = append(popular, bank)
		}
	}
	return popular, nil
}

func (s *Service) fetchBanks(ctx context.Context) ([]domain.Bank, error) {
	resp, err := s.gateway.ListBanks(ctx, bankCountry)
	if err != nil {
		return nil, fmt.Errorf("list banks: %w", err)
	}
	if err := resp.Err("list banks"); err != nil {
		return nil, err
	}

	banks := make([]domain.Bank, 0, len(resp.Data))
	for _, b := range resp.Data {
		if strings.TrimSpace(b.Code) == "" {
			continue
		}
		currency := b.Currency
		if currency == "" {
			currency = "NGN"
		}
		banks = append(banks, domain.Bank{
			Name:             b.Name,
			Code:             b.Code,
			Slug:             b.Slug,
			Country:          bankCountry,
			Currency:         currency,
			Type:             b.Type,
			SupportsTransfer: b.Active,
			Position:         len(banks),
		})
	}

	if err := s.repo.UpsertBanks(ctx, banks); err != nil {
		s.logger.Warn("bank cache write failed", zap.Int("banks", len(banks)), zap.Error(err))
	}
	return banks, nil
}
