package ledger

import (
	"context"
	"sort"

	"github.com/example/stock-ledger/internal/domain/stock"
	"github.com/example/stock-ledger/internal/identity"
)

// DashboardStats summarizes one vendor's inventory position. Money values
// are in cents.
type DashboardStats struct {
	OwnerID          string `json:"owner_id"`
	TotalRecords     int    `json:"total_records"`
	ActiveRecords    int    `json:"active_records"`
	TotalStock       int    `json:"total_stock"`
	TotalReserved    int    `json:"total_reserved"`
	TotalAvailable   int    `json:"total_available"`
	TotalSold        int    `json:"total_sold"`
	LowStockCount    int    `json:"low_stock_count"`
	OutOfStockCount  int    `json:"out_of_stock_count"`
	InventoryValue   int64  `json:"inventory_value"`
	PotentialRevenue int64  `json:"potential_revenue"`
}

// LowStock lists active records at or below their reorder level. Admins see
// every vendor's, vendors see their own, anyone else is refused.
func (s *Service) LowStock(ctx context.Context, p identity.Principal) ([]*stock.Record, error) {
	return s.reorderReport(ctx, p, func(rec *stock.Record) bool {
		return rec.Status() == stock.StatusLowStock
	})
}

// OutOfStock lists active records with nothing left to sell, reserved or not.
func (s *Service) OutOfStock(ctx context.Context, p identity.Principal) ([]*stock.Record, error) {
	return s.reorderReport(ctx, p, func(rec *stock.Record) bool {
		st := rec.Status()
		return st == stock.StatusOutOfStock || st == stock.StatusReserved
	})
}

func (s *Service) reorderReport(ctx context.Context, p identity.Principal, keep func(*stock.Record) bool) ([]*stock.Record, error) {
	var (
		recs []*stock.Record
		err  error
	)
	switch {
	case p.IsAdmin():
		recs, err = s.store.List(ctx)
	case p.IsApprovedVendor():
		recs, err = s.store.ListByOwner(ctx, p.ID)
	default:
		return nil, stock.ErrPermissionDenied
	}
	if err != nil {
		return nil, err
	}

	matched := make([]*stock.Record, 0, len(recs))
	for _, rec := range recs {
		if keep(rec) {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// ByStatus lists records currently in the given derived status, filtered by
// the caller's visibility.
func (s *Service) ByStatus(ctx context.Context, p identity.Principal, status stock.Status) ([]*stock.Record, error) {
	recs, err := s.List(ctx, p)
	if err != nil {
		return nil, err
	}
	matched := make([]*stock.Record, 0, len(recs))
	for _, rec := range recs {
		if rec.Status() == status {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}

// TopSelling returns up to limit active records ordered by units sold, most
// first. Admins rank every vendor's records, vendors their own, other
// callers the public catalog. Discontinued records never rank.
func (s *Service) TopSelling(ctx context.Context, p identity.Principal, limit int) ([]*stock.Record, error) {
	if limit <= 0 {
		return nil, stock.ErrInvalidQuantity
	}

	var (
		recs []*stock.Record
		err  error
	)
	switch {
	case p.IsAdmin():
		recs, err = s.store.List(ctx)
	case p.IsApprovedVendor():
		recs, err = s.store.ListByOwner(ctx, p.ID)
	default:
		recs, err = s.store.ListActive(ctx)
	}
	if err != nil {
		return nil, err
	}

	ranked := make([]*stock.Record, 0, len(recs))
	for _, rec := range recs {
		if rec.IsActive {
			ranked = append(ranked, rec)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].SoldQuantity > ranked[j].SoldQuantity
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// VendorValuation returns the cost-based value of a vendor's active stock,
// in cents. Discontinued records contribute nothing. Only the vendor
// themselves or an admin may ask.
func (s *Service) VendorValuation(ctx context.Context, p identity.Principal, ownerID string) (int64, error) {
	if !p.IsAdmin() && !p.Owns(ownerID) {
		return 0, stock.ErrPermissionDenied
	}
	recs, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, rec := range recs {
		if !rec.IsActive {
			continue
		}
		total += rec.InventoryValue()
	}
	return total, nil
}

// VendorDashboard aggregates a vendor's full inventory position.
func (s *Service) VendorDashboard(ctx context.Context, p identity.Principal, ownerID string) (*DashboardStats, error) {
	if !p.IsAdmin() && !p.Owns(ownerID) {
		return nil, stock.ErrPermissionDenied
	}
	recs, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	stats := &DashboardStats{OwnerID: ownerID}
	for _, rec := range recs {
		stats.TotalRecords++
		if rec.IsActive {
			stats.ActiveRecords++
		}
		stats.TotalStock += rec.StockQuantity
		stats.TotalReserved += rec.ReservedQuantity
		stats.TotalAvailable += rec.AvailableStock()
		stats.TotalSold += rec.SoldQuantity
		stats.InventoryValue += rec.InventoryValue()
		stats.PotentialRevenue += rec.PotentialRevenue()

		switch rec.Status() {
		case stock.StatusLowStock:
			stats.LowStockCount++
		case stock.StatusOutOfStock, stock.StatusReserved:
			stats.OutOfStockCount++
		}
	}
	return stats, nil
}
