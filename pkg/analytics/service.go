package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/ArionMiles/foodspend/pkg/api"
	"github.com/ArionMiles/foodspend/pkg/store"
)

// Service answers aggregate questions from a store.
type Service struct {
	store store.Store
	loc   *time.Location
}

// NewService returns a Service bucketing dates in loc.
func NewService(s store.Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: s, loc: loc}
}

// Location returns the zone used for calendar bucketing.
func (s *Service) Location() *time.Location { return s.loc }

// Orders returns every stored order, newest first.
func (s *Service) Orders(ctx context.Context) ([]api.Order, error) {
	orders, err := s.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading orders: %w", err)
	}
	return orders, nil
}

// Summary totals all orders.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	orders, err := s.Orders(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(orders, s.loc), nil
}

// Years returns per-year buckets.
func (s *Service) Years(ctx context.Context) ([]Bucket, error) {
	orders, err := s.Orders(ctx)
	if err != nil {
		return nil, err
	}
	return ByYear(orders, s.loc), nil
}

// Months returns per-month buckets for one year.
func (s *Service) Months(ctx context.Context, year int) ([]Bucket, error) {
	orders, err := store.OrdersByYear(ctx, s.store, year, s.loc)
	if err != nil {
		return nil, fmt.Errorf("loading orders for %d: %w", year, err)
	}
	return ByMonth(orders, year, s.loc), nil
}

// Restaurants ranks restaurants.
func (s *Service) Restaurants(ctx context.Context, limit int, rank Rank) ([]RestaurantStat, error) {
	orders, err := s.Orders(ctx)
	if err != nil {
		return nil, err
	}
	return ByRestaurant(orders, limit, rank, s.loc), nil
}

// Weekdays compares weekday and weekend spend.
func (s *Service) Weekdays(ctx context.Context) (DaySplit, error) {
	orders, err := s.Orders(ctx)
	if err != nil {
		return DaySplit{}, err
	}
	return WeekdaySplit(orders, s.loc), nil
}

// RestaurantOrders returns the orders of one restaurant, oldest first.
func (s *Service) RestaurantOrders(ctx context.Context, name string) ([]api.Order, error) {
	orders, err := s.store.ByRestaurant(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("loading orders from %s: %w", name, err)
	}
	return orders, nil
}

// MonthOrders returns the orders of one calendar month, oldest first.
func (s *Service) MonthOrders(ctx context.Context, year int, month time.Month) ([]api.Order, error) {
	orders, err := store.OrdersByMonth(ctx, s.store, year, month, s.loc)
	if err != nil {
		return nil, fmt.Errorf("loading orders for %d-%02d: %w", year, int(month), err)
	}
	return orders, nil
}
