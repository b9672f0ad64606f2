// Package analytics computes spending aggregates over orders.
//
// Every function is pure: it reads the slice it is given and returns new
// values. Calendar bucketing happens in the supplied location.
package analytics

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ArionMiles/foodspend/pkg/api"
)

var hundred = decimal.NewFromInt(100)

// Summary is the headline view of all orders.
type Summary struct {
	Orders       int             `json:"orders"`
	TotalSpend   decimal.Decimal `json:"total_spend"`
	AverageOrder decimal.Decimal `json:"average_order"`
	DeliveryFees decimal.Decimal `json:"delivery_fees"`
	Discounts    decimal.Decimal `json:"discounts"`
	Restaurants  int             `json:"restaurants"`
	FirstOrder   time.Time       `json:"first_order"`
	LastOrder    time.Time       `json:"last_order"`
	Years        []int           `json:"years"`
}

// Bucket aggregates the orders of one calendar period.
type Bucket struct {
	Label   string          `json:"label"`
	Year    int             `json:"year"`
	Month   int             `json:"month,omitempty"`
	Orders  int             `json:"orders"`
	Spend   decimal.Decimal `json:"spend"`
	Average decimal.Decimal `json:"average"`
}

// RestaurantStat aggregates the orders of one restaurant.
type RestaurantStat struct {
	Name    string          `json:"restaurant_name"`
	Orders  int             `json:"orders"`
	Spend   decimal.Decimal `json:"spend"`
	Average decimal.Decimal `json:"average"`
	// Share is the percentage of total spend.
	Share      decimal.Decimal `json:"share_pct"`
	FirstOrder time.Time       `json:"first_order"`
	LastOrder  time.Time       `json:"last_order"`
}

// DaySplit compares weekday and weekend spending.
type DaySplit struct {
	Weekday Bucket `json:"weekday"`
	Weekend Bucket `json:"weekend"`
	// WeekendShare is the weekend percentage of total spend.
	WeekendShare decimal.Decimal `json:"weekend_share_pct"`
}

// Rank orders restaurants.
type Rank int

const (
	RankBySpend Rank = iota
	RankByCount
)

func (r Rank) String() string {
	if r == RankByCount {
		return "count"
	}
	return "spend"
}

// ParseRank accepts "spend" or "count".
func ParseRank(s string) (Rank, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "spend":
		return RankBySpend, nil
	case "count", "orders":
		return RankByCount, nil
	default:
		return 0, fmt.Errorf("unknown ranking %q (want spend or count)", s)
	}
}

// Summarize returns totals over all orders.
func Summarize(orders []api.Order, loc *time.Location) Summary {
	s := Summary{Orders: len(orders), Years: []int{}}
	if len(orders) == 0 {
		return s
	}

	restaurants := make(map[string]struct{})
	years := make(map[int]struct{})
	for i, o := range orders {
		s.TotalSpend = s.TotalSpend.Add(o.TotalAmount)
		s.DeliveryFees = s.DeliveryFees.Add(o.DeliveryFee)
		s.Discounts = s.Discounts.Add(o.Discount)
		restaurants[o.RestaurantName] = struct{}{}

		d := o.Date.In(loc)
		years[d.Year()] = struct{}{}
		if i == 0 || d.Before(s.FirstOrder) {
			s.FirstOrder = d
		}
		if i == 0 || d.After(s.LastOrder) {
			s.LastOrder = d
		}
	}

	s.AverageOrder = average(s.TotalSpend, s.Orders)
	s.Restaurants = len(restaurants)
	for y := range years {
		s.Years = append(s.Years, y)
	}
	slices.Sort(s.Years)
	return s
}

// ByYear returns one bucket per calendar year with orders, oldest first.
func ByYear(orders []api.Order, loc *time.Location) []Bucket {
	return group(orders, func(o api.Order) (string, int, int, bool) {
		y := o.Date.In(loc).Year()
		return fmt.Sprintf("%04d", y), y, 0, true
	})
}

// ByMonth returns one bucket per month of year that has orders.
func ByMonth(orders []api.Order, year int, loc *time.Location) []Bucket {
	return group(orders, func(o api.Order) (string, int, int, bool) {
		d := o.Date.In(loc)
		if d.Year() != year {
			return "", 0, 0, false
		}
		return d.Format("2006-01"), d.Year(), int(d.Month()), true
	})
}

// ByMonthAll returns one bucket per YYYY-MM with orders, across all years.
func ByMonthAll(orders []api.Order, loc *time.Location) []Bucket {
	return group(orders, func(o api.Order) (string, int, int, bool) {
		d := o.Date.In(loc)
		return d.Format("2006-01"), d.Year(), int(d.Month()), true
	})
}

// group buckets orders by key. Labels sort chronologically because they are
// zero-padded.
func group(orders []api.Order, key func(api.Order) (label string, year, month int, ok bool)) []Bucket {
	idx := make(map[string]int)
	var buckets []Bucket
	for _, o := range orders {
		label, year, month, ok := key(o)
		if !ok {
			continue
		}
		i, seen := idx[label]
		if !seen {
			i = len(buckets)
			idx[label] = i
			buckets = append(buckets, Bucket{Label: label, Year: year, Month: month})
		}
		buckets[i].Orders++
		buckets[i].Spend = buckets[i].Spend.Add(o.TotalAmount)
	}

	for i := range buckets {
		buckets[i].Average = average(buckets[i].Spend, buckets[i].Orders)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Label < buckets[j].Label })
	return buckets
}

// ByRestaurant ranks restaurants. A limit of zero or less returns all.
// Ties fall back to the other measure, then to name.
func ByRestaurant(orders []api.Order, limit int, rank Rank, loc *time.Location) []RestaurantStat {
	idx := make(map[string]int)
	var stats []RestaurantStat
	total := decimal.Zero
	for _, o := range orders {
		d := o.Date.In(loc)
		i, seen := idx[o.RestaurantName]
		if !seen {
			i = len(stats)
			idx[o.RestaurantName] = i
			stats = append(stats, RestaurantStat{Name: o.RestaurantName, FirstOrder: d, LastOrder: d})
		}
		st := &stats[i]
		st.Orders++
		st.Spend = st.Spend.Add(o.TotalAmount)
		if d.Before(st.FirstOrder) {
			st.FirstOrder = d
		}
		if d.After(st.LastOrder) {
			st.LastOrder = d
		}
		total = total.Add(o.TotalAmount)
	}

	for i := range stats {
		stats[i].Average = average(stats[i].Spend, stats[i].Orders)
		stats[i].Share = percent(stats[i].Spend, total)
	}

	sort.SliceStable(stats, func(i, j int) bool {
		a, b := stats[i], stats[j]
		bySpend := a.Spend.Cmp(b.Spend)
		byCount := a.Orders - b.Orders
		if rank == RankByCount {
			if byCount != 0 {
				return byCount > 0
			}
			if bySpend != 0 {
				return bySpend > 0
			}
		} else {
			if bySpend != 0 {
				return bySpend > 0
			}
			if byCount != 0 {
				return byCount > 0
			}
		}
		return a.Name < b.Name
	})

	if limit > 0 && len(stats) > limit {
		stats = stats[:limit]
	}
	return stats
}

// WeekdaySplit separates Saturday and Sunday orders from the rest.
func WeekdaySplit(orders []api.Order, loc *time.Location) DaySplit {
	split := DaySplit{
		Weekday: Bucket{Label: "weekday"},
		Weekend: Bucket{Label: "weekend"},
	}
	for _, o := range orders {
		b := &split.Weekday
		switch o.Date.In(loc).Weekday() {
		case time.Saturday, time.Sunday:
			b = &split.Weekend
		}
		b.Orders++
		b.Spend = b.Spend.Add(o.TotalAmount)
	}

	split.Weekday.Average = average(split.Weekday.Spend, split.Weekday.Orders)
	split.Weekend.Average = average(split.Weekend.Spend, split.Weekend.Orders)
	split.WeekendShare = percent(split.Weekend.Spend, split.Weekday.Spend.Add(split.Weekend.Spend))
	return split
}

func average(sum decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(n))).Round(2)
}

func percent(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).Div(whole).Round(2)
}
