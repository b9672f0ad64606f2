package store

import (
	"fmt"
	"io/fs"
	"path"
)

// QueryInfo describes one ad hoc report.
type QueryInfo struct {
	Name        string
	Description string
}

// Queries lists the reports every backend ships, in display order.
var Queries = []QueryInfo{
	{Name: "monthly_spend", Description: "total spend and order count per calendar month"},
	{Name: "orders_per_month", Description: "order count and average order value per month"},
	{Name: "restaurant_concentration", Description: "share of total spend held by the top restaurants"},
	{Name: "spend_per_restaurant", Description: "spend, order count and first/last order per restaurant"},
	{Name: "weekday_weekend_split", Description: "spend on weekdays versus weekends"},
}

// LoadQueries reads <name>.sql from dir for every entry in Queries.
func LoadQueries(fsys fs.FS, dir string) (map[string]string, error) {
	out := make(map[string]string, len(Queries))
	for _, q := range Queries {
		body, err := fs.ReadFile(fsys, path.Join(dir, q.Name+".sql"))
		if err != nil {
			return nil, fmt.Errorf("reading query %s: %w", q.Name, err)
		}
		out[q.Name] = string(body)
	}
	return out, nil
}

// LookupQuery returns the SQL for name from a LoadQueries map.
func LookupQuery(queries map[string]string, name string) (string, error) {
	q, ok := queries[name]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownQuery, name)
	}
	return q, nil
}
