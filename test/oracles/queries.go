package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_closed_iff_one_accepted",
			SQL: `SELECT r.id FROM service_requests r
                  WHERE r.status = 'closed'
                    AND (SELECT COUNT(*) FROM offers o
                         WHERE o.request_id = r.id AND o.status = 'accepted') <> 1`,
		},
		{
			Name: "O2_no_accepted_under_open",
			SQL: `SELECT o.id FROM offers o
                  JOIN service_requests r ON r.id = o.request_id
                  WHERE r.status = 'open' AND o.status <> 'pending'`,
		},
		{
			Name: "O3_single_winner_per_request",
			SQL: `SELECT request_id, COUNT(*) FROM offers
                  WHERE status = 'accepted'
                  GROUP BY request_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O4_cascade_complete",
			SQL: `SELECT o.id FROM offers o
                  JOIN service_requests r ON r.id = o.request_id
                  WHERE r.status = 'closed' AND o.status = 'pending'`,
		},
		{
			Name: "O5_no_orphan_offers",
			SQL: `SELECT o.id FROM offers o
                  LEFT JOIN service_requests r ON r.id = o.request_id
                  WHERE r.id IS NULL`,
		},
		{
			Name: "O6_positive_prices",
			SQL:  `SELECT id FROM offers WHERE price <= 0`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
