package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Buckets are truncated in the given IANA time zone; Bucket is the local
// wall-clock start of the bucket.
const getEarningsBuckets = `-- name: GetEarningsBuckets :many
SELECT date_trunc($3::text, s.sale_date AT TIME ZONE $4::text) AS bucket,
       COUNT(*) AS sales_count,
       COALESCE(SUM(s.total_price), 0)::numeric(14,2) AS total_price,
       COALESCE(SUM(s.professor_earnings), 0)::numeric(14,2) AS professor_earnings,
       COALESCE(SUM(s.admin_earnings), 0)::numeric(14,2) AS admin_earnings
FROM sales s
WHERE s.sale_date >= $1 AND s.sale_date < $2
GROUP BY bucket
ORDER BY bucket
`

type GetEarningsBucketsParams struct {
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Unit     string    `json:"unit"`
	TimeZone string    `json:"time_zone"`
}

type GetEarningsBucketsRow struct {
	Bucket            time.Time      `json:"bucket"`
	SalesCount        int64          `json:"sales_count"`
	TotalPrice        pgtype.Numeric `json:"total_price"`
	ProfessorEarnings pgtype.Numeric `json:"professor_earnings"`
	AdminEarnings     pgtype.Numeric `json:"admin_earnings"`
}

func (q *Queries) GetEarningsBuckets(ctx context.Context, arg GetEarningsBucketsParams) ([]GetEarningsBucketsRow, error) {
	rows, err := q.db.Query(ctx, getEarningsBuckets, arg.From, arg.To, arg.Unit, arg.TimeZone)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []GetEarningsBucketsRow
	for rows.Next() {
		var i GetEarningsBucketsRow
		if err := rows.Scan(
			&i.Bucket,
			&i.SalesCount,
			&i.TotalPrice,
			&i.ProfessorEarnings,
			&i.AdminEarnings,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
