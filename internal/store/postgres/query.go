package postgres

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/alanyoungcy/marketfund/internal/domain"
)

// listQuery appends the time window, ordering and pagination of opts to a
// base query that already has a WHERE clause. Placeholders continue after
// the len(args) already bound.
func listQuery(base string, args []any, timeCol, order string, opts domain.ListOpts) (string, []any) {
	var b strings.Builder
	b.WriteString(base)
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.Since != nil {
		b.WriteString(" AND " + timeCol + " >= " + next(*opts.Since))
	}
	if opts.Until != nil {
		b.WriteString(" AND " + timeCol + " <= " + next(*opts.Until))
	}
	b.WriteString(" ORDER BY " + timeCol + " " + order)
	if opts.Limit > 0 {
		b.WriteString(" LIMIT " + next(opts.Limit))
	}
	if opts.Offset > 0 {
		b.WriteString(" OFFSET " + next(opts.Offset))
	}
	return b.String(), args
}

// numericText renders an amount for a ::numeric parameter.
func numericText(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// parseNumeric reads an amount selected with ::text.
func parseNumeric(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: invalid numeric %q", s)
	}
	return v, nil
}
