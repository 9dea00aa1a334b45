package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"pci-pair-trader/internal/config"
	"pci-pair-trader/internal/market"

	_ "github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const retryAttempts = 5

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Source reads the instrument universe and daily closes from ClickHouse.
// Queries are rate limited and retried with exponential backoff.
type Source struct {
	db            *sql.DB
	log           *zap.Logger
	limiter       *rate.Limiter
	pricesTable   string
	universeTable string
	backoff       time.Duration
}

func New(cfg config.ClickHouseConfig, log *zap.Logger) (*Source, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, errors.New("clickhouse host is required")
	}
	for _, table := range []string{cfg.PricesTable, cfg.UniverseTable} {
		if !identPattern.MatchString(table) {
			return nil, fmt.Errorf("invalid clickhouse table name %q", table)
		}
	}
	db, err := sql.Open("clickhouse", buildDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Source{
		db:            db,
		log:           log,
		limiter:       newLimiter(cfg.QueriesPerSecond),
		pricesTable:   cfg.PricesTable,
		universeTable: cfg.UniverseTable,
		backoff:       200 * time.Millisecond,
	}, nil
}

func (s *Source) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Universe lists instruments with their sector, optionally restricted to groups.
func (s *Source) Universe(ctx context.Context, groups []string) ([]market.Instrument, error) {
	query, args := universeQuery(s.universeTable, groups)
	var out []market.Instrument
	err := s.retry(ctx, "universe", func() error {
		out = out[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query universe: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			var inst market.Instrument
			if err := rows.Scan(&inst.Symbol, &inst.Group); err != nil {
				return fmt.Errorf("scan instrument: %w", err)
			}
			out = append(out, inst)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Closes returns the daily closes of symbol with from <= date < to. Zero
// bounds are open.
func (s *Source) Closes(ctx context.Context, inst market.Instrument, from, to time.Time) (market.PriceSeries, error) {
	query, args := closesQuery(s.pricesTable, inst.Symbol, from, to)
	series := market.PriceSeries{Symbol: inst.Symbol, Group: inst.Group}
	err := s.retry(ctx, "closes", func() error {
		series.Points = series.Points[:0]
		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("query closes %s: %w", inst.Symbol, err)
		}
		defer rows.Close()
		for rows.Next() {
			p := market.PricePoint{Symbol: inst.Symbol}
			if err := rows.Scan(&p.Date, &p.Close); err != nil {
				return fmt.Errorf("scan close %s: %w", inst.Symbol, err)
			}
			p.Date = p.Date.UTC()
			series.Points = append(series.Points, p)
		}
		return rows.Err()
	})
	if err != nil {
		return market.PriceSeries{}, err
	}
	return series, nil
}

func (s *Source) retry(ctx context.Context, op string, fn func() error) error {
	backoff := s.backoff
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if err := s.wait(ctx); err != nil {
			return err
		}
		err := fn()
		if err == nil {
			return nil
		}
		if attempt == retryAttempts-1 {
			return fmt.Errorf("retry failed: %w", err)
		}
		s.log.Warn("clickhouse read failed, retrying", zap.String("op", op), zap.Int("attempt", attempt+1), zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}
	return nil
}

// newLimiter allows qps queries per second with a burst of one second's worth.
// Zero disables limiting.
func newLimiter(qps float64) *rate.Limiter {
	if qps <= 0 {
		return nil
	}
	burst := int(qps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(qps), burst)
}

func (s *Source) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

func universeQuery(table string, groups []string) (string, []any) {
	query := fmt.Sprintf("SELECT symbol, gics_sector FROM %s", table)
	var args []any
	if len(groups) > 0 {
		marks := make([]string, len(groups))
		for i, g := range groups {
			marks[i] = "?"
			args = append(args, g)
		}
		query += " WHERE gics_sector IN (" + strings.Join(marks, ", ") + ")"
	}
	return query + " ORDER BY gics_sector, symbol", args
}

func closesQuery(table, symbol string, from, to time.Time) (string, []any) {
	query := fmt.Sprintf("SELECT date, close FROM %s WHERE symbol = ?", table)
	args := []any{symbol}
	if !from.IsZero() {
		query += " AND date >= ?"
		args = append(args, from)
	}
	if !to.IsZero() {
		query += " AND date < ?"
		args = append(args, to)
	}
	return query + " ORDER BY date ASC", args
}

func buildDSN(cfg config.ClickHouseConfig) string {
	dsn := fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s", cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database)
	var params []string
	if cfg.DialTimeout > 0 {
		params = append(params, fmt.Sprintf("dial_timeout=%s", cfg.DialTimeout))
	}
	if cfg.ReadTimeout > 0 {
		params = append(params, fmt.Sprintf("read_timeout=%s", cfg.ReadTimeout))
	}
	if cfg.MaxExecutionTime > 0 {
		params = append(params, fmt.Sprintf("max_execution_time=%d", int(cfg.MaxExecutionTime.Seconds())))
	}
	if len(params) == 0 {
		return dsn
	}
	return dsn + "?" + strings.Join(params, "&")
}
