// Package storage persists a certificate batch to files and databases.
package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/IshaanNene/CertGoat/internal/certificate"
	"github.com/IshaanNene/CertGoat/internal/config"
	"github.com/IshaanNene/CertGoat/internal/types"
)

// Storage is the interface for all storage backends.
type Storage interface {
	// Store persists a batch document.
	Store(out *certificate.Output) error

	// Close flushes pending writes and releases resources.
	Close() error

	// Name returns the storage backend identifier.
	Name() string
}

// New builds the backends listed in cfg.Storage.Types. More than one backend
// is wrapped in a MultiStorage.
func New(cfg *config.Config, logger *slog.Logger) (Storage, error) {
	sc := cfg.Storage
	base := filepath.Join(sc.OutputPath, sc.Filename)

	var backends []Storage
	for _, typ := range sc.Types {
		var (
			s   Storage
			err error
		)
		switch strings.ToLower(typ) {
		case "json":
			s, err = NewJSONStorage(base+".json", logger)
		case "jsonl":
			s, err = NewJSONLStorage(base+".jsonl", logger)
		case "csv":
			s, err = NewCSVStorage(base+".csv", logger)
		case "xlsx":
			s, err = NewXLSXStorage(base+".xlsx", logger)
		case "sqlite":
			s, err = NewSQLiteStorage(sc.SQLitePath, logger)
		case "mongodb":
			s, err = NewMongoStorage(sc.MongoURI, sc.MongoDatabase, sc.MongoCollection, logger)
		default:
			err = fmt.Errorf("unsupported storage type: %s", typ)
		}
		if err != nil {
			for _, b := range backends {
				_ = b.Close()
			}
			return nil, &types.StorageError{Backend: typ, Err: err}
		}
		backends = append(backends, s)
	}

	switch len(backends) {
	case 0:
		return nil, fmt.Errorf("no storage backends configured")
	case 1:
		return backends[0], nil
	default:
		return NewMultiStorage(backends, logger), nil
	}
}

// Columns is the fixed column order of the tabular backends (CSV, XLSX).
var Columns = []string{
	"isin", "name", "issuer", "market", "currency", "description", "type",
	"underlying_name", "underlying_category", "underlyings", "worst_of",
	"barrier_down", "barrier_level", "barrier_type", "barrier_reached",
	"coupon", "annual_coupon_yield", "bid_price", "ask_price", "last_price", "price",
	"strike", "trigger", "nominal", "issue_date", "maturity_date",
	"state", "error", "source_url", "detail_url", "scraped_at",
}

// flatRow returns rec as cells in Columns order. Absent values are nil.
func flatRow(rec *certificate.Record) []any {
	var names []string
	var worst any
	for _, u := range rec.RealUnderlyings() {
		names = append(names, u.Name)
		if u.WorstOf {
			worst = u.Name
		}
	}
	var basket any
	if len(names) > 0 {
		basket = strings.Join(names, "; ")
	}

	return []any{
		rec.ISIN, str(rec.Name), str(rec.Issuer), str(rec.Market), str(rec.Currency),
		str(rec.Description), rec.Type,
		str(rec.UnderlyingName), string(rec.UnderlyingCategory), basket, worst,
		num(rec.BarrierDown), num(rec.BarrierLevel), str(rec.BarrierType), flag(rec.BarrierReached),
		num(rec.Coupon), num(rec.AnnualCouponYield), num(rec.BidPrice), num(rec.AskPrice),
		num(rec.LastPrice), num(rec.Price),
		num(rec.Strike), num(rec.Trigger), num(rec.Nominal), str(rec.IssueDate), str(rec.MaturityDate),
		string(rec.State), str(certificate.NullString(rec.Error)), rec.Source, str(rec.DetailURL),
		timestamp(rec.ScrapedAt),
	}
}

func str(s certificate.NullString) any {
	if s == "" {
		return nil
	}
	return string(s)
}

func num(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func flag(v *bool) any {
	if v == nil {
		return nil
	}
	return *v
}

func timestamp(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// cellString formats a flatRow cell for text output.
func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
