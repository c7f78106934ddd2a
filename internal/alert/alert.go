// Package alert classifies stock by expiry proximity and quantity. It has no
// side effects: the same medicines and reference date give the same result.
package alert

import (
	"fmt"
	"time"

	"medshelf/backend/internal/domain"
	"medshelf/backend/internal/store"
)

type Bucket string

const (
	BucketExpired      Bucket = "expired"
	BucketExpiringSoon Bucket = "expiring_soon"
	BucketOK           Bucket = "ok"
	BucketDateError    Bucket = "date_error"
)

const (
	DefaultWindowDays        = 90
	DefaultLowStockThreshold = 10

	FilterNone     = ""
	FilterExpiry   = "expiry"
	FilterLowStock = "low_stock"
)

type Options struct {
	WindowDays        int
	LowStockThreshold int
}

func DefaultOptions() Options {
	return Options{WindowDays: DefaultWindowDays, LowStockThreshold: DefaultLowStockThreshold}
}

func (o Options) normalized() Options {
	if o.WindowDays <= 0 {
		o.WindowDays = DefaultWindowDays
	}
	if o.LowStockThreshold < 0 {
		o.LowStockThreshold = DefaultLowStockThreshold
	}
	return o
}

type Annotation struct {
	Medicine        domain.Medicine `json:"medicine"`
	Bucket          Bucket          `json:"bucket"`
	DaysUntilExpiry *int            `json:"days_until_expiry"`
	LowStock        bool            `json:"low_stock"`
}

type Summary struct {
	AsOf              string       `json:"as_of"`
	Items             []Annotation `json:"items"`
	ExpiringSoonCount int          `json:"expiring_soon_count"`
	LowStockCount     int          `json:"low_stock_count"`
	DateErrorCount    int          `json:"date_error_count"`
}

func Classify(med domain.Medicine, asOf time.Time, opts Options) Annotation {
	opts = opts.normalized()
	ann := Annotation{
		Medicine: med,
		LowStock: med.Quantity <= opts.LowStockThreshold,
	}

	expiry, err := med.Expiry()
	if err != nil {
		ann.Bucket = BucketDateError
		return ann
	}

	days := DaysBetween(asOf, expiry)
	ann.DaysUntilExpiry = &days
	switch {
	case days <= 0:
		ann.Bucket = BucketExpired
	case days <= opts.WindowDays:
		ann.Bucket = BucketExpiringSoon
	default:
		ann.Bucket = BucketOK
	}
	return ann
}

// DaysBetween counts whole calendar days from the date of asOf to expiry.
func DaysBetween(asOf time.Time, expiry time.Time) int {
	from := domain.DateOf(asOf)
	to := domain.DateOf(expiry)
	return int(to.Sub(from).Hours() / 24)
}

func Summarize(meds []domain.Medicine, asOf time.Time, opts Options) Summary {
	summary := Summary{
		AsOf:  domain.DateOf(asOf).Format(domain.ExpiryLayout),
		Items: make([]Annotation, 0, len(meds)),
	}
	for _, med := range meds {
		ann := Classify(med, asOf, opts)
		switch ann.Bucket {
		case BucketExpired, BucketExpiringSoon:
			summary.ExpiringSoonCount++
		case BucketDateError:
			summary.DateErrorCount++
		}
		if ann.LowStock {
			summary.LowStockCount++
		}
		summary.Items = append(summary.Items, ann)
	}
	return summary
}

// Filter narrows a summary to the drill-through view named by tag. Counts are
// left as computed over the full stock list.
func Filter(summary Summary, tag string) (Summary, error) {
	keep := func(Annotation) bool { return true }
	switch tag {
	case FilterNone:
	case FilterExpiry:
		keep = func(a Annotation) bool {
			return a.Bucket == BucketExpired || a.Bucket == BucketExpiringSoon
		}
	case FilterLowStock:
		keep = func(a Annotation) bool { return a.LowStock }
	default:
		return Summary{}, store.Invalid("filter", fmt.Sprintf("unknown filter %q", tag))
	}

	filtered := summary
	filtered.Items = make([]Annotation, 0, len(summary.Items))
	for _, item := range summary.Items {
		if keep(item) {
			filtered.Items = append(filtered.Items, item)
		}
	}
	return filtered, nil
}
