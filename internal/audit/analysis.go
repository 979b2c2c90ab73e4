package audit

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/galatea-associates/locate-fee-engine/internal/domain"
)

// FallbackFrequency returns the fraction of records (0.0-1.0) in which at
// least one DataSource was a fallback substitution. Grounded on
// original_source/src/backend/services/audit/utils.py's aggregate over
// audit rows; ported as a plain Go reducer over already-fetched records
// rather than a line-by-line translation.
func FallbackFrequency(records []domain.AuditRecord) float64 {
	if len(records) == 0 {
		return 0
	}
	count := 0
	for _, r := range records {
		if r.HasFallback() {
			count++
		}
	}
	return float64(count) / float64(len(records))
}

// SourceCount pairs a DataSource.SourceName with how many times it appeared
// as a fallback across the analyzed record set.
type SourceCount struct {
	SourceName string
	Count      int
}

// TopFallbackSources returns the fallback source names ordered by frequency,
// descending, capped at limit entries.
func TopFallbackSources(records []domain.AuditRecord, limit int) []SourceCount {
	counts := map[string]int{}
	for _, r := range records {
		for _, ds := range r.DataSources {
			if ds.IsFallback {
				counts[ds.SourceName]++
			}
		}
	}

	result := make([]SourceCount, 0, len(counts))
	for name, count := range counts {
		result = append(result, SourceCount{SourceName: name, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].SourceName < result[j].SourceName
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// RateDifference compares the mean borrow_rate_used between records whose
// borrow-rate signal was a fallback substitution and records whose wasn't.
// A positive Difference means fallback calculations used a higher rate on
// average. Ok is false when either bucket is empty (no meaningful
// comparison possible).
type RateDifference struct {
	FallbackMeanRate decimal.Decimal
	NormalMeanRate   decimal.Decimal
	Difference       decimal.Decimal
	Ok               bool
}

// ComputeRateDifference buckets records by whether their borrow-rate
// DataSource was a fallback, then compares mean borrow_rate_used.
func ComputeRateDifference(records []domain.AuditRecord) RateDifference {
	var fallbackSum, normalSum decimal.Decimal
	var fallbackN, normalN int

	for _, r := range records {
		isFallbackRate := false
		for _, ds := range r.DataSources {
			if ds.SourceName == "borrow_rate_provider" && ds.IsFallback {
				isFallbackRate = true
				break
			}
		}
		if isFallbackRate {
			fallbackSum = fallbackSum.Add(r.Result.BorrowRateUsed)
			fallbackN++
		} else {
			normalSum = normalSum.Add(r.Result.BorrowRateUsed)
			normalN++
		}
	}

	if fallbackN == 0 || normalN == 0 {
		return RateDifference{Ok: false}
	}

	fallbackMean := fallbackSum.Div(decimal.NewFromInt(int64(fallbackN)))
	normalMean := normalSum.Div(decimal.NewFromInt(int64(normalN)))

	return RateDifference{
		FallbackMeanRate: fallbackMean,
		NormalMeanRate:   normalMean,
		Difference:       fallbackMean.Sub(normalMean),
		Ok:               true,
	}
}
