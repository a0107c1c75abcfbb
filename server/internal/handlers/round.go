package handlers

import (
	"github.com/shopspring/decimal"

	"github.com/pikaboard/pikausage/internal/model"
)

// maxPrecision bounds the ?precision query parameter
const maxPrecision = 10

// roundReport returns a copy of report with every cost rounded half away from
// zero to places decimals. Token counts are untouched.
func roundReport(report *model.UsageReport, places int32) *model.UsageReport {
	out := *report
	out.Today = roundBucket(report.Today, places)
	out.ThisWeek = roundBucket(report.ThisWeek, places)
	out.ThisMonth = roundBucket(report.ThisMonth, places)
	out.ByModel = roundModels(report.ByModel, places)

	out.Daily = make([]model.DailyEntry, len(report.Daily))
	for i, d := range report.Daily {
		d.Cost = round(d.Cost, places)
		d.ByModel = roundModels(d.ByModel, places)
		out.Daily[i] = d
	}

	out.Total.Cost = round(report.Total.Cost, places)
	out.Savings = model.Savings{
		Amount:     round(report.Savings.Amount, places),
		Percentage: round(report.Savings.Percentage, places),
		Baseline:   round(report.Savings.Baseline, places),
	}

	return &out
}

func roundBucket(b model.Bucket, places int32) model.Bucket {
	return model.Bucket{
		Cost:    round(b.Cost, places),
		Tokens:  b.Tokens,
		ByModel: roundModels(b.ByModel, places),
	}
}

func roundModels(in map[string]model.ModelTotal, places int32) map[string]model.ModelTotal {
	out := make(map[string]model.ModelTotal, len(in))
	for key, mt := range in {
		mt.Cost = round(mt.Cost, places)
		out[key] = mt
	}
	return out
}

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}
