// Package reports computes read-only financial views from posted
// journal lines and current stock balances. Nothing here is cached;
// every request recomputes from storage.
package reports

import (
	"time"

	"github.com/stockbooks/stockbooks/internal/accounting"
)

// AccountActivity is the per-account aggregate the builders consume:
// summed debit and credit of posted journal lines.
type AccountActivity struct {
	AccountID int64
	Code      string
	Name      string
	Type      accounting.AccountType
	Debit     float64
	Credit    float64
}

// TrialBalanceLine is one account row in the trial balance.
type TrialBalanceLine struct {
	AccountID int64                  `json:"account_id"`
	Code      string                 `json:"code"`
	Name      string                 `json:"name"`
	Type      accounting.AccountType `json:"type"`
	Debit     float64                `json:"debit"`
	Credit    float64                `json:"credit"`
}

// TrialBalance nets posted activity per account. TotalDebit and
// TotalCredit must match; Balanced records that self-check.
type TrialBalance struct {
	AsOf        time.Time          `json:"as_of"`
	Lines       []TrialBalanceLine `json:"lines"`
	TotalDebit  float64            `json:"total_debit"`
	TotalCredit float64            `json:"total_credit"`
	Balanced    bool               `json:"balanced"`
}

// ValuationRow is the stored balance joined with its product and
// warehouse names.
type ValuationRow struct {
	ProductID     int64
	ProductName   string
	WarehouseID   int64
	WarehouseName string
	Quantity      int64
	AvgCost       float64
}

// ValuationLine is one product/warehouse row with its extended value.
type ValuationLine struct {
	ProductID     int64   `json:"product_id"`
	ProductName   string  `json:"product_name"`
	WarehouseID   int64   `json:"warehouse_id"`
	WarehouseName string  `json:"warehouse_name"`
	Quantity      int64   `json:"quantity"`
	AvgCost       float64 `json:"avg_cost"`
	TotalValue    float64 `json:"total_value"`
}

// InventoryValuation sums quantity times average cost.
type InventoryValuation struct {
	Lines         []ValuationLine `json:"lines"`
	TotalQuantity int64           `json:"total_quantity"`
	TotalValue    float64         `json:"total_value"`
}

// ProfitLossLine is one revenue or expense account with its net
// activity.
type ProfitLossLine struct {
	AccountID int64   `json:"account_id"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Amount    float64 `json:"amount"`
}

// ProfitLoss nets revenue against expenses for a period.
type ProfitLoss struct {
	From         *time.Time       `json:"from,omitempty"`
	To           *time.Time       `json:"to,omitempty"`
	Revenue      []ProfitLossLine `json:"revenue"`
	Expenses     []ProfitLossLine `json:"expenses"`
	TotalRevenue float64          `json:"total_revenue"`
	TotalExpense float64          `json:"total_expense"`
	NetProfit    float64          `json:"net_profit"`
}

// BuildTrialBalance nets each account's posted activity onto its
// natural side: assets and expenses report net debits, the rest net
// credits. A negative net flips to the opposite column, so the report
// balances whenever the underlying entries do. An empty ledger yields
// zero totals.
func BuildTrialBalance(asOf time.Time, activity []AccountActivity) TrialBalance {
	tb := TrialBalance{AsOf: asOf, Lines: []TrialBalanceLine{}}
	for _, row := range activity {
		line := TrialBalanceLine{AccountID: row.AccountID, Code: row.Code, Name: row.Name, Type: row.Type}
		net := row.Debit - row.Credit
		switch row.Type {
		case accounting.TypeAsset, accounting.TypeExpense:
			// natural debit balance
		default:
			net = -net
		}
		if net == 0 {
			continue
		}
		debitSide := row.Type == accounting.TypeAsset || row.Type == accounting.TypeExpense
		if net < 0 {
			debitSide = !debitSide
			net = -net
		}
		if debitSide {
			line.Debit = net
		} else {
			line.Credit = net
		}
		tb.Lines = append(tb.Lines, line)
		tb.TotalDebit += line.Debit
		tb.TotalCredit += line.Credit
	}
	tb.Balanced = roundCents(tb.TotalDebit) == roundCents(tb.TotalCredit)
	return tb
}

// BuildValuation extends each balance row by quantity times average
// cost.
func BuildValuation(rows []ValuationRow) InventoryValuation {
	valuation := InventoryValuation{Lines: []ValuationLine{}}
	for _, row := range rows {
		value := float64(row.Quantity) * row.AvgCost
		valuation.Lines = append(valuation.Lines, ValuationLine{
			ProductID:     row.ProductID,
			ProductName:   row.ProductName,
			WarehouseID:   row.WarehouseID,
			WarehouseName: row.WarehouseName,
			Quantity:      row.Quantity,
			AvgCost:       row.AvgCost,
			TotalValue:    value,
		})
		valuation.TotalQuantity += row.Quantity
		valuation.TotalValue += value
	}
	return valuation
}

// BuildProfitLoss nets revenue (credit minus debit) against expense
// (debit minus credit) activity.
func BuildProfitLoss(from, to *time.Time, activity []AccountActivity) ProfitLoss {
	pl := ProfitLoss{From: from, To: to, Revenue: []ProfitLossLine{}, Expenses: []ProfitLossLine{}}
	for _, row := range activity {
		line := ProfitLossLine{AccountID: row.AccountID, Code: row.Code, Name: row.Name}
		switch row.Type {
		case accounting.TypeRevenue:
			line.Amount = row.Credit - row.Debit
			pl.Revenue = append(pl.Revenue, line)
			pl.TotalRevenue += line.Amount
		case accounting.TypeExpense:
			line.Amount = row.Debit - row.Credit
			pl.Expenses = append(pl.Expenses, line)
			pl.TotalExpense += line.Amount
		}
	}
	pl.NetProfit = pl.TotalRevenue - pl.TotalExpense
	return pl
}

func roundCents(v float64) int64 {
	if v < 0 {
		return int64(v*100 - 0.5)
	}
	return int64(v*100 + 0.5)
}
