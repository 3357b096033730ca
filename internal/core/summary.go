package core

// MonthlyTotal is one pivoted row of the profit & loss trend: the income and
// expense sums for a calendar month, void transactions excluded.
type MonthlyTotal struct {
	Month   string // YYYY-MM
	Income  Money
	Expense Money
}

// CounterpartyIncome is an income sum grouped by counterparty.
type CounterpartyIncome struct {
	Counterparty string
	Total        Money
}

// CategoryExpense is an expense sum grouped by category name.
type CategoryExpense struct {
	Category string
	Total    Money
}

// DashboardSummary bundles the headline figures the dashboard renders.
type DashboardSummary struct {
	USDBalance Money
	INRBalance Money
	// CombinedUSD is the USD balance plus the INR balance converted at the
	// latest stored rate.
	CombinedUSD    Money
	USDToINR       float64
	MonthlyTotals  []MonthlyTotal
	IncomeSources  []CounterpartyIncome
	ExpenseByGroup []CategoryExpense
}
