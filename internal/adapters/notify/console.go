package notify

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/alejandrodnm/stakebook/internal/domain"
	"github.com/alejandrodnm/stakebook/internal/ports"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

// Console implementa ports.Notifier.
type Console struct {
	out io.Writer
}

var _ ports.Notifier = (*Console)(nil)

// NewConsole crea un Console que escribe a stdout.
func NewConsole() *Console {
	return &Console{out: os.Stdout}
}

// NewConsoleWriter crea un Console sobre un writer arbitrario (tests).
func NewConsoleWriter(w io.Writer) *Console {
	return &Console{out: w}
}

// PrintStrategy imprime la estrategia recién creada.
func (c *Console) PrintStrategy(s domain.Strategy) {
	fmt.Fprintf(c.out, "Strategy %s created\n", s.ID)
	fmt.Fprintf(c.out, "  name:             %s\n", s.Name)
	fmt.Fprintf(c.out, "  initial bankroll: %s\n", money(s.InitialBankroll, s.Currency))
	fmt.Fprintf(c.out, "  fractional kelly: %.2f\n", s.FractionalKelly)
}

// PrintStrategies imprime una fila por estrategia con sus contadores principales.
func (c *Console) PrintStrategies(strategies []domain.Strategy, stats map[string]domain.StrategyStats) {
	if len(strategies) == 0 {
		fmt.Fprintln(c.out, "No strategies found")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Name", "Bankroll", "Initial", "Kelly", "Bets", "W/L/P", "ROI")
	for _, s := range strategies {
		st := stats[s.ID]
		table.Append(
			s.ID,
			compactName(s.Name, 30),
			money(s.CurrentBankroll, s.Currency),
			money(s.InitialBankroll, s.Currency),
			fmt.Sprintf("%.2f", s.FractionalKelly),
			fmt.Sprintf("%d", st.TotalBets),
			fmt.Sprintf("%d/%d/%d", st.WonBets, st.LostBets, st.PendingBets),
			pct(st.ROI),
		)
	}
	table.Render()
}

// PrintSelections imprime las selecciones de una estrategia, más recientes primero.
func (c *Console) PrintSelections(selections []domain.Selection) {
	if len(selections) == 0 {
		fmt.Fprintln(c.out, "No selections found")
		return
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("ID", "Fixture", "Market", "Label", "Odd", "EV", "Kelly", "Stake", "Status", "P&L")
	for _, s := range selections {
		pl := "-"
		if s.ProfitLoss.Valid {
			pl = s.ProfitLoss.Decimal.StringFixed(2)
		}
		table.Append(
			s.ID,
			s.FixtureID,
			s.MarketID,
			compactName(s.Label, 20),
			fmt.Sprintf("%.2f", s.OddValue),
			optPct(s.ExpectedValue),
			optPct(s.KellyStake),
			s.AppliedStake.StringFixed(2),
			string(s.Status),
			pl,
		)
	}
	table.Render()
}

// PrintSelection imprime el sizing de una selección recién creada.
func (c *Console) PrintSelection(s domain.Selection) {
	fmt.Fprintf(c.out, "Selection %s (%s) placed\n", s.ID, s.Label)
	fmt.Fprintf(c.out, "  odd:              %.2f (implied %.2f%%)\n", s.OddValue, s.ImpliedProbability)
	fmt.Fprintf(c.out, "  prediction:       %s\n", optPct(s.PredictionProbability))
	fmt.Fprintf(c.out, "  expected value:   %s\n", optPct(s.ExpectedValue))
	fmt.Fprintf(c.out, "  kelly stake:      %s\n", optPct(s.KellyStake))
	fmt.Fprintf(c.out, "  applied stake:    %s\n", s.AppliedStake.StringFixed(2))
	fmt.Fprintf(c.out, "  potential profit: %s\n", s.PotentialProfit.StringFixed(2))
}

// PrintSettlement imprime el resultado de liquidar una selección.
func (c *Console) PrintSettlement(s domain.Selection, newBankroll decimal.Decimal, stats domain.StrategyStats) {
	outcome := "LOST"
	if s.IsWinner() {
		outcome = "WON"
	}
	fmt.Fprintf(c.out, "Selection %s settled: %s (%s)\n", s.ID, outcome, s.Result)
	fmt.Fprintf(c.out, "  profit/loss:  %s\n", s.ProfitLoss.Decimal.StringFixed(2))
	fmt.Fprintf(c.out, "  new bankroll: %s\n", newBankroll.StringFixed(2))
	fmt.Fprintf(c.out, "  record:       %d won / %d lost / %d pending | ROI %s | streak %d\n",
		stats.WonBets, stats.LostBets, stats.PendingBets, pct(stats.ROI), stats.CurrentStreak)
}

// PrintLedgerEntry imprime un movimiento manual del bankroll.
func (c *Console) PrintLedgerEntry(e domain.LedgerEntry) {
	fmt.Fprintf(c.out, "%s: %s -> %s (%s, %s)\n",
		e.EntryType,
		e.PreviousAmount.StringFixed(2),
		e.Amount.StringFixed(2),
		signed(e.ChangeAmount),
		optPct(e.ChangePercentage),
	)
}

// PrintReport imprime el reporte completo de una estrategia.
func (c *Console) PrintReport(r domain.StrategyReport) {
	s, st, add := r.Strategy, r.Stats, r.Additional

	fmt.Fprintf(c.out, "\n=== %s (%s) ===\n", s.Name, s.ID)
	fmt.Fprintf(c.out, "Bankroll: %s (initial %s, %s)\n",
		money(s.CurrentBankroll, s.Currency), money(s.InitialBankroll, s.Currency), pct(add.ProfitLossPercentage))

	table := tablewriter.NewWriter(c.out)
	table.Header("Bets", "Won", "Lost", "Pending", "Open", "Staked", "Returns", "Profit", "ROI", "Hit rate", "Avg stake", "Avg odds", "Streak", "Max streak")
	table.Append(
		fmt.Sprintf("%d", st.TotalBets),
		fmt.Sprintf("%d", st.WonBets),
		fmt.Sprintf("%d", st.LostBets),
		fmt.Sprintf("%d", st.PendingBets),
		fmt.Sprintf("%d", add.OpenSelections),
		st.TotalStaked.StringFixed(2),
		st.TotalReturns.StringFixed(2),
		signed(st.TotalProfit),
		pct(st.ROI),
		pct(add.HitRate),
		add.AverageStake.StringFixed(2),
		fmt.Sprintf("%.2f", add.AverageOdds),
		fmt.Sprintf("%d", st.CurrentStreak),
		fmt.Sprintf("%d", st.MaxWinningStreak),
	)
	table.Render()

	c.printPerformance(r.Performance)
	c.printDistribution("Market", r.MarketDistribution)
	c.printDistribution("Bookmaker", r.BookmakerDistribution)
	c.printLedger(r.BankrollHistory)
}

func (c *Console) printPerformance(p domain.PerformanceMetrics) {
	fmt.Fprintf(c.out, "\nROI day %s | week %s | month %s | volatility %.4f | sharpe %.4f\n",
		pct(p.DailyROI), pct(p.WeeklyROI), pct(p.MonthlyROI), p.Volatility, p.SharpeRatio)

	table := tablewriter.NewWriter(c.out)
	table.Header("Period", "Best", "Change", "Worst", "Change")
	rows := []struct {
		name        string
		best, worst domain.PeriodPerformance
	}{
		{"day", p.BestDay, p.WorstDay},
		{"week", p.BestWeek, p.WorstWeek},
		{"month", p.BestMonth, p.WorstMonth},
	}
	for _, row := range rows {
		table.Append(
			row.name,
			periodLabel(row.best),
			fmt.Sprintf("%s (%s)", signed(row.best.Change), pct(row.best.Percentage)),
			periodLabel(row.worst),
			fmt.Sprintf("%s (%s)", signed(row.worst.Change), pct(row.worst.Percentage)),
		)
	}
	table.Render()
}

func (c *Console) printDistribution(title string, buckets []domain.DistributionBucket) {
	if len(buckets) == 0 {
		return
	}
	total := 0
	for _, b := range buckets {
		total += b.Count
	}

	fmt.Fprintf(c.out, "\n%s distribution\n", title)
	table := tablewriter.NewWriter(c.out)
	table.Header(title, "Selections", "Share")
	for _, b := range buckets {
		table.Append(
			b.Key,
			fmt.Sprintf("%d", b.Count),
			pct(float64(b.Count)/float64(total)*100),
		)
	}
	table.Render()
}

func (c *Console) printLedger(entries []domain.LedgerEntry) {
	fmt.Fprintln(c.out, "\nBankroll history")
	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Date", "Type", "Previous", "Change", "%", "Balance", "Description")
	for _, e := range entries {
		table.Append(
			fmt.Sprintf("%d", e.Seq),
			e.CreatedAt.Format("2006-01-02 15:04"),
			string(e.EntryType),
			e.PreviousAmount.StringFixed(2),
			signed(e.ChangeAmount),
			optPct(e.ChangePercentage),
			e.Amount.StringFixed(2),
			compactName(e.Description, 40),
		)
	}
	table.Render()
}

// PrintReconcile imprime el resultado de una conciliación.
func (c *Console) PrintReconcile(r domain.ReconcileReport) {
	if r.Clean() {
		fmt.Fprintf(c.out, "Strategy %s is consistent: %d ledger entries, balance %s\n",
			r.StrategyID, r.LedgerEntries, r.BalanceAfter.StringFixed(2))
		return
	}
	fmt.Fprintf(c.out, "Strategy %s repaired\n", r.StrategyID)
	if r.ChainBreak >= 0 {
		fmt.Fprintf(c.out, "  ledger chain broken at entry %d\n", r.ChainBreak)
	}
	if r.MissingEntries > 0 {
		fmt.Fprintf(c.out, "  %d missing bet_result entries appended\n", r.MissingEntries)
	}
	if r.BalanceRepaired {
		fmt.Fprintf(c.out, "  balance %s -> %s\n", r.BalanceBefore.StringFixed(2), r.BalanceAfter.StringFixed(2))
	}
	if r.StatsRepaired {
		fmt.Fprintln(c.out, "  statistics rebuilt from selections")
	}
}

func money(d decimal.Decimal, currency string) string {
	return d.StringFixed(2) + " " + currency
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(2)
	}
	return d.StringFixed(2)
}

func pct(v float64) string {
	return fmt.Sprintf("%.2f%%", v)
}

func optPct(v *float64) string {
	if v == nil {
		return "-"
	}
	return pct(*v)
}

func periodLabel(p domain.PeriodPerformance) string {
	if p.Period == "" {
		return "-"
	}
	return p.Period
}

// compactName trunca un texto a maxLen runas.
func compactName(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}
