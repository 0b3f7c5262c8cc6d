// Package report renders book inspection results as text.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"matchsim/internal/domain"
	"matchsim/internal/service"
)

// NoExecutions is printed in place of an average price for an order that
// never traded.
const NoExecutions = "no executions"

// WriteBooks prints every book, BUY side before SELL, each in list order
// (active region first, then history).
func WriteBooks(w io.Writer, books []domain.BookView) error {
	if _, err := fmt.Fprintln(w, "Order Books:"); err != nil {
		return err
	}
	for _, b := range books {
		if err := WriteBook(w, b); err != nil {
			return err
		}
	}
	return nil
}

// WriteBook prints one ticker.
func WriteBook(w io.Writer, b domain.BookView) error {
	if _, err := fmt.Fprintf(w, "Ticker: %s\n", b.Ticker); err != nil {
		return err
	}
	for _, side := range []domain.SideView{b.Buy, b.Sell} {
		for _, region := range [][]domain.OrderView{side.Active, side.History} {
			for _, o := range region {
				if _, err := fmt.Fprintln(w, FormatOrder(o)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// FormatOrder renders one order line.
func FormatOrder(o domain.OrderView) string {
	label, avgLabel := "Buy", "Average Buy Price"
	if o.Side == domain.SideSell {
		label, avgLabel = "Sell", "Average Sell Price"
	}

	avg := NoExecutions
	if o.HasExecutions {
		avg = o.AveragePrice.StringFixed(2)
	}

	state := ""
	if o.InHistory {
		state = " (history)"
	}

	return fmt.Sprintf("%s Order %d%s : Unsettled Quantity [%d]; Settled Quantity [%d]; Settled By Orders [%s]; Price [%s]; %s [%s]",
		label, o.ID, state, o.Active, o.Settled, joinIDs(o.Counterparties), o.LimitPrice.String(), avgLabel, avg)
}

// WriteQuotes prints the per-ticker trade summary.
func WriteQuotes(w io.Writer, quotes []service.Quote) error {
	if _, err := fmt.Fprintln(w, "Trade Summary:"); err != nil {
		return err
	}
	for _, q := range quotes {
		vwap := NoExecutions
		if v, ok := q.VWAP(); ok {
			vwap = v.StringFixed(2)
		}
		_, err := fmt.Fprintf(w, "%s : Trades [%d]; Volume [%d]; Open [%s]; High [%s]; Low [%s]; Last [%s]; VWAP [%s]; Expired Orders [%d]\n",
			q.Ticker, q.Trades, q.Volume, q.Open, q.High, q.Low, q.Last, vwap, q.Expiries)
		if err != nil {
			return err
		}
	}
	return nil
}

func joinIDs(ids []uint64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatUint(id, 10)
	}
	return strings.Join(parts, ", ")
}
