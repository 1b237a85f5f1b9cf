package views

import (
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/mailmirror/internal/rpc"
	"github.com/rivo/tview"
)

// ThreadList is the table of mirrored threads, newest activity first.
type ThreadList struct {
	*tview.Table
	threads []rpc.Thread
}

// NewThreadList creates an empty thread table.
func NewThreadList() *ThreadList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	table.SetBorder(true).SetTitle(" Threads ")

	return &ThreadList{Table: table}
}

// Update replaces the rows, keeping the selection on the same handle when
// it is still listed.
func (tl *ThreadList) Update(threads []rpc.Thread) {
	selected := tl.SelectedHandle()
	tl.threads = threads
	tl.Clear()

	for col, h := range []string{" Subject", " From", " Msgs", " Time"} {
		tl.SetCell(0, col, tview.NewTableCell(h).SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	}

	for i, t := range threads {
		row := i + 1
		subject := singleLine(t.Subject)
		if subject == "" {
			subject = "(no subject)"
		}
		if t.UnreadCount > 0 {
			subject = fmt.Sprintf("* %s (%d)", subject, t.UnreadCount)
		}
		if t.HasTask {
			subject += " +task"
		}

		tl.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(subject)).SetMaxWidth(50).SetExpansion(2))
		tl.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(singleLine(t.Counterpart))).SetMaxWidth(30).SetExpansion(1))
		tl.SetCell(row, 2, tview.NewTableCell(" "+strconv.Itoa(t.MessageCount)).SetAlign(tview.AlignRight))
		tl.SetCell(row, 3, tview.NewTableCell(" "+formatTimestamp(t.LastMessageAtMs)).SetMaxWidth(12))

		if t.Handle == selected {
			tl.Select(row, 0)
		}
	}
}

// SelectedHandle returns the handle of the highlighted thread, or "".
func (tl *ThreadList) SelectedHandle() string {
	row, _ := tl.GetSelection()
	idx := row - 1 // header
	if idx >= 0 && idx < len(tl.threads) {
		return tl.threads[idx].Handle
	}
	return ""
}

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	if t.Year() == now.Year() {
		return t.Format("Jan 02")
	}
	return t.Format("2006-01-02")
}
