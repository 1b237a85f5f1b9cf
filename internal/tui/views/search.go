package views

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/mailmirror/internal/rpc"
	"github.com/rivo/tview"
)

// SearchView is a query field over a table of full-text hits.
type SearchView struct {
	*tview.Flex
	input   *tview.InputField
	results *tview.Table
	onQuery func(query string)
	data    []rpc.SearchHit
}

// NewSearchView creates a new search view.
func NewSearchView() *SearchView {
	input := tview.NewInputField().
		SetLabel(" Search: ").
		SetFieldWidth(0)

	results := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false).
		SetFixed(1, 0)
	results.SetBorder(true).SetTitle(" Results ")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(input, 1, 0, true).
		AddItem(results, 0, 1, false)

	return &SearchView{
		Flex:    flex,
		input:   input,
		results: results,
	}
}

// SetOnQuery sets the callback when a search query is submitted.
func (sv *SearchView) SetOnQuery(fn func(query string)) {
	sv.onQuery = fn
	sv.input.SetDoneFunc(func(key tcell.Key) {
		query := strings.TrimSpace(sv.input.GetText())
		if key == tcell.KeyEnter && query != "" && sv.onQuery != nil {
			sv.onQuery(query)
		}
	})
}

// SetQuery fills the input, as when a search starts from the command line.
func (sv *SearchView) SetQuery(query string) {
	sv.input.SetText(query)
}

// Update refreshes search results.
func (sv *SearchView) Update(hits []rpc.SearchHit) {
	sv.data = hits
	sv.results.Clear()

	for col, h := range []string{" Subject", " From", " Snippet", " Time"} {
		sv.results.SetCell(0, col, tview.NewTableCell(h).SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	}

	for i, hit := range hits {
		row := i + 1
		m := hit.Message
		sv.results.SetCell(row, 0, tview.NewTableCell(" "+tview.Escape(singleLine(m.Subject))).SetMaxWidth(30))
		sv.results.SetCell(row, 1, tview.NewTableCell(" "+tview.Escape(singleLine(m.Sender))).SetMaxWidth(25))
		sv.results.SetCell(row, 2, tview.NewTableCell(" "+highlight(hit.Snippet)).SetExpansion(1))
		sv.results.SetCell(row, 3, tview.NewTableCell(" "+formatTimestamp(m.SentAtMs)).SetMaxWidth(12))
	}
	sv.results.SetTitle(" Results ")
	if len(hits) == 0 {
		sv.results.SetTitle(" No results ")
	}
}

// highlight turns the store's <<match>> markers into tview color tags.
func highlight(snippet string) string {
	s := tview.Escape(singleLine(snippet))
	s = strings.ReplaceAll(s, "<<", "[yellow::b]")
	return strings.ReplaceAll(s, ">>", "[-::-]")
}

// SelectedHandle returns the thread handle of the highlighted hit, or "".
func (sv *SearchView) SelectedHandle() string {
	row, _ := sv.results.GetSelection()
	idx := row - 1
	if idx >= 0 && idx < len(sv.data) {
		return sv.data[idx].Message.Handle
	}
	return ""
}

// Input returns the search input field.
func (sv *SearchView) Input() *tview.InputField {
	return sv.input
}

// Results returns the results table.
func (sv *SearchView) Results() *tview.Table {
	return sv.results
}
