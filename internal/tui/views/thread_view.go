package views

import (
	"fmt"

	"github.com/matheus3301/mailmirror/internal/rpc"
	"github.com/rivo/tview"
)

// ThreadView renders the messages of one thread, oldest first.
type ThreadView struct {
	*tview.TextView
}

// NewThreadView creates an empty thread view.
func NewThreadView() *ThreadView {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	tv.SetBorder(true).SetTitle(" Messages ")

	return &ThreadView{TextView: tv}
}

// SetSubject updates the title. live marks an attached stream.
func (tv *ThreadView) SetSubject(subject string, live bool) {
	title := " " + tview.Escape(singleLine(subject)) + " "
	if live {
		title += "[green]live[-] "
	}
	tv.SetTitle(title)
}

// Update redraws the whole thread. Messages arrive sorted by send time.
func (tv *ThreadView) Update(msgs []rpc.Message) {
	tv.Clear()

	for _, m := range msgs {
		sender := singleLine(m.Sender)
		if sender == "" {
			sender = "(unknown sender)"
		}
		line := fmt.Sprintf("[::b]%s[-:-:-] [::d]%s[-:-:-]\n%s\n\n",
			tview.Escape(sender),
			formatTimestamp(m.SentAtMs),
			tview.Escape(sanitizeForTerminal(m.Body)))
		_, _ = fmt.Fprint(tv, line)
	}

	tv.ScrollToEnd()
}
