package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/mailmirror/internal/rpc"
	"github.com/rivo/tview"
)

// StatusBar displays the session, daemon health and key hints.
type StatusBar struct {
	*tview.TextView
	session string
	status  *rpc.StatusResponse
	hints   []string
	flash   string
	flashEr bool
}

// NewStatusBar creates a new status bar.
func NewStatusBar() *StatusBar {
	tv := tview.NewTextView().
		SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv}
}

// SetSession updates the session name display.
func (sb *StatusBar) SetSession(name string) {
	sb.session = name
	sb.render()
}

// SetStatus updates the daemon status display.
func (sb *StatusBar) SetStatus(st *rpc.StatusResponse) {
	sb.status = st
	sb.render()
}

// SetHints replaces the key hints for the current page.
func (sb *StatusBar) SetHints(hints []string) {
	sb.hints = hints
	sb.render()
}

// SetFlash sets a temporary message. isErr renders it in red.
func (sb *StatusBar) SetFlash(msg string, isErr bool) {
	sb.flash = msg
	sb.flashEr = isErr
	sb.render()
}

func (sb *StatusBar) render() {
	sb.Clear()
	_, _ = fmt.Fprint(sb, sb.line(time.Now()))
}

func (sb *StatusBar) line(now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, " [::b]%s[-:-:-]", tview.Escape(sb.session))

	if st := sb.status; st != nil {
		color := "green"
		switch st.Status {
		case "DEGRADED":
			color = "red"
		case "BOOTING":
			color = "yellow"
		}
		fmt.Fprintf(&b, " | %s [%s]%s[-] | %d threads %d msgs", st.Provider, color, st.Status, st.ThreadCount, st.MessageCount)
		if st.Status == "DEGRADED" && st.LastError != "" {
			fmt.Fprintf(&b, " (%s)", tview.Escape(singleLine(st.LastError)))
		}
	} else {
		b.WriteString(" | connecting")
	}

	fmt.Fprintf(&b, " | %s", now.Format("15:04"))
	if sb.flash != "" {
		color := "yellow"
		if sb.flashEr {
			color = "red"
		}
		fmt.Fprintf(&b, " | [%s]%s[-]", color, tview.Escape(sb.flash))
	}
	if len(sb.hints) > 0 {
		fmt.Fprintf(&b, " | [::d]%s[-:-:-]", tview.Escape(strings.Join(sb.hints, " ")))
	}
	return b.String()
}
