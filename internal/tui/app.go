package tui

import (
	"context"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/matheus3301/mailmirror/internal/rpc"
	"github.com/matheus3301/mailmirror/internal/tui/client"
	"github.com/matheus3301/mailmirror/internal/tui/keys"
	"github.com/matheus3301/mailmirror/internal/tui/model"
	"github.com/matheus3301/mailmirror/internal/tui/views"
	"github.com/rivo/tview"
)

const (
	pageThreads = "threads"
	pageThread  = "thread"
	pageSearch  = "search"

	statusEvery  = 5 * time.Second
	threadsEvery = 30 * time.Second
	callTimeout  = 30 * time.Second
)

// App is the main TUI application shell.
type App struct {
	app        *tview.Application
	pages      *tview.Pages
	vm         *model.ViewModel
	registry   *keys.Registry
	statusBar  *views.StatusBar
	threadList *views.ThreadList
	threadView *views.ThreadView
	searchV    *views.SearchView
	prompt     *tview.InputField
	root       *tview.Flex
	ctx        context.Context
	cancel     context.CancelFunc

	// stopWatch ends the live stream of the open thread. UI goroutine only.
	stopWatch context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, sessionName string) *App {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		app:        tview.NewApplication(),
		pages:      tview.NewPages(),
		vm:         model.NewViewModel(c),
		registry:   keys.NewRegistry(),
		statusBar:  views.NewStatusBar(),
		threadList: views.NewThreadList(),
		threadView: views.NewThreadView(),
		searchV:    views.NewSearchView(),
		prompt:     tview.NewInputField().SetLabel(":").SetFieldWidth(0),
		ctx:        ctx,
		cancel:     cancel,
	}

	a.statusBar.SetSession(sessionName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: 'q',
		Description: "q:quit", Visible: true,
		Handler: a.Stop,
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: '/',
		Description: "/:search", Visible: true,
		Handler: func() { a.showSearch("") },
	})
	a.registry.AddGlobal(&keys.Action{
		Key: tcell.KeyRune, Rune: ':',
		Description: ":cmd", Visible: true,
		Handler: a.showPrompt,
	})

	a.registry.AddView(pageThreads, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r',
		Description: "r:sync", Visible: true,
		Handler: func() { a.syncThread(a.threadList.SelectedHandle()) },
	})
	a.registry.AddView(pageThreads, &keys.Action{
		Key: tcell.KeyRune, Rune: 'm',
		Description: "m:read", Visible: true,
		Handler: func() { a.markRead(a.threadList.SelectedHandle()) },
	})
	a.registry.AddView(pageThreads, &keys.Action{
		Key: tcell.KeyRune, Rune: 'c',
		Description: "c:check", Visible: true,
		Handler: a.checkUpdates,
	})
	a.registry.AddView(pageThreads, &keys.Action{
		Key: tcell.KeyRune, Rune: 'R',
		Description: "R:refresh", Visible: true,
		Handler: a.refreshThreads,
	})

	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'r',
		Description: "r:sync", Visible: true,
		Handler: func() { a.syncThread(a.vm.Active()) },
	})
	a.registry.AddView(pageThread, &keys.Action{
		Key: tcell.KeyRune, Rune: 'm',
		Description: "m:read", Visible: true,
		Handler: func() { a.markRead(a.vm.Active()) },
	})
}

func (a *App) setupCallbacks() {
	a.threadList.SetSelectedFunc(func(row, col int) {
		if h := a.threadList.SelectedHandle(); h != "" {
			a.openThread(h)
		}
	})

	a.searchV.SetOnQuery(a.runSearch)
	a.searchV.Results().SetSelectedFunc(func(row, col int) {
		if h := a.searchV.SelectedHandle(); h != "" {
			a.openThread(h)
		}
	})

	a.prompt.SetDoneFunc(func(key tcell.Key) {
		line := a.prompt.GetText()
		a.hidePrompt()
		if key == tcell.KeyEnter {
			a.runCommand(ParseCommand(line))
		}
	})
}

func (a *App) setupLayout() {
	a.pages.AddPage(pageThreads, a.threadList, true, true)
	a.pages.AddPage(pageThread, a.threadView, true, false)
	a.pages.AddPage(pageSearch, a.searchV, true, false)

	a.root = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(a.root, true)
	a.statusBar.SetHints(a.registry.Hints(pageThreads))

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if a.app.GetFocus() == a.prompt {
			return event
		}
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			switch currentPage {
			case pageThread, pageSearch:
				a.showThreads()
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}
		return event
	})
}

func (a *App) switchTo(page string) {
	a.pages.SwitchToPage(page)
	a.statusBar.SetHints(a.registry.Hints(page))
}

func (a *App) showThreads() {
	a.closeThread()
	a.switchTo(pageThreads)
	a.app.SetFocus(a.threadList)
}

func (a *App) showSearch(query string) {
	a.closeThread()
	a.switchTo(pageSearch)
	if query != "" {
		a.searchV.SetQuery(query)
		a.runSearch(query)
		return
	}
	a.app.SetFocus(a.searchV.Input())
}

func (a *App) showPrompt() {
	a.prompt.SetText("")
	a.root.RemoveItem(a.statusBar)
	a.root.AddItem(a.prompt, 1, 0, true)
	a.app.SetFocus(a.prompt)
}

func (a *App) hidePrompt() {
	a.root.RemoveItem(a.prompt)
	a.root.AddItem(a.statusBar, 1, 0, false)
	a.app.SetFocus(a.pages)
}

// openThread loads the thread and attaches a live stream to it. Frames from
// the stream replace the view until the thread is closed.
func (a *App) openThread(handle string) {
	a.closeThread()
	watchCtx, stop := context.WithCancel(a.ctx)
	a.stopWatch = stop

	go func() {
		ctx, cancel := context.WithTimeout(watchCtx, callTimeout)
		err := a.vm.Open(ctx, handle)
		cancel()
		if watchCtx.Err() != nil {
			return
		}
		if err != nil {
			a.flashError("open", err)
			return
		}
		subject := a.vm.Subject(handle)
		a.app.QueueUpdateDraw(func() {
			a.threadView.SetSubject(subject, true)
			a.threadView.Update(a.vm.Messages())
			a.switchTo(pageThread)
			a.app.SetFocus(a.threadView)
		})

		err = a.vm.Watch(watchCtx, handle, func(msgs []rpc.Message) {
			a.app.QueueUpdateDraw(func() { a.threadView.Update(msgs) })
		})
		if watchCtx.Err() != nil {
			return
		}
		if err != nil {
			a.flashError("stream", err)
		}
		a.app.QueueUpdateDraw(func() { a.threadView.SetSubject(subject, false) })
	}()
}

func (a *App) closeThread() {
	if a.stopWatch != nil {
		a.stopWatch()
		a.stopWatch = nil
	}
	a.vm.Close()
}

// background runs fn off the UI goroutine with a call timeout.
func (a *App) background(fn func(ctx context.Context)) {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (a *App) syncThread(handle string) {
	if handle == "" {
		return
	}
	a.background(func(ctx context.Context) {
		res, err := a.vm.Sync(ctx, handle)
		if err != nil {
			a.flashError("sync", err)
			return
		}
		a.flashInfo(fmt.Sprintf("synced %d new of %d", res.Synced, res.Total))
		if a.vm.Active() == "" {
			a.refreshThreads()
		}
	})
}

func (a *App) markRead(handle string) {
	if handle == "" {
		return
	}
	a.background(func(ctx context.Context) {
		if err := a.vm.MarkRead(ctx, handle); err != nil {
			a.flashError("mark read", err)
			return
		}
		a.flashInfo("marked read")
		a.refreshThreads()
	})
}

func (a *App) leaveThread(handle string) {
	if handle == "" {
		return
	}
	a.background(func(ctx context.Context) {
		n, err := a.vm.Leave(ctx, handle)
		if err != nil {
			a.flashError("leave", err)
			return
		}
		a.flashInfo(fmt.Sprintf("removed %d messages", n))
		a.refreshThreads()
	})
}

func (a *App) checkUpdates() {
	a.background(func(ctx context.Context) {
		handles, err := a.vm.CheckUpdates(ctx)
		if err != nil {
			a.flashError("check", err)
			return
		}
		if len(handles) == 0 {
			a.flashInfo("no new messages")
			return
		}
		a.flashInfo(fmt.Sprintf("%d threads have new messages", len(handles)))
	})
}

func (a *App) runSearch(query string) {
	a.background(func(ctx context.Context) {
		hits, err := a.vm.Search(ctx, query)
		if err != nil {
			a.flashError("search", err)
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.searchV.Update(hits)
			a.app.SetFocus(a.searchV.Results())
		})
	})
}

func (a *App) refreshThreads() {
	a.background(func(ctx context.Context) {
		if err := a.vm.LoadThreads(ctx); err != nil {
			a.flashError("threads", err)
			return
		}
		a.app.QueueUpdateDraw(func() { a.threadList.Update(a.vm.Threads()) })
	})
}

// runCommand executes a ':' command. Thread commands act on the open
// thread, or on the highlighted one in the list.
func (a *App) runCommand(cmd Command) {
	target := a.vm.Active()
	if target == "" {
		target = a.threadList.SelectedHandle()
	}

	switch cmd.Name {
	case "":
	case "q", "quit":
		a.Stop()
	case "sync":
		a.syncThread(target)
	case "read":
		a.markRead(target)
	case "leave":
		a.leaveThread(target)
		a.showThreads()
	case "check":
		a.checkUpdates()
	case "search":
		a.showSearch(cmd.Rest())
	case "open":
		if len(cmd.Args) == 1 {
			a.openThread(cmd.Args[0])
		}
	default:
		a.vm.Flash.Info("unknown command " + cmd.Name)
		a.renderFlash()
	}
}

func (a *App) flashInfo(msg string) {
	a.vm.Flash.Info(msg)
	a.app.QueueUpdateDraw(a.renderFlash)
}

func (a *App) flashError(op string, err error) {
	a.vm.Flash.Error(op, err)
	a.app.QueueUpdateDraw(a.renderFlash)
}

func (a *App) renderFlash() {
	a.statusBar.SetFlash(a.vm.Flash.Get())
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
		_ = a.vm.LoadStatus(ctx)
		if err := a.vm.LoadThreads(ctx); err != nil {
			a.vm.Flash.Error("threads", err)
		}
		cancel()

		a.app.QueueUpdateDraw(func() {
			a.threadList.Update(a.vm.Threads())
			a.statusBar.SetStatus(a.vm.Status())
			a.renderFlash()
		})

		a.refreshLoop()
	}()

	return a.app.Run()
}

func (a *App) refreshLoop() {
	statusTick := time.NewTicker(statusEvery)
	threadsTick := time.NewTicker(threadsEvery)
	defer statusTick.Stop()
	defer threadsTick.Stop()

	for {
		select {
		case <-statusTick.C:
			ctx, cancel := context.WithTimeout(a.ctx, callTimeout)
			_ = a.vm.LoadStatus(ctx)
			cancel()
			a.app.QueueUpdateDraw(func() {
				a.statusBar.SetStatus(a.vm.Status())
				a.renderFlash()
			})
		case <-threadsTick.C:
			a.refreshThreads()
		case <-a.ctx.Done():
			return
		}
	}
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
