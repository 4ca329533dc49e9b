// Package tui is the optional live dashboard for `mtrip run --tui`: a
// progress page narrating the pipeline phases (tally, weight table, DP
// layers) and a results page listing the median trees once the run
// completes.
package tui

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ChristianF88/mtrip/median"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// App represents the TUI application
type App struct {
	app          *tview.Application
	pages        *tview.Pages
	progressView *tview.TextView
	resultsView  *tview.TextView
	statusBar    *tview.TextView

	inputPath string
	threads   int
	startTime time.Time

	// Shared mutable state protected by mu (written from worker goroutines)
	mu          sync.Mutex
	phase       string
	layerStats  []median.LayerStat
	trees       []string
	optimum     int64
	bound       int64
	treeCount   int64
	layerK      int
	layerTotal  int
	weightTotal uint64

	// Atomic counters bumped from the hot loops (no mutex needed)
	weightDone atomic.Uint64
	layerDone  atomic.Int64

	// Atomic flags for cross-goroutine signaling
	analysisComplete atomic.Bool
	failed           atomic.Bool
	stopRefresh      chan struct{}
}

// NewApp creates a new TUI application for one run.
func NewApp(inputPath string, threads int) *App {
	a := &App{
		app:         tview.NewApplication(),
		pages:       tview.NewPages(),
		inputPath:   inputPath,
		threads:     threads,
		startTime:   time.Now(),
		stopRefresh: make(chan struct{}),
	}
	a.setupUI()
	return a
}

func (a *App) setupUI() {
	a.progressView = tview.NewTextView().
		SetDynamicColors(true).
		SetWrap(false)
	a.progressView.SetBorder(true).SetTitle(" mtrip — median triplet trees ")

	a.resultsView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true)
	a.resultsView.SetBorder(true).SetTitle(" median trees ")

	a.statusBar = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.statusBar.SetText("[yellow]running[white] | press 'q' to quit")

	progressLayout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.progressView, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	resultsLayout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.resultsView, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.pages.AddPage("progress", progressLayout, true, true)
	a.pages.AddPage("results", resultsLayout, true, false)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch {
		case event.Key() == tcell.KeyEscape, event.Rune() == 'q':
			a.app.Stop()
			return nil
		case event.Rune() == 'p':
			a.app.QueueUpdateDraw(func() { a.pages.SwitchToPage("progress") })
			return nil
		case event.Rune() == 'r':
			if a.analysisComplete.Load() {
				a.app.QueueUpdateDraw(func() { a.pages.SwitchToPage("results") })
			}
			return nil
		}
		return event
	})

	a.app.SetRoot(a.pages, true)
}

// Run starts the terminal application and the periodic refresh loop. It
// blocks until the user quits.
func (a *App) Run() error {
	go a.refreshLoop()
	defer close(a.stopRefresh)
	return a.app.Run()
}

// refreshLoop redraws the progress page a few times a second until the run
// completes or fails. The progress hooks bump atomic counters and take mu
// briefly to record totals, so workers can wait on mu while a redraw holds it.
func (a *App) refreshLoop() {
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopRefresh:
			return
		case <-ticker.C:
			if a.analysisComplete.Load() || a.failed.Load() {
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.progressView.SetText(a.renderProgress())
			})
		}
	}
}

// Hooks returns the progress callbacks to hand to median.Run.
func (a *App) Hooks() *median.Hooks {
	return &median.Hooks{
		Phase: func(name string) {
			a.mu.Lock()
			a.phase = name
			a.mu.Unlock()
		},
		Weight: func(done, total uint64) {
			a.weightDone.Store(done)
			a.mu.Lock()
			a.weightTotal = total
			a.mu.Unlock()
		},
		Layer: func(k, done, total int) {
			a.layerDone.Store(int64(done))
			a.mu.Lock()
			a.layerK = k
			a.layerTotal = total
			a.mu.Unlock()
		},
		LayerDone: func(stat median.LayerStat) {
			a.mu.Lock()
			a.layerStats = append(a.layerStats, stat)
			a.mu.Unlock()
		},
	}
}

func (a *App) renderProgress() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "[green]Input[white]   : %s\n", a.inputPath)
	fmt.Fprintf(&b, "[green]Threads[white] : %d\n", a.threads)
	fmt.Fprintf(&b, "[green]Elapsed[white] : %s\n\n", time.Since(a.startTime).Round(time.Millisecond))
	fmt.Fprintf(&b, "[yellow]Phase[white]   : %s\n\n", a.phase)

	if a.weightTotal > 0 {
		done := a.weightDone.Load()
		fmt.Fprintf(&b, "Weight table : %s %d/%d subsets\n",
			progressBar(float64(done)/float64(a.weightTotal)), done, a.weightTotal)
	}
	if a.layerTotal > 0 {
		done := a.layerDone.Load()
		fmt.Fprintf(&b, "DP layer %-2d  : %s %d/%d subsets\n",
			a.layerK, progressBar(float64(done)/float64(a.layerTotal)), done, a.layerTotal)
	}
	if len(a.layerStats) > 0 {
		b.WriteString("\nCompleted layers:\n")
		for _, st := range a.layerStats {
			fmt.Fprintf(&b, "  k=%-2d  best score %-10d ties %d\n", st.K, st.BestScore, st.Ties)
		}
	}
	return b.String()
}

func progressBar(frac float64) string {
	const width = 30
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	filled := int(frac * width)
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

// SetComplete publishes the finished run and switches to the results page.
func (a *App) SetComplete(trees []string, optimum, bound, treeCount int64) {
	a.mu.Lock()
	a.trees = trees
	a.optimum = optimum
	a.bound = bound
	a.treeCount = treeCount
	a.mu.Unlock()

	a.analysisComplete.Store(true)

	a.app.QueueUpdateDraw(func() {
		a.resultsView.SetText(a.renderResults())
		a.statusBar.SetText("[green]done[white] | 'p' progress, 'r' results, 'q' quit")
		a.pages.SwitchToPage("results")
	})
}

func (a *App) renderResults() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "[green]Optimal triplet count[white] : %d (theoretical bound %d)\n", a.optimum, a.bound)
	fmt.Fprintf(&b, "[green]Median trees[white]          : %d\n\n", a.treeCount)
	shown := a.trees
	const maxShown = 500
	if len(shown) > maxShown {
		fmt.Fprintf(&b, "(showing first %d of %d)\n", maxShown, len(shown))
		shown = shown[:maxShown]
	}
	for _, tree := range shown {
		b.WriteString(tree)
		b.WriteByte('\n')
	}
	return b.String()
}

// ShowError displays an error message in the TUI and stops the progress
// animation.
func (a *App) ShowError(message string) {
	a.failed.Store(true)

	a.app.QueueUpdateDraw(func() {
		a.progressView.SetText(fmt.Sprintf("[red]Error:[white] %s\n\n[yellow]Press 'q' to quit[white]", message))
		a.statusBar.SetText("[red]Run failed![white] | Press 'q' to quit")
		a.pages.SwitchToPage("progress")
	})
}
