// Package inspect provides a terminal UI over a cache store, for
// diagnosing what is cached and why a particular target resolved the way
// it did. It only reads the store, except that pressing d deletes the
// selected entry.
package inspect

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/k-kohey/xcodecache/internal/cachestore"
)

// Run lists every entry in store and lets the user browse each one's
// context.yml and message.txt interactively. It blocks until the user
// quits.
func Run(store *cachestore.Store) error {
	entries, err := store.List()
	if err != nil {
		return fmt.Errorf("listing cache entries: %w", err)
	}

	app := tview.NewApplication()
	pages := tview.NewPages()

	list := tview.NewList().ShowSecondaryText(true)

	detailView := tview.NewTextView().SetDynamicColors(true)
	detailView.SetBorder(true).SetTitle(" Entry ")
	detailView.SetScrollable(true)

	listFooter := tview.NewTextView().SetText(" ↑↓ navigate  Enter detail  d delete  q quit")
	detailFooter := tview.NewTextView().SetText(" Esc back  j/k scroll  q quit")

	listWithFooter := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(list, 0, 1, true).
		AddItem(listFooter, 1, 0, false)
	detailWithFooter := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(detailView, 0, 1, true).
		AddItem(detailFooter, 1, 0, false)

	pages.AddPage("list", listWithFooter, true, true)
	pages.AddPage("detail", detailWithFooter, true, false)

	populate := func() {
		list.Clear()
		list.SetTitle(fmt.Sprintf(" Cache entries (%d) ", len(entries)))
		if len(entries) == 0 {
			list.AddItem("(cache is empty)", "", 0, nil)
			return
		}
		for i := range entries {
			idx := i
			list.AddItem(entries[idx].TargetName, entrySecondaryText(entries[idx]), 0, func() {
				showDetail(detailView, store, entries[idx])
				pages.SwitchToPage("detail")
			})
		}
	}
	list.SetBorder(true)
	populate()

	list.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch { //nolint:exhaustive // only handling the keys this view reacts to.
		case event.Key() == tcell.KeyRune && event.Rune() == 'q':
			app.Stop()
			return nil
		case event.Key() == tcell.KeyRune && event.Rune() == 'd':
			deleteSelected(store, list, &entries, populate)
			return nil
		}
		return event
	})
	detailView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch { //nolint:exhaustive // only handling the keys this view reacts to.
		case event.Key() == tcell.KeyEscape:
			pages.SwitchToPage("list")
			return nil
		case event.Key() == tcell.KeyRune && event.Rune() == 'q':
			app.Stop()
			return nil
		case event.Key() == tcell.KeyRune && event.Rune() == 'j':
			row, col := detailView.GetScrollOffset()
			detailView.ScrollTo(row+1, col)
			return nil
		case event.Key() == tcell.KeyRune && event.Rune() == 'k':
			row, col := detailView.GetScrollOffset()
			if row > 0 {
				detailView.ScrollTo(row-1, col)
			}
			return nil
		}
		return event
	})

	return app.SetRoot(pages, true).EnableMouse(false).Run()
}

func entrySecondaryText(e cachestore.Entry) string {
	return fmt.Sprintf("%s  touched %s", e.TargetMD5, e.MTime().Format("2006-01-02 15:04:05"))
}

// deleteSelected removes the currently highlighted entry through
// Store.Remove — the same store-internal deletion primitive the
// orchestrator's corruption self-heal path uses — and repopulates the
// list. A human operator pressing `d` has the identical blast radius as
// the automatic corruption handling.
func deleteSelected(store *cachestore.Store, list *tview.List, entries *[]cachestore.Entry, populate func()) {
	idx := list.GetCurrentItem()
	if idx < 0 || idx >= len(*entries) {
		return
	}
	e := (*entries)[idx]
	if err := store.Remove(e); err != nil {
		return
	}
	*entries = append((*entries)[:idx], (*entries)[idx+1:]...)
	populate()
}

func showDetail(detailView *tview.TextView, store *cachestore.Store, e cachestore.Entry) {
	detailView.SetTitle(fmt.Sprintf(" %s ", e.Name))

	var b strings.Builder
	fmt.Fprintf(&b, "[yellow]target_name[white] %s\n", e.TargetName)
	fmt.Fprintf(&b, "[yellow]target_md5[white]  %s\n", e.TargetMD5)
	fmt.Fprintf(&b, "[yellow]created[white]     %s\n\n", time.UnixMilli(e.CreatedMS).Format("2006-01-02 15:04:05"))

	if ctx, err := store.ReadContext(e); err != nil {
		fmt.Fprintf(&b, "[red]context.yml unreadable: %v[white]\n", err)
	} else {
		fmt.Fprintf(&b, "[cyan]full_product_name[white]       %s\n", ctx.FullProductName)
		fmt.Fprintf(&b, "[cyan]build_product_dir[white]       %s\n", ctx.BuildProductDir)
		fmt.Fprintf(&b, "[cyan]build_intermediate_dir[white]  %s\n", ctx.BuildIntermediateDir)
		if ctx.ModulemapFile != "" {
			fmt.Fprintf(&b, "[cyan]modulemap_file[white]          %s\n", ctx.ModulemapFile)
		}
		fmt.Fprintf(&b, "[cyan]product_md5[white]             %s\n", ctx.ProductMD5)
		if ctx.DependencyCount > 0 {
			fmt.Fprintf(&b, "[cyan]dependency_count[white]        %d\n", ctx.DependencyCount)
		}
	}

	if msg, err := store.ReadMessage(e); err == nil && msg != "" {
		fmt.Fprintf(&b, "\n[green]message[white]\n%s\n", msg)
	}

	detailView.SetText(b.String())
	detailView.ScrollToBeginning()
}
