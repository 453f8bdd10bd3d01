// Package ui renders engine snapshots in a terminal dashboard. The UI
// is a pure consumer: it redraws on each snapshot and pushes operator
// commands back to the engine, never touching engine state directly.
package ui

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"

	"feedwatch/internal/engine"
	"feedwatch/pkg/types"
)

const (
	pageGroups    = "groups"
	pageEndpoints = "endpoints"
)

type Dashboard struct {
	app    *tview.Application
	engine *engine.Engine
	log    zerolog.Logger

	pages      *tview.Pages
	groupTable *tview.Table
	epTable    *tview.Table
	statusBar  *tview.TextView

	snap       types.Snapshot
	groupNames []string // row index -> group name
	rowKeys    []string // row index -> endpoint key
}

func NewDashboard(eng *engine.Engine, log zerolog.Logger) *Dashboard {
	d := &Dashboard{
		app:        tview.NewApplication(),
		engine:     eng,
		log:        log,
		pages:      tview.NewPages(),
		groupTable: tview.NewTable(),
		epTable:    tview.NewTable(),
		statusBar:  tview.NewTextView(),
	}
	d.setupUI()
	return d
}

// Run blocks until the operator quits or ctx is cancelled.
func (d *Dashboard) Run(ctx context.Context) error {
	go d.consumeSnapshots(ctx)
	return d.app.Run()
}

func (d *Dashboard) setupUI() {
	d.groupTable.SetBorder(true)
	d.groupTable.SetTitle(" Processes with connections (↑↓ select, Enter to track) ")
	d.groupTable.SetSelectable(true, false)
	d.groupTable.SetFixed(1, 0)
	d.groupTable.SetSelectedStyle(tcell.StyleDefault.Background(tcell.ColorDarkBlue))
	d.groupTable.SetSelectedFunc(func(row, _ int) {
		if row >= 1 && row-1 < len(d.groupNames) {
			d.engine.StartTracking(d.groupNames[row-1])
			d.pages.SwitchToPage(pageEndpoints)
		}
	})

	d.epTable.SetBorder(true)
	d.epTable.SetTitle(" Connections (Enter to pin, c to unpin, Esc back) ")
	d.epTable.SetSelectable(true, false)
	d.epTable.SetFixed(1, 0)
	d.epTable.SetSelectedStyle(tcell.StyleDefault.Background(tcell.ColorDarkBlue))
	d.epTable.SetSelectedFunc(func(row, _ int) {
		if row >= 1 && row-1 < len(d.rowKeys) {
			d.engine.SetManualSelection(d.rowKeys[row-1])
		}
	})

	d.statusBar.SetDynamicColors(true)
	d.statusBar.SetBorder(true)

	groupsFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(d.groupTable, 0, 1, true)

	endpointsFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(d.epTable, 0, 1, true).
		AddItem(d.statusBar, 3, 0, false)

	d.pages.AddPage(pageGroups, groupsFlex, true, true)
	d.pages.AddPage(pageEndpoints, endpointsFlex, true, false)

	d.app.SetRoot(d.pages, true).
		SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
			currentPage, _ := d.pages.GetFrontPage()

			switch event.Key() {
			case tcell.KeyEsc:
				if currentPage == pageEndpoints {
					d.engine.StopTracking()
					d.pages.SwitchToPage(pageGroups)
					return nil
				}
				d.app.Stop()
			case tcell.KeyRune:
				switch event.Rune() {
				case 'q':
					d.app.Stop()
				case 'c':
					if currentPage == pageEndpoints {
						d.engine.ClearManualSelection()
						return nil
					}
				}
			}
			return event
		})
}

func (d *Dashboard) consumeSnapshots(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.app.QueueUpdateDraw(func() { d.app.Stop() })
			return
		case snap := <-d.engine.Snapshots():
			d.app.QueueUpdateDraw(func() {
				d.snap = snap
				d.render()
			})
		}
	}
}

func (d *Dashboard) render() {
	d.renderGroups()
	if d.snap.TrackedGroup != "" {
		d.renderEndpoints()
	}
}

func (d *Dashboard) renderGroups() {
	d.groupTable.Clear()
	for col, h := range []string{"Process", "PIDs", "Conns", "CPU %", "Memory"} {
		d.groupTable.SetCell(0, col, headerCell(h))
	}

	d.groupNames = d.groupNames[:0]
	for i, g := range d.snap.Groups {
		row := i + 1
		d.groupNames = append(d.groupNames, g.Name)
		d.groupTable.SetCell(row, 0, tview.NewTableCell(g.Name))
		d.groupTable.SetCell(row, 1, tview.NewTableCell(fmt.Sprintf("%d", len(g.PIDs))))
		d.groupTable.SetCell(row, 2, tview.NewTableCell(fmt.Sprintf("%d", g.Connections)))
		d.groupTable.SetCell(row, 3, tview.NewTableCell(fmt.Sprintf("%.1f", g.CPUPercent)))
		d.groupTable.SetCell(row, 4, tview.NewTableCell(formatBytes(g.MemoryRSS)))
	}
}

func (d *Dashboard) renderEndpoints() {
	d.epTable.Clear()
	for col, h := range []string{"", "Endpoint", "Hostname", "Provider", "App ms", "Deep ms", "Jitter"} {
		d.epTable.SetCell(0, col, headerCell(h))
	}

	d.rowKeys = d.rowKeys[:0]
	for i, ep := range d.snap.Endpoints {
		key := ep.Key()
		row := i + 1
		d.rowKeys = append(d.rowKeys, key)

		marker := " "
		if key == d.snap.Selection.SelectedKey {
			marker = "▶"
			if d.snap.Selection.ManualOverride {
				marker = "▣"
			}
		}
		provider := string(ep.Provider)
		if provider == "" {
			provider = "-"
		}

		d.epTable.SetCell(row, 0, tview.NewTableCell(marker).SetTextColor(tcell.ColorYellow))
		d.epTable.SetCell(row, 1, tview.NewTableCell(key))
		d.epTable.SetCell(row, 2, tview.NewTableCell(ep.Hostname))
		d.epTable.SetCell(row, 3, tview.NewTableCell(provider))
		app, appOK := d.snap.AppLatency[key]
		deep, deepOK := d.snap.DeepLatency[key]
		d.epTable.SetCell(row, 4, latencyCell(app, appOK, d.snap.Failures[key]))
		d.epTable.SetCell(row, 5, latencyCell(deep, deepOK, 0))
		d.epTable.SetCell(row, 6, tview.NewTableCell(fmt.Sprintf("%d", d.snap.Jitter[key])))
	}

	mode := "auto"
	if d.snap.Selection.ManualOverride {
		mode = "pinned"
	}
	selected := d.snap.Selection.SelectedKey
	if selected == "" {
		selected = "-"
	}
	d.statusBar.SetText(fmt.Sprintf("[yellow]%s[-]  tracking %d endpoints  selected: %s (%s)",
		d.snap.TrackedGroup, len(d.snap.Endpoints), selected, mode))
}

func headerCell(text string) *tview.TableCell {
	return tview.NewTableCell(text).
		SetTextColor(tcell.ColorAqua).
		SetSelectable(false).
		SetAttributes(tcell.AttrBold)
}

func latencyCell(ms int, sampled bool, failures int) *tview.TableCell {
	if !sampled {
		return tview.NewTableCell("-")
	}
	if ms == types.FailedSample {
		text := "timeout"
		if failures > 1 {
			text = fmt.Sprintf("timeout x%d", failures)
		}
		return tview.NewTableCell(text).SetTextColor(tcell.ColorRed)
	}
	cell := tview.NewTableCell(fmt.Sprintf("%d", ms))
	switch {
	case ms >= 250:
		cell.SetTextColor(tcell.ColorRed)
	case ms >= 100:
		cell.SetTextColor(tcell.ColorYellow)
	default:
		cell.SetTextColor(tcell.ColorGreen)
	}
	return cell
}

func formatBytes(b uint64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	}
	return fmt.Sprintf("%d B", b)
}
