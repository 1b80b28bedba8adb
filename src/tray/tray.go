// Package tray shows the system tray menu that drives a capture session.
package tray

import (
	"log"
	"sync"

	"github.com/getlantern/systray"
)

// Item is one menu entry.
type Item struct {
	Title   string
	Tooltip string
	OnClick func()
}

// Menu describes the tray: a title, entries above a separator, and Quit.
type Menu struct {
	Title  string
	Items  []Item
	OnQuit func()
}

var (
	mu    sync.Mutex
	ready bool
)

// Run shows the tray and blocks until Quit is called. It must run on the main
// goroutine on macOS and Windows.
func Run(menu Menu, onExit func()) {
	systray.Run(func() { onReady(menu) }, func() {
		mu.Lock()
		ready = false
		mu.Unlock()
		if onExit != nil {
			onExit()
		}
	})
}

func onReady(menu Menu) {
	if icon, err := Icon(); err != nil {
		log.Printf("Tray icon unavailable: %v", err)
	} else {
		systray.SetIcon(icon)
	}
	systray.SetTitle(menu.Title)
	systray.SetTooltip(menu.Title)

	for _, item := range menu.Items {
		mi := systray.AddMenuItem(item.Title, item.Tooltip)
		go watch(mi, item.OnClick)
	}
	systray.AddSeparator()
	mQuit := systray.AddMenuItem("Quit", "Stop capture, save and exit")
	go func() {
		<-mQuit.ClickedCh
		log.Printf("Tray: quit clicked")
		if menu.OnQuit != nil {
			menu.OnQuit()
		}
		systray.Quit()
	}()

	mu.Lock()
	ready = true
	mu.Unlock()
	log.Printf("Tray ready with %d items", len(menu.Items))
}

func watch(mi *systray.MenuItem, onClick func()) {
	for range mi.ClickedCh {
		if onClick != nil {
			onClick()
		}
	}
}

// UpdateTooltip shows text as the tray tooltip once the tray is up.
func UpdateTooltip(text string) {
	mu.Lock()
	defer mu.Unlock()
	if !ready {
		return
	}
	systray.SetTooltip(text)
}

// Quit closes the tray, unblocking Run.
func Quit() {
	systray.Quit()
}
