// Package hotkey binds one global key combination at a time.
package hotkey

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	gohook "github.com/robotn/gohook"
)

// Default is used when no hotkey is configured.
const Default = "home"

var ErrInvalidHotkey = errors.New("invalid hotkey")

// Manager owns the process-wide keyboard hook. Bind releases any previous
// binding first, so at most one combination is active.
type Manager struct {
	mu     sync.Mutex
	start  func() chan gohook.Event
	end    func()
	active string
	stop   chan struct{}
	done   chan struct{}
}

// NewManager returns a manager backed by gohook.
func NewManager() *Manager {
	return &Manager{start: gohook.Start, end: gohook.End}
}

// Bind parses spec (for example "home" or "ctrl+alt+s") and invokes callback
// on the hook goroutine each time the whole combination is down.
func (m *Manager) Bind(spec string, callback func()) error {
	if strings.TrimSpace(spec) == "" {
		spec = Default
	}
	c, err := parseCombo(spec)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.unbindLocked()

	events := m.start()
	if events == nil {
		return fmt.Errorf("%w: keyboard hook could not be started", ErrInvalidHotkey)
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	m.stop, m.done, m.active = stop, done, c.name

	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("PANIC in hotkey goroutine: %v", r)
			}
		}()
		for {
			select {
			case <-stop:
				return
			case ev, ok := <-events:
				if !ok {
					log.Printf("Hotkey event channel closed")
					return
				}
				switch ev.Kind {
				case gohook.KeyDown:
					if c.press(ev.Rawcode) {
						log.Printf("Hotkey %s pressed", c.name)
						if callback != nil {
							callback()
						}
					}
				case gohook.KeyUp:
					c.release(ev.Rawcode)
				}
			}
		}
	}()

	log.Printf("Hotkey bound: %s", c.name)
	return nil
}

// Unbind releases the active binding, if any.
func (m *Manager) Unbind() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unbindLocked()
}

// Active returns the normalized name of the bound combination, or "".
func (m *Manager) Active() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

func (m *Manager) unbindLocked() {
	if m.stop == nil {
		return
	}
	close(m.stop)
	m.end()
	<-m.done
	log.Printf("Hotkey released: %s", m.active)
	m.stop, m.done, m.active = nil, nil, ""
}

// combo tracks which keys of a combination are currently held.
type combo struct {
	name    string
	keys    [][]uint16
	pressed []bool
	// fired latches after the combination triggers and clears when one of
	// its keys is released, so auto-repeat KeyDown events are ignored.
	fired   bool
}

func parseCombo(spec string) (*combo, error) {
	names := parseHotkey(spec)
	c := &combo{name: strings.Join(names, "+")}
	for _, name := range names {
		codes := keyCodes(name)
		if codes == nil {
			return nil, fmt.Errorf("%w: unknown key %q in %q", ErrInvalidHotkey, name, spec)
		}
		c.keys = append(c.keys, codes)
	}
	if len(c.keys) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidHotkey, spec)
	}
	c.pressed = make([]bool, len(c.keys))
	return c, nil
}

// press marks rawcode as held and reports whether the combination just
// became complete. Holding it fires once until a key is released.
func (c *combo) press(rawcode uint16) bool {
	if !c.mark(rawcode, true) {
		return false
	}
	for _, p := range c.pressed {
		if !p {
			return false
		}
	}
	if c.fired {
		return false
	}
	c.fired = true
	return true
}

func (c *combo) release(rawcode uint16) {
	if c.mark(rawcode, false) {
		c.fired = false
	}
}

// mark sets the held state of the key matching rawcode and reports whether
// rawcode belongs to the combination.
func (c *combo) mark(rawcode uint16, down bool) bool {
	found := false
	for i, codes := range c.keys {
		for _, code := range codes {
			if code == rawcode {
				c.pressed[i] = down
				found = true
			}
		}
	}
	return found
}

// parseHotkey splits "Ctrl+Alt+Q" into normalized lower-case key names.
func parseHotkey(spec string) []string {
	var keys []string
	for _, part := range strings.Split(strings.ToLower(spec), "+") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if alias, ok := aliases[part]; ok {
			part = alias
		}
		keys = append(keys, part)
	}
	return keys
}

var aliases = map[string]string{
	"control": "ctrl",
	"win":     "cmd",
	"super":   "cmd",
	"return":  "enter",
	"escape":  "esc",
	"del":     "delete",
	"ins":     "insert",
	"pgup":    "pageup",
	"pgdn":    "pagedown",
	"prtsc":   "printscreen",
}

// Windows virtual-key codes as reported in gohook rawcodes. Modifiers map to
// both their left and right variants.
var namedKeys = map[string][]uint16{
	"ctrl":        {162, 163},
	"alt":         {164, 165},
	"shift":       {160, 161},
	"cmd":         {91, 92},
	"backspace":   {8},
	"tab":         {9},
	"enter":       {13},
	"pause":       {19},
	"esc":         {27},
	"space":       {32},
	"pageup":      {33},
	"pagedown":    {34},
	"end":         {35},
	"home":        {36},
	"left":        {37},
	"up":          {38},
	"right":       {39},
	"down":        {40},
	"printscreen": {44},
	"insert":      {45},
	"delete":      {46},
	"scrolllock":  {145},
}

func keyCodes(name string) []uint16 {
	name = strings.ToLower(strings.TrimSpace(name))
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	if codes, ok := namedKeys[name]; ok {
		return codes
	}
	if len(name) == 1 {
		switch ch := name[0]; {
		case ch >= 'a' && ch <= 'z':
			return []uint16{uint16(ch-'a') + 65}
		case ch >= '0' && ch <= '9':
			return []uint16{uint16(ch-'0') + 48}
		}
	}
	var n int
	if _, err := fmt.Sscanf(name, "f%d", &n); err == nil && n >= 1 && n <= 24 && name == fmt.Sprintf("f%d", n) {
		return []uint16{uint16(111 + n)}
	}
	return nil
}
