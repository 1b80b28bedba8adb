package hotkey

import (
	"errors"
	"sync"
	"testing"
	"time"

	gohook "github.com/robotn/gohook"
)

func TestKeyCodes(t *testing.T) {
	tests := []struct {
		keyName  string
		expected []uint16
	}{
		{"ctrl", []uint16{162, 163}},
		{"Control", []uint16{162, 163}},
		{"alt", []uint16{164, 165}},
		{"shift", []uint16{160, 161}},
		{"win", []uint16{91, 92}},
		{"super", []uint16{91, 92}},

		{"home", []uint16{36}},
		{"HOME", []uint16{36}},
		{"end", []uint16{35}},
		{"pgdn", []uint16{34}},
		{"printscreen", []uint16{44}},

		{"a", []uint16{65}},
		{"s", []uint16{83}},
		{"z", []uint16{90}},
		{"0", []uint16{48}},
		{"9", []uint16{57}},

		{"f1", []uint16{112}},
		{"f12", []uint16{123}},
		{"f24", []uint16{135}},
		{"f25", nil},
		{"f01", nil},

		{"unknown", nil},
	}

	for _, tt := range tests {
		t.Run(tt.keyName, func(t *testing.T) {
			result := keyCodes(tt.keyName)
			if len(result) != len(tt.expected) {
				t.Fatalf("keyCodes(%q) = %v, expected %v", tt.keyName, result, tt.expected)
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("keyCodes(%q)[%d] = %d, expected %d", tt.keyName, i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestParseHotkey(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"Home", []string{"home"}},
		{"Ctrl+Alt+S", []string{"ctrl", "alt", "s"}},
		{"ctrl + shift + F13", []string{"ctrl", "shift", "f13"}},
		{"Win+Shift+S", []string{"cmd", "shift", "s"}},
		{"Super+Escape", []string{"cmd", "esc"}},
		{"alt++f4", []string{"alt", "f4"}},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseHotkey(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("parseHotkey(%q) = %v, expected %v", tt.input, result, tt.expected)
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("parseHotkey(%q)[%d] = %q, expected %q", tt.input, i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestParseComboRejectsUnknownKeys(t *testing.T) {
	for _, spec := range []string{"ctrl+banana", "+", "hyper"} {
		if _, err := parseCombo(spec); !errors.Is(err, ErrInvalidHotkey) {
			t.Errorf("parseCombo(%q) error = %v, expected ErrInvalidHotkey", spec, err)
		}
	}
}

func TestComboFiresOncePerPress(t *testing.T) {
	c, err := parseCombo("ctrl+s")
	if err != nil {
		t.Fatal(err)
	}

	if c.press(83) {
		t.Fatal("s alone must not fire")
	}
	c.release(83)
	if c.press(163) {
		t.Fatal("right ctrl alone must not fire")
	}
	if !c.press(83) {
		t.Fatal("ctrl+s must fire")
	}
	if c.press(83) {
		t.Fatal("auto-repeat of s must not fire again")
	}
	c.release(83)
	if !c.press(83) {
		t.Fatal("pressing s again while ctrl is held must fire")
	}
	c.release(163)
	if c.press(83) {
		t.Fatal("s without ctrl must not fire")
	}
}

func TestSingleKeyIgnoresAutoRepeat(t *testing.T) {
	c, err := parseCombo("home")
	if err != nil {
		t.Fatal(err)
	}

	fired := 0
	for i := 0; i < 5; i++ {
		if c.press(36) {
			fired++
		}
	}
	if fired != 1 {
		t.Fatalf("holding home fired %d times, expected 1", fired)
	}
	if c.press(37) {
		t.Fatal("unrelated key must not fire")
	}
	c.release(37)
	if c.press(36) {
		t.Fatal("releasing an unrelated key must not re-arm the combination")
	}
	c.release(36)
	if !c.press(36) {
		t.Fatal("second press after release must fire")
	}
}

// fakeHook stands in for gohook's global start/end pair.
type fakeHook struct {
	mu      sync.Mutex
	chans   []chan gohook.Event
	ended   int
	started int
}

func (f *fakeHook) start() chan gohook.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan gohook.Event, 8)
	f.chans = append(f.chans, ch)
	f.started++
	return ch
}

func (f *fakeHook) end() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended++
}

func (f *fakeHook) last() chan gohook.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chans[len(f.chans)-1]
}

func TestManagerRebindReleasesPrevious(t *testing.T) {
	hook := &fakeHook{}
	m := &Manager{start: hook.start, end: hook.end}

	fired := make(chan string, 4)
	if err := m.Bind("", func() { fired <- "home" }); err != nil {
		t.Fatal(err)
	}
	if got := m.Active(); got != "home" {
		t.Fatalf("Active() = %q, expected home", got)
	}
	first := hook.last()

	if err := m.Bind("F9", func() { fired <- "f9" }); err != nil {
		t.Fatal(err)
	}
	if hook.ended != 1 {
		t.Fatalf("expected previous hook to be ended once, got %d", hook.ended)
	}

	first <- gohook.Event{Kind: gohook.KeyDown, Rawcode: 36}
	hook.last() <- gohook.Event{Kind: gohook.KeyDown, Rawcode: 120}

	select {
	case got := <-fired:
		if got != "f9" {
			t.Fatalf("callback from released binding fired: %s", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("hotkey callback not invoked")
	}

	m.Unbind()
	if m.Active() != "" || hook.ended != 2 {
		t.Fatalf("Unbind left active=%q ended=%d", m.Active(), hook.ended)
	}
	m.Unbind()
	if hook.ended != 2 {
		t.Fatal("second Unbind must be a no-op")
	}
}

func TestManagerBindInvalidKeepsPrevious(t *testing.T) {
	hook := &fakeHook{}
	m := &Manager{start: hook.start, end: hook.end}

	if err := m.Bind("home", nil); err != nil {
		t.Fatal(err)
	}
	if err := m.Bind("ctrl+nope", nil); !errors.Is(err, ErrInvalidHotkey) {
		t.Fatalf("expected ErrInvalidHotkey, got %v", err)
	}
	if m.Active() != "home" || hook.started != 1 {
		t.Fatalf("invalid bind changed state: active=%q started=%d", m.Active(), hook.started)
	}
	m.Unbind()
}
