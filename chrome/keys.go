package chrome

import (
	"fmt"

	"github.com/go-rod/rod/lib/input"
)

var namedKeys = map[string]input.Key{
	"Tab":        input.Tab,
	"Enter":      input.Enter,
	"Escape":     input.Escape,
	"Space":      input.Space,
	"Backspace":  input.Backspace,
	"ArrowDown":  input.ArrowDown,
	"ArrowUp":    input.ArrowUp,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
}

func keyFor(name string) (input.Key, error) {
	if k, ok := namedKeys[name]; ok {
		return k, nil
	}
	if r := []rune(name); len(r) == 1 {
		if k, ok := typeable(r[0]); ok {
			return k, nil
		}
	}
	return 0, fmt.Errorf("chrome: unknown key %q", name)
}

// typeable reports whether r maps onto a US keyboard key.
func typeable(r rune) (input.Key, bool) {
	if r >= ' ' && r <= '~' {
		return input.Key(r), true
	}
	return 0, false
}
