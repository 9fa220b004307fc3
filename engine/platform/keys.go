package platform

import (
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/anima2d/engine/input"
)

var keyMap = map[glfw.Key]input.KeyCode{
	glfw.KeyBackspace:    input.KEY_BACKSPACE,
	glfw.KeyEnter:        input.KEY_ENTER,
	glfw.KeyTab:          input.KEY_TAB,
	glfw.KeyPause:        input.KEY_PAUSE,
	glfw.KeyCapsLock:     input.KEY_CAPITAL,
	glfw.KeyEscape:       input.KEY_ESCAPE,
	glfw.KeySpace:        input.KEY_SPACE,
	glfw.KeyPageUp:       input.KEY_PRIOR,
	glfw.KeyPageDown:     input.KEY_NEXT,
	glfw.KeyEnd:          input.KEY_END,
	glfw.KeyHome:         input.KEY_HOME,
	glfw.KeyLeft:         input.KEY_LEFT,
	glfw.KeyUp:           input.KEY_UP,
	glfw.KeyRight:        input.KEY_RIGHT,
	glfw.KeyDown:         input.KEY_DOWN,
	glfw.KeyPrintScreen:  input.KEY_SNAPSHOT,
	glfw.KeyInsert:       input.KEY_INSERT,
	glfw.KeyDelete:       input.KEY_DELETE,
	glfw.KeyLeftSuper:    input.KEY_LWIN,
	glfw.KeyRightSuper:   input.KEY_RWIN,
	glfw.KeyMenu:         input.KEY_APPS,
	glfw.KeyKPMultiply:   input.KEY_MULTIPLY,
	glfw.KeyKPAdd:        input.KEY_ADD,
	glfw.KeyKPSubtract:   input.KEY_SUBTRACT,
	glfw.KeyKPDecimal:    input.KEY_DECIMAL,
	glfw.KeyKPDivide:     input.KEY_DIVIDE,
	glfw.KeyKPEqual:      input.KEY_NUMPAD_EQUAL,
	glfw.KeyNumLock:      input.KEY_NUMLOCK,
	glfw.KeyScrollLock:   input.KEY_SCROLL,
	glfw.KeyLeftShift:    input.KEY_LSHIFT,
	glfw.KeyRightShift:   input.KEY_RSHIFT,
	glfw.KeyLeftControl:  input.KEY_LCONTROL,
	glfw.KeyRightControl: input.KEY_RCONTROL,
	glfw.KeyLeftAlt:      input.KEY_LMENU,
	glfw.KeyRightAlt:     input.KEY_RMENU,
	glfw.KeySemicolon:    input.KEY_SEMICOLON,
	glfw.KeyEqual:        input.KEY_PLUS,
	glfw.KeyComma:        input.KEY_COMMA,
	glfw.KeyMinus:        input.KEY_MINUS,
	glfw.KeyPeriod:       input.KEY_PERIOD,
	glfw.KeySlash:        input.KEY_SLASH,
	glfw.KeyGraveAccent:  input.KEY_GRAVE,
}

func translateKey(key glfw.Key) (input.KeyCode, bool) {
	switch {
	case key >= glfw.KeyA && key <= glfw.KeyZ:
		return input.KEY_A + input.KeyCode(key-glfw.KeyA), true
	case key >= glfw.Key0 && key <= glfw.Key9:
		// digits keep their ascii code
		return input.KeyCode('0' + (key - glfw.Key0)), true
	case key >= glfw.KeyKP0 && key <= glfw.KeyKP9:
		return input.KEY_NUMPAD0 + input.KeyCode(key-glfw.KeyKP0), true
	case key >= glfw.KeyF1 && key <= glfw.KeyF24:
		return input.KEY_F1 + input.KeyCode(key-glfw.KeyF1), true
	}
	code, ok := keyMap[key]
	return code, ok
}
