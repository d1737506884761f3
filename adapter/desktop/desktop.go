// Package desktop drives the local desktop through robotgo. Coordinate
// actions are validated against the live screen bounds before any input
// is synthesized.
package desktop

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strconv"
	"strings"

	"github.com/go-vgo/robotgo"
	"github.com/recurhq/recur/adapter"
	"github.com/recurhq/recur/model"
)

var _ adapter.PlatformAdapter = new(desktopAdapter)

type desktopAdapter struct {
	width  int
	height int
}

func New() (adapter.PlatformAdapter, error) {
	return &desktopAdapter{}, nil
}

func (d *desktopAdapter) Initialize(ctx context.Context) error {
	d.width, d.height = robotgo.GetScreenSize()
	if d.width == 0 || d.height == 0 {
		return fmt.Errorf("desktop: no display detected")
	}
	return nil
}

func (d *desktopAdapter) Dispatch(ctx context.Context, action model.Action) (*model.ActionResult, error) {
	if action.Kind.CoordinateKind() {
		if err := d.checkBounds(action.Target); err != nil {
			return nil, err
		}
	}
	switch action.Kind {
	case model.KIND_MOVE:
		robotgo.Move(action.Target.X, action.Target.Y)
	case model.KIND_CLICK:
		robotgo.Move(action.Target.X, action.Target.Y)
		robotgo.Click("left", false)
	case model.KIND_DOUBLE_CLICK:
		robotgo.Move(action.Target.X, action.Target.Y)
		robotgo.Click("left", true)
	case model.KIND_DRAG:
		robotgo.DragSmooth(action.Target.X, action.Target.Y)
	case model.KIND_SCROLL:
		amount, err := scrollAmount(action.Payload)
		if err != nil {
			return nil, err
		}
		robotgo.Scroll(0, amount)
	case model.KIND_TYPE:
		robotgo.TypeStr(action.Payload)
	case model.KIND_KEY_PRESS:
		if err := robotgo.KeyTap(action.Payload); err != nil {
			return nil, fmt.Errorf("desktop: key press %q: %w", action.Payload, err)
		}
	case model.KIND_SCREENSHOT:
		// The engine's after-artifact carries the actual image; the
		// dispatch only verifies capture works.
		if _, err := d.Screenshot(ctx); err != nil {
			return nil, err
		}
	case model.KIND_HOTKEY:
		key, mods, err := splitHotkey(action.Payload)
		if err != nil {
			return nil, err
		}
		if err := robotgo.KeyTap(key, mods...); err != nil {
			return nil, fmt.Errorf("desktop: hotkey %q: %w", action.Payload, err)
		}
	default:
		return nil, fmt.Errorf("desktop: unsupported action kind %s", action.Kind)
	}
	return &model.ActionResult{Success: true}, nil
}

func (d *desktopAdapter) Screenshot(ctx context.Context) ([]byte, error) {
	img := robotgo.CaptureImg()
	if img == nil {
		return nil, fmt.Errorf("desktop: screen capture failed")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *desktopAdapter) Close() error {
	return nil
}

func (d *desktopAdapter) checkBounds(t model.Target) error {
	if t.X < 0 || t.Y < 0 || t.X >= d.width || t.Y >= d.height {
		return fmt.Errorf("desktop: coordinates (%d,%d) outside screen %dx%d", t.X, t.Y, d.width, d.height)
	}
	return nil
}

func scrollAmount(payload string) (int, error) {
	if payload == "" {
		return -3, nil
	}
	amount, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil {
		return 0, fmt.Errorf("desktop: scroll amount %q: %w", payload, err)
	}
	return amount, nil
}

// splitHotkey parses a "ctrl+shift+s" style chord into the terminal key
// and its modifiers, in robotgo's argument order.
func splitHotkey(payload string) (string, []any, error) {
	parts := strings.Split(strings.ToLower(payload), "+")
	if len(parts) == 0 || parts[len(parts)-1] == "" {
		return "", nil, fmt.Errorf("desktop: empty hotkey")
	}
	key := parts[len(parts)-1]
	mods := make([]any, 0, len(parts)-1)
	for _, m := range parts[:len(parts)-1] {
		mods = append(mods, strings.TrimSpace(m))
	}
	return key, mods, nil
}
