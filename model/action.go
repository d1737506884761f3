package model

import "time"

type Surface string

const SURFACE_DESKTOP Surface = "desktop"
const SURFACE_BROWSER Surface = "browser"
const SURFACE_OFFICE Surface = "office"

type ActionKind string

const (
	KIND_CLICK        ActionKind = "click"
	KIND_DOUBLE_CLICK ActionKind = "double_click"
	KIND_MOVE         ActionKind = "move"
	KIND_DRAG         ActionKind = "drag"
	KIND_SCROLL       ActionKind = "scroll"
	KIND_TYPE         ActionKind = "type"
	KIND_KEY_PRESS    ActionKind = "key_press"
	KIND_HOTKEY       ActionKind = "hotkey"
	KIND_WAIT         ActionKind = "wait"
	KIND_SCREENSHOT   ActionKind = "screenshot"

	KIND_NAVIGATE        ActionKind = "navigate"
	KIND_BROWSER_CLICK   ActionKind = "browser_click"
	KIND_BROWSER_TYPE    ActionKind = "browser_type"
	KIND_BROWSER_FILL    ActionKind = "browser_fill"
	KIND_BROWSER_SELECT  ActionKind = "browser_select"
	KIND_BROWSER_EXTRACT ActionKind = "browser_extract"
	KIND_BROWSER_WAIT    ActionKind = "browser_wait"

	KIND_SHEET_OPEN    ActionKind = "sheet_open"
	KIND_SHEET_CREATE  ActionKind = "sheet_create"
	KIND_SHEET_SAVE    ActionKind = "sheet_save"
	KIND_CELL_READ     ActionKind = "cell_read"
	KIND_CELL_WRITE    ActionKind = "cell_write"
	KIND_RANGE_WRITE   ActionKind = "range_write"
	KIND_FORMULA       ActionKind = "formula"
	KIND_FILE_COPY     ActionKind = "file_copy"
	KIND_FILE_MOVE     ActionKind = "file_move"
	KIND_FILE_RENAME   ActionKind = "file_rename"
	KIND_FILE_DELETE   ActionKind = "file_delete"
	KIND_FOLDER_CREATE ActionKind = "folder_create"
	KIND_FOLDER_DELETE ActionKind = "folder_delete"
)

// surfaceByKind is the closed dispatch set. Every kind belongs to exactly
// one adapter family; the wait kind is surface-free and handled by the
// execution engine itself.
var surfaceByKind = map[ActionKind]Surface{
	KIND_CLICK:        SURFACE_DESKTOP,
	KIND_DOUBLE_CLICK: SURFACE_DESKTOP,
	KIND_MOVE:         SURFACE_DESKTOP,
	KIND_DRAG:         SURFACE_DESKTOP,
	KIND_SCROLL:       SURFACE_DESKTOP,
	KIND_TYPE:         SURFACE_DESKTOP,
	KIND_KEY_PRESS:    SURFACE_DESKTOP,
	KIND_HOTKEY:       SURFACE_DESKTOP,
	KIND_WAIT:         SURFACE_DESKTOP,
	KIND_SCREENSHOT:   SURFACE_DESKTOP,

	KIND_NAVIGATE:        SURFACE_BROWSER,
	KIND_BROWSER_CLICK:   SURFACE_BROWSER,
	KIND_BROWSER_TYPE:    SURFACE_BROWSER,
	KIND_BROWSER_FILL:    SURFACE_BROWSER,
	KIND_BROWSER_SELECT:  SURFACE_BROWSER,
	KIND_BROWSER_EXTRACT: SURFACE_BROWSER,
	KIND_BROWSER_WAIT:    SURFACE_BROWSER,

	KIND_SHEET_OPEN:    SURFACE_OFFICE,
	KIND_SHEET_CREATE:  SURFACE_OFFICE,
	KIND_SHEET_SAVE:    SURFACE_OFFICE,
	KIND_CELL_READ:     SURFACE_OFFICE,
	KIND_CELL_WRITE:    SURFACE_OFFICE,
	KIND_RANGE_WRITE:   SURFACE_OFFICE,
	KIND_FORMULA:       SURFACE_OFFICE,
	KIND_FILE_COPY:     SURFACE_OFFICE,
	KIND_FILE_MOVE:     SURFACE_OFFICE,
	KIND_FILE_RENAME:   SURFACE_OFFICE,
	KIND_FILE_DELETE:   SURFACE_OFFICE,
	KIND_FOLDER_CREATE: SURFACE_OFFICE,
	KIND_FOLDER_DELETE: SURFACE_OFFICE,
}

func (k ActionKind) Valid() bool {
	_, ok := surfaceByKind[k]
	return ok
}

func (k ActionKind) DefaultSurface() Surface {
	return surfaceByKind[k]
}

func (s Surface) Valid() bool {
	switch s {
	case SURFACE_DESKTOP, SURFACE_BROWSER, SURFACE_OFFICE:
		return true
	}
	return false
}

// Target locates the subject of an action. Which fields are meaningful
// depends on the surface: coordinates for desktop, selector/url for
// browser, sheet/cell/path for office.
type Target struct {
	X        int    `json:"x,omitempty"`
	Y        int    `json:"y,omitempty"`
	Selector string `json:"selector,omitempty"`
	Url      string `json:"url,omitempty"`
	Sheet    string `json:"sheet,omitempty"`
	Cell     string `json:"cell,omitempty"`
	Path     string `json:"path,omitempty"`
	Dest     string `json:"dest,omitempty"`
}

// Action is one classified user step. Immutable once recorded.
type Action struct {
	Id         string     `json:"id"`
	Kind       ActionKind `json:"kind"`
	Surface    Surface    `json:"surface"`
	Target     Target     `json:"target"`
	Payload    string     `json:"payload,omitempty"`
	ObservedAt time.Time  `json:"observedAt"`
	Confidence float64    `json:"confidence"`
}

// ActionResult is what an adapter reports back for one dispatched action.
type ActionResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output,omitempty"`
}

// CoordinateKind reports whether the kind targets an absolute screen
// position and therefore needs bounds validation.
func (k ActionKind) CoordinateKind() bool {
	switch k {
	case KIND_CLICK, KIND_DOUBLE_CLICK, KIND_MOVE, KIND_DRAG:
		return true
	}
	return false
}
