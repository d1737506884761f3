// Package office executes spreadsheet and file actions. Workbooks are
// edited through excelize; all filesystem access goes through an afero
// Fs so tests run against an in-memory tree.
package office

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/recurhq/recur/adapter"
	"github.com/recurhq/recur/model"
	"github.com/spf13/afero"
	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

var _ adapter.PlatformAdapter = new(officeAdapter)

type officeAdapter struct {
	fs      afero.Fs
	books   map[string]*excelize.File
	current string
}

func New(fs afero.Fs) adapter.Factory {
	return func() (adapter.PlatformAdapter, error) {
		return &officeAdapter{fs: fs, books: make(map[string]*excelize.File)}, nil
	}
}

func (o *officeAdapter) Initialize(ctx context.Context) error {
	return nil
}

func (o *officeAdapter) Dispatch(ctx context.Context, action model.Action) (*model.ActionResult, error) {
	switch action.Kind {
	case model.KIND_SHEET_OPEN:
		return o.open(action.Target.Path)
	case model.KIND_SHEET_CREATE:
		return o.create(action.Target.Path)
	case model.KIND_SHEET_SAVE:
		return o.save(action.Target.Path)
	case model.KIND_CELL_READ:
		return o.cellRead(action.Target)
	case model.KIND_CELL_WRITE:
		return o.cellWrite(action.Target, action.Payload)
	case model.KIND_RANGE_WRITE:
		return o.rangeWrite(action.Target, action.Payload)
	case model.KIND_FORMULA:
		return o.formula(action.Target, action.Payload)
	case model.KIND_FILE_COPY:
		return o.fileCopy(action.Target.Path, action.Target.Dest)
	case model.KIND_FILE_MOVE, model.KIND_FILE_RENAME:
		return o.fileMove(action.Target.Path, action.Target.Dest)
	case model.KIND_FILE_DELETE:
		return ok(o.fs.Remove(action.Target.Path))
	case model.KIND_FOLDER_CREATE:
		return ok(o.fs.MkdirAll(action.Target.Path, 0o755))
	case model.KIND_FOLDER_DELETE:
		return ok(o.fs.RemoveAll(action.Target.Path))
	default:
		return nil, fmt.Errorf("office: unsupported action kind %s", action.Kind)
	}
}

// Screenshot returns the current workbook serialized as xlsx bytes; the
// office surface has no pixels to capture.
func (o *officeAdapter) Screenshot(ctx context.Context) ([]byte, error) {
	if o.current == "" {
		return nil, nil
	}
	book := o.books[o.current]
	buf, err := book.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (o *officeAdapter) Close() error {
	var first error
	for path, book := range o.books {
		if err := book.Close(); err != nil && first == nil {
			first = err
		}
		delete(o.books, path)
	}
	o.current = ""
	return first
}

func (o *officeAdapter) open(path string) (*model.ActionResult, error) {
	data, err := afero.ReadFile(o.fs, path)
	if err != nil {
		return nil, fmt.Errorf("office: open %s: %w", path, err)
	}
	book, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("office: parse %s: %w", path, err)
	}
	o.books[path] = book
	o.current = path
	return &model.ActionResult{Success: true}, nil
}

func (o *officeAdapter) create(path string) (*model.ActionResult, error) {
	o.books[path] = excelize.NewFile()
	o.current = path
	return &model.ActionResult{Success: true}, nil
}

func (o *officeAdapter) save(path string) (*model.ActionResult, error) {
	path, book, err := o.book(path)
	if err != nil {
		return nil, err
	}
	buf, err := book.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("office: serialize %s: %w", path, err)
	}
	if err := afero.WriteFile(o.fs, path, buf.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("office: save %s: %w", path, err)
	}
	return &model.ActionResult{Success: true, Output: path}, nil
}

func (o *officeAdapter) cellRead(t model.Target) (*model.ActionResult, error) {
	_, book, err := o.book(t.Path)
	if err != nil {
		return nil, err
	}
	value, err := book.GetCellValue(sheetName(t), t.Cell)
	if err != nil {
		return nil, fmt.Errorf("office: read %s!%s: %w", sheetName(t), t.Cell, err)
	}
	return &model.ActionResult{Success: true, Output: value}, nil
}

func (o *officeAdapter) cellWrite(t model.Target, payload string) (*model.ActionResult, error) {
	_, book, err := o.book(t.Path)
	if err != nil {
		return nil, err
	}
	if err := book.SetCellValue(sheetName(t), t.Cell, payload); err != nil {
		return nil, fmt.Errorf("office: write %s!%s: %w", sheetName(t), t.Cell, err)
	}
	return &model.ActionResult{Success: true}, nil
}

// rangeWrite fills rows starting at the target cell. The payload encodes
// rows separated by newlines and cells separated by commas.
func (o *officeAdapter) rangeWrite(t model.Target, payload string) (*model.ActionResult, error) {
	_, book, err := o.book(t.Path)
	if err != nil {
		return nil, err
	}
	col, row, err := excelize.CellNameToCoordinates(t.Cell)
	if err != nil {
		return nil, fmt.Errorf("office: range anchor %s: %w", t.Cell, err)
	}
	for i, line := range strings.Split(payload, "\n") {
		cells := strings.Split(line, ",")
		values := make([]any, len(cells))
		for j, c := range cells {
			values[j] = c
		}
		anchor, err := excelize.CoordinatesToCellName(col, row+i)
		if err != nil {
			return nil, err
		}
		if err := book.SetSheetRow(sheetName(t), anchor, &values); err != nil {
			return nil, fmt.Errorf("office: range write at %s: %w", anchor, err)
		}
	}
	return &model.ActionResult{Success: true}, nil
}

func (o *officeAdapter) formula(t model.Target, payload string) (*model.ActionResult, error) {
	_, book, err := o.book(t.Path)
	if err != nil {
		return nil, err
	}
	if err := book.SetCellFormula(sheetName(t), t.Cell, payload); err != nil {
		return nil, fmt.Errorf("office: formula at %s!%s: %w", sheetName(t), t.Cell, err)
	}
	return &model.ActionResult{Success: true}, nil
}

func (o *officeAdapter) fileCopy(src, dest string) (*model.ActionResult, error) {
	data, err := afero.ReadFile(o.fs, src)
	if err != nil {
		return nil, fmt.Errorf("office: copy source %s: %w", src, err)
	}
	if err := afero.WriteFile(o.fs, dest, data, 0o644); err != nil {
		return nil, fmt.Errorf("office: copy dest %s: %w", dest, err)
	}
	return &model.ActionResult{Success: true}, nil
}

func (o *officeAdapter) fileMove(src, dest string) (*model.ActionResult, error) {
	if err := o.fs.Rename(src, dest); err != nil {
		return nil, fmt.Errorf("office: move %s to %s: %w", src, dest, err)
	}
	return &model.ActionResult{Success: true}, nil
}

// book resolves the workbook for a path, defaulting to the workbook most
// recently opened or created.
func (o *officeAdapter) book(path string) (string, *excelize.File, error) {
	if path == "" {
		path = o.current
	}
	if path == "" {
		return "", nil, fmt.Errorf("office: no open workbook")
	}
	book, okBook := o.books[path]
	if !okBook {
		return "", nil, fmt.Errorf("office: workbook %s not open", path)
	}
	o.current = path
	return path, book, nil
}

func sheetName(t model.Target) string {
	if t.Sheet != "" {
		return t.Sheet
	}
	return defaultSheet
}

func ok(err error) (*model.ActionResult, error) {
	if err != nil {
		return nil, err
	}
	return &model.ActionResult{Success: true}, nil
}
