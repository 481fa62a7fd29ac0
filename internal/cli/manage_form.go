package cli

import (
	"fmt"
	"strconv"
	"strings"

	"flexfetch/internal/model"
	"flexfetch/internal/store"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

type manageFieldKind int

const (
	manageFieldString manageFieldKind = iota
	manageFieldInt
	manageFieldSelect
)

type manageFormField struct {
	Key      string
	Label    string
	Help     string
	Kind     manageFieldKind
	Value    string
	Options  []string
	Required bool
}

type manageForm struct {
	Title   string
	IsEdit  bool
	QueryID string
	Fields  []manageFormField
	Index   int
	Input   textinput.Model
	Error   string
	Saving  bool
}

func newManageForm(q *model.Query, width int) *manageForm {
	form := &manageForm{Title: "add query"}
	idField := manageFormField{
		Key: "id", Label: "ID", Kind: manageFieldString, Required: true,
		Help: "Flex query id from the IBKR statement configuration",
	}
	nameField := manageFormField{Key: "name", Label: "Name", Kind: manageFieldString}
	typeField := manageFormField{
		Key: "type", Label: "Type", Kind: manageFieldSelect,
		Options: model.QueryTypes(), Value: model.QueryTypeActivity,
	}
	intervalField := manageFormField{
		Key: "interval", Label: "Interval", Kind: manageFieldInt,
		Help: "minimum hours between downloads; empty = type default",
	}

	if q != nil {
		// The remote id and type are fixed at add time; editing covers the
		// mutable fields only.
		form.Title = fmt.Sprintf("edit query %s (%s)", q.ID, q.Type)
		form.IsEdit = true
		form.QueryID = q.ID
		nameField.Value = q.Name
		if q.IntervalHours > 0 {
			intervalField.Value = strconv.Itoa(q.IntervalHours)
		}
		form.Fields = []manageFormField{nameField, intervalField}
	} else {
		form.Fields = []manageFormField{idField, nameField, typeField, intervalField}
	}

	input := textinput.New()
	input.CharLimit = 120
	if width > 20 {
		input.Width = width - 20
	}
	form.Input = input
	form.loadFieldIntoInput()
	return form
}

func (f *manageForm) currentField() manageFormField {
	return f.Fields[f.Index]
}

func (f *manageForm) loadFieldIntoInput() {
	field := f.Fields[f.Index]
	if field.Kind == manageFieldSelect {
		f.Input.Blur()
		return
	}
	f.Input.SetValue(field.Value)
	f.Input.CursorEnd()
	f.Input.Focus()
}

func (f *manageForm) commitInput() {
	if f.Fields[f.Index].Kind == manageFieldSelect {
		return
	}
	f.Fields[f.Index].Value = strings.TrimSpace(f.Input.Value())
}

func (f *manageForm) cycleSelectField() {
	field := &f.Fields[f.Index]
	if len(field.Options) == 0 {
		return
	}
	for i, opt := range field.Options {
		if opt == field.Value {
			field.Value = field.Options[(i+1)%len(field.Options)]
			return
		}
	}
	field.Value = field.Options[0]
}

func (f *manageForm) fieldValue(key string) string {
	for _, field := range f.Fields {
		if field.Key == key {
			return field.Value
		}
	}
	return ""
}

func (f *manageForm) validate() error {
	for _, field := range f.Fields {
		if field.Required && strings.TrimSpace(field.Value) == "" {
			return fmt.Errorf("%s is required", field.Label)
		}
		if field.Kind == manageFieldInt && field.Value != "" {
			n, err := strconv.Atoi(field.Value)
			if err != nil || n <= 0 {
				return fmt.Errorf("%s must be a positive number", field.Label)
			}
		}
	}
	return nil
}

func saveQueryCmd(form manageForm) tea.Cmd {
	return func() tea.Msg {
		name := form.fieldValue("name")
		hours := 0
		if v := form.fieldValue("interval"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return manageSaveMsg{err: err}
			}
			hours = n
		}

		st, err := store.OpenDefault()
		if err != nil {
			return manageSaveMsg{err: err}
		}
		defer st.Close()

		if !form.IsEdit {
			id := form.fieldValue("id")
			queryType, err := model.NormalizeQueryType(form.fieldValue("type"))
			if err != nil {
				return manageSaveMsg{err: err}
			}
			err = st.AddQuery(model.Query{ID: id, Name: name, Type: queryType, IntervalHours: hours})
			if err != nil {
				return manageSaveMsg{err: err}
			}
			return manageSaveMsg{message: fmt.Sprintf("query %s added", id)}
		}

		if err := st.RenameQuery(form.QueryID, name); err != nil {
			return manageSaveMsg{err: err}
		}
		if err := st.SetInterval(form.QueryID, hours); err != nil {
			return manageSaveMsg{err: err}
		}
		return manageSaveMsg{message: fmt.Sprintf("query %s updated", form.QueryID)}
	}
}
