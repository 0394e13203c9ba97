package matcher

import (
	"fmt"

	"github.com/dop251/goja"
	"github.com/goccy/go-json"
	"github.com/mohitkumar/autoflow/flow"
	"github.com/mohitkumar/autoflow/model"
)

// evalFilter runs the optional javascript filter of a trigger with the event
// bound to $. A missing filter accepts every event.
func (m *Matcher) evalFilter(node *model.Node, ev *model.Event) (bool, error) {
	expression, found, err := flow.String(node.Config, "filter")
	if err != nil || !found || expression == "" {
		return err == nil, err
	}
	prog, err := m.program(expression)
	if err != nil {
		return false, fmt.Errorf("node %s: %w", node.Id, err)
	}
	data, err := json.Marshal(ev.AsMap())
	if err != nil {
		return false, err
	}
	vm := goja.New()
	if _, err := vm.RunString(fmt.Sprintf("var $ = %s;\n", data)); err != nil {
		return false, fmt.Errorf("error binding event %w", err)
	}
	val, err := vm.RunProgram(prog)
	if err != nil {
		return false, fmt.Errorf("node %s: error executing filter %w", node.Id, err)
	}
	return val.ToBoolean(), nil
}

func (m *Matcher) program(expression string) (*goja.Program, error) {
	if p, ok := m.programs.Load(expression); ok {
		return p.(*goja.Program), nil
	}
	p, err := goja.Compile("filter", expression, false)
	if err != nil {
		return nil, err
	}
	m.programs.Store(expression, p)
	return p, nil
}
