package action

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
	"github.com/goccy/go-json"
	"github.com/mohitkumar/autoflow/flow"
	"github.com/mohitkumar/autoflow/logger"
	"github.com/mohitkumar/autoflow/model"
	"go.uber.org/zap"
)

var _ ActionBackend = new(ScriptBackend)

// ScriptBackend runs the script of a run_script node in an embedded
// javascript runtime with the execution context bound to $. A script that
// throws fails permanently unless it throws an object with retryable: true.
type ScriptBackend struct{}

func NewScriptBackend() *ScriptBackend {
	return &ScriptBackend{}
}

func (b *ScriptBackend) Execute(ctx context.Context, subtype model.Subtype, config map[string]any, ectx model.ExecutionContext) (bool, error) {
	script, _, err := flow.String(config, "script")
	if err != nil {
		return false, err
	}
	logger.Info("running script", zap.String("flowId", ectx.FlowId), zap.String("executionId", ectx.ExecutionId), zap.String("nodeId", ectx.NodeId))
	data, err := json.Marshal(ectx.Data())
	if err != nil {
		return false, err
	}
	vm := goja.New()
	stop := context.AfterFunc(ctx, func() {
		vm.Interrupt(ctx.Err())
	})
	defer stop()

	_, err = vm.RunString(fmt.Sprintf("var $ = %s;\n", data) + script)
	if err == nil {
		return false, nil
	}
	if _, ok := err.(*goja.InterruptedError); ok {
		return true, fmt.Errorf("script interrupted: %w", err)
	}
	if ex, ok := err.(*goja.Exception); ok {
		if obj, ok := ex.Value().Export().(map[string]any); ok {
			if retryable, _ := obj["retryable"].(bool); retryable {
				return true, fmt.Errorf("error executing javascript %v", obj["message"])
			}
		}
	}
	return false, fmt.Errorf("error executing javascript %w", err)
}
