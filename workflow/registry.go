package workflow

import (
	"context"
	"fmt"
)

// Terminal 终止哨兵：不是合法节点名，作为边的目标表示"结束执行"
const Terminal = "__end__"

// NodeFunc 节点函数：读取状态快照，返回仅包含已声明字段的部分更新
type NodeFunc func(ctx context.Context, state State) (Partial, error)

// NodeRegistry maps node names to node functions and enforces unique names.
type NodeRegistry struct {
	nodes map[string]NodeFunc
}

// NewNodeRegistry 创建节点注册表
func NewNodeRegistry() *NodeRegistry {
	return &NodeRegistry{nodes: make(map[string]NodeFunc)}
}

// Register adds a node. It fails with *DuplicateNodeError when name is taken.
func (r *NodeRegistry) Register(name string, fn NodeFunc) error {
	if name == "" || name == Terminal {
		return fmt.Errorf("%w: %q", ErrInvalidNodeName, name)
	}
	if fn == nil {
		return fmt.Errorf("%w: %q", ErrNilNode, name)
	}
	if _, exists := r.nodes[name]; exists {
		return &DuplicateNodeError{Node: name}
	}
	r.nodes[name] = fn
	return nil
}

// Has reports whether name is registered.
func (r *NodeRegistry) Has(name string) bool {
	_, ok := r.nodes[name]
	return ok
}

// Names returns the registered names in sorted order.
func (r *NodeRegistry) Names() []string {
	return sortedKeys(r.nodes)
}

// Len returns the number of registered nodes.
func (r *NodeRegistry) Len() int {
	return len(r.nodes)
}

// Invoke calls the named node synchronously. Errors and panics raised by the
// node are wrapped in *NodeExecutionError; Step is left for the caller to set.
func (r *NodeRegistry) Invoke(ctx context.Context, name string, state State) (partial Partial, err error) {
	fn, ok := r.nodes[name]
	if !ok {
		return nil, &UnknownNodeError{Node: name, Ref: "invocation"}
	}

	defer func() {
		if rec := recover(); rec != nil {
			partial = nil
			err = &NodeExecutionError{Node: name, Cause: fmt.Errorf("panic: %v", rec)}
		}
	}()

	partial, err = fn(ctx, state)
	if err != nil {
		return nil, &NodeExecutionError{Node: name, Cause: err}
	}
	return partial, nil
}

func (r *NodeRegistry) clone() *NodeRegistry {
	out := &NodeRegistry{nodes: make(map[string]NodeFunc, len(r.nodes))}
	for k, v := range r.nodes {
		out.nodes[k] = v
	}
	return out
}

