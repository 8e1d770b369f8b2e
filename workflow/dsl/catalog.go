package dsl

import (
	"sort"

	"github.com/BaSui01/stategraph/workflow"
)

// Catalog resolves the node functions and routers a Document refers to by name.
type Catalog interface {
	Node(name string) (workflow.NodeFunc, bool)
	Router(name string) (workflow.Router, bool)
}

// MapCatalog 基于 map 的 Catalog 实现
type MapCatalog struct {
	nodes   map[string]workflow.NodeFunc
	routers map[string]workflow.Router
}

// NewMapCatalog 创建空目录
func NewMapCatalog() *MapCatalog {
	return &MapCatalog{
		nodes:   make(map[string]workflow.NodeFunc),
		routers: make(map[string]workflow.Router),
	}
}

// RegisterNode registers or replaces a node function.
func (c *MapCatalog) RegisterNode(name string, fn workflow.NodeFunc) *MapCatalog {
	c.nodes[name] = fn
	return c
}

// RegisterRouter registers or replaces a router.
func (c *MapCatalog) RegisterRouter(name string, r workflow.Router) *MapCatalog {
	c.routers[name] = r
	return c
}

func (c *MapCatalog) Node(name string) (workflow.NodeFunc, bool) {
	fn, ok := c.nodes[name]
	return fn, ok
}

func (c *MapCatalog) Router(name string) (workflow.Router, bool) {
	r, ok := c.routers[name]
	return r, ok
}

// NodeNames 已注册节点名（排序）
func (c *MapCatalog) NodeNames() []string { return sortedNames(c.nodes) }

// RouterNames 已注册路由名（排序）
func (c *MapCatalog) RouterNames() []string { return sortedNames(c.routers) }

func sortedNames[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
