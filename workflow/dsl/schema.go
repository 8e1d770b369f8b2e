package dsl

// Document 状态图 DSL 顶层结构
type Document struct {
	// Version DSL 版本，目前仅支持 1.x
	Version string `yaml:"version" json:"version"`
	// Name 图名称
	Name string `yaml:"name" json:"name"`
	// Description 图描述
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// State 状态字段声明
	State []FieldDef `yaml:"state" json:"state"`

	// Entry 入口节点 ID
	Entry string `yaml:"entry" json:"entry"`
	// Nodes 节点定义
	Nodes []NodeDef `yaml:"nodes" json:"nodes"`
	// Edges 出边定义，每个节点恰好一条
	Edges []EdgeDef `yaml:"edges" json:"edges"`

	Metadata map[string]any `yaml:"metadata,omitempty" json:"metadata,omitempty"`
}

// FieldDef 状态字段定义
type FieldDef struct {
	Name    string `yaml:"name" json:"name"`
	Merge   string `yaml:"merge,omitempty" json:"merge,omitempty"` // overwrite (default), append
	Default any    `yaml:"default,omitempty" json:"default,omitempty"`
}

// NodeDef 节点定义：Use 引用 Catalog 中注册的节点函数，缺省时与 ID 相同
type NodeDef struct {
	ID          string `yaml:"id" json:"id"`
	Use         string `yaml:"use,omitempty" json:"use,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// EdgeDef is one node's outgoing rule. Exactly one form must be used:
//
//   - static:     to
//   - router:     router + routes (router looked up in the Catalog)
//   - branches:   branches (+ optional default), conditions evaluated in order
//
// Targets may be a node ID, "END" or "__end__".
type EdgeDef struct {
	From     string            `yaml:"from" json:"from"`
	To       string            `yaml:"to,omitempty" json:"to,omitempty"`
	Router   string            `yaml:"router,omitempty" json:"router,omitempty"`
	Routes   map[string]string `yaml:"routes,omitempty" json:"routes,omitempty"`
	Branches []BranchDef       `yaml:"branches,omitempty" json:"branches,omitempty"`
	Default  string            `yaml:"default,omitempty" json:"default,omitempty"`
}

// BranchDef 条件分支：When 成立时转移到 To
type BranchDef struct {
	Label string `yaml:"label,omitempty" json:"label,omitempty"`
	When  string `yaml:"when" json:"when"`
	To    string `yaml:"to" json:"to"`
}

func (e *EdgeDef) forms() int {
	n := 0
	if e.To != "" {
		n++
	}
	if e.Router != "" || len(e.Routes) > 0 {
		n++
	}
	if len(e.Branches) > 0 || e.Default != "" {
		n++
	}
	return n
}

func (n *NodeDef) use() string {
	if n.Use != "" {
		return n.Use
	}
	return n.ID
}
