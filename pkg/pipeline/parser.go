package pipeline

import (
	"fmt"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
)

// ParseDOT parses a Graphviz DOT string into a Pipeline. Node types must be
// valid stage names; that is checked by the validator, not here.
func ParseDOT(src string) (*Pipeline, error) {
	graphAst, err := gographviz.ParseString(src)
	if err != nil {
		return nil, fmt.Errorf("dot parse error: %w", err)
	}

	// Permissive collector: accept any attribute name without the strict
	// validation gographviz.Graph performs, since stage params are free-form.
	collector := newDOTCollector()
	if err := gographviz.Analyse(graphAst, collector); err != nil {
		return nil, fmt.Errorf("dot analyse error: %w", err)
	}

	p := &Pipeline{
		Name:  collector.name,
		Nodes: make(map[string]*Node),
	}

	for id, attrs := range collector.nodes {
		nodeCopy := make(map[string]string, len(attrs))
		for k, v := range attrs {
			nodeCopy[k] = v
		}
		p.Nodes[id] = &Node{
			ID:    id,
			Type:  StageType(attrs["type"]),
			Attrs: nodeCopy,
		}
	}

	// Edges keep definition order; it is the stage order.
	for _, e := range collector.edges {
		p.Edges = append(p.Edges, &Edge{
			From:  e.from,
			To:    e.to,
			Guard: e.guard,
		})
	}

	if raw, ok := collector.graphAttrs["param_stylesheet"]; ok {
		ss, err := parseStylesheet(raw)
		if err != nil {
			return nil, fmt.Errorf("param_stylesheet: %w", err)
		}
		p.Stylesheet = ss
	}

	return p, nil
}

// ─── permissive DOT collector ─────────────────────────────────────────────────

type rawEdge struct {
	from, to string
	guard    string
}

// dotCollector implements gographviz.Interface without attribute validation.
type dotCollector struct {
	name             string
	nodes            map[string]map[string]string // id → attrs
	edges            []rawEdge
	graphAttrs       map[string]string
	defaultNodeAttrs map[string]string // graph-level node [...] defaults
}

func newDOTCollector() *dotCollector {
	return &dotCollector{
		nodes:            make(map[string]map[string]string),
		graphAttrs:       make(map[string]string),
		defaultNodeAttrs: make(map[string]string),
	}
}

func (c *dotCollector) SetStrict(_ bool) error { return nil }
func (c *dotCollector) SetDir(_ bool) error    { return nil }
func (c *dotCollector) SetName(n string) error { c.name = unquote(n); return nil }
func (c *dotCollector) String() string         { return c.name }

func (c *dotCollector) AddNode(_ string, name string, attrs map[string]string) error {
	id := unquote(name)
	if _, ok := c.nodes[id]; !ok {
		c.nodes[id] = make(map[string]string, len(c.defaultNodeAttrs))
		for k, v := range c.defaultNodeAttrs {
			c.nodes[id][k] = v
		}
	}
	for k, v := range attrs {
		c.nodes[id][k] = unquote(v)
	}
	return nil
}

func (c *dotCollector) AddEdge(src, dst string, _ bool, attrs map[string]string) error {
	guard := ""
	if lbl, ok := attrs["label"]; ok {
		guard = unquote(lbl)
	}
	c.edges = append(c.edges, rawEdge{from: unquote(src), to: unquote(dst), guard: guard})
	return nil
}

func (c *dotCollector) AddPortEdge(src, _, dst, _ string, directed bool, attrs map[string]string) error {
	return c.AddEdge(src, dst, directed, attrs)
}

func (c *dotCollector) AddAttr(_ string, field, value string) error {
	c.graphAttrs[field] = unquote(value)
	return nil
}

func (c *dotCollector) AddSubGraph(_, _ string, _ map[string]string) error { return nil }

// unquote strips surrounding double-quotes from a DOT attribute value.
func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
