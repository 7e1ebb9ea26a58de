package pipeline

import (
	"fmt"
	"strings"
)

// Stylesheet holds CSS-like default-parameter rules declared at the graph
// level via the param_stylesheet attribute. Rules supply defaults shared
// across pipelines (lab-wide passbands, rejection bounds) without repeating
// them on every node.
type Stylesheet struct {
	Rules []ParamRule
}

// ParamRule applies parameter defaults to nodes matching a selector.
type ParamRule struct {
	Selector string // "*", "type[filter]" or "id[epoch_faces]"
	Params   map[string]string
}

// ApplyStylesheet fills in node attrs from matching rules. Explicitly set
// node attrs always win over stylesheet defaults.
func ApplyStylesheet(p *Pipeline) {
	if p.Stylesheet == nil {
		return
	}
	for _, rule := range p.Stylesheet.Rules {
		for _, node := range p.Nodes {
			if !matchesSelector(rule.Selector, node) {
				continue
			}
			if node.Attrs == nil {
				node.Attrs = make(map[string]string)
			}
			for k, v := range rule.Params {
				if _, set := node.Attrs[k]; !set {
					node.Attrs[k] = v
				}
			}
		}
	}
}

// matchesSelector returns true if the node matches the given selector.
func matchesSelector(selector string, node *Node) bool {
	selector = strings.TrimSpace(selector)
	if selector == "*" {
		return true
	}
	if strings.HasPrefix(selector, "type[") && strings.HasSuffix(selector, "]") {
		return string(node.Type) == selector[5:len(selector)-1]
	}
	if strings.HasPrefix(selector, "id[") && strings.HasSuffix(selector, "]") {
		return node.ID == selector[3:len(selector)-1]
	}
	return false
}

// parseStylesheet parses a block-per-selector stylesheet:
//
//	type[filter] { highpass_hz: "1"; lowpass_hz: "40" }
//	type[reject] { min_uv: "-400"; max_uv: "400" }
func parseStylesheet(src string) (*Stylesheet, error) {
	ss := &Stylesheet{}
	for _, part := range strings.Split(strings.TrimSpace(src), "}") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		braceIdx := strings.Index(part, "{")
		if braceIdx < 0 {
			return nil, fmt.Errorf("rule %q missing '{'", part)
		}
		rule := ParamRule{
			Selector: strings.TrimSpace(part[:braceIdx]),
			Params:   make(map[string]string),
		}
		for _, line := range strings.Split(part[braceIdx+1:], ";") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			kv := strings.SplitN(line, ":", 2)
			if len(kv) != 2 {
				return nil, fmt.Errorf("rule %q: malformed declaration %q", rule.Selector, line)
			}
			k := strings.TrimSpace(kv[0])
			v := strings.Trim(strings.TrimSpace(kv[1]), `"`)
			rule.Params[k] = v
		}
		ss.Rules = append(ss.Rules, rule)
	}
	return ss, nil
}
