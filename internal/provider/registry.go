package provider

import (
	"fmt"
	"sort"
	"strings"
)

// Registry 是 provider 的只读注册表（按 name 索引）。
// CLI 通过它解析 --provider；未注册的名字视为依赖加载失败。
type Registry struct {
	byName map[string]Provider
}

func NewRegistry(providers ...Provider) (Registry, error) {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p == nil {
			return Registry{}, fmt.Errorf("provider must not be nil")
		}
		name := strings.ToLower(strings.TrimSpace(p.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("provider name must not be empty")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("duplicate provider %q", name)
		}
		byName[name] = p
	}
	return Registry{byName: byName}, nil
}

func (r Registry) Get(name string) (Provider, bool) {
	if r.byName == nil {
		return nil, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	p, ok := r.byName[name]
	return p, ok
}

// Lookup 与 Get 相同，但未注册时返回带可选列表的错误。
func (r Registry) Lookup(name string) (Provider, error) {
	if p, ok := r.Get(name); ok {
		return p, nil
	}
	return nil, fmt.Errorf("unknown provider %q (available: %s)", name, strings.Join(r.Names(), ", "))
}

// Names 返回已注册的 provider 名称（字典序）。
func (r Registry) Names() []string {
	out := make([]string, 0, len(r.byName))
	for n := range r.byName {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
