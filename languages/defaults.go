package languages

// Default returns a registry with the built-in profiles.
func Default() *Registry {
	r := NewRegistry()
	r.Register(&Profile{Name: "toml", Extensions: []string{".toml"}})
	r.Register(&Profile{Name: "typescript", Extensions: []string{".ts", ".mts", ".cts"}})
	r.Register(&Profile{Name: "javascript", Extensions: []string{".js", ".mjs", ".cjs"}})
	r.Register(&Profile{Name: "json", Extensions: []string{".json"}, Formatter: JSONFormatter{}})
	r.Register(&Profile{Name: "go", Extensions: []string{".go"}, Formatter: GoFormatter{}})
	r.Register(&Profile{Name: "python", Extensions: []string{".py", ".pyi"}, Rules: mustRules("python")})
	r.Register(&Profile{Name: "rust", Extensions: []string{".rs"}, Formatter: Rustfmt(), Rules: mustRules("rust")})
	return r
}

// WithoutFormatters strips formatters from every registered profile.
func (r *Registry) WithoutFormatters() *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.profiles {
		p.Formatter = nil
	}
	return r
}

// SetFormatter replaces the formatter of the named profile.
func (r *Registry) SetFormatter(name string, f Formatter) bool {
	p, ok := r.ByName(name)
	if !ok {
		return false
	}
	r.mu.Lock()
	p.Formatter = f
	r.mu.Unlock()
	return true
}
