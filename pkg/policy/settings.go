package policy

// Settings maps factors to their normalized string values. A factor absent
// from the map has no value at that scope; empty strings are never stored.
type Settings map[Factor]string

// Set stores a normalized value, dropping empties.
func (s Settings) Set(f Factor, value string) {
	v := Normalize(f, value)
	if v == "" {
		return
	}
	s[f] = v
}

// Get returns the value for f and whether it is present.
func (s Settings) Get(f Factor) (string, bool) {
	v, ok := s[f]
	return v, ok
}

// Clone returns a shallow copy of the settings map.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for f, v := range s {
		out[f] = v
	}
	return out
}
