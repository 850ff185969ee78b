package llm

// ReconcileDimension fits a vector to the configured store dimension: shorter
// vectors get trailing zeros, longer ones are truncated. This is a
// compatibility shim for mismatched model/schema configuration; callers log
// when adjusted is true but never fail a chunk for it.
func ReconcileDimension(vec []float32, dim int) (out []float32, adjusted bool) {
	switch {
	case len(vec) == dim:
		return vec, false
	case len(vec) < dim:
		out = make([]float32, dim)
		copy(out, vec)
		return out, true
	default:
		return vec[:dim], true
	}
}
