package pik

// RestorationParams configures the adaptive-restoration filter applied
// after decoding a pass. Present on the wire only when the pass header's
// HaveAdaptiveReconstruction guard is set.
type RestorationParams struct {
	AllDefault bool

	// Strength scales the filter, 1 being the nominal strength.
	Strength uint32

	// EdgeThreshold stops the filter from smoothing across edges whose
	// contrast exceeds the threshold. 0 uses the built-in default.
	EdgeThreshold uint32
}

func (p *RestorationParams) visitFields(v visitor) error {
	if v.AllDefault(p, &p.AllDefault) {
		return v.Err()
	}

	v.U32(distRestoration, 1, &p.Strength)
	v.U32(distEdgeThreshold, 0, &p.EdgeThreshold)

	return v.Err()
}
