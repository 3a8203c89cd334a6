package filtergraph

// effectFilters maps applied-effect identifiers to their filter expression.
// The table is deliberately closed; unknown ids are skipped by the caller.
var effectFilters = map[string]string{
	"blur":      "gblur=sigma=10",
	"grayscale": "hue=s=0",
	"sepia":     "colorchannelmixer=.393:.769:.189:0:.349:.686:.168:0:.272:.534:.131",
	"invert":    "negate",
	"vignette":  "vignette",
}

// EffectFilterChain compiles applied-effect ids into a sequential filter
// chain. Unknown ids are returned separately so the caller can log them;
// they never fail compilation.
func EffectFilterChain(ids []string) (chain string, unknown []string) {
	var filters []string
	for _, id := range ids {
		f, ok := effectFilters[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		filters = append(filters, f)
	}
	if len(filters) == 0 {
		return "", unknown
	}
	out := filters[0]
	for _, f := range filters[1:] {
		out += "," + f
	}
	return out, unknown
}
