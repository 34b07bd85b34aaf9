package catalog

import "encoding/json"

// rawImage is an iFixit image descriptor. The API sometimes sends false or
// an id instead of an object; those decode to an empty image.
type rawImage struct {
	Type  string
	Text  string
	Sizes map[string]string
}

func (r *rawImage) UnmarshalJSON(b []byte) error {
	var fields map[string]any
	if err := json.Unmarshal(b, &fields); err != nil || fields == nil {
		*r = rawImage{}
		return nil
	}
	img := rawImage{Sizes: map[string]string{}}
	for k, v := range fields {
		s, ok := v.(string)
		if !ok {
			continue
		}
		switch k {
		case "type":
			img.Type = s
		case "text":
			img.Text = s
		default:
			img.Sizes[k] = s
		}
	}
	*r = img
	return nil
}

// pick returns the first available size.
func (r *rawImage) pick(sizes ...string) string {
	if r == nil {
		return ""
	}
	for _, s := range sizes {
		if v := r.Sizes[s]; v != "" {
			return v
		}
	}
	return ""
}
