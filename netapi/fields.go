package netapi

import (
	"sort"
	"strings"
)

// Name variants for each field, across the languages the pipeline has
// met in the wild. Exact key matches win over substring matches.
var (
	titleVariants = []string{
		"title", "name", "label", "heading", "headline",
		"titre", "titel", "titulo", "nombre", "nom", "nazwa",
		"product_name", "display_name", "displayname",
	}
	subtitleVariants = []string{
		"subtitle", "author", "artist", "brand", "description",
		"auteur", "autor", "untertitel", "sous_titre",
	}
	urlVariants = []string{
		"url", "link", "href", "permalink", "uri", "path",
		"lien", "enlace", "product_url", "web_url",
	}
	imageVariants = []string{
		"image", "img", "thumbnail", "thumb", "cover", "picture",
		"photo", "poster", "icon", "image_url", "imageurl",
		"bild", "imagen", "cover_url", "thumbnail_url",
	}
)

// detectFields searches a sample result item for title/subtitle/url/
// image paths. String-valued keys and single-element string arrays are
// candidates; nested objects are searched recursively with dotted
// paths. The first exact name match wins; substring matches are the
// fallback.
func detectFields(item map[string]any) FieldPaths {
	candidates := collectStringPaths(item, "", 0)

	return FieldPaths{
		Title:    pickPath(candidates, titleVariants),
		Subtitle: pickPath(candidates, subtitleVariants),
		URL:      pickPath(candidates, urlVariants),
		Image:    pickPath(candidates, imageVariants),
	}
}

type pathCandidate struct {
	path string // dotted path, e.g. "attributes.title" or "images[0]"
	key  string // last key segment, lowercased
}

const maxFieldDepth = 4

// collectStringPaths gathers every string-valued path in the item, in
// deterministic (sorted-key) order so classification is reproducible.
func collectStringPaths(obj map[string]any, prefix string, depth int) []pathCandidate {
	if depth > maxFieldDepth {
		return nil
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []pathCandidate
	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		switch v := obj[k].(type) {
		case string:
			out = append(out, pathCandidate{path: path, key: strings.ToLower(k)})
		case []any:
			// A single-element string array is treated as the string.
			if len(v) == 1 {
				if _, isStr := v[0].(string); isStr {
					out = append(out, pathCandidate{path: path + "[0]", key: strings.ToLower(k)})
				}
			}
		case map[string]any:
			out = append(out, collectStringPaths(v, path, depth+1)...)
		}
	}
	return out
}

// pickPath selects the best candidate for a variant list: first exact
// key match in variant order, then first substring match.
func pickPath(candidates []pathCandidate, variants []string) string {
	for _, variant := range variants {
		for _, c := range candidates {
			if c.key == variant {
				return c.path
			}
		}
	}
	for _, variant := range variants {
		for _, c := range candidates {
			if strings.Contains(c.key, variant) {
				return c.path
			}
		}
	}
	return ""
}
