// Package domloop infers the repeating-item loop structure of a result
// page from a handful of known result anchors. A wrong loop base is the
// most common cause of "only one result extracted", so this inference
// is the single most important artifact handed to step authoring.
package domloop

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/net/html"
)

// ErrNoCommonAncestor is returned when the anchors share no ancestor
// below the document root, which means they are not one result list.
var ErrNoCommonAncestor = errors.New("domloop: anchors share no common ancestor")

// ErrMixedWrappers is returned when result wrappers are neither
// consecutive siblings nor a single shared tag, so no loop base can be
// emitted.
var ErrMixedWrappers = errors.New("domloop: wrappers are non-consecutive and of mixed tags")

// IndexPlaceholder is the positional placeholder embedded in loop base
// templates and expanded by the step execution engine.
const IndexPlaceholder = "$i"

// FieldSelectors holds per-field selectors sampled from one wrapper,
// relative to the loop base.
type FieldSelectors struct {
	Title string `json:"title,omitempty"`
	URL   string `json:"url,omitempty"`
	Image string `json:"image,omitempty"`
}

// Structure is the inferred loop structure of a result list.
type Structure struct {
	// Container is a selector for the deepest ancestor common to all
	// known anchors.
	Container string `json:"container"`

	// WrapperSelector identifies one result wrapper (tag plus classes).
	WrapperSelector string `json:"wrapper_selector"`

	// Positions are the 1-based sibling indices occupied by results
	// under the container, sorted ascending.
	Positions []int `json:"positions"`

	// IsConsecutive is true when Positions form a contiguous run,
	// enabling positional (nth-child) selection.
	IsConsecutive bool `json:"is_consecutive"`

	// LoopBase is the selector template containing IndexPlaceholder.
	LoopBase string `json:"loop_base"`

	// Recommendation explains which selection strategy was chosen and
	// why, for the authoring collaborator.
	Recommendation string `json:"recommendation"`

	Fields FieldSelectors `json:"fields"`
}

// Infer derives the loop structure from known result anchor nodes. The
// anchors normally come from scored search results; hints supplied by
// an operator work the same way.
func Infer(anchors []*html.Node) (*Structure, error) {
	if len(anchors) < 2 {
		return nil, fmt.Errorf("domloop: need at least 2 anchors, got %d", len(anchors))
	}

	ancestor := commonAncestor(anchors)
	if ancestor == nil || ancestor.Type == html.DocumentNode {
		return nil, ErrNoCommonAncestor
	}

	// Per anchor: walk up until the parent is the common ancestor,
	// yielding the top-level item wrapper. Distinct anchors may land in
	// the same wrapper (e.g. a title link and an image link).
	seen := map[*html.Node]bool{}
	var wrappers []*html.Node
	for _, a := range anchors {
		w := a
		for w.Parent != nil && w.Parent != ancestor {
			w = w.Parent
		}
		if w.Parent != ancestor {
			return nil, ErrNoCommonAncestor
		}
		if !seen[w] {
			seen[w] = true
			wrappers = append(wrappers, w)
		}
	}

	positions := make([]int, 0, len(wrappers))
	for _, w := range wrappers {
		positions = append(positions, childPosition(w))
	}
	sort.Ints(positions)

	container := selectorFor(ancestor)
	wrapperSel := selectorFor(wrappers[0])

	st := &Structure{
		Container:       container,
		WrapperSelector: wrapperSel,
		Positions:       positions,
		Fields:          sampleFields(wrappers[0]),
	}

	if isContiguous(positions) {
		st.IsConsecutive = true
		first, last := positions[0], positions[len(positions)-1]
		if first == 1 {
			st.LoopBase = fmt.Sprintf("%s > :nth-child(%s)", container, IndexPlaceholder)
			st.Recommendation = fmt.Sprintf(
				"result wrappers occupy consecutive sibling positions %d..%d; use index-based sibling selection",
				first, last)
			return st, nil
		}
		// The run starts above position 1 (heading row, promo slot), so
		// nth-child indexed from 1 would select the non-result. Prefer
		// type-based selection when the wrappers are the only elements
		// of their tag.
		if tag, shared := sharedTag(wrappers); shared && typeContiguousFromOne(wrappers) {
			st.LoopBase = fmt.Sprintf("%s > %s:nth-of-type(%s)", container, tag, IndexPlaceholder)
			st.Recommendation = fmt.Sprintf(
				"result wrappers sit at sibling positions %d..%d behind non-result furniture; type-based selection over <%s> starts the index at the first result",
				first, last, tag)
			return st, nil
		}
		st.LoopBase = fmt.Sprintf("%s > :nth-child(%s)", container, IndexPlaceholder)
		st.Recommendation = fmt.Sprintf(
			"result wrappers occupy consecutive sibling positions %d..%d; iterate the index from %d, lower positions hold non-result furniture",
			first, last, first)
		return st, nil
	}

	// Gaps between wrappers (ads, separators). Fall back to selecting
	// the shared tag positionally if there is one.
	tag, shared := sharedTag(wrappers)
	if !shared {
		return nil, fmt.Errorf("%w: positions %v", ErrMixedWrappers, positions)
	}
	st.IsConsecutive = false
	st.LoopBase = fmt.Sprintf("%s > %s:nth-of-type(%s)", container, tag, IndexPlaceholder)
	st.Recommendation = fmt.Sprintf(
		"result wrappers sit at non-consecutive positions %v; index-based sibling selection would hit gaps, use type-based selection over <%s> instead",
		positions, tag)
	return st, nil
}

// commonAncestor finds the deepest node present in every anchor's
// ancestor chain, by pairwise chain comparison at matching depth.
func commonAncestor(anchors []*html.Node) *html.Node {
	chains := make([][]*html.Node, len(anchors))
	minLen := -1
	for i, a := range anchors {
		chains[i] = ancestorChain(a)
		if minLen < 0 || len(chains[i]) < minLen {
			minLen = len(chains[i])
		}
	}

	var deepest *html.Node
	for depth := 0; depth < minLen; depth++ {
		node := chains[0][depth]
		for _, ch := range chains[1:] {
			if ch[depth] != node {
				return deepest
			}
		}
		deepest = node
	}
	return deepest
}

// ancestorChain returns the chain root..parent for a node (excluding
// the node itself).
func ancestorChain(n *html.Node) []*html.Node {
	var chain []*html.Node
	for p := n.Parent; p != nil; p = p.Parent {
		chain = append(chain, p)
	}
	// Reverse to root-first order so chains align by depth.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// childPosition returns the node's 1-based position among its parent's
// element children, matching CSS :nth-child semantics.
func childPosition(n *html.Node) int {
	pos := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		pos++
		if c == n {
			return pos
		}
	}
	return 0
}

// typeContiguousFromOne reports whether the wrappers occupy same-tag
// sibling positions 1..n, so nth-of-type indexed from 1 hits exactly
// the result wrappers.
func typeContiguousFromOne(wrappers []*html.Node) bool {
	positions := make([]int, 0, len(wrappers))
	for _, w := range wrappers {
		positions = append(positions, typePosition(w))
	}
	sort.Ints(positions)
	return isContiguous(positions) && positions[0] == 1
}

// typePosition returns the node's 1-based position among same-tag
// element siblings, matching CSS :nth-of-type semantics.
func typePosition(n *html.Node) int {
	pos := 0
	for c := n.Parent.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode || c.Data != n.Data {
			continue
		}
		pos++
		if c == n {
			return pos
		}
	}
	return 0
}

func isContiguous(sorted []int) bool {
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1]+1 {
			return false
		}
	}
	return len(sorted) > 0
}

// sharedTag reports the single tag name shared by all wrappers, if any.
func sharedTag(wrappers []*html.Node) (string, bool) {
	tag := wrappers[0].Data
	for _, w := range wrappers[1:] {
		if w.Data != tag {
			return "", false
		}
	}
	return tag, true
}

// selectorFor builds a stable selector for a node: id when present,
// otherwise tag plus up to two short classes.
func selectorFor(n *html.Node) string {
	if id := attr(n, "id"); id != "" && !strings.ContainsAny(id, " :") {
		return "#" + id
	}
	sel := n.Data
	classes := strings.Fields(attr(n, "class"))
	kept := 0
	for _, c := range classes {
		if len(c) >= 30 || strings.ContainsAny(c, ":[]()") {
			continue // skip utility/generated class names
		}
		sel += "." + c
		kept++
		if kept == 2 {
			break
		}
	}
	return sel
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
