package workflow

import "github.com/dukex/chatflow/pkg/models"

// Resolve picks the edge to follow after a node produced handle. A handle
// without a matching edge falls back to the first edge unless strict is set.
// It returns false when the workflow ends here.
func Resolve(edges []*models.Connection, handle string, strict bool) (string, bool) {
	if len(edges) == 0 {
		return "", false
	}

	if handle == "" {
		return edges[0].Target, true
	}

	for _, edge := range edges {
		if edge.SourceHandle == handle {
			return edge.Target, true
		}
	}

	if strict {
		return "", false
	}

	return edges[0].Target, true
}
