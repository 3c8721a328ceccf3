package diagram

// Model is the intermediate representation used by all renderers.
type Model struct {
	Title string
	Nodes []*Node
	Edges []Edge
	// Levels groups node IDs by distance from the start node, one slice
	// per layout row.
	Levels [][]string
}

// Node represents a single workflow node in the diagram.
type Node struct {
	ID     string
	Label  string
	Kind   string // schema.NodeType as a string
	Status *StatusOverlay
}

// StatusOverlay carries runtime state from a run's step record.
type StatusOverlay struct {
	Status    string
	LatencyMs int64
	Error     string
}

// Edge represents a directed connection between two nodes. Label holds the
// edge condition, empty for default edges.
type Edge struct {
	From  string
	To    string
	Label string
}
