package pipeline

// StageType identifies the transformation a node performs.
type StageType string

const (
	StageImport      StageType = "import"
	StageSelect      StageType = "select"
	StageFilter      StageType = "filter"
	StageResample    StageType = "resample"
	StageReref       StageType = "reref"
	StageBadChannels StageType = "badchannels"
	StageBurst       StageType = "burst"
	StageICA         StageType = "ica"
	StageEpoch       StageType = "epoch"
	StageBaseline    StageType = "baseline"
	StageReject      StageType = "reject"
	StageAverage     StageType = "average"
	StageReport      StageType = "report"
)

// Node is one stage in the pipeline definition. Attrs carries the stage's
// parameters straight from the DOT file.
type Node struct {
	ID    string
	Type  StageType
	Attrs map[string]string
}

// CheckpointName returns the checkpoint this stage produces on success, or ""
// for a non-checkpointing stage.
func (n *Node) CheckpointName() string { return n.Attrs["checkpoint"] }

// Edge is a directed connection between two stages. Guard is an optional
// condition over run parameters; empty means unconditional.
type Edge struct {
	From  string
	To    string
	Guard string
}

// Pipeline is the parsed representation of a .dot pipeline file. Guards
// permit modality-specific branches in the definition, but every concrete
// run traverses a single linear path through it.
type Pipeline struct {
	Name       string
	Nodes      map[string]*Node
	Edges      []*Edge
	Stylesheet *Stylesheet
}

// OutgoingEdges returns all edges leaving nodeID, in definition order.
func (p *Pipeline) OutgoingEdges(nodeID string) []*Edge {
	var out []*Edge
	for _, e := range p.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// IncomingEdges returns all edges arriving at nodeID.
func (p *Pipeline) IncomingEdges(nodeID string) []*Edge {
	var out []*Edge
	for _, e := range p.Edges {
		if e.To == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// EntryNode returns the ID of the import stage, or "".
func (p *Pipeline) EntryNode() string {
	for id, n := range p.Nodes {
		if n.Type == StageImport {
			return id
		}
	}
	return ""
}

// CheckpointProducer returns the node that declares the given checkpoint
// name, or nil.
func (p *Pipeline) CheckpointProducer(name string) *Node {
	for _, n := range p.Nodes {
		if n.CheckpointName() == name {
			return n
		}
	}
	return nil
}
