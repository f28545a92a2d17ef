package stablebt

// ExportStat is a snapshot of engine counters since Init. The counters are
// advisory; nothing in the persisted format depends on them.
type ExportStat struct {
	NodeReads  uint64
	NodeWrites uint64
	NodeAllocs uint64
	NodeFrees  uint64
	Splits     uint64
	Merges     uint64
	Rotations  uint64
}

type iStat struct {
	nodeReads  uint64
	nodeWrites uint64
	nodeAllocs uint64
	nodeFrees  uint64
	splits     uint64
	merges     uint64
	rotations  uint64
}

func (s *iStat) export() ExportStat {
	return ExportStat{
		NodeReads:  s.nodeReads,
		NodeWrites: s.nodeWrites,
		NodeAllocs: s.nodeAllocs,
		NodeFrees:  s.nodeFrees,
		Splits:     s.splits,
		Merges:     s.merges,
		Rotations:  s.rotations,
	}
}
