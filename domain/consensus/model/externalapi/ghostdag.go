package externalapi

// KType is the small integer type used for k-cluster bounded counters
// (blue anticone sizes, the ghostdag_k parameter). Its uint8 range caps
// these values at 255.
type KType uint8

// GhostdagData is the per-block output of the GHOSTDAG protocol. It is
// append-only once written: a block's GhostdagData never changes after
// being staged by the header processor.
type GhostdagData struct {
	BlueScore          uint64
	BlueWork           *BlueWork
	SelectedParent     *DomainHash
	MergeSetBlues      []*DomainHash
	MergeSetReds       []*DomainHash
	BluesAnticoneSizes map[DomainHash]KType
}

// NewGenesisGhostdagData returns the GhostdagData recorded for the genesis
// block: selected parent ORIGIN, empty mergesets, zero score and work.
func NewGenesisGhostdagData() *GhostdagData {
	return &GhostdagData{
		BlueScore:          0,
		BlueWork:           ZeroBlueWork(),
		SelectedParent:     &ORIGIN,
		MergeSetBlues:      []*DomainHash{},
		MergeSetReds:       []*DomainHash{},
		BluesAnticoneSizes: map[DomainHash]KType{},
	}
}

// MergeSet returns mergeset blues followed by mergeset reds, the selected
// parent always first.
func (gd *GhostdagData) MergeSet() []*DomainHash {
	merged := make([]*DomainHash, 0, len(gd.MergeSetBlues)+len(gd.MergeSetReds))
	merged = append(merged, gd.MergeSetBlues...)
	merged = append(merged, gd.MergeSetReds...)
	return merged
}

// IsBlue returns whether hash is recorded as blue in this block's mergeset.
func (gd *GhostdagData) IsBlue(hash *DomainHash) bool {
	for _, blue := range gd.MergeSetBlues {
		if blue.Equal(hash) {
			return true
		}
	}
	return false
}
