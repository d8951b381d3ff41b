// Package pastmediantimemanager computes past median time over a window on
// the selected-parent chain (spec.md glossary, "Past median time"), grounded
// on the teacher's consensus/pastmediantime package.
package pastmediantimemanager

import (
	"sort"

	"github.com/kasparov-dag/corenode/domain/consensus/model/externalapi"
	"github.com/pkg/errors"
)

type headerStoreReader interface {
	Header(hash *externalapi.DomainHash) (*externalapi.DomainBlockHeader, error)
}

type ghostdagStoreReader interface {
	Get(hash *externalapi.DomainHash, isTrustedData bool) (*externalapi.GhostdagData, error)
}

// Manager computes the median timestamp of a fixed-size window walking back
// along the selected-parent chain from a given block's GhostdagData.
type Manager struct {
	headerStore   headerStoreReader
	ghostdagStore ghostdagStoreReader
	windowSize    int
}

// New returns a Manager with the given window size (config.Params.PastMedianTimeWindowSize).
func New(headerStore headerStoreReader, ghostdagStore ghostdagStoreReader, windowSize int) *Manager {
	return &Manager{headerStore: headerStore, ghostdagStore: ghostdagStore, windowSize: windowSize}
}

// PastMedianTime returns the median of the timestamps of the windowSize
// blocks ending at ghostdagData's selected parent.
func (pmtm *Manager) PastMedianTime(ghostdagData *externalapi.GhostdagData) (int64, error) {
	timestamps := make([]int64, 0, pmtm.windowSize)

	current := ghostdagData.SelectedParent
	for i := 0; i < pmtm.windowSize && !externalapi.IsOrigin(current); i++ {
		header, err := pmtm.headerStore.Header(current)
		if err != nil {
			return 0, errors.Wrapf(err, "past median time window: header missing for %s", current)
		}
		timestamps = append(timestamps, header.TimeInMilliseconds)

		data, err := pmtm.ghostdagStore.Get(current, false)
		if err != nil {
			return 0, errors.Wrapf(err, "past median time window: ghostdag data missing for %s", current)
		}
		current = data.SelectedParent
	}

	if len(timestamps) == 0 {
		return 0, nil
	}

	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	return timestamps[len(timestamps)/2], nil
}
