package pmago

import "time"

// Insert adds the element to the index. Keys are expected to be unique;
// inserting a key twice leaves both entries in the array and is
// otherwise unspecified.
//
// The only failure mode is memory exhaustion while growing the backing
// store; the index is then unchanged.
func (p *PMA) Insert(key, value int64) error {
	start := time.Now()

	var err error
	if p.Empty() {
		p.insertEmpty(key, value)
	} else {
		err = p.insertCommon(p.index.Find(key), key, value)
	}

	p.metrics.RecordInsert(time.Since(start), err)
	p.logger.LogInsert(key, err)
	return err
}

// insertEmpty materialises the very first element in segment 0.
func (p *PMA) insertEmpty(key, value int64) {
	p.index.SetSeparatorKey(0, key)
	p.st.sizes[0] = 1
	pos := p.st.segmentCapacity - 1
	p.st.keys[pos] = key
	p.st.values[pos] = value
	p.st.cardinality = 1
}

func (p *PMA) insertCommon(segmentID int, key, value int64) error {
	if int(p.st.sizes[segmentID]) == p.st.segmentCapacity {
		return p.rebalance(segmentID, &Element{Key: key, Value: value})
	}

	if minimumUpdated := p.st.insertUnsafe(segmentID, key, value); minimumUpdated {
		p.index.SetSeparatorKey(segmentID, key)
	}
	return nil
}
