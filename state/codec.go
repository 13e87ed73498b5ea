package state

import (
	"github.com/anirudhkovuru/pravega/checkpoint"
	"github.com/anirudhkovuru/pravega/model"
)

// BinaryCodec implements syncetcd.Snapshotter over State using the
// length-prefixed layout model.Writer/model.Reader provide, wrapped in
// the {writeVersion, revision, payload} envelope §6.3 specifies.
type BinaryCodec struct{}

func (BinaryCodec) Marshal(s *State) ([]byte, error) {
	payload := marshalState(s)
	return model.EncodeEnvelope(model.Envelope{
		WriteVersion: model.WriteVersion,
		Revision:     model.WriteVersion,
		Payload:      payload,
	}), nil
}

func (BinaryCodec) Unmarshal(b []byte) (*State, error) {
	env, err := model.DecodeEnvelope(b)
	if err != nil {
		return nil, err
	}
	return unmarshalState(env.Payload)
}

func marshalState(s *State) []byte {
	w := model.NewWriter()
	if s == nil {
		w.PutUint8(0)
		return w.Bytes()
	}
	w.PutUint8(1)
	w.PutUint8(uint8(s.ConfigState))
	w.PutUint64(s.Generation)

	putConfig(w, s.Config)
	if s.NewConfig != nil {
		w.PutUint8(1)
		putConfig(w, *s.NewConfig)
	} else {
		w.PutUint8(0)
	}

	w.PutUint32(uint32(len(s.OnlineReaders)))
	for r := range s.OnlineReaders {
		w.PutString(string(r))
	}

	w.PutUint32(uint32(len(s.AssignedSegments)))
	for r, segs := range s.AssignedSegments {
		w.PutString(string(r))
		putSegmentOffsets(w, segs)
	}

	putSegmentOffsets(w, s.UnassignedSegments)

	w.PutUint32(uint32(len(s.EndSegments)))
	for seg, off := range s.EndSegments {
		putSegment(w, seg)
		w.PutInt64(off)
	}

	w.PutUint32(uint32(len(s.LastReadPositions)))
	for stream, pos := range s.LastReadPositions {
		putStream(w, stream)
		putSegmentOffsets(w, pos)
	}

	w.PutUint32(uint32(len(s.DistanceToTail)))
	for r, d := range s.DistanceToTail {
		w.PutString(string(r))
		w.PutInt64(d)
	}

	putCheckpoints(w, s.Checkpoints)
	return w.Bytes()
}

func unmarshalState(b []byte) (*State, error) {
	r := model.NewReader(b)
	present, err := r.GetUint8()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	s := &State{
		OnlineReaders:      map[model.ReaderID]bool{},
		AssignedSegments:   map[model.ReaderID]map[model.SegmentWithRange]int64{},
		UnassignedSegments: map[model.SegmentWithRange]int64{},
		EndSegments:        map[model.Segment]int64{},
		LastReadPositions:  map[model.Stream]map[model.SegmentWithRange]int64{},
		DistanceToTail:     map[model.ReaderID]int64{},
	}
	cs, err := r.GetUint8()
	if err != nil {
		return nil, err
	}
	s.ConfigState = model.ConfigState(cs)
	if s.Generation, err = r.GetUint64(); err != nil {
		return nil, err
	}
	if s.Config, err = getConfig(r); err != nil {
		return nil, err
	}
	hasNew, err := r.GetUint8()
	if err != nil {
		return nil, err
	}
	if hasNew == 1 {
		nc, err := getConfig(r)
		if err != nil {
			return nil, err
		}
		s.NewConfig = &nc
	}

	nOnline, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nOnline; i++ {
		id, err := r.GetString()
		if err != nil {
			return nil, err
		}
		s.OnlineReaders[model.ReaderID(id)] = true
	}

	nAssigned, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nAssigned; i++ {
		id, err := r.GetString()
		if err != nil {
			return nil, err
		}
		segs, err := getSegmentOffsets(r)
		if err != nil {
			return nil, err
		}
		s.AssignedSegments[model.ReaderID(id)] = segs
	}

	if s.UnassignedSegments, err = getSegmentOffsets(r); err != nil {
		return nil, err
	}

	nEnd, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nEnd; i++ {
		seg, err := getSegment(r)
		if err != nil {
			return nil, err
		}
		off, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		s.EndSegments[seg] = off
	}

	nStreams, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nStreams; i++ {
		stream, err := getStream(r)
		if err != nil {
			return nil, err
		}
		pos, err := getSegmentOffsets(r)
		if err != nil {
			return nil, err
		}
		s.LastReadPositions[stream] = pos
	}

	nDist, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nDist; i++ {
		id, err := r.GetString()
		if err != nil {
			return nil, err
		}
		d, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		s.DistanceToTail[model.ReaderID(id)] = d
	}

	if s.Checkpoints, err = getCheckpoints(r); err != nil {
		return nil, err
	}
	return s, nil
}

func putStream(w *model.Writer, s model.Stream) {
	w.PutString(s.Scope)
	w.PutString(s.Name)
}

func getStream(r *model.Reader) (model.Stream, error) {
	scope, err := r.GetString()
	if err != nil {
		return model.Stream{}, err
	}
	name, err := r.GetString()
	if err != nil {
		return model.Stream{}, err
	}
	return model.Stream{Scope: scope, Name: name}, nil
}

func putSegment(w *model.Writer, seg model.Segment) {
	putStream(w, seg.Stream)
	w.PutUint64(seg.SegmentID)
}

func getSegment(r *model.Reader) (model.Segment, error) {
	stream, err := getStream(r)
	if err != nil {
		return model.Segment{}, err
	}
	id, err := r.GetUint64()
	if err != nil {
		return model.Segment{}, err
	}
	return model.Segment{Stream: stream, SegmentID: id}, nil
}

func putSegmentWithRange(w *model.Writer, seg model.SegmentWithRange) {
	putSegment(w, seg.Segment)
	if seg.Range != nil {
		w.PutUint8(1)
		w.PutUint64(uint64(int64(seg.Range.Low * 1e9)))
		w.PutUint64(uint64(int64(seg.Range.High * 1e9)))
	} else {
		w.PutUint8(0)
	}
}

func getSegmentWithRange(r *model.Reader) (model.SegmentWithRange, error) {
	seg, err := getSegment(r)
	if err != nil {
		return model.SegmentWithRange{}, err
	}
	hasRange, err := r.GetUint8()
	if err != nil {
		return model.SegmentWithRange{}, err
	}
	sr := model.SegmentWithRange{Segment: seg}
	if hasRange == 1 {
		lo, err := r.GetUint64()
		if err != nil {
			return model.SegmentWithRange{}, err
		}
		hi, err := r.GetUint64()
		if err != nil {
			return model.SegmentWithRange{}, err
		}
		sr.Range = &model.KeyRange{Low: float64(int64(lo)) / 1e9, High: float64(int64(hi)) / 1e9}
	}
	return sr, nil
}

func putSegmentOffsets(w *model.Writer, m map[model.SegmentWithRange]int64) {
	w.PutUint32(uint32(len(m)))
	for seg, off := range m {
		putSegmentWithRange(w, seg)
		w.PutInt64(off)
	}
}

func getSegmentOffsets(r *model.Reader) (map[model.SegmentWithRange]int64, error) {
	n, err := r.GetUint32()
	if err != nil {
		return nil, err
	}
	m := make(map[model.SegmentWithRange]int64, n)
	for i := uint32(0); i < n; i++ {
		seg, err := getSegmentWithRange(r)
		if err != nil {
			return nil, err
		}
		off, err := r.GetInt64()
		if err != nil {
			return nil, err
		}
		m[seg] = off
	}
	return m, nil
}

func putConfig(w *model.Writer, c model.ReaderGroupConfig) {
	w.PutUint32(uint32(len(c.StartingStreamCuts)))
	for stream, cut := range c.StartingStreamCuts {
		putStream(w, stream)
		w.PutBytes(model.MarshalStreamCut(cut))
	}
	w.PutUint32(uint32(len(c.EndingStreamCuts)))
	for stream, cut := range c.EndingStreamCuts {
		putStream(w, stream)
		w.PutBytes(model.MarshalStreamCut(cut))
	}
	w.PutUint8(uint8(c.RetentionPolicy))
	w.PutUint32(c.MaxOutstandingCheckpointRequest)
	if c.AutomaticCheckpointsDisabled {
		w.PutUint8(1)
	} else {
		w.PutUint8(0)
	}
	w.PutUint64(c.GroupRefreshTimeMillis)
}

func getConfig(r *model.Reader) (model.ReaderGroupConfig, error) {
	var c model.ReaderGroupConfig
	nStart, err := r.GetUint32()
	if err != nil {
		return c, err
	}
	if nStart > 0 {
		c.StartingStreamCuts = make(map[model.Stream]model.StreamCut, nStart)
	}
	for i := uint32(0); i < nStart; i++ {
		stream, err := getStream(r)
		if err != nil {
			return c, err
		}
		raw, err := r.GetBytes()
		if err != nil {
			return c, err
		}
		cut, err := model.UnmarshalStreamCut(raw)
		if err != nil {
			return c, err
		}
		c.StartingStreamCuts[stream] = cut
	}
	nEnd, err := r.GetUint32()
	if err != nil {
		return c, err
	}
	if nEnd > 0 {
		c.EndingStreamCuts = make(map[model.Stream]model.StreamCut, nEnd)
	}
	for i := uint32(0); i < nEnd; i++ {
		stream, err := getStream(r)
		if err != nil {
			return c, err
		}
		raw, err := r.GetBytes()
		if err != nil {
			return c, err
		}
		cut, err := model.UnmarshalStreamCut(raw)
		if err != nil {
			return c, err
		}
		c.EndingStreamCuts[stream] = cut
	}
	rp, err := r.GetUint8()
	if err != nil {
		return c, err
	}
	c.RetentionPolicy = model.RetentionPolicyKind(rp)
	if c.MaxOutstandingCheckpointRequest, err = r.GetUint32(); err != nil {
		return c, err
	}
	disabled, err := r.GetUint8()
	if err != nil {
		return c, err
	}
	c.AutomaticCheckpointsDisabled = disabled == 1
	if c.GroupRefreshTimeMillis, err = r.GetUint64(); err != nil {
		return c, err
	}
	return c, nil
}

func putCheckpoints(w *model.Writer, cp checkpoint.State) {
	w.PutUint32(uint32(len(cp.Outstanding)))
	for _, round := range cp.Outstanding {
		w.PutString(string(round.ID))
		if round.Silent {
			w.PutUint8(1)
		} else {
			w.PutUint8(0)
		}
		w.PutUint32(uint32(len(round.Pending)))
		for reader := range round.Pending {
			w.PutString(string(reader))
		}
		w.PutUint32(uint32(len(round.Reported)))
		for reader, positions := range round.Reported {
			w.PutString(string(reader))
			w.PutUint32(uint32(len(positions)))
			for seg, off := range positions {
				putSegment(w, seg)
				w.PutInt64(off)
			}
		}
		w.PutUint32(uint32(len(round.Snapshot)))
		for reader := range round.Snapshot {
			w.PutString(string(reader))
		}
	}
	if cp.LastCompleted != nil {
		w.PutUint8(1)
		w.PutString(string(cp.LastCompleted.ID))
		w.PutUint32(uint32(len(cp.LastCompleted.Positions)))
		for stream, cut := range cp.LastCompleted.Positions {
			putStream(w, stream)
			w.PutUint32(uint32(len(cut)))
			for seg, off := range cut {
				putSegment(w, seg)
				w.PutInt64(off)
			}
		}
	} else {
		w.PutUint8(0)
	}
}

func getCheckpoints(r *model.Reader) (checkpoint.State, error) {
	var cp checkpoint.State
	n, err := r.GetUint32()
	if err != nil {
		return cp, err
	}
	cp.Outstanding = make([]*checkpoint.Round, n)
	for i := uint32(0); i < n; i++ {
		id, err := r.GetString()
		if err != nil {
			return cp, err
		}
		silent, err := r.GetUint8()
		if err != nil {
			return cp, err
		}
		round := &checkpoint.Round{ID: model.CheckpointID(id), Silent: silent == 1}

		nPending, err := r.GetUint32()
		if err != nil {
			return cp, err
		}
		round.Pending = make(map[model.ReaderID]bool, nPending)
		for j := uint32(0); j < nPending; j++ {
			reader, err := r.GetString()
			if err != nil {
				return cp, err
			}
			round.Pending[model.ReaderID(reader)] = true
		}

		nReported, err := r.GetUint32()
		if err != nil {
			return cp, err
		}
		round.Reported = make(map[model.ReaderID]map[model.Segment]int64, nReported)
		for j := uint32(0); j < nReported; j++ {
			reader, err := r.GetString()
			if err != nil {
				return cp, err
			}
			nPos, err := r.GetUint32()
			if err != nil {
				return cp, err
			}
			positions := make(map[model.Segment]int64, nPos)
			for k := uint32(0); k < nPos; k++ {
				seg, err := getSegment(r)
				if err != nil {
					return cp, err
				}
				off, err := r.GetInt64()
				if err != nil {
					return cp, err
				}
				positions[seg] = off
			}
			round.Reported[model.ReaderID(reader)] = positions
		}

		nSnap, err := r.GetUint32()
		if err != nil {
			return cp, err
		}
		round.Snapshot = make(map[model.ReaderID]bool, nSnap)
		for j := uint32(0); j < nSnap; j++ {
			reader, err := r.GetString()
			if err != nil {
				return cp, err
			}
			round.Snapshot[model.ReaderID(reader)] = true
		}
		cp.Outstanding[i] = round
	}

	hasLast, err := r.GetUint8()
	if err != nil {
		return cp, err
	}
	if hasLast == 1 {
		id, err := r.GetString()
		if err != nil {
			return cp, err
		}
		nStreams, err := r.GetUint32()
		if err != nil {
			return cp, err
		}
		positions := make(map[model.Stream]map[model.Segment]int64, nStreams)
		for i := uint32(0); i < nStreams; i++ {
			stream, err := getStream(r)
			if err != nil {
				return cp, err
			}
			nSeg, err := r.GetUint32()
			if err != nil {
				return cp, err
			}
			cut := make(map[model.Segment]int64, nSeg)
			for j := uint32(0); j < nSeg; j++ {
				seg, err := getSegment(r)
				if err != nil {
					return cp, err
				}
				off, err := r.GetInt64()
				if err != nil {
					return cp, err
				}
				cut[seg] = off
			}
			positions[stream] = cut
		}
		cp.LastCompleted = &checkpoint.Completed{ID: model.CheckpointID(id), Positions: positions}
	}
	return cp, nil
}
