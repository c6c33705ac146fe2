package aida

// Garbage hinting. Clients track proxies through weak pointers; once enough
// proxies were collected the client sends META_SEEN_GARBAGE. The server then
// starts a sweep epoch with META_GARBAGE_SWEEP and the client answers with
// META_GARBAGE_REPORT listing expired and retained orbids. Instances are
// released only if no client retains them and they were not exported again
// since the sweep started. The root instance is never released.

// proxyCollected runs after the OrbObject for orbid was garbage collected.
func (c *ClientConnection) proxyCollected(orbid uint64) {
	n := c.collected.Add(1)
	threshold := uint64(CurrentOptions().SweepThreshold)
	debugf("%s: proxy 0x%016x collected (%d)", c.protocol, orbid, n)
	if threshold == 0 || n%threshold != 0 || c.isClosed() {
		return
	}
	pm := NewProtoMsg(3)
	pm.AddHeader1(MSGID_META_SEEN_GARBAGE, 0, 0)
	c.PostPeerMsg(pm)
}

// Collected returns the number of proxies collected so far.
func (c *ClientConnection) Collected() uint64 { return c.collected.Load() }

// SeenGarbage asks the server for a sweep regardless of the threshold.
func (c *ClientConnection) SeenGarbage() {
	pm := NewProtoMsg(3)
	pm.AddHeader1(MSGID_META_SEEN_GARBAGE, 0, 0)
	c.PostPeerMsg(pm)
}

// garbageSweep answers META_GARBAGE_SWEEP.
func (c *ClientConnection) garbageSweep(r *ProtoReader) {
	r.SkipHeader()
	epoch := r.PopUint64()
	var expired, retained []uint64
	c.proxyMu.Lock()
	for orbid, wp := range c.proxies {
		if wp.Value() == nil {
			expired = append(expired, orbid)
			delete(c.proxies, orbid)
		} else {
			retained = append(retained, orbid)
		}
	}
	c.proxyMu.Unlock()
	rb := RenewIntoResult(r, MSGID_META_GARBAGE_REPORT, 0, 0, 3)
	rb.AddInt64(int64(epoch))
	addOrbidSeq(rb, expired)
	addOrbidSeq(rb, retained)
	debugf("%s: garbage report epoch %d: %d expired, %d retained", c.protocol, epoch, len(expired), len(retained))
	c.PostPeerMsg(rb)
}

func addOrbidSeq(pm *ProtoMsg, orbids []uint64) {
	seq := pm.AddSeq(uint32(len(orbids)))
	for _, orbid := range orbids {
		seq.AddInt64(int64(orbid))
	}
}

func popOrbidSeq(r *ProtoReader) []uint64 {
	seq := NewProtoReader(r.PopSeq())
	out := make([]uint64, 0, seq.NTypes())
	for seq.Remaining() > 0 {
		out = append(out, seq.PopUint64())
	}
	return out
}

// GarbageSweep starts a sweep epoch on every connected client.
func (s *ServerConnection) GarbageSweep() {
	for _, c := range s.peerList() {
		s.sweep(c)
	}
}

func (s *ServerConnection) sweep(c *ClientConnection) {
	s.objMu.Lock()
	s.epoch++
	epoch := s.epoch
	s.objMu.Unlock()
	pm := NewProtoMsg(4)
	pm.AddHeader1(MSGID_META_GARBAGE_SWEEP, 0, 0)
	pm.AddInt64(int64(epoch))
	s.postTo(c, pm)
}

func (s *ServerConnection) garbageReport(c *ClientConnection, r *ProtoReader) {
	r.SkipHeader()
	epoch := r.PopUint64()
	expired := popOrbidSeq(r)
	retained := popOrbidSeq(r)
	if c == nil {
		return
	}
	s.objMu.Lock()
	defer s.objMu.Unlock()
	released := 0
	ex := s.exports[c.id]
	for _, orbid := range expired {
		if e, ok := ex[orbid]; !ok || e >= epoch {
			continue
		}
		delete(ex, orbid)
		if s.releasable(orbid) {
			s.release(orbid)
			released++
		}
	}
	debugf("%s: garbage report from %d: %d expired, %d retained, %d released",
		s.protocol, c.id, len(expired), len(retained), released)
}

// releasable reports whether orbid is exported to no client; objMu must be held.
func (s *ServerConnection) releasable(orbid uint64) bool {
	if orbid == s.rootOrbid {
		return false
	}
	for _, ex := range s.exports {
		if _, ok := ex[orbid]; ok {
			return false
		}
	}
	return true
}

// release drops orbid from the instance tables; objMu must be held.
func (s *ServerConnection) release(orbid uint64) {
	if ibase, ok := s.byOrbid[orbid]; ok {
		delete(s.byInstance, ibase)
		delete(s.byOrbid, orbid)
	}
}

// forgetExports drops everything exported to the client id.
func (s *ServerConnection) forgetExports(id uint16) {
	s.objMu.Lock()
	defer s.objMu.Unlock()
	ex := s.exports[id]
	delete(s.exports, id)
	for orbid := range ex {
		if s.releasable(orbid) {
			s.release(orbid)
		}
	}
}

// noteExports records the orbids carried by msg as exported to client id
// in the current epoch.
func (s *ServerConnection) noteExports(id uint16, msg *ProtoMsg) {
	s.objMu.Lock()
	defer s.objMu.Unlock()
	msg.walkOrbids(func(orbid uint64) {
		if orbid == 0 {
			return
		}
		ex := s.exports[id]
		if ex == nil {
			ex = make(map[uint64]uint64)
			s.exports[id] = ex
		}
		ex[orbid] = s.epoch
	})
}

func (m *ProtoMsg) walkOrbids(fn func(uint64)) {
	for i, t := range m.types {
		switch c := &m.cells[i]; t {
		case TRANSITION:
			fn(c.bits)
		case ANY:
			c.any.walkOrbids(fn)
		case RECORD, SEQUENCE:
			c.msg.walkOrbids(fn)
		}
	}
}

func (a *Any) walkOrbids(fn func(uint64)) {
	switch v := a.v.(type) {
	case transitionValue:
		fn(uint64(v))
	case seqValue:
		for i := range v.v {
			v.v[i].walkOrbids(fn)
		}
	case recValue:
		for i := range v.v {
			v.v[i].Any.walkOrbids(fn)
		}
	case nestedValue:
		v.v.walkOrbids(fn)
	}
}
