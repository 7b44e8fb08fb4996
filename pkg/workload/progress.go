package workload

import "sync/atomic"

// Progress - acknowledged operations of a running workload
type Progress struct {
	total   atomic.Int64
	binds   atomic.Int64
	unbinds atomic.Int64
}

func (p *Progress) Total() int64 {
	return p.total.Load()
}

func (p *Progress) Binds() int64 {
	return p.binds.Load()
}

func (p *Progress) Unbinds() int64 {
	return p.unbinds.Load()
}

// Completed - units whose bind and unbind were both acknowledged
func (p *Progress) Completed() int64 {
	return p.unbinds.Load()
}
