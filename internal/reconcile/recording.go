package reconcile

import (
	"sync"

	"github.com/danmuck/xrsync/internal/pose"
	"github.com/google/uuid"
)

// Snapshot is the last pose a recorded proxy received.
type Snapshot struct {
	Key    Key       `json:"key"`
	Handle uuid.UUID `json:"handle"`
	Pose   pose.Pose `json:"-"`
	Posed  bool      `json:"posed"`
	// Position and Rotation mirror Pose for JSON.
	Position pose.Vector     `json:"position"`
	Rotation pose.Quaternion `json:"rotation"`
}

// RecordingFactory creates headless proxies that remember their latest
// pose. It stands in for a renderer in tools and tests.
type RecordingFactory struct {
	mu      sync.Mutex
	proxies map[Key]*RecordingProxy
}

var _ ProxyFactory = (*RecordingFactory)(nil)

func NewRecordingFactory() *RecordingFactory {
	return &RecordingFactory{proxies: make(map[Key]*RecordingProxy)}
}

func (f *RecordingFactory) Create(key Key, handle uuid.UUID) Proxy {
	p := &RecordingProxy{factory: f, snap: Snapshot{Key: key, Handle: handle}}
	f.mu.Lock()
	f.proxies[key] = p
	f.mu.Unlock()
	return p
}

// Snapshots returns every live proxy's state.
func (f *RecordingFactory) Snapshots() []Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Snapshot, 0, len(f.proxies))
	for _, p := range f.proxies {
		out = append(out, p.Snapshot())
	}
	return out
}

func (f *RecordingFactory) Get(key Key) (*RecordingProxy, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.proxies[key]
	return p, ok
}

type RecordingProxy struct {
	factory *RecordingFactory

	mu        sync.Mutex
	snap      Snapshot
	destroyed bool
}

func (p *RecordingProxy) ApplyPose(ps pose.Pose) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Pose = ps
	p.snap.Posed = true
	p.snap.Position = pose.VectorFrom(ps.Position)
	p.snap.Rotation = pose.QuaternionFrom(ps.Rotation)
}

func (p *RecordingProxy) Destroy() {
	p.mu.Lock()
	p.destroyed = true
	key := p.snap.Key
	p.mu.Unlock()

	p.factory.mu.Lock()
	if p.factory.proxies[key] == p {
		delete(p.factory.proxies, key)
	}
	p.factory.mu.Unlock()
}

func (p *RecordingProxy) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snap
}

func (p *RecordingProxy) Destroyed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.destroyed
}
