// Package reconcile keeps renderable proxies for remote devices in step with
// the replicated server state.
package reconcile

import (
	"fmt"
	"sort"
	"sync"

	"github.com/danmuck/xrsync/internal/device"
	logs "github.com/danmuck/xrsync/internal/logging"
	"github.com/danmuck/xrsync/internal/pose"
	"github.com/danmuck/xrsync/internal/replica"
	"github.com/google/uuid"
)

// Key identifies one remote device.
type Key struct {
	Peer   uint16 `json:"peer"`
	Device uint32 `json:"device"`
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d", k.Peer, k.Device)
}

// Proxy is whatever renders a remote device.
type Proxy interface {
	ApplyPose(p pose.Pose)
	Destroy()
}

type ProxyFactory interface {
	Create(key Key, handle uuid.UUID) Proxy
}

type ProxyFactoryFunc func(key Key, handle uuid.UUID) Proxy

func (f ProxyFactoryFunc) Create(key Key, handle uuid.UUID) Proxy {
	return f(key, handle)
}

// Lookup returns the remote store for key, if one exists.
type Lookup func(key Key) (*device.State, bool)

type view struct {
	handle uuid.UUID
	proxy  Proxy
}

// Result summarizes one reconcile pass.
type Result struct {
	Created   int
	Destroyed int
	Posed     int
}

// Reconciler owns the proxy set. Its key set always equals the (peer,
// device) pairs of the last reconciled state.
type Reconciler struct {
	mu      sync.Mutex
	factory ProxyFactory
	views   map[Key]*view
}

func New(factory ProxyFactory) *Reconciler {
	return &Reconciler{factory: factory, views: make(map[Key]*view)}
}

// Keys collects the (peer, device) pairs present in state.
func Keys(state replica.State) map[Key]pose.Transform {
	out := make(map[Key]pose.Transform)
	for peer, c := range state.Clients {
		for _, info := range c.Devices {
			out[Key{Peer: peer, Device: info.ID}] = c.Calibration
		}
	}
	return out
}

// Reconcile destroys proxies whose key vanished, creates proxies for new
// keys and poses every proxy whose remote store has data. The pose is the
// peer calibration applied on top of the device's own pose.
func (r *Reconciler) Reconcile(state replica.State, lookup Lookup) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	want := Keys(state)
	var res Result
	for key, v := range r.views {
		if _, ok := want[key]; !ok {
			v.proxy.Destroy()
			delete(r.views, key)
			res.Destroyed++
			logs.Debugf("reconcile.Reconciler.destroy key=%s handle=%s", key, v.handle)
		}
	}
	for key, calibration := range want {
		v, ok := r.views[key]
		if !ok {
			handle := uuid.New()
			v = &view{handle: handle, proxy: r.factory.Create(key, handle)}
			r.views[key] = v
			res.Created++
			logs.Debugf("reconcile.Reconciler.create key=%s handle=%s", key, handle)
		}
		if lookup == nil {
			continue
		}
		st, ok := lookup(key)
		if !ok || !st.HasData {
			continue
		}
		v.proxy.ApplyPose(calibration.Apply(st.Pose()))
		res.Posed++
	}
	return res
}

// Handle returns the stable handle of key's proxy.
func (r *Reconciler) Handle(key Key) (uuid.UUID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.views[key]
	if !ok {
		return uuid.Nil, false
	}
	return v.handle, true
}

// Keys returns the current proxy keys sorted by peer then device.
func (r *Reconciler) Keys() []Key {
	r.mu.Lock()
	defer r.mu.Unlock()
	keys := make([]Key, 0, len(r.views))
	for k := range r.views {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Peer != keys[j].Peer {
			return keys[i].Peer < keys[j].Peer
		}
		return keys[i].Device < keys[j].Device
	})
	return keys
}

func (r *Reconciler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.views)
}

// Clear destroys every proxy, e.g. on session teardown.
func (r *Reconciler) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, v := range r.views {
		v.proxy.Destroy()
		delete(r.views, key)
	}
}
