package registry

import (
	"sync"
	"testing"
	"time"

	"github.com/coldshalamov/terminal-server/internal/token"
	"github.com/coldshalamov/terminal-server/internal/wire"
)

type fakePeer struct {
	id string

	mu     sync.Mutex
	sent   []wire.Envelope
	kicked bool
}

func newFakePeer(id string) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(env wire.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, env)
	return nil
}

func (p *fakePeer) Kick(string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kicked = true
}

func (p *fakePeer) envelopes() []wire.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]wire.Envelope, len(p.sent))
	copy(out, p.sent)
	return out
}

func (p *fakePeer) wasKicked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.kicked
}

func TestBindUnknownSession(t *testing.T) {
	r := New(0)
	if r.Bind("nope", token.RoleBrowser, newFakePeer("p1")) {
		t.Fatal("Bind to unknown session should fail")
	}
}

func TestBrowserBindReplaysBufferInOrder(t *testing.T) {
	r := New(0)
	id := r.Create()

	r.AppendOutput(id, "a")
	r.AppendOutput(id, "b")

	browser := newFakePeer("b1")
	if !r.Bind(id, token.RoleBrowser, browser) {
		t.Fatal("Bind failed")
	}

	got := browser.envelopes()
	if len(got) != 2 {
		t.Fatalf("browser received %d envelopes, want 2", len(got))
	}
	for i, want := range []string{"a", "b"} {
		if got[i].Type != wire.TypeData || got[i].Data != want {
			t.Fatalf("envelope[%d] = %+v, want terminal:data %q", i, got[i], want)
		}
	}
}

func TestConnectorBindDoesNotReplay(t *testing.T) {
	r := New(0)
	id := r.Create()
	r.AppendOutput(id, "a")

	conn := newFakePeer("c1")
	if !r.Bind(id, token.RoleConnector, conn) {
		t.Fatal("Bind failed")
	}
	if len(conn.envelopes()) != 0 {
		t.Fatalf("connector received %d envelopes, want 0", len(conn.envelopes()))
	}
}

func TestPairingScenario(t *testing.T) {
	r := New(0)
	id := r.Create()

	c1 := newFakePeer("c1")
	if !r.Bind(id, token.RoleConnector, c1) {
		t.Fatal("bind connector failed")
	}

	r.AppendOutput(id, "a")
	r.AppendOutput(id, "b")

	b1 := newFakePeer("b1")
	if !r.Bind(id, token.RoleBrowser, b1) {
		t.Fatal("bind browser failed")
	}
	got := b1.envelopes()
	if len(got) != 2 || got[0].Data != "a" || got[1].Data != "b" {
		t.Fatalf("replay = %+v, want data a then b", got)
	}

	// Connector drops: browser learns about it.
	r.UnbindIfMatches(c1)
	got = b1.envelopes()
	last := got[len(got)-1]
	if last.Type != wire.TypeStatus || last.Status != wire.StatusDisconnected {
		t.Fatalf("after connector loss browser got %+v, want disconnected status", last)
	}

	// A fresh connector restores the pairing.
	c2 := newFakePeer("c2")
	if !r.Bind(id, token.RoleConnector, c2) {
		t.Fatal("rebind connector failed")
	}
	if p := r.Peer(id, token.RoleConnector); p == nil || p.ID() != "c2" {
		t.Fatalf("connector slot = %v, want c2", p)
	}
}

func TestUnbindOnlyMatchingIdentity(t *testing.T) {
	r := New(0)
	s1 := r.Create()
	s2 := r.Create()

	b1 := newFakePeer("b1")
	c1 := newFakePeer("c1")
	b2 := newFakePeer("b2")
	r.Bind(s1, token.RoleBrowser, b1)
	r.Bind(s1, token.RoleConnector, c1)
	r.Bind(s2, token.RoleBrowser, b2)

	r.UnbindIfMatches(b1)

	if r.Peer(s1, token.RoleBrowser) != nil {
		t.Fatal("s1 browser slot should be cleared")
	}
	if p := r.Peer(s1, token.RoleConnector); p == nil || p.ID() != "c1" {
		t.Fatal("s1 connector slot should be untouched")
	}
	if p := r.Peer(s2, token.RoleBrowser); p == nil || p.ID() != "b2" {
		t.Fatal("s2 browser slot should be untouched")
	}
}

func TestRebindKicksSupersededPeer(t *testing.T) {
	r := New(0)
	id := r.Create()

	old := newFakePeer("b-old")
	r.Bind(id, token.RoleBrowser, old)

	fresh := newFakePeer("b-new")
	r.Bind(id, token.RoleBrowser, fresh)

	if !old.wasKicked() {
		t.Fatal("superseded peer was not closed")
	}
	if p := r.Peer(id, token.RoleBrowser); p.ID() != "b-new" {
		t.Fatalf("browser slot = %s, want b-new", p.ID())
	}

	// Rebinding the same physical connection must not kick it.
	r.Bind(id, token.RoleBrowser, fresh)
	if fresh.wasKicked() {
		t.Fatal("peer kicked on self-rebind")
	}
}

func TestAppendOutputUnknownSession(t *testing.T) {
	r := New(0)
	// Must not panic.
	r.AppendOutput("nope", "data")
}

func TestEvictIdleRemovesStaleSessions(t *testing.T) {
	r := New(0)
	stale := r.Create()
	live := r.Create()

	r.mu.Lock()
	r.sessions[stale].lastActivity = time.Now().Add(-48 * time.Hour)
	r.mu.Unlock()

	if n := r.EvictIdle(24 * time.Hour); n != 1 {
		t.Fatalf("EvictIdle = %d, want 1", n)
	}
	if r.Exists(stale) {
		t.Fatal("stale session survived eviction")
	}
	if !r.Exists(live) {
		t.Fatal("live session was evicted")
	}
}

func TestEvictIdleExemptsPairedSessions(t *testing.T) {
	r := New(0)
	id := r.Create()
	r.Bind(id, token.RoleBrowser, newFakePeer("b1"))
	r.Bind(id, token.RoleConnector, newFakePeer("c1"))

	r.mu.Lock()
	r.sessions[id].lastActivity = time.Now().Add(-48 * time.Hour)
	r.mu.Unlock()

	if n := r.EvictIdle(24 * time.Hour); n != 0 {
		t.Fatalf("EvictIdle = %d, want 0 (paired session exempt)", n)
	}
	if !r.Exists(id) {
		t.Fatal("paired session was evicted")
	}
}

// stallingPeer blocks its first Send until released, then records
// envelopes like fakePeer. entered is closed when the first Send is in
// flight.
type stallingPeer struct {
	fakePeer
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStallingPeer(id string) *stallingPeer {
	return &stallingPeer{
		fakePeer: fakePeer{id: id},
		entered:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (p *stallingPeer) Send(env wire.Envelope) error {
	p.once.Do(func() {
		close(p.entered)
		<-p.release
	})
	return p.fakePeer.Send(env)
}

func TestStalledReplayDoesNotBlockOtherSessions(t *testing.T) {
	r := New(0)
	wedged := r.Create()
	other := r.Create()
	r.AppendOutput(wedged, "backlog")

	browser := newStallingPeer("b1")
	bindDone := make(chan struct{})
	go func() {
		r.Bind(wedged, token.RoleBrowser, browser)
		close(bindDone)
	}()
	<-browser.entered

	// With the replay wedged mid-send, every other session must stay
	// fully usable.
	otherDone := make(chan struct{})
	go func() {
		r.AppendOutput(other, "x")
		r.Bind(other, token.RoleConnector, newFakePeer("c2"))
		if r.Peer(other, token.RoleConnector) == nil {
			t.Error("connector lookup on unrelated session failed")
		}
		close(otherDone)
	}()

	select {
	case <-otherDone:
	case <-time.After(2 * time.Second):
		t.Fatal("unrelated session blocked behind a stalled replay")
	}

	close(browser.release)
	<-bindDone
}

func TestForwardWaitsForReplay(t *testing.T) {
	r := New(0)
	id := r.Create()
	r.AppendOutput(id, "old")

	browser := newStallingPeer("b1")
	bindDone := make(chan struct{})
	go func() {
		r.Bind(id, token.RoleBrowser, browser)
		close(bindDone)
	}()
	<-browser.entered

	// Live output arriving mid-replay must queue behind it.
	fwdDone := make(chan struct{})
	go func() {
		r.ForwardToBrowser(id, wire.Data("live"))
		close(fwdDone)
	}()

	select {
	case <-fwdDone:
		t.Fatal("forward completed while replay was still in flight")
	case <-time.After(100 * time.Millisecond):
	}

	close(browser.release)
	<-bindDone
	<-fwdDone

	got := browser.envelopes()
	if len(got) != 2 || got[0].Data != "old" || got[1].Data != "live" {
		t.Fatalf("browser received %+v, want old then live", got)
	}
}

func TestForwardToBrowserNoPeer(t *testing.T) {
	r := New(0)
	id := r.Create()
	// Must not panic with no browser bound, nor for unknown sessions.
	r.ForwardToBrowser(id, wire.Data("x"))
	r.ForwardToBrowser("nope", wire.Data("x"))
}

func TestAppendOutputRefreshesActivity(t *testing.T) {
	r := New(0)
	id := r.Create()

	r.mu.Lock()
	r.sessions[id].lastActivity = time.Now().Add(-48 * time.Hour)
	r.mu.Unlock()

	r.AppendOutput(id, "tick")

	if n := r.EvictIdle(24 * time.Hour); n != 0 {
		t.Fatalf("EvictIdle = %d, want 0 after activity refresh", n)
	}
}
