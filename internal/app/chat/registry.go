package chat

import (
	"sync"

	"github.com/google/uuid"
)

// Peer is a live connection as seen by the registry and dispatcher.
// Deliver must not block; Close must be idempotent.
type Peer interface {
	Deliver(frame []byte) error
	Close()
}

// Registry maps chat ids to the set of live peers in that chat.
// A peer belongs to at most one chat; empty sets are removed.
type Registry struct {
	// mu guards every field below. It is never held while delivering.
	mu sync.Mutex

	chats map[uuid.UUID]map[Peer]struct{}

	// owner records which chat each peer is registered under.
	owner map[Peer]uuid.UUID

	closed bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		chats: make(map[uuid.UUID]map[Peer]struct{}),
		owner: make(map[Peer]uuid.UUID),
	}
}

// Register adds peer to chatID's set, creating the set if absent.
func (r *Registry) Register(chatID uuid.UUID, peer Peer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if _, ok := r.owner[peer]; ok {
		return ErrAlreadyRegistered
	}

	set, ok := r.chats[chatID]
	if !ok {
		set = make(map[Peer]struct{})
		r.chats[chatID] = set
	}
	set[peer] = struct{}{}
	r.owner[peer] = chatID
	return nil
}

// Unregister removes peer from chatID's set and reports whether it was there.
func (r *Registry) Unregister(chatID uuid.UUID, peer Peer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.owner[peer]; !ok || owner != chatID {
		return false
	}

	delete(r.owner, peer)
	set := r.chats[chatID]
	delete(set, peer)
	if len(set) == 0 {
		delete(r.chats, chatID)
	}
	return true
}

// Snapshot returns a fresh slice of the peers currently registered for chatID.
func (r *Registry) Snapshot(chatID uuid.UUID) []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.chats[chatID]
	peers := make([]Peer, 0, len(set))
	for p := range set {
		peers = append(peers, p)
	}
	return peers
}

// Len returns the number of peers registered for chatID.
func (r *Registry) Len(chatID uuid.UUID) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.chats[chatID])
}

// Stats returns the number of chats with live peers and the total peer count.
func (r *Registry) Stats() (chats int, peers int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.chats), len(r.owner)
}

// Drain empties the registry, refuses further registrations and returns the removed peers.
func (r *Registry) Drain() []Peer {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	peers := make([]Peer, 0, len(r.owner))
	for p := range r.owner {
		peers = append(peers, p)
	}
	r.chats = make(map[uuid.UUID]map[Peer]struct{})
	r.owner = make(map[Peer]uuid.UUID)
	return peers
}
