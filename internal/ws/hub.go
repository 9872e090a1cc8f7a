package ws

import "sync"

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// Hub fans account lifecycle events out to streaming clients, grouped by
// event kind so a dashboard can watch just the kinds it cares about.
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]map[Subscriber]struct{}
	register  chan subscription
	unreg     chan subscription
	broadcast chan message
}

type message struct {
	kind    string
	payload []byte
}

type subscription struct {
	kind   string
	client Subscriber
}

// NewHub creates an initialized Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:   make(map[string]map[Subscriber]struct{}),
		register:  make(chan subscription),
		unreg:     make(chan subscription),
		broadcast: make(chan message),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case sub := <-h.register:
			if _, ok := h.clients[sub.kind]; !ok {
				h.clients[sub.kind] = make(map[Subscriber]struct{})
			}
			h.clients[sub.kind][sub.client] = struct{}{}
		case sub := <-h.unreg:
			if clients, ok := h.clients[sub.kind]; ok {
				delete(clients, sub.client)
				if len(clients) == 0 {
					delete(h.clients, sub.kind)
				}
			}
		case msg := <-h.broadcast:
			if clients, ok := h.clients[msg.kind]; ok {
				for c := range clients {
					if err := c.Send(msg.payload); err != nil {
						c.Close()
						delete(clients, c)
					}
				}
				if len(clients) == 0 {
					delete(h.clients, msg.kind)
				}
			}
		}
	}
}

// Register adds a client to the stream for an event kind.
func (h *Hub) Register(kind string, client Subscriber) {
	h.register <- subscription{kind: kind, client: client}
}

// Unregister removes a client.
func (h *Hub) Unregister(kind string, client Subscriber) {
	h.unreg <- subscription{kind: kind, client: client}
}

// Broadcast sends payload to every client watching kind.
func (h *Hub) Broadcast(kind string, payload []byte) {
	h.broadcast <- message{kind: kind, payload: payload}
}
