package p2p

// Protocol represents a P2P sub-protocol implementation, the unit capability
// negotiation operates over: a name/version pair, the number of message
// codes it reserves, and the handler loop a negotiated Peer runs it with.
type Protocol struct {
	// Name is the short, unique name of the protocol ("eth").
	Name string
	// Version is the version number of the protocol.
	Version uint
	// Length is the number of message codes this protocol reserves, used
	// to compute the next protocol's offset during capability negotiation.
	Length uint64
	// Run is called once the Peer has negotiated this protocol with the
	// remote side, in its own goroutine. rw is scoped to this protocol's
	// message codes (offset already subtracted). Returning a non-nil error
	// disconnects the Peer with DiscSubprotocolError; returning nil ends
	// only this protocol's handler.
	Run func(peer *Peer, rw MsgReadWriter) error
}

// cap is the wire representation of a protocol capability: just the name
// and version, without the message-length metadata (which is a local-only
// concern, not something the remote peer needs to know to negotiate).
type cap struct {
	Name    string
	Version uint
}

func (c cap) String() string {
	return c.Name + "/" + itoa(int(c.Version))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

type capsByNameAndVersion []cap

func (cs capsByNameAndVersion) Len() int      { return len(cs) }
func (cs capsByNameAndVersion) Swap(i, j int) { cs[i], cs[j] = cs[j], cs[i] }
func (cs capsByNameAndVersion) Less(i, j int) bool {
	return cs[i].Name < cs[j].Name || (cs[i].Name == cs[j].Name && cs[i].Version < cs[j].Version)
}
