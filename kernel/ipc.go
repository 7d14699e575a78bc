package main

// Mailboxes and message passing (spec §3 "Mailbox", §4.K). Fixed-
// capacity ring buffer embedded directly in the TCB; head/tail/count disambiguate full vs.
// empty exactly as spec §3 requires.

const (
	mailboxCapacity   = 16
	messagePayloadMax = 1024
)

type Message struct {
	SenderID    int
	Type        uint32
	PayloadLen  int
	Payload     [messagePayloadMax]byte
}

type Mailbox struct {
	slots [mailboxCapacity]Message
	head  int
	tail  int
	count int
}

//go:nosplit
func (m *Mailbox) reset() {
	m.head, m.tail, m.count = 0, 0, 0
}

//go:nosplit
func (m *Mailbox) full() bool  { return m.count == mailboxCapacity }
//go:nosplit
func (m *Mailbox) empty() bool { return m.count == 0 }

// Send implements spec §4.K's send: look up destination, reject if
// missing/zombie, reject if full, copy with sender forced to the
// caller's id, and wake a blocked receiver.
//go:nosplit
func Send(destID int, senderID int, msgType uint32, payload []byte) error {
	dest := taskByID(destID)
	if dest == nil || dest.state == TaskZombie {
		return ErrDestMissing
	}
	if dest.mailbox.full() {
		return ErrMailboxFull
	}

	slot := &dest.mailbox.slots[dest.mailbox.tail]
	slot.SenderID = senderID
	slot.Type = msgType
	n := copy(slot.Payload[:], payload)
	slot.PayloadLen = n

	dest.mailbox.tail = (dest.mailbox.tail + 1) % mailboxCapacity
	dest.mailbox.count++

	if dest.state == TaskBlocked && dest.blockedOnReceive {
		dest.blockedOnReceive = false
		enqueueReady(dest.id)
	}
	return nil
}

// Receive implements spec §4.K's receive: block (set Blocked +
// blocked_on_receive, yield) while the mailbox is empty, then copy out
// the head message and advance.
//go:nosplit
func Receive() (senderID int, msgType uint32, payload []byte) {
	cur := CurrentTask()
	for cur.mailbox.empty() {
		cur.state = TaskBlocked
		cur.blockedOnReceive = true
		Yield()
	}

	slot := &cur.mailbox.slots[cur.mailbox.head]
	senderID = slot.SenderID
	msgType = slot.Type
	payload = slot.Payload[:slot.PayloadLen]

	cur.mailbox.head = (cur.mailbox.head + 1) % mailboxCapacity
	cur.mailbox.count--
	return
}
