// channel.go implements the client-side half of the channel endpoint
// state machine: a Sender transitions Pending -> Established ->
// ReceiverClosed, a Receiver Pending -> Established -> SenderClosed,
// driven entirely by broker notifications delivered on the session
// loop.
package client

import (
	"context"

	"github.com/adred-codev/aldrin/internal/core"
)

type channelEndStage int

const (
	stagePending channelEndStage = iota
	stageEstablished
	stageOppositeClosed
)

// channelEndpoint holds whichever ends of one channel cookie this
// session has claimed. A session may hold both ends (useful for
// tests/loopback), one, or be waiting on a claim reply for either.
type channelEndpoint struct {
	sender   *senderState
	receiver *receiverState
}

type senderState struct {
	stage    channelEndStage
	capacity uint32 // cumulative credit observed from the receiver, not yet spent
	closedCh chan struct{}
}

type receiverState struct {
	stage    channelEndStage
	items    chan core.Value
	closedCh chan struct{}
}

// CreateChannel allocates a new channel with both ends unclaimed and
// returns its cookie, used to claim a Sender and/or Receiver (locally
// or by relaying the cookie to a peer out of band).
func (h Handle) CreateChannel(ctx context.Context) (core.ChannelCookie, error) {
	reply := make(chan core.ChannelCookie, 1)
	var serial core.Serial
	h.c.submit(func(c *Client) {
		serial = c.nextSerial()
		c.pendingCreateChannel[serial] = reply
		c.conn.Send(ctx, core.CreateChannelMessage{Serial: serial})
		c.conn.Flush(ctx)
	})

	select {
	case cookie, ok := <-reply:
		if !ok {
			return core.ChannelCookie{}, core.ErrShutdown
		}
		return cookie, nil
	case <-ctx.Done():
		return core.ChannelCookie{}, ctx.Err()
	case <-h.Done():
		return core.ChannelCookie{}, core.ErrShutdown
	}
}

// Sender is the claimed sending end of a channel.
type Sender struct {
	h      Handle
	cookie core.ChannelCookie
}

// ClaimSender claims the sending end of cookie.
func (h Handle) ClaimSender(ctx context.Context, cookie core.ChannelCookie) (Sender, error) {
	reply := make(chan claimChannelEndResult, 1)
	var serial core.Serial
	h.c.submit(func(c *Client) {
		serial = c.nextSerial()
		c.pendingClaimChannelEnd[serial] = reply
		ep := c.endpoint(cookie)
		ep.sender = &senderState{stage: stagePending, closedCh: make(chan struct{})}
		c.conn.Send(ctx, core.ClaimChannelEndMessage{Serial: serial, Cookie: cookie, End: core.ChannelEndSender})
		c.conn.Flush(ctx)
	})

	select {
	case res := <-reply:
		if res.err != nil {
			return Sender{}, res.err
		}
		h.c.submit(func(c *Client) {
			ep := c.endpoint(cookie)
			ep.sender.stage = stageEstablished
			ep.sender.capacity = res.capacity
		})
		return Sender{h: h, cookie: cookie}, nil
	case <-ctx.Done():
		return Sender{}, ctx.Err()
	case <-h.Done():
		return Sender{}, core.ErrShutdown
	}
}

// Send forwards item if credit allows, returning ErrInvalidItemReceived
// if this session has already exhausted every unit of capacity
// observed from the receiver: the sender must never emit more items
// than the cumulative capacity the receiver has granted it.
func (s Sender) Send(ctx context.Context, item core.Value) error {
	result := make(chan error, 1)
	s.h.c.submit(func(c *Client) {
		ep := c.channels[s.cookie]
		if ep == nil || ep.sender == nil || ep.sender.stage != stageEstablished {
			result <- core.ErrInvalidChannel
			return
		}
		if ep.sender.capacity == 0 {
			result <- core.ErrInvalidItemReceived
			return
		}
		ep.sender.capacity--
		c.conn.Send(ctx, core.SendItemMessage{Cookie: s.cookie, Item: item})
		c.conn.Flush(ctx)
		result <- nil
	})
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-s.h.Done():
		return core.ErrShutdown
	}
}

// Closed returns a channel closed once the broker reports the
// receiver end closed.
func (s Sender) Closed() <-chan struct{} {
	var ch chan struct{}
	done := make(chan struct{})
	s.h.c.submit(func(c *Client) {
		if ep := c.channels[s.cookie]; ep != nil && ep.sender != nil {
			ch = ep.sender.closedCh
		}
		close(done)
	})
	<-done
	if ch == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return ch
}

// Close closes the sending end.
func (s Sender) Close(ctx context.Context) {
	s.h.c.submit(func(c *Client) {
		serial := c.nextSerial()
		c.pendingCloseChannelEnd[serial] = make(chan error, 1)
		c.conn.Send(ctx, core.CloseChannelEndMessage{Serial: serial, Cookie: s.cookie, End: core.ChannelEndSender})
		c.conn.Flush(ctx)
	})
}

// Receiver is the claimed receiving end of a channel.
type Receiver struct {
	h      Handle
	cookie core.ChannelCookie
}

// ClaimReceiver claims the receiving end of cookie, advertising
// capacity units of initial credit to the sender.
func (h Handle) ClaimReceiver(ctx context.Context, cookie core.ChannelCookie, capacity uint32) (Receiver, error) {
	reply := make(chan claimChannelEndResult, 1)
	var serial core.Serial
	h.c.submit(func(c *Client) {
		serial = c.nextSerial()
		c.pendingClaimChannelEnd[serial] = reply
		ep := c.endpoint(cookie)
		ep.receiver = &receiverState{stage: stagePending, items: make(chan core.Value, 64), closedCh: make(chan struct{})}
		c.conn.Send(ctx, core.ClaimChannelEndMessage{Serial: serial, Cookie: cookie, End: core.ChannelEndReceiver, Capacity: capacity})
		c.conn.Flush(ctx)
	})

	select {
	case res := <-reply:
		if res.err != nil {
			return Receiver{}, res.err
		}
		h.c.submit(func(c *Client) {
			c.endpoint(cookie).receiver.stage = stageEstablished
		})
		return Receiver{h: h, cookie: cookie}, nil
	case <-ctx.Done():
		return Receiver{}, ctx.Err()
	case <-h.Done():
		return Receiver{}, core.ErrShutdown
	}
}

// Items returns the channel on which received items arrive, closed
// once the sender end closes.
func (r Receiver) Items() <-chan core.Value {
	var ch chan core.Value
	done := make(chan struct{})
	r.h.c.submit(func(c *Client) {
		if ep := c.channels[r.cookie]; ep != nil && ep.receiver != nil {
			ch = ep.receiver.items
		}
		close(done)
	})
	<-done
	return ch
}

// AddCapacity grants the sender n further units of send credit.
func (r Receiver) AddCapacity(ctx context.Context, n uint32) {
	r.h.c.submit(func(c *Client) {
		c.conn.Send(ctx, core.AddChannelCapacityMessage{Cookie: r.cookie, Capacity: n})
		c.conn.Flush(ctx)
	})
}

// Close closes the receiving end.
func (r Receiver) Close(ctx context.Context) {
	r.h.c.submit(func(c *Client) {
		serial := c.nextSerial()
		c.pendingCloseChannelEnd[serial] = make(chan error, 1)
		c.conn.Send(ctx, core.CloseChannelEndMessage{Serial: serial, Cookie: r.cookie, End: core.ChannelEndReceiver})
		c.conn.Flush(ctx)
	})
}

// endpoint returns (creating if absent) the bookkeeping record for
// cookie. Called only from the session loop.
func (c *Client) endpoint(cookie core.ChannelCookie) *channelEndpoint {
	ep, ok := c.channels[cookie]
	if !ok {
		ep = &channelEndpoint{}
		c.channels[cookie] = ep
	}
	return ep
}

func (c *Client) handleChannelEndClaimed(m core.ChannelEndClaimedMessage) {
	ep, ok := c.channels[m.Cookie]
	if !ok || ep.sender == nil {
		return
	}
	ep.sender.capacity = m.Capacity
}

func (c *Client) handleChannelEndClosed(m core.ChannelEndClosedMessage) {
	ep, ok := c.channels[m.Cookie]
	if !ok {
		return
	}
	switch m.End {
	case core.ChannelEndSender:
		if ep.receiver != nil {
			ep.receiver.stage = stageOppositeClosed
			close(ep.receiver.items)
			close(ep.receiver.closedCh)
		}
	case core.ChannelEndReceiver:
		if ep.sender != nil {
			ep.sender.stage = stageOppositeClosed
			close(ep.sender.closedCh)
		}
	}
}

func (c *Client) handleItemReceived(m core.ItemReceivedMessage) {
	ep, ok := c.channels[m.Cookie]
	if !ok || ep.receiver == nil {
		return
	}
	select {
	case ep.receiver.items <- m.Item:
	default:
	}
}

func (c *Client) handleAddChannelCapacity(m core.AddChannelCapacityMessage) {
	ep, ok := c.channels[m.Cookie]
	if !ok || ep.sender == nil {
		return
	}
	ep.sender.capacity += m.Capacity
}
