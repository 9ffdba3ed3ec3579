package broker

import "github.com/adred-codev/aldrin/internal/core"

// createChannel allocates a new channel with both ends unclaimed.
func (s *State) createChannel() core.ChannelCookie {
	cookie := core.NewChannelCookie()
	s.channels[cookie] = &channel{
		cookie:        cookie,
		senderState:   channelEndUnclaimed,
		receiverState: channelEndUnclaimed,
	}
	return cookie
}

// claimChannelEnd claims one end of cookie for conn. For the receiver
// end, capacity is the initial credit advertised to the sender, echoed
// back as relayCapacity so the caller can forward it to an
// already-claimed sender via ChannelEndClaimedMessage; for the sender
// end capacity is ignored and the receiver's current capacity (zero if
// not yet claimed) is returned so the caller can relay it in
// ClaimChannelEndReplyMessage.
func (s *State) claimChannelEnd(conn ConnId, cookie core.ChannelCookie, end core.ChannelEndKind, capacity uint32) (relayCapacity uint32, notifyOpposite bool, oppositeConn ConnId, err error) {
	ch, ok := s.channels[cookie]
	if !ok {
		return 0, false, 0, core.ErrInvalidChannel
	}
	switch end {
	case core.ChannelEndSender:
		if ch.senderState != channelEndUnclaimed {
			return 0, false, 0, core.ErrInvalidChannel
		}
		ch.senderState = channelEndClaimed
		ch.senderOwner = conn
		s.conns[conn].senderEnds[cookie] = struct{}{}
		notify := ch.receiverState == channelEndClaimed
		return ch.receiverCap, notify, ch.receiverOwner, nil
	case core.ChannelEndReceiver:
		if ch.receiverState != channelEndUnclaimed {
			return 0, false, 0, core.ErrInvalidChannel
		}
		ch.receiverState = channelEndClaimed
		ch.receiverOwner = conn
		ch.receiverCap = capacity
		s.conns[conn].receiverEnds[cookie] = struct{}{}
		notify := ch.senderState == channelEndClaimed
		return capacity, notify, ch.senderOwner, nil
	default:
		return 0, false, 0, core.ErrInvalidChannel
	}
}

// closeChannelEnd closes one end. If the opposite end was claimed, its
// owner must be notified via ChannelEndClosed; if both ends are now
// closed (or the opposite end was never claimed), the channel entry is
// fully removed.
func (s *State) closeChannelEnd(conn ConnId, cookie core.ChannelCookie, end core.ChannelEndKind) (notifyConn ConnId, shouldNotify bool, removed bool, err error) {
	ch, ok := s.channels[cookie]
	if !ok {
		return 0, false, false, core.ErrInvalidChannel
	}

	switch end {
	case core.ChannelEndSender:
		if ch.senderState == channelEndClosed {
			return 0, false, false, core.ErrInvalidChannel
		}
		wasClaimed := ch.senderState == channelEndClaimed
		ch.senderState = channelEndClosed
		if wasClaimed {
			delete(s.conns[conn].senderEnds, cookie)
		}
		if ch.receiverState == channelEndClaimed {
			notifyConn = ch.receiverOwner
			shouldNotify = true
		}
	case core.ChannelEndReceiver:
		if ch.receiverState == channelEndClosed {
			return 0, false, false, core.ErrInvalidChannel
		}
		wasClaimed := ch.receiverState == channelEndClaimed
		ch.receiverState = channelEndClosed
		ch.receiverClosed = true
		if wasClaimed {
			delete(s.conns[conn].receiverEnds, cookie)
		}
		if ch.senderState == channelEndClaimed {
			notifyConn = ch.senderOwner
			shouldNotify = true
		}
	default:
		return 0, false, false, core.ErrInvalidChannel
	}

	if ch.bothEndsClosed() || (ch.senderState == channelEndClosed && ch.receiverState == channelEndUnclaimed) ||
		(ch.receiverState == channelEndClosed && ch.senderState == channelEndUnclaimed) {
		delete(s.channels, cookie)
		removed = true
	}
	return notifyConn, shouldNotify, removed, nil
}

// sendItem checks flow control and, if the receiver can still accept,
// returns its owner so the caller can forward ItemReceived; items sent
// to a known-closed receiver are silently discarded per §4.5.
func (s *State) sendItem(cookie core.ChannelCookie) (receiverConn ConnId, deliver bool, err error) {
	ch, ok := s.channels[cookie]
	if !ok {
		return 0, false, core.ErrInvalidChannel
	}
	if ch.receiverClosed || ch.receiverState != channelEndClaimed {
		return 0, false, nil
	}
	if ch.receiverCap == 0 {
		return 0, false, core.ErrInvalidItemReceived
	}
	ch.receiverCap--
	return ch.receiverOwner, true, nil
}

// addChannelCapacity increases the receiver's advertised capacity and
// returns the sender's owner to forward the notification to, if
// claimed.
func (s *State) addChannelCapacity(cookie core.ChannelCookie, capacity uint32) (senderConn ConnId, notify bool, err error) {
	ch, ok := s.channels[cookie]
	if !ok {
		return 0, false, core.ErrInvalidChannel
	}
	ch.receiverCap += capacity
	if ch.senderState == channelEndClaimed {
		return ch.senderOwner, true, nil
	}
	return 0, false, nil
}
