package core

// MessageKind is the closed discriminant of the wire protocol message
// catalog. Every Message implementation below corresponds to exactly
// one MessageKind and one framed unit exchanged over a transport
// connection. A kind byte selects the struct type, the same
// discriminant-plus-payload shape the value codec itself uses.
type MessageKind byte

const (
	MsgConnect MessageKind = iota
	MsgConnectReply

	MsgCreateObject
	MsgCreateObjectReply
	MsgDestroyObject
	MsgDestroyObjectReply

	MsgCreateService
	MsgCreateServiceReply
	MsgDestroyService
	MsgDestroyServiceReply
	MsgServiceDestroyed

	MsgQueryServiceInfo
	MsgQueryServiceInfoReply

	MsgSubscribeEvent
	MsgSubscribeEventReply
	MsgUnsubscribeEvent
	MsgEmitEvent

	MsgCallFunction
	MsgCallFunctionReply
	MsgAbortFunctionCall

	MsgCreateChannel
	MsgCreateChannelReply
	MsgCloseChannelEnd
	MsgCloseChannelEndReply
	MsgChannelEndClosed
	MsgClaimChannelEnd
	MsgClaimChannelEndReply
	MsgChannelEndClaimed
	MsgSendItem
	MsgItemReceived
	MsgAddChannelCapacity

	MsgSync
	MsgSyncReply

	MsgCreateBusListener
	MsgCreateBusListenerReply
	MsgDestroyBusListener
	MsgDestroyBusListenerReply
	MsgAddBusListenerFilter
	MsgRemoveBusListenerFilter
	MsgClearBusListenerFilters
	MsgStartBusListener
	MsgStartBusListenerReply
	MsgStopBusListener
	MsgStopBusListenerReply
	MsgBusListenerCurrentFinished
	MsgEmitBusEvent

	MsgQueryIntrospection
	MsgQueryIntrospectionReply
	MsgRegisterIntrospection

	MsgShutdown
)

// Message is implemented by every per-kind message struct below,
// letting generic transport/broker code carry a Message without a
// type switch at every call site that only needs the kind.
type Message interface {
	Kind() MessageKind
}

// --- Connection handshake (§6.2) ---

type ConnectMessage struct {
	Major    uint32
	Minor    uint32
	UserData Value
}

func (ConnectMessage) Kind() MessageKind { return MsgConnect }

type ConnectResultKind byte

const (
	ConnectOk ConnectResultKind = iota
	ConnectRejected
	ConnectIncompatibleVersion
)

type ConnectReplyMessage struct {
	Result          ConnectResultKind
	NegotiatedMinor uint32 // valid when Result == ConnectOk
	UserData        Value  // valid when Result == ConnectOk or ConnectRejected
}

func (ConnectReplyMessage) Kind() MessageKind { return MsgConnectReply }

// --- Objects ---

type CreateObjectMessage struct {
	Serial Serial
	Uuid   ObjectUuid
}

func (CreateObjectMessage) Kind() MessageKind { return MsgCreateObject }

type CreateObjectResultKind byte

const (
	CreateObjectOk CreateObjectResultKind = iota
	CreateObjectDuplicateObject
)

type CreateObjectReplyMessage struct {
	Serial Serial
	Result CreateObjectResultKind
	Cookie ObjectCookie // valid when Result == CreateObjectOk
}

func (CreateObjectReplyMessage) Kind() MessageKind { return MsgCreateObjectReply }

type DestroyObjectMessage struct {
	Serial Serial
	Cookie ObjectCookie
}

func (DestroyObjectMessage) Kind() MessageKind { return MsgDestroyObject }

type DestroyObjectResultKind byte

const (
	DestroyObjectOk DestroyObjectResultKind = iota
	DestroyObjectInvalidObject
)

type DestroyObjectReplyMessage struct {
	Serial Serial
	Result DestroyObjectResultKind
}

func (DestroyObjectReplyMessage) Kind() MessageKind { return MsgDestroyObjectReply }

// --- Services ---

type CreateServiceMessage struct {
	Serial Serial
	Object ObjectId
	Uuid   ServiceUuid
}

func (CreateServiceMessage) Kind() MessageKind { return MsgCreateService }

type CreateServiceResultKind byte

const (
	CreateServiceOk CreateServiceResultKind = iota
	CreateServiceDuplicateService
	CreateServiceInvalidObject
)

type CreateServiceReplyMessage struct {
	Serial Serial
	Result CreateServiceResultKind
	Cookie ServiceCookie
}

func (CreateServiceReplyMessage) Kind() MessageKind { return MsgCreateServiceReply }

type DestroyServiceMessage struct {
	Serial Serial
	Cookie ServiceCookie
}

func (DestroyServiceMessage) Kind() MessageKind { return MsgDestroyService }

type DestroyServiceResultKind byte

const (
	DestroyServiceOk DestroyServiceResultKind = iota
	DestroyServiceInvalidService
)

type DestroyServiceReplyMessage struct {
	Serial Serial
	Result DestroyServiceResultKind
}

func (DestroyServiceReplyMessage) Kind() MessageKind { return MsgDestroyServiceReply }

// ServiceDestroyed is a broker-initiated notification to every
// connection subscribed to events on the destroyed service.
type ServiceDestroyedMessage struct {
	Cookie ServiceCookie
}

func (ServiceDestroyedMessage) Kind() MessageKind { return MsgServiceDestroyed }

// --- Service introspection (QueryServiceInfo replaces the legacy
// QueryServiceVersion on protocol >=1.17; see DESIGN.md OQ-3) ---

type QueryServiceInfoMessage struct {
	Serial Serial
	Cookie ServiceCookie
}

func (QueryServiceInfoMessage) Kind() MessageKind { return MsgQueryServiceInfo }

type QueryServiceInfoResultKind byte

const (
	QueryServiceInfoOk QueryServiceInfoResultKind = iota
	QueryServiceInfoInvalidService
)

type QueryServiceInfoReplyMessage struct {
	Serial  Serial
	Result  QueryServiceInfoResultKind
	Version uint32
	TypeId  [16]byte // zero value means "no introspection type registered"
}

func (QueryServiceInfoReplyMessage) Kind() MessageKind { return MsgQueryServiceInfoReply }

// --- Events ---

type SubscribeEventMessage struct {
	Serial  Serial
	Service ServiceId
	Event   uint32
}

func (SubscribeEventMessage) Kind() MessageKind { return MsgSubscribeEvent }

type SubscribeEventResultKind byte

const (
	SubscribeEventOk SubscribeEventResultKind = iota
	SubscribeEventInvalidService
)

type SubscribeEventReplyMessage struct {
	Serial Serial
	Result SubscribeEventResultKind
}

func (SubscribeEventReplyMessage) Kind() MessageKind { return MsgSubscribeEventReply }

type UnsubscribeEventMessage struct {
	Service ServiceId
	Event   uint32
}

func (UnsubscribeEventMessage) Kind() MessageKind { return MsgUnsubscribeEvent }

type EmitEventMessage struct {
	Service ServiceId
	Event   uint32
	Args    Value
}

func (EmitEventMessage) Kind() MessageKind { return MsgEmitEvent }

// --- Function calls ---

type CallFunctionMessage struct {
	Serial   Serial
	Service  ServiceId
	Function uint32
	Args     Value
}

func (CallFunctionMessage) Kind() MessageKind { return MsgCallFunction }

type CallFunctionResultKind byte

const (
	CallFunctionOk CallFunctionResultKind = iota
	CallFunctionErr
	CallFunctionAborted
	CallFunctionInvalidService
	CallFunctionInvalidFunction
	CallFunctionInvalidArgs
)

type CallFunctionReplyMessage struct {
	Serial Serial
	Result CallFunctionResultKind
	Value  Value // valid when Result == CallFunctionOk or CallFunctionErr
}

func (CallFunctionReplyMessage) Kind() MessageKind { return MsgCallFunctionReply }

// AbortFunctionCallMessage is sent by the caller when its reply sink is
// dropped before a reply arrives. Serial identifies the original
// CallFunction. Only legal on protocol versions that support it
// (§4.4); sending it to an older peer is a protocol violation.
type AbortFunctionCallMessage struct {
	Serial Serial
}

func (AbortFunctionCallMessage) Kind() MessageKind { return MsgAbortFunctionCall }

// --- Channels ---

type ChannelEndKind byte

const (
	ChannelEndSender ChannelEndKind = iota
	ChannelEndReceiver
)

type CreateChannelMessage struct {
	Serial Serial
}

func (CreateChannelMessage) Kind() MessageKind { return MsgCreateChannel }

type CreateChannelReplyMessage struct {
	Serial Serial
	Cookie ChannelCookie
}

func (CreateChannelReplyMessage) Kind() MessageKind { return MsgCreateChannelReply }

type CloseChannelEndMessage struct {
	Serial Serial
	Cookie ChannelCookie
	End    ChannelEndKind
}

func (CloseChannelEndMessage) Kind() MessageKind { return MsgCloseChannelEnd }

type CloseChannelEndResultKind byte

const (
	CloseChannelEndOk CloseChannelEndResultKind = iota
	CloseChannelEndInvalidChannel
)

type CloseChannelEndReplyMessage struct {
	Serial Serial
	Result CloseChannelEndResultKind
}

func (CloseChannelEndReplyMessage) Kind() MessageKind { return MsgCloseChannelEndReply }

// ChannelEndClosed notifies the opposite end's owner that End has
// closed, possibly followed by full channel removal (§4.5).
type ChannelEndClosedMessage struct {
	Cookie ChannelCookie
	End    ChannelEndKind
}

func (ChannelEndClosedMessage) Kind() MessageKind { return MsgChannelEndClosed }

type ClaimChannelEndMessage struct {
	Serial Serial
	Cookie ChannelCookie
	End    ChannelEndKind
	// Capacity is the receiver's initial advertised capacity; ignored
	// when End == ChannelEndSender.
	Capacity uint32
}

func (ClaimChannelEndMessage) Kind() MessageKind { return MsgClaimChannelEnd }

type ClaimChannelEndResultKind byte

const (
	ClaimChannelEndOk ClaimChannelEndResultKind = iota
	ClaimChannelEndInvalidChannel
	ClaimChannelEndAlreadyClaimed
)

type ClaimChannelEndReplyMessage struct {
	Serial Serial
	Result ClaimChannelEndResultKind
	// Capacity is the receiver's advertised capacity: relayed to a
	// sender that just claimed its end, and echoed back to a receiver
	// that just claimed its own.
	Capacity uint32
}

func (ClaimChannelEndReplyMessage) Kind() MessageKind { return MsgClaimChannelEndReply }

// ChannelEndClaimed notifies the owner of one end that the opposite end
// has been claimed, carrying the receiver's capacity (its initial
// capacity when the receiver is the one claiming).
type ChannelEndClaimedMessage struct {
	Cookie   ChannelCookie
	Capacity uint32
}

func (ChannelEndClaimedMessage) Kind() MessageKind { return MsgChannelEndClaimed }

// SendItem carries no serial and no reply; flow control (§4.5) is the
// only admission check applied to it.
type SendItemMessage struct {
	Cookie ChannelCookie
	Item   Value
}

func (SendItemMessage) Kind() MessageKind { return MsgSendItem }

type ItemReceivedMessage struct {
	Cookie ChannelCookie
	Item   Value
}

func (ItemReceivedMessage) Kind() MessageKind { return MsgItemReceived }

type AddChannelCapacityMessage struct {
	Cookie   ChannelCookie
	Capacity uint32
}

func (AddChannelCapacityMessage) Kind() MessageKind { return MsgAddChannelCapacity }

// --- Sync ---

type SyncMessage struct {
	Serial Serial
}

func (SyncMessage) Kind() MessageKind { return MsgSync }

type SyncReplyMessage struct {
	Serial Serial
}

func (SyncReplyMessage) Kind() MessageKind { return MsgSyncReply }

// --- Bus listeners (§4.6) ---

type BusListenerScope byte

const (
	BusListenerScopeCurrent BusListenerScope = iota
	BusListenerScopeNew
	BusListenerScopeAll
)

// BusListenerFilter matches a subset of (object, service) topology.
// A nil Uuid component means "any"; filters are additive (OR'd) within
// one bus listener.
type BusListenerFilter struct {
	Object  *ObjectUuid
	Service *ServiceUuid
}

type CreateBusListenerMessage struct {
	Serial Serial
}

func (CreateBusListenerMessage) Kind() MessageKind { return MsgCreateBusListener }

type CreateBusListenerReplyMessage struct {
	Serial Serial
	Cookie BusListenerCookie
}

func (CreateBusListenerReplyMessage) Kind() MessageKind { return MsgCreateBusListenerReply }

type DestroyBusListenerMessage struct {
	Serial Serial
	Cookie BusListenerCookie
}

func (DestroyBusListenerMessage) Kind() MessageKind { return MsgDestroyBusListener }

type DestroyBusListenerResultKind byte

const (
	DestroyBusListenerOk DestroyBusListenerResultKind = iota
	DestroyBusListenerInvalidBusListener
)

type DestroyBusListenerReplyMessage struct {
	Serial Serial
	Result DestroyBusListenerResultKind
}

func (DestroyBusListenerReplyMessage) Kind() MessageKind { return MsgDestroyBusListenerReply }

type AddBusListenerFilterMessage struct {
	Cookie BusListenerCookie
	Filter BusListenerFilter
}

func (AddBusListenerFilterMessage) Kind() MessageKind { return MsgAddBusListenerFilter }

type RemoveBusListenerFilterMessage struct {
	Cookie BusListenerCookie
	Filter BusListenerFilter
}

func (RemoveBusListenerFilterMessage) Kind() MessageKind { return MsgRemoveBusListenerFilter }

type ClearBusListenerFiltersMessage struct {
	Cookie BusListenerCookie
}

func (ClearBusListenerFiltersMessage) Kind() MessageKind { return MsgClearBusListenerFilters }

type StartBusListenerMessage struct {
	Serial Serial
	Cookie BusListenerCookie
	Scope  BusListenerScope
}

func (StartBusListenerMessage) Kind() MessageKind { return MsgStartBusListener }

type StartBusListenerResultKind byte

const (
	StartBusListenerOk StartBusListenerResultKind = iota
	StartBusListenerInvalidBusListener
	StartBusListenerAlreadyStarted
)

type StartBusListenerReplyMessage struct {
	Serial Serial
	Result StartBusListenerResultKind
}

func (StartBusListenerReplyMessage) Kind() MessageKind { return MsgStartBusListenerReply }

type StopBusListenerMessage struct {
	Serial Serial
	Cookie BusListenerCookie
}

func (StopBusListenerMessage) Kind() MessageKind { return MsgStopBusListener }

type StopBusListenerResultKind byte

const (
	StopBusListenerOk StopBusListenerResultKind = iota
	StopBusListenerInvalidBusListener
	StopBusListenerNotStarted
)

type StopBusListenerReplyMessage struct {
	Serial Serial
	Result StopBusListenerResultKind
}

func (StopBusListenerReplyMessage) Kind() MessageKind { return MsgStopBusListenerReply }

// BusListenerCurrentFinished notifies that the one-shot enumeration of
// pre-existing matches (scope Current or All) has completed.
type BusListenerCurrentFinishedMessage struct {
	Cookie BusListenerCookie
}

func (BusListenerCurrentFinishedMessage) Kind() MessageKind {
	return MsgBusListenerCurrentFinished
}

// BusEventKind and BusEvent describe the topology changes a bus
// listener reports.
type BusEventKind byte

const (
	BusEventObjectCreated BusEventKind = iota
	BusEventObjectDestroyed
	BusEventServiceCreated
	BusEventServiceDestroyed
)

type BusEvent struct {
	Kind    BusEventKind
	Object  ObjectId
	Service ServiceId // valid when Kind is one of the Service* variants
}

type EmitBusEventMessage struct {
	Cookie BusListenerCookie
	Event  BusEvent
}

func (EmitBusEventMessage) Kind() MessageKind { return MsgEmitBusEvent }

// --- Introspection ---

type QueryIntrospectionMessage struct {
	Serial Serial
	TypeId [16]byte
}

func (QueryIntrospectionMessage) Kind() MessageKind { return MsgQueryIntrospection }

type QueryIntrospectionResultKind byte

const (
	QueryIntrospectionOk QueryIntrospectionResultKind = iota
	QueryIntrospectionUnknownTypeId
)

type QueryIntrospectionReplyMessage struct {
	Serial Serial
	Result QueryIntrospectionResultKind
	Data   Value
}

func (QueryIntrospectionReplyMessage) Kind() MessageKind { return MsgQueryIntrospectionReply }

// RegisterIntrospection publishes a type's introspection data to the
// broker for later QueryIntrospection lookups; no reply.
type RegisterIntrospectionMessage struct {
	TypeId [16]byte
	Data   Value
}

func (RegisterIntrospectionMessage) Kind() MessageKind { return MsgRegisterIntrospection }

// --- Shutdown ---

// ShutdownMessage is exchanged in both directions: the client sends it
// to request an orderly shutdown, the broker echoes it back once
// teardown of that connection's state has completed (§4.4).
type ShutdownMessage struct{}

func (ShutdownMessage) Kind() MessageKind { return MsgShutdown }
