package core

// Message wire encoding: one MessageKind byte followed by the message's
// fields packed into a Struct Value. Reusing the value codec for
// framing (rather than inventing a second ad hoc layout) means every
// message, including its free-form Args/Item payloads, shares one
// depth bound, one varint format, and one skip/len implementation.

func uuidBytesValue(b [16]byte) Value { return Value{Kind: KindUuid, Uuid: b} }

func structGet(fields []StructField, id uint32) (Value, bool) {
	for _, f := range fields {
		if f.Id == id {
			return f.Value, true
		}
	}
	return Value{}, false
}

// EncodeMessage serializes m into a self-delimiting byte slice: one
// kind byte followed by the C1 encoding of its fields.
func EncodeMessage(m Message) ([]byte, error) {
	fields, err := messageFields(m)
	if err != nil {
		return nil, err
	}
	s := NewSerializer()
	if err := s.Serialize(StructValue(fields)); err != nil {
		return nil, err
	}
	return append([]byte{byte(m.Kind())}, s.Bytes()...), nil
}

// DecodeMessage parses the kind byte and delegates to the per-kind
// field reader. It returns RunErrUnexpectedMessageReceived-worthy
// ErrInvalidSerialization for an unrecognized kind byte, which callers
// should treat as a fatal protocol violation (§7).
func DecodeMessage(buf []byte) (Message, error) {
	if len(buf) == 0 {
		return nil, ErrUnexpectedEoi
	}
	kind := MessageKind(buf[0])
	v, err := Deserialize(buf[1:])
	if err != nil {
		return nil, err
	}
	if v.Kind != KindStruct {
		return nil, ErrUnexpectedValue
	}
	return messageFromFields(kind, v.Struct)
}

// Field ids are local to each message type's encoding, not globally
// unique; they only need to be stable between messageFields and
// messageFromFields for a given MessageKind.
const (
	fSerial uint32 = iota
	fMajor
	fMinor
	fUserData
	fResult
	fNegotiatedMinor
	fUuid
	fCookie
	fObject
	fService
	fEvent
	fFunction
	fArgs
	fValue
	fVersion
	fTypeId
	fEnd
	fCapacity
	fScope
	fFilterObject
	fFilterService
	fCookie2
	fEventKind
	fItem
	fData
)

func messageFields(m Message) ([]StructField, error) {
	switch msg := m.(type) {
	case ConnectMessage:
		return []StructField{
			{Id: fMajor, Value: U32Value(msg.Major)},
			{Id: fMinor, Value: U32Value(msg.Minor)},
			{Id: fUserData, Value: msg.UserData},
		}, nil
	case ConnectReplyMessage:
		return []StructField{
			{Id: fResult, Value: U8Value(byte(msg.Result))},
			{Id: fNegotiatedMinor, Value: U32Value(msg.NegotiatedMinor)},
			{Id: fUserData, Value: msg.UserData},
		}, nil

	case CreateObjectMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fUuid, Value: uuidBytesValue([16]byte(msg.Uuid))},
		}, nil
	case CreateObjectReplyMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fResult, Value: U8Value(byte(msg.Result))},
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
		}, nil
	case DestroyObjectMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
		}, nil
	case DestroyObjectReplyMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fResult, Value: U8Value(byte(msg.Result))},
		}, nil

	case CreateServiceMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fObject, Value: objectIdStructValue(msg.Object)},
			{Id: fUuid, Value: uuidBytesValue([16]byte(msg.Uuid))},
		}, nil
	case CreateServiceReplyMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fResult, Value: U8Value(byte(msg.Result))},
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
		}, nil
	case DestroyServiceMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
		}, nil
	case DestroyServiceReplyMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fResult, Value: U8Value(byte(msg.Result))},
		}, nil
	case ServiceDestroyedMessage:
		return []StructField{
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
		}, nil

	case QueryServiceInfoMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
		}, nil
	case QueryServiceInfoReplyMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fResult, Value: U8Value(byte(msg.Result))},
			{Id: fVersion, Value: U32Value(msg.Version)},
			{Id: fTypeId, Value: uuidBytesValue(msg.TypeId)},
		}, nil

	case SubscribeEventMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fService, Value: serviceIdStructValue(msg.Service)},
			{Id: fEvent, Value: U32Value(msg.Event)},
		}, nil
	case SubscribeEventReplyMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fResult, Value: U8Value(byte(msg.Result))},
		}, nil
	case UnsubscribeEventMessage:
		return []StructField{
			{Id: fService, Value: serviceIdStructValue(msg.Service)},
			{Id: fEvent, Value: U32Value(msg.Event)},
		}, nil
	case EmitEventMessage:
		return []StructField{
			{Id: fService, Value: serviceIdStructValue(msg.Service)},
			{Id: fEvent, Value: U32Value(msg.Event)},
			{Id: fArgs, Value: msg.Args},
		}, nil

	case CallFunctionMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fService, Value: serviceIdStructValue(msg.Service)},
			{Id: fFunction, Value: U32Value(msg.Function)},
			{Id: fArgs, Value: msg.Args},
		}, nil
	case CallFunctionReplyMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fResult, Value: U8Value(byte(msg.Result))},
			{Id: fValue, Value: msg.Value},
		}, nil
	case AbortFunctionCallMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
		}, nil

	case CreateChannelMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
		}, nil
	case CreateChannelReplyMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
		}, nil
	case CloseChannelEndMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
			{Id: fEnd, Value: U8Value(byte(msg.End))},
		}, nil
	case CloseChannelEndReplyMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fResult, Value: U8Value(byte(msg.Result))},
		}, nil
	case ChannelEndClosedMessage:
		return []StructField{
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
			{Id: fEnd, Value: U8Value(byte(msg.End))},
		}, nil
	case ClaimChannelEndMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
			{Id: fEnd, Value: U8Value(byte(msg.End))},
			{Id: fCapacity, Value: U32Value(msg.Capacity)},
		}, nil
	case ClaimChannelEndReplyMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fResult, Value: U8Value(byte(msg.Result))},
			{Id: fCapacity, Value: U32Value(msg.Capacity)},
		}, nil
	case ChannelEndClaimedMessage:
		return []StructField{
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
			{Id: fCapacity, Value: U32Value(msg.Capacity)},
		}, nil
	case SendItemMessage:
		return []StructField{
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
			{Id: fItem, Value: msg.Item},
		}, nil
	case ItemReceivedMessage:
		return []StructField{
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
			{Id: fItem, Value: msg.Item},
		}, nil
	case AddChannelCapacityMessage:
		return []StructField{
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
			{Id: fCapacity, Value: U32Value(msg.Capacity)},
		}, nil

	case SyncMessage:
		return []StructField{{Id: fSerial, Value: U32Value(uint32(msg.Serial))}}, nil
	case SyncReplyMessage:
		return []StructField{{Id: fSerial, Value: U32Value(uint32(msg.Serial))}}, nil

	case CreateBusListenerMessage:
		return []StructField{{Id: fSerial, Value: U32Value(uint32(msg.Serial))}}, nil
	case CreateBusListenerReplyMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
		}, nil
	case DestroyBusListenerMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
		}, nil
	case DestroyBusListenerReplyMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fResult, Value: U8Value(byte(msg.Result))},
		}, nil
	case AddBusListenerFilterMessage:
		return []StructField{
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
			{Id: fFilterObject, Value: filterValue(msg.Filter)},
		}, nil
	case RemoveBusListenerFilterMessage:
		return []StructField{
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
			{Id: fFilterObject, Value: filterValue(msg.Filter)},
		}, nil
	case ClearBusListenerFiltersMessage:
		return []StructField{
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
		}, nil
	case StartBusListenerMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
			{Id: fScope, Value: U8Value(byte(msg.Scope))},
		}, nil
	case StartBusListenerReplyMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fResult, Value: U8Value(byte(msg.Result))},
		}, nil
	case StopBusListenerMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
		}, nil
	case StopBusListenerReplyMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fResult, Value: U8Value(byte(msg.Result))},
		}, nil
	case BusListenerCurrentFinishedMessage:
		return []StructField{
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
		}, nil
	case EmitBusEventMessage:
		return []StructField{
			{Id: fCookie, Value: uuidBytesValue([16]byte(msg.Cookie))},
			{Id: fEventKind, Value: U8Value(byte(msg.Event.Kind))},
			{Id: fObject, Value: objectIdStructValue(msg.Event.Object)},
			{Id: fService, Value: serviceIdStructValue(msg.Event.Service)},
		}, nil

	case QueryIntrospectionMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fTypeId, Value: uuidBytesValue(msg.TypeId)},
		}, nil
	case QueryIntrospectionReplyMessage:
		return []StructField{
			{Id: fSerial, Value: U32Value(uint32(msg.Serial))},
			{Id: fResult, Value: U8Value(byte(msg.Result))},
			{Id: fData, Value: msg.Data},
		}, nil
	case RegisterIntrospectionMessage:
		return []StructField{
			{Id: fTypeId, Value: uuidBytesValue(msg.TypeId)},
			{Id: fData, Value: msg.Data},
		}, nil

	case ShutdownMessage:
		return nil, nil

	default:
		return nil, ErrUnexpectedValue
	}
}

func objectIdStructValue(id ObjectId) Value {
	return StructValue([]StructField{
		{Id: 0, Value: uuidBytesValue([16]byte(id.Uuid))},
		{Id: 1, Value: uuidBytesValue([16]byte(id.Cookie))},
	})
}

func objectIdFromStruct(v Value) ObjectId {
	uuidV, _ := structGet(v.Struct, 0)
	cookieV, _ := structGet(v.Struct, 1)
	return ObjectId{
		Uuid:   ObjectUuid(uuidV.Uuid),
		Cookie: ObjectCookie(cookieV.Uuid),
	}
}

func serviceIdStructValue(id ServiceId) Value {
	return StructValue([]StructField{
		{Id: 0, Value: objectIdStructValue(id.Object)},
		{Id: 1, Value: uuidBytesValue([16]byte(id.Uuid))},
		{Id: 2, Value: uuidBytesValue([16]byte(id.Cookie))},
	})
}

func serviceIdFromStruct(v Value) ServiceId {
	objV, _ := structGet(v.Struct, 0)
	uuidV, _ := structGet(v.Struct, 1)
	cookieV, _ := structGet(v.Struct, 2)
	return ServiceId{
		Object: objectIdFromStruct(objV),
		Uuid:   ServiceUuid(uuidV.Uuid),
		Cookie: ServiceCookie(cookieV.Uuid),
	}
}

func filterValue(f BusListenerFilter) Value {
	fields := make([]StructField, 0, 2)
	if f.Object != nil {
		fields = append(fields, StructField{Id: 0, Value: SomeValue(uuidBytesValue([16]byte(*f.Object)))})
	} else {
		fields = append(fields, StructField{Id: 0, Value: None})
	}
	if f.Service != nil {
		fields = append(fields, StructField{Id: 1, Value: SomeValue(uuidBytesValue([16]byte(*f.Service)))})
	} else {
		fields = append(fields, StructField{Id: 1, Value: None})
	}
	return StructValue(fields)
}

func filterFromValue(v Value) BusListenerFilter {
	var f BusListenerFilter
	if objV, ok := structGet(v.Struct, 0); ok && objV.Kind == KindSome {
		u := ObjectUuid(objV.Some.Uuid)
		f.Object = &u
	}
	if svcV, ok := structGet(v.Struct, 1); ok && svcV.Kind == KindSome {
		u := ServiceUuid(svcV.Some.Uuid)
		f.Service = &u
	}
	return f
}

func messageFromFields(kind MessageKind, fields []StructField) (Message, error) {
	u32 := func(id uint32) uint32 {
		v, _ := structGet(fields, id)
		return v.U32
	}
	u8 := func(id uint32) byte {
		v, _ := structGet(fields, id)
		return v.U8
	}
	serial := func() Serial { return Serial(u32(fSerial)) }
	cookieUuid := func(id uint32) [16]byte {
		v, _ := structGet(fields, id)
		return v.Uuid
	}
	valueOf := func(id uint32) Value {
		v, _ := structGet(fields, id)
		return v
	}

	switch kind {
	case MsgConnect:
		return ConnectMessage{Major: u32(fMajor), Minor: u32(fMinor), UserData: valueOf(fUserData)}, nil
	case MsgConnectReply:
		return ConnectReplyMessage{
			Result:          ConnectResultKind(u8(fResult)),
			NegotiatedMinor: u32(fNegotiatedMinor),
			UserData:        valueOf(fUserData),
		}, nil

	case MsgCreateObject:
		return CreateObjectMessage{Serial: serial(), Uuid: ObjectUuid(cookieUuid(fUuid))}, nil
	case MsgCreateObjectReply:
		return CreateObjectReplyMessage{
			Serial: serial(),
			Result: CreateObjectResultKind(u8(fResult)),
			Cookie: ObjectCookie(cookieUuid(fCookie)),
		}, nil
	case MsgDestroyObject:
		return DestroyObjectMessage{Serial: serial(), Cookie: ObjectCookie(cookieUuid(fCookie))}, nil
	case MsgDestroyObjectReply:
		return DestroyObjectReplyMessage{Serial: serial(), Result: DestroyObjectResultKind(u8(fResult))}, nil

	case MsgCreateService:
		return CreateServiceMessage{
			Serial: serial(),
			Object: objectIdFromStruct(valueOf(fObject)),
			Uuid:   ServiceUuid(cookieUuid(fUuid)),
		}, nil
	case MsgCreateServiceReply:
		return CreateServiceReplyMessage{
			Serial: serial(),
			Result: CreateServiceResultKind(u8(fResult)),
			Cookie: ServiceCookie(cookieUuid(fCookie)),
		}, nil
	case MsgDestroyService:
		return DestroyServiceMessage{Serial: serial(), Cookie: ServiceCookie(cookieUuid(fCookie))}, nil
	case MsgDestroyServiceReply:
		return DestroyServiceReplyMessage{Serial: serial(), Result: DestroyServiceResultKind(u8(fResult))}, nil
	case MsgServiceDestroyed:
		return ServiceDestroyedMessage{Cookie: ServiceCookie(cookieUuid(fCookie))}, nil

	case MsgQueryServiceInfo:
		return QueryServiceInfoMessage{Serial: serial(), Cookie: ServiceCookie(cookieUuid(fCookie))}, nil
	case MsgQueryServiceInfoReply:
		return QueryServiceInfoReplyMessage{
			Serial:  serial(),
			Result:  QueryServiceInfoResultKind(u8(fResult)),
			Version: u32(fVersion),
			TypeId:  cookieUuid(fTypeId),
		}, nil

	case MsgSubscribeEvent:
		return SubscribeEventMessage{
			Serial:  serial(),
			Service: serviceIdFromStruct(valueOf(fService)),
			Event:   u32(fEvent),
		}, nil
	case MsgSubscribeEventReply:
		return SubscribeEventReplyMessage{Serial: serial(), Result: SubscribeEventResultKind(u8(fResult))}, nil
	case MsgUnsubscribeEvent:
		return UnsubscribeEventMessage{Service: serviceIdFromStruct(valueOf(fService)), Event: u32(fEvent)}, nil
	case MsgEmitEvent:
		return EmitEventMessage{
			Service: serviceIdFromStruct(valueOf(fService)),
			Event:   u32(fEvent),
			Args:    valueOf(fArgs),
		}, nil

	case MsgCallFunction:
		return CallFunctionMessage{
			Serial:   serial(),
			Service:  serviceIdFromStruct(valueOf(fService)),
			Function: u32(fFunction),
			Args:     valueOf(fArgs),
		}, nil
	case MsgCallFunctionReply:
		return CallFunctionReplyMessage{
			Serial: serial(),
			Result: CallFunctionResultKind(u8(fResult)),
			Value:  valueOf(fValue),
		}, nil
	case MsgAbortFunctionCall:
		return AbortFunctionCallMessage{Serial: serial()}, nil

	case MsgCreateChannel:
		return CreateChannelMessage{Serial: serial()}, nil
	case MsgCreateChannelReply:
		return CreateChannelReplyMessage{Serial: serial(), Cookie: ChannelCookie(cookieUuid(fCookie))}, nil
	case MsgCloseChannelEnd:
		return CloseChannelEndMessage{
			Serial: serial(),
			Cookie: ChannelCookie(cookieUuid(fCookie)),
			End:    ChannelEndKind(u8(fEnd)),
		}, nil
	case MsgCloseChannelEndReply:
		return CloseChannelEndReplyMessage{Serial: serial(), Result: CloseChannelEndResultKind(u8(fResult))}, nil
	case MsgChannelEndClosed:
		return ChannelEndClosedMessage{
			Cookie: ChannelCookie(cookieUuid(fCookie)),
			End:    ChannelEndKind(u8(fEnd)),
		}, nil
	case MsgClaimChannelEnd:
		return ClaimChannelEndMessage{
			Serial:   serial(),
			Cookie:   ChannelCookie(cookieUuid(fCookie)),
			End:      ChannelEndKind(u8(fEnd)),
			Capacity: u32(fCapacity),
		}, nil
	case MsgClaimChannelEndReply:
		return ClaimChannelEndReplyMessage{
			Serial:   serial(),
			Result:   ClaimChannelEndResultKind(u8(fResult)),
			Capacity: u32(fCapacity),
		}, nil
	case MsgChannelEndClaimed:
		return ChannelEndClaimedMessage{
			Cookie:   ChannelCookie(cookieUuid(fCookie)),
			Capacity: u32(fCapacity),
		}, nil
	case MsgSendItem:
		return SendItemMessage{Cookie: ChannelCookie(cookieUuid(fCookie)), Item: valueOf(fItem)}, nil
	case MsgItemReceived:
		return ItemReceivedMessage{Cookie: ChannelCookie(cookieUuid(fCookie)), Item: valueOf(fItem)}, nil
	case MsgAddChannelCapacity:
		return AddChannelCapacityMessage{
			Cookie:   ChannelCookie(cookieUuid(fCookie)),
			Capacity: u32(fCapacity),
		}, nil

	case MsgSync:
		return SyncMessage{Serial: serial()}, nil
	case MsgSyncReply:
		return SyncReplyMessage{Serial: serial()}, nil

	case MsgCreateBusListener:
		return CreateBusListenerMessage{Serial: serial()}, nil
	case MsgCreateBusListenerReply:
		return CreateBusListenerReplyMessage{Serial: serial(), Cookie: BusListenerCookie(cookieUuid(fCookie))}, nil
	case MsgDestroyBusListener:
		return DestroyBusListenerMessage{Serial: serial(), Cookie: BusListenerCookie(cookieUuid(fCookie))}, nil
	case MsgDestroyBusListenerReply:
		return DestroyBusListenerReplyMessage{
			Serial: serial(),
			Result: DestroyBusListenerResultKind(u8(fResult)),
		}, nil
	case MsgAddBusListenerFilter:
		return AddBusListenerFilterMessage{
			Cookie: BusListenerCookie(cookieUuid(fCookie)),
			Filter: filterFromValue(valueOf(fFilterObject)),
		}, nil
	case MsgRemoveBusListenerFilter:
		return RemoveBusListenerFilterMessage{
			Cookie: BusListenerCookie(cookieUuid(fCookie)),
			Filter: filterFromValue(valueOf(fFilterObject)),
		}, nil
	case MsgClearBusListenerFilters:
		return ClearBusListenerFiltersMessage{Cookie: BusListenerCookie(cookieUuid(fCookie))}, nil
	case MsgStartBusListener:
		return StartBusListenerMessage{
			Serial: serial(),
			Cookie: BusListenerCookie(cookieUuid(fCookie)),
			Scope:  BusListenerScope(u8(fScope)),
		}, nil
	case MsgStartBusListenerReply:
		return StartBusListenerReplyMessage{Serial: serial(), Result: StartBusListenerResultKind(u8(fResult))}, nil
	case MsgStopBusListener:
		return StopBusListenerMessage{Serial: serial(), Cookie: BusListenerCookie(cookieUuid(fCookie))}, nil
	case MsgStopBusListenerReply:
		return StopBusListenerReplyMessage{Serial: serial(), Result: StopBusListenerResultKind(u8(fResult))}, nil
	case MsgBusListenerCurrentFinished:
		return BusListenerCurrentFinishedMessage{Cookie: BusListenerCookie(cookieUuid(fCookie))}, nil
	case MsgEmitBusEvent:
		return EmitBusEventMessage{
			Cookie: BusListenerCookie(cookieUuid(fCookie)),
			Event: BusEvent{
				Kind:    BusEventKind(u8(fEventKind)),
				Object:  objectIdFromStruct(valueOf(fObject)),
				Service: serviceIdFromStruct(valueOf(fService)),
			},
		}, nil

	case MsgQueryIntrospection:
		return QueryIntrospectionMessage{Serial: serial(), TypeId: cookieUuid(fTypeId)}, nil
	case MsgQueryIntrospectionReply:
		return QueryIntrospectionReplyMessage{
			Serial: serial(),
			Result: QueryIntrospectionResultKind(u8(fResult)),
			Data:   valueOf(fData),
		}, nil
	case MsgRegisterIntrospection:
		return RegisterIntrospectionMessage{TypeId: cookieUuid(fTypeId), Data: valueOf(fData)}, nil

	case MsgShutdown:
		return ShutdownMessage{}, nil

	default:
		return nil, ErrInvalidSerialization
	}
}
