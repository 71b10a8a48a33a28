package protocol

// Core interface opcodes. The position of a descriptor in its
// Requests/Events slice must match these.
const (
	DisplaySync        = 0 // sync(callback: new_id<wl_callback>)
	DisplayGetRegistry = 1 // get_registry(registry: new_id<wl_registry>)

	DisplayEventError    = 0 // error(object_id: object, code: uint, message: string)
	DisplayEventDeleteID = 1 // delete_id(id: uint)

	CallbackEventDone = 0 // done(callback_data: uint), destructor

	RegistryBind = 0 // bind(name: uint, interface: string, version: uint, id: new_id)

	RegistryEventGlobal       = 0 // global(name: uint, interface: string, version: uint)
	RegistryEventGlobalRemove = 1 // global_remove(name: uint)
)

// Display is the wl_display interface, permanently bound to object id 1.
var Display = &Interface{
	Name:    "wl_display",
	Version: 1,
	Requests: []MessageDesc{
		{
			Name:           "sync",
			Since:          1,
			Signature:      []ArgType{{Kind: NewID}},
			ChildInterface: Callback,
		},
		{
			Name:           "get_registry",
			Since:          1,
			Signature:      []ArgType{{Kind: NewID}},
			ChildInterface: Registry,
		},
	},
	Events: []MessageDesc{
		{
			Name:          "error",
			Since:         1,
			Signature:     []ArgType{{Kind: Object}, {Kind: Uint}, {Kind: String}},
			ArgInterfaces: []*Interface{Anonymous},
		},
		{
			Name:      "delete_id",
			Since:     1,
			Signature: []ArgType{{Kind: Uint}},
		},
	},
}

// Callback is the wl_callback interface. Its single done event is a
// destructor.
var Callback = &Interface{
	Name:    "wl_callback",
	Version: 1,
	Events: []MessageDesc{
		{
			Name:         "done",
			Since:        1,
			Signature:    []ArgType{{Kind: Uint}},
			IsDestructor: true,
		},
	},
}

// Registry is the wl_registry interface. Its bind request is the
// protocol's only generic constructor: the created interface and
// version are carried in the message rather than the descriptor.
var Registry = &Interface{
	Name:    "wl_registry",
	Version: 1,
	Requests: []MessageDesc{
		{
			Name:      "bind",
			Since:     1,
			Signature: []ArgType{{Kind: Uint}, {Kind: String}, {Kind: Uint}, {Kind: NewID}},
		},
	},
	Events: []MessageDesc{
		{
			Name:      "global",
			Since:     1,
			Signature: []ArgType{{Kind: Uint}, {Kind: String}, {Kind: Uint}},
		},
		{
			Name:      "global_remove",
			Since:     1,
			Signature: []ArgType{{Kind: Uint}},
		},
	},
}
