package main

import "github.com/kestrelnet/kestrel/pkg/protocol"

// Built-in application schemas for the chat demo. Additional schemas can
// be layered on top from a schema file.
func registerAppSchemas(reg *protocol.Registry) error {
	schemas := []*protocol.Schema{
		{ID: 1, Name: "Login", Slots: []protocol.ArgSlot{
			{Name: "username", Tag: protocol.TagString},
			{Name: "password", Tag: protocol.TagString},
		}},
		{ID: 2, Name: "LoginResult", Slots: []protocol.ArgSlot{
			{Name: "ok", Tag: protocol.TagBool},
			{Name: "error", Tag: protocol.TagString},
		}},
		{ID: 3, Name: "Logout", Slots: nil},
		{ID: 4, Name: "Echo", Slots: []protocol.ArgSlot{
			{Name: "text", Tag: protocol.TagString},
		}},
		{ID: 5, Name: "EchoReply", Slots: []protocol.ArgSlot{
			{Name: "text", Tag: protocol.TagString},
		}},
		{ID: 6, Name: "Say", Slots: []protocol.ArgSlot{
			{Name: "text", Tag: protocol.TagString},
		}},
		{ID: 7, Name: "Chat", Slots: []protocol.ArgSlot{
			{Name: "from", Tag: protocol.TagString},
			{Name: "text", Tag: protocol.TagString},
		}},
	}
	for _, s := range schemas {
		if err := reg.Register(s); err != nil {
			return err
		}
	}
	return nil
}
