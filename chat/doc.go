// Package chat implements a chatroom application object on top of the
// object capability contract. It exists to exercise the framework the
// way a real application would: signed action payloads, admin-gated
// membership, and content-hash dedup, all without any special support
// from the registry.
//
// Four actions drive a room's lifecycle: CREATE_CHATROOM establishes a
// room with its creator as admin, REQUEST_JOIN queues a membership
// request, ACCEPT_MEMBER lets the admin approve one, and POST_MESSAGE
// appends a message from any member. Every action is signed by its
// sender and carries a timestamp the object checks for freshness.
package chat
