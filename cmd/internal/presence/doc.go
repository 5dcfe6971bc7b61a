// Package presence tracks which users are live on the map.
//
// A presence session is one websocket connection's association with a
// user, an optional room, and a last-seen timestamp. Sessions are owned
// by the connection that opened them; a periodic sweep reaps sessions
// whose owner stopped heartbeating without closing.
//
// The tracker mutates state and emits domain events (joined, left, room
// joined, room left) to registered listeners. Fan-out to websockets is a
// listener concern, not the tracker's: the tracker never touches a
// connection.
package presence
