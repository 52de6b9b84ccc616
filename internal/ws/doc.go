// Package ws bridges a chat session to browser UI clients over WebSocket.
//
// The package implements:
//   - Hub: tracks the UI clients attached to a session and holds the latest
//     state snapshot, which primes every client on attach
//   - Handler: upgrades connections and routes client messages (submit, ping)
//   - Service: subscribes to session state and notifications and publishes them
//
// State snapshots are coalesced per client: a slow client skips intermediate
// snapshots of a token stream and receives the newest one. Notifications and
// replies are delivered in order.
package ws
