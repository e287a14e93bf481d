// Package bus is the best-effort publish/subscribe channel between
// independent oddsync processes on one device.
//
// # Delivery Contract
//
//   - At most once: a peer that is closed, still connecting or not reading
//     misses the message for good; nothing is retained or replayed
//   - No ordering guarantee between senders
//   - No echo: a bus never receives its own messages
//   - Catch-up after a miss is only possible through SyncRequest and
//     SyncResponse, answered by whichever peers are alive
//
// # Dispatch
//
// Each bus runs one receive goroutine feeding a FIFO queue and one dispatch
// goroutine draining it, so callbacks for one bus run one at a time in
// arrival order. Subscribed callbacks run first, in registration order, each
// under recover; the built-in handling of the message type runs after them.
//
// # Transports
//
// MemoryHub connects buses inside one process. SocketTransport connects
// processes through unix datagram sockets in a shared directory, one socket
// per peer.
package bus
