// Package pairing correlates transmit and receive observations into link
// records.
//
// Every TX is held as a pending candidate for its role. An RX consumes the
// best pending TX of the opposite role: the one with the smallest
// rx-to-tx host latency inside the pairing horizon, ties going to the
// earliest-enqueued candidate. A TX pairs at most once; an RX that finds no
// candidate is counted and forgotten, never held.
//
// Pendings that outlive the horizon are expired by Sweep, which the engine
// runs on every consumed event and on idle ticks so a silent link still
// drains its backlog.
//
// RANGE records are the device's own claim that a ranging exchange
// completed. When one arrives and no link closed within the wider fallback
// horizon, the pairer emits a synthetic marker: the exchange happened but
// the transport lost enough of its TX/RX evidence that the ladder view
// missed it.
package pairing
