// Package wire defines the event vocabulary of the UWB telemetry feed and
// the line codec used to decode it.
//
// Devices report over UDP as single lines of whitespace-separated key=value
// pairs:
//
//	role=TAG evt=TX dev_ts=1099511627775
//	role=ANCHOR evt=RX dev_ts=8589934592
//	role=TAG evt=RANGE host_ts=1718031822
//	role=ANCHOR evt=HEARTBEAT host_ts=0
//
// TX and RX must carry dev_ts, the DW1000 transceiver timestamp: a 40-bit
// counter at ~15.65 ps per tick that wraps roughly every 17.2 seconds. It is
// kept for diagnostics only. Every record additionally gets an authoritative
// host timestamp and an ingestion sequence number stamped at receipt, and
// all pairing, windowing, and ordering decisions use those stamps, never the
// device clock.
//
// Firmware builds in the field disagree on event names, so the codec accepts
// the known variants (TXOK, TX_DONE, RV, RCV, RECV, HB) and normalizes them.
package wire
