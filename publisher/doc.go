// Package publisher ships sync events raised by the FIM database to external
// systems (Kafka, NATS) without blocking the producer on the network.
//
// # Architecture
//
//  1. Notifier: a callback.SyncNotifier that encodes each borrowed payload
//     into the spool before returning
//  2. Spool: Pebble-backed append-only log with per-sink cursors
//  3. Worker: one per sink, reads from its cursor, transforms and publishes
//     with exponential backoff
//  4. Registry: builds workers from cfg.SinkConfiguration and owns the spool
//
// # Spool
//
// Events get monotonically increasing sequence numbers. Payloads above the
// configured threshold are zstd-compressed at rest and decompressed on read.
//
// Key prefixes:
//
//	/spool/{seq:016x}       -> msgpack(SyncEvent)
//	/spoolcursor/{sinkName} -> uint64 (cursor)
//	/spoolseq               -> uint64 (last sequence)
//
// Example usage:
//
//	spool, err := NewSpool("/var/lib/fimsync", encoding.DefaultCompressor())
//	if err != nil {
//		return err
//	}
//	defer spool.Close()
//
//	spool.Append([]SyncEvent{{Name: "file_added", Payload: payload}})
//
//	cursor, _ := spool.GetCursor("kafka")
//	events, _ := spool.ReadFrom(cursor, 100)
//	spool.AdvanceCursor("kafka", events[len(events)-1].SeqNum)
//
// # Thread Safety
//
// Notifier, Spool and Registry are safe for concurrent use. Appends are
// serialised so sequence numbers follow call order.
//
// # Cleanup
//
// The spool deletes everything below the minimum sink cursor every 128
// sequence numbers, so no sink loses events it has not acknowledged.
package publisher
