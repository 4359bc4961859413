// Package redisevent turns a Redis master into an event source.
//
// A Listener attaches to the master the way a replica does: it runs the
// replication handshake, decodes the RDB snapshot sent on a full resync
// and then follows the replicated command stream, acknowledging offsets.
// Every snapshot key and every command reaches your Handler as an Event.
//
// Basic usage:
//
//	l, err := redisevent.New(
//		redisevent.WithMaster("localhost:6379"),
//		redisevent.WithKeyPatterns("user:*"),
//		redisevent.WithHandler(redisevent.HandlerFunc(func(ev redisevent.Event) error {
//			log.Printf("%s db=%d keys=%q", ev.Name(), ev.DB, ev.Keys())
//			return nil
//		})),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer l.Close()
//
//	if err := l.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//	if err := l.WaitForSync(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// A dropped link is re-established with exponential backoff and resumed
// with PSYNC from the offset of the last handled event, so the handler
// sees each command once per master history. When the master cannot
// continue, a new full resync replays the snapshot.
//
// The lower level building blocks live in sub-packages: protocol (RESP),
// rdb (snapshot decoding), replication (handshake and stream), command
// (typed commands) and sink (filters, sharding, printing, forwarding).
package redisevent
