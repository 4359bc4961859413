// Package replication implements the replica side of the Redis
// replication protocol.
//
// A session has two phases. The handshake authenticates, announces the
// replica and issues PSYNC; its outcome says whether a snapshot follows
// (FullSync), the stream continues where it left off (PartialResync), or
// the master cannot serve us yet (Wait, ChangeMode). The Replayer then
// decodes the snapshot and the command stream, turning both into Events,
// while a second goroutine reports the processed offset with
// REPLCONF ACK.
//
// Basic usage:
//
//	client := replication.NewClient("localhost:6379", replication.HandlerFunc(func(ev replication.Event) error {
//		fmt.Println(ev.Name(), ev.Offset)
//		return nil
//	}))
//	if err := client.Start(context.Background()); err != nil {
//		log.Fatal(err)
//	}
//	defer client.Stop()
//
// Client reconnects with backoff and resumes from the last offset. For
// one-shot use over an existing connection, drive Handshake and a
// Replayer directly on a Conn.
package replication
