// Package sync applies client change batches to the store and builds the
// reconciliation payload the grid merges back into its local state.
//
// # Batch processing
//
// A Batch carries added, updated and removed entities for the tasks and
// dependencies collections. Processor.Process walks it in a fixed order
// (tasks before dependencies; added, then updated, then removed) and
// produces a Result:
//
//   - added: the first entity receives a server id and is inserted. Every
//     added entity is echoed back in rows.
//   - updated: every entity is echoed and written concurrently.
//   - removed: the first stub is echoed and its row deleted.
//
// No sub-operation stops the batch. Each produces an Outcome, and the last
// outcome decides the status reported to the client. With Config.Atomic the
// whole batch runs in one transaction and any failure rolls it back. With
// Config.MultiRow every added entity is inserted and every stub deleted.
//
// # Reading
//
// Reader.Load fetches both collections concurrently for GET /data.
//
// Example:
//
//	p := sync.New(store, &sync.Config{Logger: &logger})
//	batch, err := sync.DecodeBatch(r.Body)
//	if err != nil {
//	    return sync.ErrorResponse(err)
//	}
//	return p.Process(ctx, batch).Response()
package sync
