// Package queue is a small durable task queue with retries and a dead
// letter store.
//
// An Enqueuer stores typed payloads as JSON tasks; the task name defaults to
// the payload's qualified type name so NewTaskHandler[T] picks them up
// without extra wiring:
//
//	enq, _ := queue.NewEnqueuer(storage)
//	_, err := enq.Enqueue(ctx, billing.ApplyEventTask{EventID: "evt_1"})
//
//	w, _ := queue.NewWorker(storage, queue.WithMaxConcurrentTasks(4))
//	w.RegisterHandlers(queue.NewTaskHandler(func(ctx context.Context, t billing.ApplyEventTask) error {
//		return svc.Reapply(ctx, t)
//	}))
//	g.Go(w.Run(ctx))
//
// A failed attempt is retried after a linear backoff (30s per attempt made).
// Once a task's attempts are exhausted, or no handler is registered for it,
// the task moves to the dead letter store and the DeadLetterFunc hook fires.
//
// MemoryStorage serves tests. PostgresStorage claims with
// FOR UPDATE SKIP LOCKED and ships its schema as goose migrations in
// Migrations.
package queue
