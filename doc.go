// Package numaexec provides a NUMA-aware cooperative task executor for Go.
//
// Work is expressed as Tasks: cooperative units that run on a Worker until
// they block on a Channel, join another Task, sleep, or yield. A blocked
// Task releases its Worker instead of holding a goroutine hostage, and is
// resumed on its home Worker when the event it waits for happens.
//
// # Quick Start
//
// Run an entry task on an Executor configured for the host:
//
//	err := numaexec.Run(ctx, func(ctx context.Context) error {
//		ch := numaexec.MakeChannel[int](8)
//		numaexec.Spawn(ctx, "producer", func(ctx context.Context) error {
//			defer ch.Close()
//			for i := range 100 {
//				if err := ch.Put(ctx, i); err != nil {
//					return err
//				}
//			}
//			return nil
//		})
//		for {
//			v, err := ch.Get(ctx)
//			if errors.Is(err, numaexec.ErrClosed) {
//				return nil
//			}
//			if err != nil {
//				return err
//			}
//			fmt.Println(v)
//		}
//	})
//
// Run returns once every Task spawned during the run has finished.
//
// # Key Concepts
//
// Executor: owns one Node per NUMA node (at most MaxNodes), each with a
// set of Workers and a Reactor. In sequential mode a single Worker runs on
// the calling goroutine.
//
// Channel: a bounded FIFO channel between Tasks. Put and Get suspend the
// calling Task when they cannot complete. Plain goroutines may use the
// same Channel and simply block.
//
// Batch: a list of Tasks made runnable together with one lock acquisition
// per run queue.
//
// # Cancellation
//
// Every blocking operation takes a context. Cancelling it removes the
// waiter and returns ctx.Err(); a value is never lost to a cancelled Put
// or Get.
//
// For more details, see https://github.com/Swind/go-numa-executor
package numaexec
