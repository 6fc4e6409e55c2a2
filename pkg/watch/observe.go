package watch

import "context"

// Query loads the current value of an observed read model.
type Query[T any] func(ctx context.Context) (T, error)

// Observe runs query once immediately and again after every notification on
// topics, emitting results on the returned channel. The channel holds only the
// latest value: a slow reader skips intermediate states. Query errors go to
// onErr (when non-nil) and keep the stream alive. The channel is closed once
// ctx is done and nothing is delivered after that.
func Observe[T any](ctx context.Context, n *Notifier, query Query[T], onErr func(error), topics ...string) <-chan T {
	out := make(chan T, 1)
	signals, cancel := n.Subscribe(topics...)

	go func() {
		defer close(out)
		defer cancel()

		emit := func() {
			v, err := query(ctx)
			if err != nil {
				if onErr != nil && ctx.Err() == nil {
					onErr(err)
				}
				return
			}
			select {
			case <-out:
			default:
			}
			select {
			case <-ctx.Done():
			case out <- v:
			}
		}

		emit()
		for {
			select {
			case <-ctx.Done():
				select {
				case <-out:
				default:
				}
				return
			case <-signals:
				emit()
			}
		}
	}()

	return out
}
