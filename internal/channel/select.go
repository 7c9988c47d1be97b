package channel

import "reflect"

// First blocks until one of the given channels is ready, receives from it,
// and returns the value, the index of the chosen channel, and whether a value
// was delivered. The ok result is false when the chosen channel is closed.
// When several channels are ready at once, one is chosen uniformly at random,
// so no source can starve the others.
//
// First panics when called with no channels.
func First[T any](chans ...<-chan T) (T, int, bool) {
	if len(chans) == 0 {
		panic("channel: First called with no channels")
	}

	cases := make([]reflect.SelectCase, len(chans))
	for i, ch := range chans {
		cases[i] = reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(ch),
		}
	}

	chosen, value, ok := reflect.Select(cases)
	if !ok {
		var zero T
		return zero, chosen, false
	}

	return value.Interface().(T), chosen, true
}

// TryFirst is the non-blocking variant of First. When no channel is ready it
// returns immediately with index -1 instead of waiting.
func TryFirst[T any](chans ...<-chan T) (T, int, bool) {
	if len(chans) == 0 {
		panic("channel: TryFirst called with no channels")
	}

	cases := make([]reflect.SelectCase, 0, len(chans)+1)
	for _, ch := range chans {
		cases = append(cases, reflect.SelectCase{
			Dir:  reflect.SelectRecv,
			Chan: reflect.ValueOf(ch),
		})
	}
	cases = append(cases, reflect.SelectCase{Dir: reflect.SelectDefault})

	chosen, value, ok := reflect.Select(cases)
	if chosen == len(chans) {
		var zero T
		return zero, -1, false
	}
	if !ok {
		var zero T
		return zero, chosen, false
	}

	return value.Interface().(T), chosen, true
}
