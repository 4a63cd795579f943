// Package cache provides memoization tables with declarative invalidation.
//
// Every table declares, when it is created, which property changes purge it:
//
//   - [OnAny]: any actual change
//   - [On]: a change of one of the named properties
//   - [Independent]: never; the key carries every input
//
// Mutators in the grid and energy packages return a [Change]. The owning
// component forwards it to its tables through [Group.Notify]:
//
//	ch, err := g.SetExtent([]float64{10, 10})
//	if err != nil {
//	    return err
//	}
//	w.caches.Notify(ch)
//
// A no-op write (Changed == false) never purges anything.
package cache
