/*
Package lww implements a state-based Last-Write-Wins Element Set CRDT.

A Set keeps two logs, one for add events and one for remove events. Each log
maps a value to an Element holding every timestamp at which the event was
observed. A value is present at time T iff its latest add at or before T is
strictly later than its latest remove at or before T. Equal timestamps
resolve to "removed".

Merge unions both logs of two replicas and writes the result into both, so a
single call leaves the two sets logically identical. Merge is commutative,
associative and idempotent, and logs only ever grow.

Timestamps come from an injected clock.Clock whenever a caller does not
supply them explicitly (see Stamp).

A Set guards its logs with a mutex. Merge locks both participants for its
whole duration in a fixed order, so concurrent merges in opposite directions
are safe.
*/
package lww
