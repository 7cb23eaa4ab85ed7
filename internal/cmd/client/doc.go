// Package client provides the queue and audit commands of the `pageq` CLI.
//
// Commands open the data directory directly through an OpenFunc supplied by
// the embedding binary, so they must not run against a directory another
// pageq process holds open.
//
// Usage
//
//	pageq queue enqueue --origin 1 --weight 120 --data hello --data world
//	pageq queue footprint --origin 1
//	pageq queue origins
//	pageq queue peek --origin 1 --limit 5
//
//	# How much of a 3-message batch fits under 8 pages?
//	pageq queue plan --origin 1 --size 40 --size 40 --size 200 --limit 8
//
//	pageq queue suspend --origin 1
//	pageq queue resume --origin 1
//	pageq queue sweep --origin 1 --confirm
//
//	# One service pass with the configured weight, or an explicit one
//	pageq queue service
//	pageq queue service --weight 1000,2000
//
//	pageq queue parked --origin 1 --reason overweight
//	pageq queue execute-overweight --origin 1 --seq 4 --weight 5000
//
//	pageq audit list --origin 1 --from 1 --limit 20
//	pageq audit trim --origin 1 --before 100
//
// Notes
//
//   - enqueue prefixes each body with a 4-byte little-endian weight marker
//     unless --raw is given. The default processor treats bodies shorter than
//     the marker as corrupt.
//   - Output is JSON, except for status-only commands.
package client
