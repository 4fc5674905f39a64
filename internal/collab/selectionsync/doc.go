// Package selectionsync relays an editor's selections to a shared cursor
// set and draws other sites' selections as decorations.
//
// Local marker updates are published as one complete set per synchronous
// operation. Updates caused only by text shifting under the markers are
// not published, since every site shifts its own copy of them. Each remote
// site gets its own decoration layer colored from a palette keyed by site id.
package selectionsync
