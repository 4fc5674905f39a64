// Package shared defines the contracts between local editor bindings and a
// collaborative document service: the replicated text document, the
// per-document cursor set and the portal that names the participating sites.
//
// The document service resolves concurrent edits into one ordered change
// stream per site. Bindings only rely on the interfaces declared here.
package shared
