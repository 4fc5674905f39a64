// Package memdoc is an in-process implementation of the shared document
// service. It keeps every document as a sequence of single-byte items that
// are never removed, only hidden, so any transaction of any site can be
// toggled off and on again without disturbing the edits of other sites.
//
// All sites of a Room live in the same process. Operations are serialized
// per document and notifications are delivered synchronously, in the order
// the operations were accepted, after the internal lock is released.
package memdoc
