// Package simpleattachment provides a polymorphic attachment metadata store
// over pluggable repository and blob storage backends.
//
// An Attachment records where an uploaded blob lives (StoredPath) and can be
// bound to an arbitrary owning entity through an OwnerRef. The reference is
// weak: deleting an attachment record never touches the owning entity, and
// deleting a record does not remove its blob. Blobs left behind that way are
// swept by the reconcile subpackage, which compares the set of stored paths
// referenced by records against a full listing of the blob store.
//
// Repositories (memory, Postgres) live under repo/ and blob stores (memory,
// filesystem, S3) under storage/.
package simpleattachment
