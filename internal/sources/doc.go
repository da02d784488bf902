// Package sources owns the cache root of the application directory.
//
// The cache root holds at most two files between syncs:
//
//   - index.jar: the transient archive downloaded from the repository,
//     removed once it has been extracted
//   - index.xml: the persisted minimized index, replaced only by an atomic
//     rename after a successful parse and encode
//
// During a sync the archive is extracted into a transient staging directory
// (.extract) so that the upstream index.xml never overwrites the persisted one.
//
// Two components live here:
//   - RepositorySource: downloads the index archive and extracts the raw index
//   - StorageManager: reads and writes the persisted minimized index
package sources
