// Package cache holds the in-memory, time-bounded caches that keep filesystem
// calls from turning into network round trips. TTL is a generic store whose
// entries expire a fixed duration after insertion, evaluated lazily on read;
// it records failures as well as values so a known-missing path is not
// requested again until its entry expires. Loader layers a load function and
// optional miss coalescing on top of TTL and is what the filesystem handlers
// hold, one per handler kind. Nothing here touches disk: entries live only for
// the process lifetime.
package cache
